package server

import (
	"context"
	"encoding/json"
	"errors"
	stdlog "log"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/frangeo/frangeo/competition"
	"github.com/frangeo/frangeo/datacache"
	"github.com/frangeo/frangeo/loader"
)

const MaxBodySize = 8 * 1000 * 1000 // 8MB

const defaultRadiusMiles = 2.0

var meter = otel.Meter("github.com/frangeo/frangeo/server")

// Run serves the location api on address until ctx is cancelled.
func Run(ctx context.Context, address string, facade *loader.Facade, agg *competition.Aggregator) error {
	log := slog.Default()

	metricLocationsCallCount, err := meter.Int64Counter("http_locations_call_total")
	if err != nil {
		return err
	}
	metricCompetitorsCallCount, err := meter.Int64Counter("http_competitors_call_total")
	if err != nil {
		return err
	}
	metricLocationsLoaded, err := meter.Int64Counter("locations_loaded_total")
	if err != nil {
		return err
	}
	s := &server{
		facade: facade,
		agg:    agg,

		metricLocationsCallCount:   metricLocationsCallCount,
		metricCompetitorsCallCount: metricCompetitorsCallCount,
		metricLocationsLoaded:      metricLocationsLoaded,
	}

	r := router.New()
	r.GET("/api/locations/{brand}", s.LocationsHandler)
	r.POST("/api/reload/{brand}", s.ReloadHandler)
	r.GET("/api/competitors/{lat}/{lon}", s.CompetitorsHandler)
	r.GET("/api/competitors/{lat}/{lon}/stats", s.CompetitorStatsHandler)
	r.POST("/api/competitors", s.CompetitorsMultiHandler)
	r.GET("/api/index/stats", s.IndexStatsHandler)
	r.GET("/api/memory", s.MemoryHandler)
	r.Handle(http.MethodGet, "/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))

	server := &fasthttp.Server{
		ReadTimeout:        time.Second,
		MaxRequestBodySize: MaxBodySize,
		Handler:            r.Handler,
	}

	go func() {
		log.Info("Server listening", "address", address)
		if err := server.ListenAndServe(address); err != http.ErrServerClosed {
			stdlog.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	slog.Info("Server started")

	// wait cancel
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return server.ShutdownWithContext(shutdownCtx)
}

type server struct {
	facade *loader.Facade
	agg    *competition.Aggregator

	metricLocationsCallCount   metric.Int64Counter
	metricCompetitorsCallCount metric.Int64Counter
	metricLocationsLoaded      metric.Int64Counter
}

var reqPointsPool = sync.Pool{
	New: func() any {
		return [][2]float64{}
	},
}

type locationsResponse struct {
	Key       string `json:"key"`
	State     string `json:"state"`
	Count     int    `json:"count"`
	Skipped   int    `json:"skipped"`
	Metadata  any    `json:"metadata"`
	Locations any    `json:"locations"`
}

func (s *server) LocationsHandler(ctx *fasthttp.RequestCtx) {
	s.metricLocationsCallCount.Add(ctx, 1)

	brand := ctx.UserValue("brand").(string)
	res, err := s.facade.LoadDataset(ctx, brand)
	if err != nil {
		writeLoadError(ctx, err)
		return
	}
	s.metricLocationsLoaded.Add(ctx, int64(len(res.Locations)))

	writeJSON(ctx, locationsResponse{
		Key:       res.Key,
		State:     s.facade.State(brand).String(),
		Count:     len(res.Locations),
		Skipped:   res.Invalid,
		Metadata:  res.Meta,
		Locations: res.Locations,
	})
}

func (s *server) ReloadHandler(ctx *fasthttp.RequestCtx) {
	s.metricLocationsCallCount.Add(ctx, 1)

	brand := ctx.UserValue("brand").(string)
	res, err := s.facade.Reload(ctx, brand)
	if err != nil {
		writeLoadError(ctx, err)
		return
	}
	s.metricLocationsLoaded.Add(ctx, int64(len(res.Locations)))

	writeJSON(ctx, locationsResponse{
		Key:      res.Key,
		State:    s.facade.State(brand).String(),
		Count:    len(res.Locations),
		Skipped:  res.Invalid,
		Metadata: res.Meta,
	})
}

func (s *server) CompetitorsHandler(ctx *fasthttp.RequestCtx) {
	s.metricCompetitorsCallCount.Add(ctx, 1)

	lat, lon, ok := pathPoint(ctx)
	if !ok {
		return
	}
	radius, ok := radiusParam(ctx)
	if !ok {
		return
	}

	report := s.agg.FindCompetitors(lat, lon, radius, brandsParam(ctx))
	writeJSON(ctx, report)
}

func (s *server) CompetitorStatsHandler(ctx *fasthttp.RequestCtx) {
	s.metricCompetitorsCallCount.Add(ctx, 1)

	lat, lon, ok := pathPoint(ctx)
	if !ok {
		return
	}
	radius, ok := radiusParam(ctx)
	if !ok {
		return
	}

	report := s.agg.Stats(lat, lon, radius, brandsParam(ctx))
	writeJSON(ctx, report)
}

func (s *server) CompetitorsMultiHandler(ctx *fasthttp.RequestCtx) {
	s.metricCompetitorsCallCount.Add(ctx, 1)

	radius, ok := radiusParam(ctx)
	if !ok {
		return
	}
	active := brandsParam(ctx)

	req := reqPointsPool.Get().([][2]float64) // lat, lon
	req = req[:0]
	defer reqPointsPool.Put(req)

	if err := unmarshalPointsListFast(ctx.Request.Body(), &req); err != nil {
		ctx.Response.SetStatusCode(http.StatusBadRequest)
		ctx.Response.SetBodyString("failed to parse request: " + err.Error())
		return
	}

	reports := make([]competition.Report, 0, len(req))
	for _, p := range req {
		reports = append(reports, s.agg.FindCompetitors(p[0], p[1], radius, active))
	}
	writeJSON(ctx, reports)
}

type indexStatsResponse struct {
	Brands []string          `json:"brands"`
	States map[string]string `json:"states"`
	Grid   any               `json:"grid"`
}

func (s *server) IndexStatsHandler(ctx *fasthttp.RequestCtx) {
	keys := s.facade.LoadedKeys()
	states := make(map[string]string, len(keys))
	for _, k := range keys {
		states[k] = s.facade.State(k).String()
	}
	writeJSON(ctx, indexStatsResponse{
		Brands: keys,
		States: states,
		Grid:   s.agg.GridStats(),
	})
}

func (s *server) MemoryHandler(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, s.facade.MemoryStats())
}

func pathPoint(ctx *fasthttp.RequestCtx) (lat, lon float64, ok bool) {
	latS := ctx.UserValue("lat").(string)
	lonS := ctx.UserValue("lon").(string)

	lat, err := strconv.ParseFloat(latS, 64)
	if err != nil {
		ctx.Response.SetStatusCode(http.StatusBadRequest)
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(lonS, 64)
	if err != nil {
		ctx.Response.SetStatusCode(http.StatusBadRequest)
		return 0, 0, false
	}
	return lat, lon, true
}

func radiusParam(ctx *fasthttp.RequestCtx) (float64, bool) {
	arg := ctx.QueryArgs().Peek("radius")
	if len(arg) == 0 {
		return defaultRadiusMiles, true
	}
	radius, err := strconv.ParseFloat(string(arg), 64)
	if err != nil || radius <= 0 {
		ctx.Response.SetStatusCode(http.StatusBadRequest)
		ctx.Response.SetBodyString("invalid radius")
		return 0, false
	}
	return radius, true
}

// brandsParam parses the comma separated brands filter. Absent means no
// restriction.
func brandsParam(ctx *fasthttp.RequestCtx) map[string]bool {
	arg := ctx.QueryArgs().Peek("brands")
	if len(arg) == 0 {
		return nil
	}
	active := map[string]bool{}
	for _, b := range strings.Split(string(arg), ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			active[b] = true
		}
	}
	return active
}

func writeLoadError(ctx *fasthttp.RequestCtx, err error) {
	var fetchErr *datacache.FetchError
	var parseErr *datacache.ParseError
	switch {
	case errors.As(err, &fetchErr), errors.As(err, &parseErr):
		ctx.Response.SetStatusCode(http.StatusBadGateway)
	case errors.Is(err, loader.ErrStaleGeneration):
		ctx.Response.SetStatusCode(http.StatusConflict)
	default:
		ctx.Response.SetStatusCode(http.StatusInternalServerError)
	}
	ctx.Response.SetBodyString(err.Error())
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	out, err := json.Marshal(v)
	if err != nil {
		ctx.Response.SetStatusCode(http.StatusInternalServerError)
		ctx.Response.SetBodyString("failed to marshal response")
		return
	}

	ctx.Response.Header.SetContentType("application/json")
	ctx.Response.SetStatusCode(http.StatusOK)
	ctx.Response.SetBody(out)
}
