package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/sourcegraph/conc/pool"
	"github.com/urfave/cli/v3"

	_ "net/http/pprof"

	_ "github.com/KimMachineGun/automemlimit"
	_ "go.uber.org/automaxprocs"

	"github.com/frangeo/frangeo/competition"
	"github.com/frangeo/frangeo/datacache"
	"github.com/frangeo/frangeo/internal/stats"
	"github.com/frangeo/frangeo/internal/telemetry"
	"github.com/frangeo/frangeo/loader"
	"github.com/frangeo/frangeo/locgrid"
	"github.com/frangeo/frangeo/locmodel"
	"github.com/frangeo/frangeo/server"
	"github.com/frangeo/frangeo/snapshot"
)

const appName = "frangeo"

func main() {
	app := &cli.App{
		Name:        appName,
		Description: "Franchise location index and competition api",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "serve the location api",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Value: ":8080",
					},
					&cli.StringFlag{
						Name:  "data-url",
						Usage: "base url of the brand dataset feed",
					},
					&cli.StringFlag{
						Name:      "data-dir",
						Usage:     "directory with brand dataset files, overrides data-url",
						TakesFile: true,
					},
					&cli.StringFlag{
						Name:      "snapshot",
						Aliases:   []string{"s"},
						Usage:     "snapshot file to prime the cache from",
						TakesFile: true,
					},
					&cli.StringFlag{
						Name:  "cell-size",
						Value: "",
						Usage: "grid cell size in degrees",
					},
					&cli.StringFlag{
						Name:  "ttl",
						Value: "1h",
						Usage: "dataset cache ttl",
					},
					&cli.IntFlag{
						Name:  "chunk-size",
						Value: loader.DefaultChunkSize,
					},
					&cli.StringFlag{
						Name: "otlp.endpoint",
					},
					&cli.StringFlag{
						Name:        "pprof.listen",
						DefaultText: "",
					},
				},
				Action: serve,
			},
			{
				Name:    "warm",
				Aliases: []string{"w"},
				Usage:   "fetch brand datasets and save them as a snapshot",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "data-url",
						Usage: "base url of the brand dataset feed",
					},
					&cli.StringFlag{
						Name:      "data-dir",
						Usage:     "directory with brand dataset files, overrides data-url",
						TakesFile: true,
					},
					&cli.StringSliceFlag{
						Name:     "brands",
						Aliases:  []string{"b"},
						Required: true,
					},
					&cli.StringFlag{
						Name:      "output",
						Aliases:   []string{"o"},
						Required:  true,
						TakesFile: true,
					},
					&cli.IntFlag{
						Name:        "threads",
						Aliases:     []string{"t"},
						DefaultText: "max",
					},
					&cli.StringFlag{
						Name:      "stats",
						Usage:     "write a runtime stats report to this file",
						TakesFile: true,
					},
				},
				Action: warm,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newFetcher(ctx *cli.Context) (datacache.Fetcher, error) {
	if dir := ctx.String("data-dir"); dir != "" {
		return &datacache.FileFetcher{Dir: dir}, nil
	}
	if url := ctx.String("data-url"); url != "" {
		return datacache.NewHTTPFetcher(url), nil
	}
	return nil, fmt.Errorf("either data-url or data-dir is required")
}

func serve(ctx *cli.Context) error {
	runCtx, cancel := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := telemetry.Setup(runCtx, appName, ctx.String("otlp.endpoint"))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	if client != nil {
		defer client.Shutdown(context.Background())
	}
	log := slog.Default()

	if pprofListen := ctx.String("pprof.listen"); pprofListen != "" {
		go func() {
			log.Info("Starting pprof server")
			err := http.ListenAndServe(pprofListen, nil)
			if err != nil {
				log.Error("Error starting pprof server", "error", err)
			}
		}()
	}

	fetcher, err := newFetcher(ctx)
	if err != nil {
		return err
	}

	ttl, err := time.ParseDuration(ctx.String("ttl"))
	if err != nil {
		return fmt.Errorf("invalid ttl: %w", err)
	}

	cellSize := locgrid.DefaultCellSize
	if s := ctx.String("cell-size"); s != "" {
		cellSize, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid cell-size: %w", err)
		}
	}
	grid, err := locgrid.New[*locmodel.Location](cellSize)
	if err != nil {
		return err
	}

	cache := datacache.New(fetcher, ttl, log)

	if snapshotFile := ctx.String("snapshot"); snapshotFile != "" {
		datasets, _, err := snapshot.LoadFromFile(snapshotFile, log)
		if err != nil {
			return fmt.Errorf("failed to load snapshot: %w", err)
		}
		for key, ds := range datasets {
			cache.Put(key, ds)
		}
		log.Info("cache primed from snapshot", "brands", len(datasets))
	}

	facade := loader.NewFacade(cache, grid, loader.NewMemorySurfaces(),
		loader.WithChunkSize(ctx.Int("chunk-size")),
		loader.WithLogger(log),
	)

	return server.Run(runCtx, ctx.String("listen"), facade, competition.NewAggregator(grid))
}

func warm(ctx *cli.Context) error {
	log := slog.Default()

	threads := ctx.Int("threads")
	if threads == 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	log = log.With("threads", threads)

	var collector *stats.Collector
	if ctx.String("stats") != "" {
		var err error
		collector, err = stats.NewCollector(time.Second)
		if err != nil {
			return err
		}
		collector.Start()
	}

	fetcher, err := newFetcher(ctx)
	if err != nil {
		return err
	}

	brands := ctx.StringSlice("brands")
	fmt.Printf("Warming brands: %v\n", brands)

	bar := pb.StartNew(len(brands))

	var mu sync.Mutex
	docs := make(map[string][]byte, len(brands))

	p := pool.New().WithErrors().WithMaxGoroutines(threads)
	for _, brand := range brands {
		p.Go(func() error {
			doc, err := fetcher.FetchDataset(ctx.Context, brand)
			if err != nil {
				return err
			}
			mu.Lock()
			docs[brand] = doc
			mu.Unlock()
			bar.Increment()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return fmt.Errorf("failed to fetch datasets: %w", err)
	}
	bar.Finish()

	out := ctx.String("output")
	fmt.Printf("Saving snapshot to file: %s\n", out)
	err = snapshot.SaveToFile(out, docs, snapshot.Metadata{
		CreatedAt: time.Now(),
		Brands:    brands,
	})
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	if collector != nil {
		report := collector.Stop()
		if err := report.SaveToFile(ctx.String("stats")); err != nil {
			return err
		}
	}

	fmt.Printf("Complete\n")

	return nil
}
