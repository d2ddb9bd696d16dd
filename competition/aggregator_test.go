package competition_test

import (
	"testing"

	"github.com/frangeo/frangeo/competition"
	"github.com/frangeo/frangeo/locgrid"
	"github.com/frangeo/frangeo/locmodel"
)

func buildGrid(t *testing.T, locs []*locmodel.Location) *locgrid.Grid[*locmodel.Location] {
	t.Helper()

	g, err := locgrid.New[*locmodel.Location](locgrid.DefaultCellSize)
	if err != nil {
		t.Fatal(err)
	}
	points := make([]locgrid.Point[*locmodel.Location], len(locs))
	for i, l := range locs {
		points[i] = locgrid.Point[*locmodel.Location]{Lat: l.Latitude, Lon: l.Longitude, Data: l}
	}
	g.Build(points)
	return g
}

func TestFindCompetitorsGrouping(t *testing.T) {
	agg := competition.NewAggregator(buildGrid(t, []*locmodel.Location{
		{ID: "m1", Brand: "MCD", Latitude: 33.75, Longitude: -84.39, Score: 80},
		{ID: "m2", Brand: "MCD", Latitude: 33.751, Longitude: -84.39, Score: 60},
		{ID: "w1", Brand: "WEN", Latitude: 33.752, Longitude: -84.39, Score: 70},
		{ID: "far", Brand: "MCD", Latitude: 35.0, Longitude: -84.39, Score: 90},
	}))

	report := agg.FindCompetitors(33.75, -84.39, 2, nil)
	if report.Total != 3 {
		t.Fatalf("expected 3 competitors, got %d", report.Total)
	}
	if len(report.Brands["MCD"]) != 2 || len(report.Brands["WEN"]) != 1 {
		t.Fatalf("unexpected grouping: %+v", report.Brands)
	}

	mcd := report.Brands["MCD"]
	if mcd[0].DistanceMeters > mcd[1].DistanceMeters {
		t.Fatal("per-brand list lost distance order")
	}
}

func TestFindCompetitorsActiveSet(t *testing.T) {
	agg := competition.NewAggregator(buildGrid(t, []*locmodel.Location{
		{ID: "m1", Brand: "MCD", Latitude: 33.75, Longitude: -84.39, Score: 80},
		{ID: "w1", Brand: "WEN", Latitude: 33.751, Longitude: -84.39, Score: 70},
	}))

	report := agg.FindCompetitors(33.75, -84.39, 2, map[string]bool{"WEN": true})
	if report.Total != 1 {
		t.Fatalf("expected 1 competitor, got %d", report.Total)
	}
	if _, ok := report.Brands["MCD"]; ok {
		t.Fatal("inactive brand leaked into report")
	}
}

func TestStats(t *testing.T) {
	agg := competition.NewAggregator(buildGrid(t, []*locmodel.Location{
		{ID: "m1", Brand: "MCD", Latitude: 33.75, Longitude: -84.39, Score: 80},
		{ID: "w1", Brand: "WEN", Latitude: 33.751, Longitude: -84.39, Score: 60},
	}))

	s := agg.Stats(33.75, -84.39, 2, nil)
	if s.Total != 2 {
		t.Fatalf("expected total 2, got %d", s.Total)
	}
	if s.MeanScore != 70 {
		t.Fatalf("expected mean score 70, got %v", s.MeanScore)
	}
	if s.MinScore != 60 || s.MaxScore != 80 {
		t.Fatalf("unexpected score range %v..%v", s.MinScore, s.MaxScore)
	}
	if s.MinDistanceMeters > s.MaxDistanceMeters {
		t.Fatal("distance range inverted")
	}
	if s.Brands["MCD"].Count != 1 || s.Brands["MCD"].MeanScore != 80 {
		t.Fatalf("unexpected brand stats %+v", s.Brands["MCD"])
	}
}

// Zero matches must produce zeros, not Inf/NaN from an unguarded divide.
func TestStatsEmpty(t *testing.T) {
	agg := competition.NewAggregator(buildGrid(t, []*locmodel.Location{
		{ID: "far", Brand: "MCD", Latitude: 50, Longitude: 50, Score: 90},
	}))

	s := agg.Stats(0, 0, 1, nil)
	if s.Total != 0 {
		t.Fatalf("expected no matches, got %d", s.Total)
	}
	if s.MinDistanceMeters != 0 || s.MaxDistanceMeters != 0 || s.MeanDistanceMeters != 0 {
		t.Fatalf("distances not zeroed: %+v", s)
	}
	if s.MinScore != 0 || s.MaxScore != 0 || s.MeanScore != 0 {
		t.Fatalf("scores not zeroed: %+v", s)
	}
}
