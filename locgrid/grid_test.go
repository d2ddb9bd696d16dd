package locgrid_test

import (
	"math"
	"testing"

	"github.com/fogleman/poissondisc"

	"github.com/frangeo/frangeo/locgrid"
)

func TestInvalidCellSize(t *testing.T) {
	if _, err := locgrid.New[int](0); err == nil {
		t.Fatal("expected error for zero cell size")
	}
	if _, err := locgrid.New[int](-0.5); err == nil {
		t.Fatal("expected error for negative cell size")
	}
}

func TestEmptyBuild(t *testing.T) {
	g, err := locgrid.New[int](locgrid.DefaultCellSize)
	if err != nil {
		t.Fatal(err)
	}
	g.Build(nil)

	if s := g.Stats(); s.Count != 0 || s.Cells != 0 {
		t.Fatalf("expected empty index, got %+v", s)
	}
	if res := g.WithinRadius(0, 0, 10, nil); len(res) != 0 {
		t.Fatalf("expected no results, got %d", len(res))
	}
	if res := g.Nearest(0, 0, 5, nil); len(res) != 0 {
		t.Fatalf("expected no results, got %d", len(res))
	}
}

// Three points at (0,0), (0,0.01) and (1,1) with the default 0.02 degree
// cells: a two mile query at the origin must return the first two and
// exclude the third.
func TestAdjacentCellScenario(t *testing.T) {
	g, err := locgrid.New[string](0.02)
	if err != nil {
		t.Fatal(err)
	}
	g.Build([]locgrid.Point[string]{
		{Lat: 0, Lon: 0, Data: "a"},
		{Lat: 0, Lon: 0.01, Data: "b"},
		{Lat: 1, Lon: 1, Data: "c"},
	})

	res := g.WithinRadius(0, 0, 2, nil)
	if len(res) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res))
	}
	if res[0].Point.Data != "a" || res[1].Point.Data != "b" {
		t.Fatalf("expected a,b ordering, got %s,%s", res[0].Point.Data, res[1].Point.Data)
	}
	if res[0].DistanceMeters > res[1].DistanceMeters {
		t.Fatal("results not sorted by distance")
	}
}

func TestRadiusAgainstBruteForce(t *testing.T) {
	// Synthetic point field around Atlanta, roughly a point every ~0.005
	// degrees.
	samples := poissondisc.Sample(-84.6, 33.5, -84.1, 34.0, 0.005, 10, nil)

	points := make([]locgrid.Point[int], len(samples))
	for i, s := range samples {
		points[i] = locgrid.Point[int]{Lat: s.Y, Lon: s.X, Data: i}
	}

	g, err := locgrid.New[int](locgrid.DefaultCellSize)
	if err != nil {
		t.Fatal(err)
	}
	g.Build(points)

	const (
		qLat, qLon  = 33.75, -84.35
		radiusMiles = 5.0
	)

	want := map[int]bool{}
	for _, p := range points {
		if haversine(qLat, qLon, p.Lat, p.Lon) <= radiusMiles*1609.34 {
			want[p.Data] = true
		}
	}

	res := g.WithinRadius(qLat, qLon, radiusMiles, nil)
	if len(res) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(res))
	}
	for _, r := range res {
		if !want[r.Point.Data] {
			t.Fatalf("unexpected point %d at %.1fm", r.Point.Data, r.DistanceMeters)
		}
	}
	for i := 1; i < len(res); i++ {
		if res[i].DistanceMeters < res[i-1].DistanceMeters {
			t.Fatal("results not sorted ascending by distance")
		}
	}
}

// The ring of candidate cells must grow with the radius, a large radius
// against a small cell size is still exact.
func TestLargeRadiusSmallCells(t *testing.T) {
	g, err := locgrid.New[string](0.001)
	if err != nil {
		t.Fatal(err)
	}
	g.Build([]locgrid.Point[string]{
		{Lat: 0, Lon: 0, Data: "origin"},
		{Lat: 0.2, Lon: 0.2, Data: "far"}, // ~31km out, well past a 3x3 block of 0.001 cells
	})

	res := g.WithinRadius(0, 0, 25, nil)
	if len(res) != 2 {
		t.Fatalf("expected both points within 25 miles, got %d", len(res))
	}
}

// A longitude degree is worth only cos(lat) of a latitude degree, so away
// from the equator the east-west candidate ring has to be wider than the
// north-south one. Two points at lat 33.75 separated by 0.8 degrees of
// longitude are ~46 miles apart; a 50 mile query must return both.
func TestRadiusMidLatitudeLongitudeSpan(t *testing.T) {
	g, err := locgrid.New[string](locgrid.DefaultCellSize)
	if err != nil {
		t.Fatal(err)
	}
	g.Build([]locgrid.Point[string]{
		{Lat: 33.75, Lon: 0.0001, Data: "west"},
		{Lat: 33.75, Lon: 0.8, Data: "east"},
	})

	res := g.WithinRadius(33.75, 0.0001, 50, nil)
	if len(res) != 2 {
		t.Fatalf("expected both points within 50 miles, got %d", len(res))
	}
}

func TestLargeRadiusMidLatitudeAgainstBruteForce(t *testing.T) {
	// Wide synthetic field at Atlanta's latitude, spanning two degrees of
	// longitude.
	samples := poissondisc.Sample(-85.4, 33.3, -83.4, 34.2, 0.02, 10, nil)

	points := make([]locgrid.Point[int], len(samples))
	for i, s := range samples {
		points[i] = locgrid.Point[int]{Lat: s.Y, Lon: s.X, Data: i}
	}

	g, err := locgrid.New[int](locgrid.DefaultCellSize)
	if err != nil {
		t.Fatal(err)
	}
	g.Build(points)

	const (
		qLat, qLon  = 33.75, -84.4
		radiusMiles = 50.0
	)

	want := map[int]bool{}
	for _, p := range points {
		if haversine(qLat, qLon, p.Lat, p.Lon) <= radiusMiles*1609.34 {
			want[p.Data] = true
		}
	}

	res := g.WithinRadius(qLat, qLon, radiusMiles, nil)
	if len(res) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(res))
	}
	for _, r := range res {
		if !want[r.Point.Data] {
			t.Fatalf("unexpected point %d at %.1fm", r.Point.Data, r.DistanceMeters)
		}
	}
}

func TestNearestDoubling(t *testing.T) {
	// A tight cluster near the query plus strays 50-150 miles out. One
	// degree of latitude is ~69 miles.
	points := []locgrid.Point[string]{
		{Lat: 33.001, Lon: -84.0, Data: "near1"},
		{Lat: 33.002, Lon: -84.0, Data: "near2"},
		{Lat: 34.0, Lon: -84.0, Data: "mid"},  // ~69mi
		{Lat: 35.0, Lon: -84.0, Data: "far"},  // ~138mi
		{Lat: 40.0, Lon: -84.0, Data: "gone"}, // ~480mi, past the cap
	}
	g, err := locgrid.New[string](locgrid.DefaultCellSize)
	if err != nil {
		t.Fatal(err)
	}
	g.Build(points)

	res := g.Nearest(33.0, -84.0, 4, nil)
	if len(res) != 4 {
		t.Fatalf("expected 4 results, got %d", len(res))
	}
	if res[0].Point.Data != "near1" || res[1].Point.Data != "near2" {
		t.Fatalf("closest pair wrong: %s, %s", res[0].Point.Data, res[1].Point.Data)
	}
	for _, r := range res {
		if r.Point.Data == "gone" {
			t.Fatal("point past the 200 mile cap returned")
		}
	}

	// asking for more than reachable returns what exists within the cap
	res = g.Nearest(33.0, -84.0, 10, nil)
	if len(res) != 4 {
		t.Fatalf("expected 4 reachable results, got %d", len(res))
	}
}

func TestDuplicateCoordinatesRetained(t *testing.T) {
	g, err := locgrid.New[int](locgrid.DefaultCellSize)
	if err != nil {
		t.Fatal(err)
	}
	g.Build([]locgrid.Point[int]{
		{Lat: 10, Lon: 10, Data: 1},
		{Lat: 10, Lon: 10, Data: 2},
		{Lat: 10, Lon: 10, Data: 3},
	})

	res := g.WithinRadius(10, 10, 1, nil)
	if len(res) != 3 {
		t.Fatalf("expected all duplicates retained, got %d", len(res))
	}
	// equal distances keep insertion order
	for i, r := range res {
		if r.Point.Data != i+1 {
			t.Fatalf("tie order broken at %d: got %d", i, r.Point.Data)
		}
	}
}

// Every built point lands in exactly one cell: a tight query around each
// point's own coordinates finds it exactly once, and the index count matches
// the input.
func TestPartitionInvariant(t *testing.T) {
	samples := poissondisc.Sample(-84.5, 33.6, -84.3, 33.8, 0.01, 10, nil)

	points := make([]locgrid.Point[int], len(samples))
	for i, s := range samples {
		points[i] = locgrid.Point[int]{Lat: s.Y, Lon: s.X, Data: i}
	}

	g, err := locgrid.New[int](locgrid.DefaultCellSize)
	if err != nil {
		t.Fatal(err)
	}
	g.Build(points)

	if s := g.Stats(); s.Count != len(points) {
		t.Fatalf("indexed %d of %d points", s.Count, len(points))
	}

	// 0.01 degrees between samples, ~0.1 miles covers only the point itself
	for _, p := range points {
		found := 0
		for _, r := range g.WithinRadius(p.Lat, p.Lon, 0.1, nil) {
			if r.Point.Data == p.Data {
				found++
			}
		}
		if found != 1 {
			t.Fatalf("point %d found %d times", p.Data, found)
		}
	}
}

func TestFilterPredicate(t *testing.T) {
	g, err := locgrid.New[string](locgrid.DefaultCellSize)
	if err != nil {
		t.Fatal(err)
	}
	g.Build([]locgrid.Point[string]{
		{Lat: 0, Lon: 0, Data: "keep"},
		{Lat: 0, Lon: 0.001, Data: "drop"},
	})

	res := g.WithinRadius(0, 0, 2, func(p locgrid.Point[string]) bool {
		return p.Data == "keep"
	})
	if len(res) != 1 || res[0].Point.Data != "keep" {
		t.Fatalf("predicate not applied: %+v", res)
	}
}

func TestStats(t *testing.T) {
	g, err := locgrid.New[int](locgrid.DefaultCellSize)
	if err != nil {
		t.Fatal(err)
	}
	g.Build([]locgrid.Point[int]{
		{Lat: 0, Lon: 0, Data: 1},
		{Lat: 0, Lon: 0.001, Data: 2}, // same cell
		{Lat: 5, Lon: 5, Data: 3},
	})

	s := g.Stats()
	if s.Count != 3 || s.Cells != 2 {
		t.Fatalf("unexpected stats %+v", s)
	}
	if s.AvgPerCell != 1.5 {
		t.Fatalf("expected avg 1.5, got %v", s.AvgPerCell)
	}
	if s.Bounds.Min.Lat() != 0 || s.Bounds.Max.Lat() != 5 {
		t.Fatalf("unexpected bounds %+v", s.Bounds)
	}
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const r = 6378100
	la1 := lat1 * math.Pi / 180
	lo1 := lon1 * math.Pi / 180
	la2 := lat2 * math.Pi / 180
	lo2 := lon2 * math.Pi / 180
	h := hsin(la2-la1) + math.Cos(la1)*math.Cos(la2)*hsin(lo2-lo1)
	return 2 * r * math.Asin(math.Sqrt(h))
}

func hsin(theta float64) float64 {
	return math.Pow(math.Sin(theta/2), 2)
}
