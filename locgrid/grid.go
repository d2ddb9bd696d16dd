package locgrid

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Minimal struct carried by the grid, mirrors the input point
type Point[T any] struct {
	Lat, Lon float64
	Data     T
}

// Result pairs a point with its true great-circle distance to the query.
type Result[T any] struct {
	Point          Point[T]
	DistanceMeters float64
}

// DefaultCellSize is the grid resolution in degrees, a few kilometers per
// cell at mid-latitudes. A tunable, not physics.
const DefaultCellSize = 0.02

var ErrInvalidCellSize = errors.New("cell size must be positive")

type cellKey struct {
	X, Y int64
}

type indexed[T any] struct {
	Point[T]
	ord int
}

// Grid partitions points into fixed-size lat/lon cells and answers radius
// and nearest-neighbor queries over them. Build is destructive and must not
// run concurrently with queries on the same instance.
type Grid[T any] struct {
	cellSize float64

	cells  map[cellKey][]indexed[T]
	count  int
	bounds orb.Bound
}

func New[T any](cellSize float64) (*Grid[T], error) {
	if cellSize <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCellSize, cellSize)
	}
	return &Grid[T]{
		cellSize: cellSize,
		cells:    map[cellKey][]indexed[T]{},
	}, nil
}

func (g *Grid[T]) keyFor(lat, lon float64) cellKey {
	return cellKey{
		X: int64(math.Floor(lat / g.cellSize)),
		Y: int64(math.Floor(lon / g.cellSize)),
	}
}

// Build clears any prior state and indexes the given points. Every point
// lands in exactly the cell its own coordinates map to; identical
// coordinates are all retained. An empty input produces an empty, valid
// index.
func (g *Grid[T]) Build(points []Point[T]) {
	g.cells = make(map[cellKey][]indexed[T], len(points)/4+1)
	g.count = len(points)
	g.bounds = orb.Bound{}

	for i, p := range points {
		key := g.keyFor(p.Lat, p.Lon)
		g.cells[key] = append(g.cells[key], indexed[T]{Point: p, ord: i})

		pt := orb.Point{p.Lon, p.Lat}
		if i == 0 {
			g.bounds = orb.Bound{Min: pt, Max: pt}
		} else {
			g.bounds = g.bounds.Extend(pt)
		}
	}
}

// Stats describes the index shape, for diagnostics only.
type Stats struct {
	Count      int       `json:"count"`
	Cells      int       `json:"cells"`
	AvgPerCell float64   `json:"avg_per_cell"`
	Bounds     orb.Bound `json:"bounds"`
}

func (g *Grid[T]) Stats() Stats {
	s := Stats{
		Count:  g.count,
		Cells:  len(g.cells),
		Bounds: g.bounds,
	}
	if s.Cells > 0 {
		s.AvgPerCell = float64(s.Count) / float64(s.Cells)
	}
	return s
}

func (g *Grid[T]) CellSize() float64 { return g.cellSize }
