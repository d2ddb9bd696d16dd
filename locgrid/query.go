package locgrid

import (
	"math"
	"slices"
)

const (
	metersPerMile = 1609.34
	milesPerDeg   = 69.0

	// nearest-neighbor search widens a trial radius from the seed until it
	// finds enough points or hits the cap
	nearestSeedMiles = 1.0
	nearestCapMiles  = 200.0
)

// WithinRadius returns all points within radiusMiles of the query point,
// sorted ascending by great-circle distance. Ties keep the order the points
// were indexed in. The optional filter drops points before distance sorting.
//
// The candidate scan covers the ring of cells sized to the requested
// radius on each axis, so results are exact for any radius, not only radii
// below one cell. A longitude degree shrinks by cos(lat), so the east-west
// ring is wider than the north-south one away from the equator.
func (g *Grid[T]) WithinRadius(lat, lon, radiusMiles float64, filter func(Point[T]) bool) []Result[T] {
	if g.count == 0 || radiusMiles <= 0 {
		return nil
	}

	radiusMeters := radiusMiles * metersPerMile
	radiusDeg := radiusMiles / milesPerDeg

	latRing := int64(math.Ceil(radiusDeg / g.cellSize))
	if latRing < 1 {
		latRing = 1
	}

	lonRing := latRing
	maxLonRing := int64(math.Ceil(180 / g.cellSize))
	if cosLat := math.Cos(lat * math.Pi / 180); cosLat*float64(maxLonRing)*g.cellSize > radiusDeg {
		lonRing = int64(math.Ceil(radiusDeg / (g.cellSize * cosLat)))
	} else {
		// close enough to a pole that the radius wraps every meridian
		lonRing = maxLonRing
	}

	center := g.keyFor(lat, lon)

	type candidate struct {
		res Result[T]
		ord int
	}

	var cands []candidate
	for dx := -latRing; dx <= latRing; dx++ {
		for dy := -lonRing; dy <= lonRing; dy++ {
			cell := g.cells[cellKey{X: center.X + dx, Y: center.Y + dy}]
			for _, p := range cell {
				if filter != nil && !filter(p.Point) {
					continue
				}
				dist := haversineMeters(lat, lon, p.Lat, p.Lon)
				if dist <= radiusMeters {
					cands = append(cands, candidate{
						res: Result[T]{Point: p.Point, DistanceMeters: dist},
						ord: p.ord,
					})
				}
			}
		}
	}

	// cells come out of a map, so insertion order is restored explicitly
	// before distance becomes the primary key
	slices.SortFunc(cands, func(a, b candidate) int {
		switch {
		case a.res.DistanceMeters < b.res.DistanceMeters:
			return -1
		case a.res.DistanceMeters > b.res.DistanceMeters:
			return 1
		}
		return a.ord - b.ord
	})

	out := make([]Result[T], len(cands))
	for i, c := range cands {
		out[i] = c.res
	}
	return out
}

// Nearest returns up to count points closest to the query, never scanning
// the whole dataset: the trial radius starts at one mile and doubles until
// enough points are found or the 200 mile cap is reached.
func (g *Grid[T]) Nearest(lat, lon float64, count int, filter func(Point[T]) bool) []Result[T] {
	if g.count == 0 || count <= 0 {
		return nil
	}

	radius := nearestSeedMiles
	var res []Result[T]
	for {
		res = g.WithinRadius(lat, lon, radius, filter)
		if len(res) >= count || radius >= nearestCapMiles {
			break
		}
		radius = min(radius*2, nearestCapMiles)
	}

	if len(res) > count {
		res = res[:count]
	}
	return res
}

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const r = 6378100 // Earth radius in meters (equator)

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
