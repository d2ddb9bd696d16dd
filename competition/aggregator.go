// Package competition summarizes franchise units near a point, grouped by
// brand. It only reads the shared grid index, it never mutates it.
package competition

import (
	"github.com/frangeo/frangeo/locgrid"
	"github.com/frangeo/frangeo/locmodel"
)

type Competitor struct {
	Location       *locmodel.Location `json:"location"`
	DistanceMeters float64            `json:"distance_meters"`
}

type Report struct {
	Total  int                     `json:"total"`
	Brands map[string][]Competitor `json:"brands"`
}

type Aggregator struct {
	grid *locgrid.Grid[*locmodel.Location]
}

func NewAggregator(grid *locgrid.Grid[*locmodel.Location]) *Aggregator {
	return &Aggregator{grid: grid}
}

// GridStats exposes the occupancy stats of the underlying index.
func (a *Aggregator) GridStats() locgrid.Stats {
	return a.grid.Stats()
}

// FindCompetitors runs a radius query around the point, restricted to the
// brands in active when it is non-nil, and groups the matches by brand. The
// per-brand lists keep the ascending distance order of the query.
func (a *Aggregator) FindCompetitors(lat, lon, radiusMiles float64, active map[string]bool) Report {
	var filter func(locgrid.Point[*locmodel.Location]) bool
	if active != nil {
		filter = func(p locgrid.Point[*locmodel.Location]) bool {
			return active[p.Data.Brand]
		}
	}

	results := a.grid.WithinRadius(lat, lon, radiusMiles, filter)

	report := Report{Brands: map[string][]Competitor{}}
	for _, r := range results {
		loc := r.Point.Data
		report.Brands[loc.Brand] = append(report.Brands[loc.Brand], Competitor{
			Location:       loc,
			DistanceMeters: r.DistanceMeters,
		})
		report.Total++
	}
	return report
}
