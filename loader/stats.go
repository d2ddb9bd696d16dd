package loader

import (
	"github.com/dustin/go-humanize"
	"github.com/google/btree"

	"github.com/frangeo/frangeo/locmodel"
)

// FilterByScore keeps locations whose score falls inside [min, max],
// preserving order. Pure, the input is never modified.
func FilterByScore(locs []*locmodel.Location, min, max float64) []*locmodel.Location {
	out := make([]*locmodel.Location, 0, len(locs))
	for _, l := range locs {
		if l.Score >= min && l.Score <= max {
			out = append(out, l)
		}
	}
	return out
}

type DatasetStats struct {
	Count     int                  `json:"count"`
	MeanScore float64              `json:"mean_score"`
	Brands    int                  `json:"brands"`
	Top       []*locmodel.Location `json:"top"`
}

type scored struct {
	loc *locmodel.Location
	ord int
}

// ComputeStatistics summarizes a location set: count, mean score, distinct
// brand count and the topN locations by score, ties broken by original
// order.
func ComputeStatistics(locs []*locmodel.Location, topN int) DatasetStats {
	stats := DatasetStats{Count: len(locs)}
	if len(locs) == 0 {
		return stats
	}

	brands := map[string]struct{}{}
	var scoreSum float64

	// ordered by score; on equal scores the earlier location ranks higher,
	// so it sorts after in the ascending tree and comes out first on Descend
	tree := btree.NewG(16, func(a, b scored) bool {
		if a.loc.Score != b.loc.Score {
			return a.loc.Score < b.loc.Score
		}
		return a.ord > b.ord
	})

	for i, l := range locs {
		scoreSum += l.Score
		brands[l.Brand] = struct{}{}
		tree.ReplaceOrInsert(scored{loc: l, ord: i})
	}

	stats.MeanScore = scoreSum / float64(len(locs))
	stats.Brands = len(brands)

	if topN > 0 {
		stats.Top = make([]*locmodel.Location, 0, topN)
		tree.Descend(func(s scored) bool {
			stats.Top = append(stats.Top, s.loc)
			return len(stats.Top) < topN
		})
	}
	return stats
}

// locationEstimateBytes is a fixed per-item cost used for the informational
// memory estimate, nothing measures real allocations.
const locationEstimateBytes = 420

type MemoryStats struct {
	Items       int    `json:"items"`
	ApproxBytes uint64 `json:"approx_bytes"`
	Human       string `json:"human"`
}

// MemoryStats approximates the resource footprint of everything currently
// loaded. Diagnostic only.
func (f *Facade) MemoryStats() MemoryStats {
	f.mu.Lock()
	defer f.mu.Unlock()

	items := 0
	for _, set := range f.byKey {
		items += len(set)
	}

	approx := uint64(items) * locationEstimateBytes
	return MemoryStats{
		Items:       items,
		ApproxBytes: approx,
		Human:       humanize.Bytes(approx),
	}
}
