package competition

type BrandStats struct {
	Count              int     `json:"count"`
	MeanDistanceMeters float64 `json:"mean_distance_meters"`
	MeanScore          float64 `json:"mean_score"`
}

type StatsReport struct {
	Total  int                   `json:"total"`
	Brands map[string]BrandStats `json:"brands"`

	MinDistanceMeters  float64 `json:"min_distance_meters"`
	MaxDistanceMeters  float64 `json:"max_distance_meters"`
	MeanDistanceMeters float64 `json:"mean_distance_meters"`
	MinScore           float64 `json:"min_score"`
	MaxScore           float64 `json:"max_score"`
	MeanScore          float64 `json:"mean_score"`
}

// Stats derives per-brand and global distance/score summaries for the units
// around a point. Zero matches resolve to all-zero values, never Inf or NaN.
func (a *Aggregator) Stats(lat, lon, radiusMiles float64, active map[string]bool) StatsReport {
	report := a.FindCompetitors(lat, lon, radiusMiles, active)

	out := StatsReport{
		Total:  report.Total,
		Brands: make(map[string]BrandStats, len(report.Brands)),
	}
	if report.Total == 0 {
		return out
	}

	first := true
	var distSum, scoreSum float64
	for brand, comps := range report.Brands {
		var bDist, bScore float64
		for _, c := range comps {
			bDist += c.DistanceMeters
			bScore += c.Location.Score

			if first {
				out.MinDistanceMeters = c.DistanceMeters
				out.MaxDistanceMeters = c.DistanceMeters
				out.MinScore = c.Location.Score
				out.MaxScore = c.Location.Score
				first = false
			} else {
				out.MinDistanceMeters = min(out.MinDistanceMeters, c.DistanceMeters)
				out.MaxDistanceMeters = max(out.MaxDistanceMeters, c.DistanceMeters)
				out.MinScore = min(out.MinScore, c.Location.Score)
				out.MaxScore = max(out.MaxScore, c.Location.Score)
			}
		}
		distSum += bDist
		scoreSum += bScore

		n := float64(len(comps))
		out.Brands[brand] = BrandStats{
			Count:              len(comps),
			MeanDistanceMeters: bDist / n,
			MeanScore:          bScore / n,
		}
	}

	out.MeanDistanceMeters = distSum / float64(report.Total)
	out.MeanScore = scoreSum / float64(report.Total)
	return out
}
