package model

// CityStats is the per-city output of a scoring run. Nullable values are
// pointers: nil means "unknown", never zero.
type CityStats struct {
	City            string `json:"city"`
	TotalFacilities int    `json:"total_facilities"`

	AvgRating    *float64 `json:"avg_rating"`
	MedianRating *float64 `json:"median_rating"`
	TotalReviews int      `json:"total_reviews"`

	CenterLat float64 `json:"center_lat"`
	CenterLng float64 `json:"center_lng"`

	Population       *int     `json:"population"`
	FacilitiesPer10k *float64 `json:"facilities_per_10k"`

	// DistanceToNearestKM is nil until the distance stage has run.
	DistanceToNearestKM *float64 `json:"distance_to_nearest_km"`

	PopulationFactor    float64 `json:"population_weight"`
	SaturationFactor    float64 `json:"saturation_weight"`
	QualityGapFactor    float64 `json:"quality_gap_weight"`
	GeographicGapFactor float64 `json:"geographic_gap_weight"`
	OpportunityScore    float64 `json:"opportunity_score"`
}

// Clone returns a deep copy so that later stages never alias an earlier
// stage's values.
func (c CityStats) Clone() CityStats {
	out := c
	out.AvgRating = cloneFloat(c.AvgRating)
	out.MedianRating = cloneFloat(c.MedianRating)
	out.FacilitiesPer10k = cloneFloat(c.FacilitiesPer10k)
	out.DistanceToNearestKM = cloneFloat(c.DistanceToNearestKM)
	if c.Population != nil {
		p := *c.Population
		out.Population = &p
	}
	return out
}

// CloneAll deep-copies a slice of CityStats.
func CloneAll(stats []CityStats) []CityStats {
	out := make([]CityStats, len(stats))
	for i := range stats {
		out[i] = stats[i].Clone()
	}
	return out
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
