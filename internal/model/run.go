package model

import "time"

// Weights are the four scoring coefficients. They must sum to 1.0.
type Weights struct {
	Population    float64 `json:"population" yaml:"population_weight" mapstructure:"population_weight"`
	Saturation    float64 `json:"saturation" yaml:"saturation_weight" mapstructure:"saturation_weight"`
	QualityGap    float64 `json:"quality_gap" yaml:"quality_gap_weight" mapstructure:"quality_gap_weight"`
	GeographicGap float64 `json:"geographic_gap" yaml:"geographic_gap_weight" mapstructure:"geographic_gap_weight"`
}

// Sum returns the total of all four coefficients.
func (w Weights) Sum() float64 {
	return w.Population + w.Saturation + w.QualityGap + w.GeographicGap
}

// Run is a persisted scoring run.
type Run struct {
	ID            string      `json:"id"`
	Region        string      `json:"region"`
	InputRecords  int         `json:"input_records"`
	UniqueRecords int         `json:"unique_records"`
	Weights       Weights     `json:"weights"`
	Normalization string      `json:"normalization"`
	ConfigHash    string      `json:"config_hash"`
	Cities        []CityStats `json:"cities"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Top returns the first n cities of the run (cities are stored ranked).
func (r *Run) Top(n int) []CityStats {
	if n <= 0 || n >= len(r.Cities) {
		return r.Cities
	}
	return r.Cities[:n]
}
