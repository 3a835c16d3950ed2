package scorer

import (
	"github.com/sells-group/opportunity-cli/internal/model"
)

// Geographic gap buckets (kilometers). Intervals are half-open: [0,5), [5,10),
// [10,20), [20,inf).
const (
	closeKM  = 5.0
	mediumKM = 10.0
	farKM    = 20.0
)

// Component names used in Breakdown.
const (
	ComponentPopulation    = "population"
	ComponentSaturation    = "saturation"
	ComponentQualityGap    = "quality_gap"
	ComponentGeographicGap = "geographic_gap"
)

// Option configures an OpportunityScorer.
type Option func(*OpportunityScorer)

// WithNormalizer overrides the min-max normalization of the continuous factors.
func WithNormalizer(n Normalizer) Option {
	return func(s *OpportunityScorer) {
		if n != nil {
			s.norm = n
		}
	}
}

// OpportunityScorer scores cities with fixed, validated coefficients.
type OpportunityScorer struct {
	weights model.Weights
	norm    Normalizer
}

// New validates the weights and returns a scorer. Invalid weights are a
// configuration error and no scorer is returned.
func New(w model.Weights, opts ...Option) (*OpportunityScorer, error) {
	if err := ValidateWeights(w); err != nil {
		return nil, err
	}
	s := &OpportunityScorer{weights: w, norm: MinMax{}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Weights returns the scorer's coefficients.
func (s *OpportunityScorer) Weights() model.Weights { return s.weights }

// Normalization returns the name of the normalization strategy in use.
func (s *OpportunityScorer) Normalization() string { return s.norm.Name() }

// Score returns copies of stats with the four factors and the opportunity
// score filled in. Factors are normalized across all cities in the slice.
func (s *OpportunityScorer) Score(stats []model.CityStats) []model.CityStats {
	out := model.CloneAll(stats)

	populations := make([]*float64, len(out))
	saturations := make([]*float64, len(out))
	ratings := make([]*float64, len(out))
	for i := range out {
		if p := out[i].Population; p != nil {
			populations[i] = model.Float(float64(*p))
		}
		saturations[i] = out[i].FacilitiesPer10k
		ratings[i] = out[i].AvgRating
	}

	for i := range out {
		cs := &out[i]
		cs.PopulationFactor = s.norm.Normalize(populations[i], populations)
		cs.SaturationFactor = 1 - s.norm.Normalize(saturations[i], saturations)
		cs.QualityGapFactor = 1 - s.norm.Normalize(ratings[i], ratings)
		cs.GeographicGapFactor = GeographicGapFactor(cs.DistanceToNearestKM)
		cs.OpportunityScore = 100 * clamp01(
			cs.PopulationFactor*s.weights.Population+
				cs.SaturationFactor*s.weights.Saturation+
				cs.QualityGapFactor*s.weights.QualityGap+
				cs.GeographicGapFactor*s.weights.GeographicGap,
		)
	}
	return out
}

// Breakdown returns each factor's contribution to a scored city's
// opportunity score, in score points. The values sum to OpportunityScore.
func (s *OpportunityScorer) Breakdown(cs model.CityStats) map[string]float64 {
	return map[string]float64{
		ComponentPopulation:    100 * cs.PopulationFactor * s.weights.Population,
		ComponentSaturation:    100 * cs.SaturationFactor * s.weights.Saturation,
		ComponentQualityGap:    100 * cs.QualityGapFactor * s.weights.QualityGap,
		ComponentGeographicGap: 100 * cs.GeographicGapFactor * s.weights.GeographicGap,
	}
}

// GeographicGapFactor buckets the distance to the nearest competing facility:
// under 5 km 0.25, under 10 km 0.50, under 20 km 0.75, otherwise 1.00.
// Missing or negative distances are Neutral.
func GeographicGapFactor(km *float64) float64 {
	if km == nil || *km < 0 {
		return Neutral
	}
	switch d := *km; {
	case d < closeKM:
		return 0.25
	case d < mediumKM:
		return 0.50
	case d < farKM:
		return 0.75
	default:
		return 1.00
	}
}
