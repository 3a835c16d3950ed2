// Package scorer turns per-city statistics into a bounded 0-100 opportunity
// score from four weighted, normalized factors.
package scorer

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/opportunity-cli/internal/model"
)

// WeightTolerance is the allowed deviation of the weight sum from 1.0.
const WeightTolerance = 1e-4

// DefaultWeights returns the canonical coefficients: population 0.2,
// saturation 0.3, quality gap 0.2, geographic gap 0.3.
func DefaultWeights() model.Weights {
	return model.Weights{
		Population:    0.2,
		Saturation:    0.3,
		QualityGap:    0.2,
		GeographicGap: 0.3,
	}
}

// ValidateWeights checks that every coefficient is in [0,1] and that they sum
// to 1.0 within WeightTolerance.
func ValidateWeights(w model.Weights) error {
	var errs []string

	named := []struct {
		name string
		v    float64
	}{
		{"population_weight", w.Population},
		{"saturation_weight", w.Saturation},
		{"quality_gap_weight", w.QualityGap},
		{"geographic_gap_weight", w.GeographicGap},
	}
	for _, n := range named {
		if math.IsNaN(n.v) || n.v < 0 || n.v > 1 {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and 1, got %g", n.name, n.v))
		}
	}

	sum := w.Sum()
	if math.IsNaN(sum) || math.Abs(sum-1) > WeightTolerance {
		errs = append(errs, fmt.Sprintf("weights must sum to 1.0, got %.4f", sum))
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: invalid weights: %s", strings.Join(errs, "; "))
	}
	return nil
}
