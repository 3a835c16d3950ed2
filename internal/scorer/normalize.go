package scorer

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// Neutral is the factor value used whenever a metric cannot be compared.
const Neutral = 0.5

const (
	minMaxEpsilon = 1e-6
	zeroVariance  = 1e-6
)

// Normalization strategy names, as used in configuration.
const (
	NormalizationMinMax = "minmax"
	NormalizationRank   = "rank"
)

// Normalizer maps one city's metric into [0,1] relative to every city's
// value of the same metric. Higher input must never map lower. A nil value,
// fewer than two known values, or zero variance all yield Neutral.
type Normalizer interface {
	Name() string
	Normalize(value *float64, all []*float64) float64
}

// NormalizerByName returns the strategy for a configuration name.
func NormalizerByName(name string) (Normalizer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NormalizationMinMax:
		return MinMax{}, nil
	case NormalizationRank:
		return Rank{}, nil
	default:
		return nil, eris.Errorf("scorer: unknown normalization %q (want %s or %s)",
			name, NormalizationMinMax, NormalizationRank)
	}
}

// MinMax computes (v - min) / (max - min + epsilon).
type MinMax struct{}

// Name implements Normalizer.
func (MinMax) Name() string { return NormalizationMinMax }

// Normalize implements Normalizer.
func (MinMax) Normalize(value *float64, all []*float64) float64 {
	if value == nil {
		return Neutral
	}
	known := present(all)
	if len(known) < 2 {
		return Neutral
	}
	lo, hi := known[0], known[0]
	for _, v := range known[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi-lo < zeroVariance {
		return Neutral
	}
	return clamp01((*value - lo) / (hi - lo + minMaxEpsilon))
}

// Rank computes the percentile rank of a value among the known values, with
// ties sharing the midpoint. It ignores outliers' magnitude.
type Rank struct{}

// Name implements Normalizer.
func (Rank) Name() string { return NormalizationRank }

// Normalize implements Normalizer.
func (Rank) Normalize(value *float64, all []*float64) float64 {
	if value == nil {
		return Neutral
	}
	known := present(all)
	if len(known) < 2 {
		return Neutral
	}
	var below, equal int
	for _, v := range known {
		switch {
		case math.Abs(v-*value) < zeroVariance:
			equal++
		case v < *value:
			below++
		}
	}
	if equal == len(known) {
		return Neutral
	}
	// equal counts the value itself when it is one of the known values.
	ties := math.Max(float64(equal-1), 0)
	return clamp01((float64(below) + ties/2) / float64(len(known)-1))
}

func present(all []*float64) []float64 {
	out := make([]float64, 0, len(all))
	for _, v := range all {
		if v != nil && !math.IsNaN(*v) {
			out = append(out, *v)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return Neutral
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
