package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/opportunity-cli/internal/model"
)

func floats(vs ...float64) []*float64 {
	out := make([]*float64, len(vs))
	for i, v := range vs {
		out[i] = model.Float(v)
	}
	return out
}

func TestNormalizerByName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", NormalizationMinMax, false},
		{"minmax", NormalizationMinMax, false},
		{" MinMax ", NormalizationMinMax, false},
		{"rank", NormalizationRank, false},
		{"zscore", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			n, err := NormalizerByName(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unknown normalization")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, n.Name())
		})
	}
}

func TestMinMax(t *testing.T) {
	n := MinMax{}
	all := floats(0, 5, 10)

	assert.InDelta(t, 0.0, n.Normalize(all[0], all), 1e-9)
	assert.InDelta(t, 0.5, n.Normalize(all[1], all), 1e-6)
	assert.InDelta(t, 1.0, n.Normalize(all[2], all), 1e-6)
	assert.Less(t, n.Normalize(all[2], all), 1.0)
}

func TestMinMax_Degenerate(t *testing.T) {
	n := MinMax{}

	t.Run("nil value", func(t *testing.T) {
		assert.Equal(t, Neutral, n.Normalize(nil, floats(1, 2)))
	})
	t.Run("single city", func(t *testing.T) {
		all := floats(42)
		assert.Equal(t, Neutral, n.Normalize(all[0], all))
	})
	t.Run("zero variance", func(t *testing.T) {
		all := floats(3, 3, 3)
		for _, v := range all {
			assert.Equal(t, Neutral, n.Normalize(v, all))
		}
	})
	t.Run("nil values are skipped", func(t *testing.T) {
		all := []*float64{model.Float(2), nil, model.Float(4)}
		assert.InDelta(t, 0.0, n.Normalize(all[0], all), 1e-9)
		assert.InDelta(t, 1.0, n.Normalize(all[2], all), 1e-6)
	})
	t.Run("only one known value", func(t *testing.T) {
		all := []*float64{model.Float(2), nil}
		assert.Equal(t, Neutral, n.Normalize(all[0], all))
	})
}

func TestRank(t *testing.T) {
	n := Rank{}

	all := floats(1, 2, 3)
	assert.InDelta(t, 0.0, n.Normalize(all[0], all), 1e-9)
	assert.InDelta(t, 0.5, n.Normalize(all[1], all), 1e-9)
	assert.InDelta(t, 1.0, n.Normalize(all[2], all), 1e-9)

	// Outliers do not stretch the scale.
	skewed := floats(1, 2, 1000)
	assert.InDelta(t, 0.5, n.Normalize(skewed[1], skewed), 1e-9)

	ties := floats(1, 2, 2, 3)
	assert.InDelta(t, 0.5, n.Normalize(ties[1], ties), 1e-9)
	assert.InDelta(t, 0.5, n.Normalize(ties[2], ties), 1e-9)

	same := floats(7, 7)
	assert.Equal(t, Neutral, n.Normalize(same[0], same))
	assert.Equal(t, Neutral, n.Normalize(nil, all))
}

func TestNormalizers_Monotonic(t *testing.T) {
	all := floats(3, 9, 1, 4, 4, 12)
	for _, n := range []Normalizer{MinMax{}, Rank{}} {
		t.Run(n.Name(), func(t *testing.T) {
			for _, a := range all {
				for _, b := range all {
					if *a < *b {
						assert.LessOrEqual(t, n.Normalize(a, all), n.Normalize(b, all))
					}
				}
				got := n.Normalize(a, all)
				assert.GreaterOrEqual(t, got, 0.0)
				assert.LessOrEqual(t, got, 1.0)
			}
		})
	}
}
