package automl

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thalesfsp/automl/metrics"
)

func TestNormalizeScore(t *testing.T) {
	for _, v := range []float64{0, 0.25, 0.5, 0.9, 1} {
		assert.InDelta(t, 1-v, NormalizeScore(v, metrics.Maximize), 1e-12)
		assert.Equal(t, v, NormalizeScore(v, metrics.Minimize))
	}

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		assert.Equal(t, WorstScore, NormalizeScore(v, metrics.Maximize))
		assert.Equal(t, WorstScore, NormalizeScore(v, metrics.Minimize))
	}
}

func TestNormalize(t *testing.T) {
	reg := metrics.Regression()

	truth := []float64{1, 2, 3, 4}

	v, err := Normalize(reg, "mse", truth, []float64{1, 2, 3, 6})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, v, 1e-12)

	v, err = Normalize(reg, "r2", truth, truth)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, v, 1e-12)

	v, err = Normalize(reg, "mse", truth, []float64{1, 2, 3, math.Inf(1)})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	_, err = Normalize(reg, "accuracy", truth, truth)
	assert.True(t, errors.Is(err, metrics.ErrUnknownMetric))
}
