package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegressionMetrics(t *testing.T) {
	truth := []float64{1, 2, 3, 4}
	pred := []float64{1, 2, 3, 6}

	tests := []struct {
		name string
		want float64
	}{
		{"mse", 1.0},
		{"rmse", 1.0},
		{"mae", 0.5},
		{"mape", 12.5},
		{"r2_score", 0.2},
		{"nse", 0.2},
	}

	reg := Regression()

	for _, tc := range tests {
		got, err := reg.Compute(tc.name, truth, pred)
		require.NoError(t, err, tc.name)
		assert.InDelta(t, tc.want, got, 1e-9, tc.name)
	}

	// A perfect prediction.
	for _, name := range []string{"r2", "corr_coeff", "kge"} {
		got, err := reg.Compute(name, truth, truth)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, got, 1e-9, name)
	}
}

func TestDirections(t *testing.T) {
	reg := Regression()

	d, err := reg.Direction("mse")
	require.NoError(t, err)
	assert.Equal(t, Minimize, d)

	d, err = reg.Direction("r2")
	require.NoError(t, err)
	assert.Equal(t, Maximize, d)

	_, err = reg.Direction("accuracy")
	assert.ErrorIs(t, err, ErrUnknownMetric)

	d, err = Classification().Direction("accuracy")
	require.NoError(t, err)
	assert.Equal(t, Maximize, d)
}

func TestComputeErrors(t *testing.T) {
	_, err := Regression().Compute("mse", []float64{1}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = Regression().Compute("bogus", nil, nil)
	assert.ErrorIs(t, err, ErrUnknownMetric)

	v, err := Regression().Compute("mse", nil, nil)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v))
}

func TestClassificationMetrics(t *testing.T) {
	truth := []float64{0, 0, 1, 1}
	pred := []float64{0, 1, 1, 1}

	cls := Classification()

	acc, err := cls.Compute("accuracy", truth, pred)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, acc, 1e-9)

	// class 0: p=1, r=0.5; class 1: p=2/3, r=1
	precision, err := cls.Compute("precision", truth, pred)
	require.NoError(t, err)
	assert.InDelta(t, (1+2.0/3)/2, precision, 1e-9)

	recall, err := cls.Compute("recall", truth, pred)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, recall, 1e-9)

	f1, err := cls.Compute("f1_score", truth, pred)
	require.NoError(t, err)
	assert.InDelta(t, (2.0/3+0.8)/2, f1, 1e-9)
}

func TestRegistry(t *testing.T) {
	_, err := NewRegistry("x", Metric{Name: "a", Direction: Minimize, Fn: MSE}, Metric{Name: "a", Direction: Minimize, Fn: MSE})
	assert.ErrorIs(t, err, ErrDuplicateMetric)

	reg, err := ForMode("classification")
	require.NoError(t, err)
	assert.Equal(t, []string{"accuracy", "f1_score", "precision", "recall"}, reg.Names())
	assert.True(t, reg.Has("accuracy"))

	_, err = ForMode("ranking")
	assert.Error(t, err)
}
