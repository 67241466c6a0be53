package automl

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thalesfsp/automl/hpo"
	"github.com/thalesfsp/automl/metrics"
)

func record(iteration int, model string) ParentTrialRecord {
	return ParentTrialRecord{
		Iteration: iteration,
		Model:     ModelSpec{Name: model, Params: hpo.Point{}},
		Path:      "run/" + model,
	}
}

// testLedger holds five iterations of r2 (maximized) and mse (minimized).
func testLedger() *Ledger {
	l := newLedger(metrics.Regression(), []string{"r2", "mse"}, 5, 3)

	rows := []struct {
		model string
		r2    float64
		mse   float64
	}{
		{"Ridge", 0.5, 4},
		{"KNN", 0.9, 2},
		{"Ridge", math.NaN(), 1},
		{"KNN", 0.9, 1},
		{"Ridge", 0.71234, 3},
	}

	for i, r := range rows {
		l.append(record(i+1, r.model), map[string]float64{"r2": r.r2, "mse": r.mse}, NormalizeScore(r.mse, metrics.Minimize))
	}

	return l
}

func TestLedgerBestValue(t *testing.T) {
	l := testLedger()

	v, err := l.BestValue("r2")
	require.NoError(t, err)
	assert.Equal(t, 0.9, v)

	v, err = l.BestValue("mse")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	_, err = l.BestValue("kge")

	var notMonitored *MetricNotMonitoredError
	require.True(t, errors.As(err, &notMonitored))
	assert.Equal(t, []string{"r2", "mse"}, notMonitored.Available)
}

func TestLedgerBestIteration(t *testing.T) {
	l := testLedger()

	// Ties go to the earliest iteration.
	i, err := l.BestIteration("r2")
	require.NoError(t, err)
	assert.Equal(t, 2, i)

	i, err = l.BestIteration("mse")
	require.NoError(t, err)
	assert.Equal(t, 3, i)

	// The best iteration holds the best value.
	for _, m := range []string{"r2", "mse", ValScoreKey} {
		i, err := l.BestIteration(m)
		require.NoError(t, err)

		v, err := l.BestValue(m)
		require.NoError(t, err)

		h, err := l.History(m)
		require.NoError(t, err)
		assert.Equal(t, v, h[i-1])
	}
}

func TestLedgerBestPipeline(t *testing.T) {
	l := testLedger()

	first, err := l.BestPipeline("r2")
	require.NoError(t, err)
	assert.Equal(t, 2, first.Iteration)
	assert.Equal(t, "KNN", first.Model.Name)

	// Repeated queries are identical.
	second, err := l.BestPipeline("r2")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLedgerAllNaN(t *testing.T) {
	l := newLedger(metrics.Regression(), []string{"r2"}, 2, 0)
	l.append(record(1, "Ridge"), map[string]float64{"r2": math.NaN()}, 1)
	l.append(record(2, "Ridge"), map[string]float64{}, 1)

	_, err := l.BestValue("r2")
	assert.True(t, errors.Is(err, ErrNoValidValue))

	// The slot exists even without a value.
	h, err := l.History("r2")
	require.NoError(t, err)
	assert.Len(t, h, 2)

	v, rec, err := l.BestPipelineForModel("Ridge", "r2")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v))
	assert.Equal(t, 2, rec.Iteration)
}

func TestLedgerBestPipelineForModel(t *testing.T) {
	l := testLedger()

	// r2 is maximized: NaN is skipped and the value is rounded.
	v, rec, err := l.BestPipelineForModel("Ridge", "r2")
	require.NoError(t, err)
	assert.Equal(t, 0.7123, v)
	assert.Equal(t, 5, rec.Iteration)

	// Equal rounded values: the later iteration wins.
	v, rec, err = l.BestPipelineForModel("KNN", "r2")
	require.NoError(t, err)
	assert.Equal(t, 0.9, v)
	assert.Equal(t, 4, rec.Iteration)

	// mse is minimized.
	v, rec, err = l.BestPipelineForModel("Ridge", "mse")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
	assert.Equal(t, 3, rec.Iteration)

	_, _, err = l.BestPipelineForModel("SVR", "r2")

	var notUsed *ModelNotUsedError
	require.True(t, errors.As(err, &notUsed))
	assert.Equal(t, "SVR", notUsed.Model)

	_, _, err = l.BestPipelineForModel("Ridge", "kge")
	assert.True(t, errors.Is(err, ErrMetricNotMonitored))
}

func TestLedgerRecordsAreCopies(t *testing.T) {
	l := testLedger()

	records := l.Records()
	records[0].Model.Params["alpha"] = 1.0
	records[0].Path = "elsewhere"

	rec, ok := l.Record(1)
	require.True(t, ok)
	assert.Empty(t, rec.Model.Params)
	assert.Equal(t, "run/Ridge", rec.Path)

	_, ok = l.Record(6)
	assert.False(t, ok)
}

func TestChildScores(t *testing.T) {
	l := newLedger(metrics.Regression(), []string{"mse"}, 2, 3)
	l.setChild(0, 0, 0.5)
	l.setChild(0, 1, 0.25)
	l.setChild(5, 5, 1) // out of range, ignored

	c := l.ChildScores()

	rows, cols := c.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 3, cols)

	assert.Equal(t, 0.5, c.At(0, 0))
	assert.Equal(t, 0.25, c.At(0, 1))
	assert.True(t, math.IsNaN(c.At(0, 2)))
	assert.True(t, math.IsNaN(c.At(1, 0)))

	empty := newChildScores(3, 0)
	rows, cols = empty.Dims()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 0, cols)
	assert.Empty(t, empty.Row(0))
}
