package estimator

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/thalesfsp/automl"
	"github.com/thalesfsp/automl/dataset"
	"github.com/thalesfsp/automl/hpo"
	"github.com/thalesfsp/automl/metrics"
)

// linearFrame returns 60 rows of y = 3*x1 - 2*x2 + 5.
func linearFrame(t *testing.T) *dataset.Frame {
	t.Helper()

	rows := make([][]float64, 60)
	for i := range rows {
		x1 := float64(i + 1)
		x2 := float64((i * 7) % 11)
		rows[i] = []float64{x1, x2, 3*x1 - 2*x2 + 5}
	}

	f, err := dataset.New([]string{"x1", "x2", "y"}, rows)
	require.NoError(t, err)

	return f
}

func request(prefix string, model automl.ModelSpec) automl.TrainRequest {
	return automl.TrainRequest{
		Model:          model,
		InputFeatures:  []string{"x1", "x2"},
		OutputFeatures: []string{"y"},
		EvalMetric:     "mse",
		Mode:           automl.Regression,
		Prefix:         prefix,
		Seed:           313,
	}
}

func TestTransformRoundTrip(t *testing.T) {
	values := []float64{0.5, 1, 2, 3.5, 4, 7, 9, 12, 20}

	for _, method := range []string{
		automl.MinMax, automl.Center, automl.Scale, automl.ZScore, automl.Robust,
		automl.BoxCox, automl.YeoJohnson, automl.Log, automl.Log2, automl.Log10,
		automl.Sqrt, automl.None,
	} {
		t.Run(method, func(t *testing.T) {
			c, err := fitChain("x", []automl.TransformSpec{automl.NewTransformSpec(method, "x")}, values)
			require.NoError(t, err)
			require.Len(t, c, 1)

			back := c.inverse(c.transform(values))
			for i := range values {
				assert.InDelta(t, values[i], back[i], 1e-6)
			}
		})
	}
}

func TestTransformTreatsNegatives(t *testing.T) {
	values := []float64{-4, -1, 0, 2, 5}

	c, err := fitChain("x", []automl.TransformSpec{automl.NewTransformSpec(automl.Log, "x")}, values)
	require.NoError(t, err)

	out := c.transform(values)
	for _, v := range out {
		assert.False(t, math.IsNaN(v))
	}

	back := c.inverse(out)
	for i := range values {
		assert.InDelta(t, values[i], back[i], 1e-6)
	}
}

func TestQuantileTransform(t *testing.T) {
	values := []float64{5, 1, 3, 2, 4}

	c, err := fitChain("x", []automl.TransformSpec{automl.NewTransformSpec(automl.Quantile, "x")}, values)
	require.NoError(t, err)

	out := c.transform(values)
	for _, v := range out {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}

	// Ranks are preserved.
	assert.Less(t, out[1], out[3])
	assert.Less(t, out[3], out[2])
	assert.Equal(t, 1.0, out[0])
}

func TestUnknownTransform(t *testing.T) {
	_, err := fitScaler("fourier", []float64{1, 2})
	assert.True(t, errors.Is(err, ErrUnknownTransform))
}

func TestLinearModels(t *testing.T) {
	x := mat.NewDense(5, 1, []float64{1, 2, 3, 4, 5})
	y := []float64{3, 5, 7, 9, 11}

	m, err := newModel(automl.ModelSpec{Name: LinearRegression, Params: hpo.Point{}}, automl.Regression)
	require.NoError(t, err)
	require.NoError(t, m.fit(x, y))

	pred := m.predict(mat.NewDense(2, 1, []float64{6, 10}))
	assert.InDelta(t, 13.0, pred[0], 1e-6)
	assert.InDelta(t, 21.0, pred[1], 1e-6)

	// A strong penalty shrinks the slope.
	ridge, err := newModel(automl.ModelSpec{Name: Ridge, Params: hpo.Point{"alpha": 100.0}}, automl.Regression)
	require.NoError(t, err)
	require.NoError(t, ridge.fit(x, y))

	coef := ridge.state()["coef"].([]float64)
	assert.Less(t, coef[0], 2.0)
	assert.Greater(t, coef[0], 0.0)
}

func TestNeighbors(t *testing.T) {
	x := mat.NewDense(6, 1, []float64{1, 2, 3, 10, 11, 12})

	reg, err := newModel(automl.ModelSpec{Name: KNeighborsRegressor, Params: hpo.Point{"n_neighbors": 3}}, automl.Regression)
	require.NoError(t, err)
	require.NoError(t, reg.fit(x, []float64{1, 2, 3, 10, 11, 12}))
	assert.InDelta(t, 2.0, reg.predict(mat.NewDense(1, 1, []float64{2}))[0], 1e-9)

	cls, err := newModel(automl.ModelSpec{Name: KNeighborsClassifier, Params: hpo.Point{"n_neighbors": 3, "weights": "distance"}}, automl.Classification)
	require.NoError(t, err)
	require.NoError(t, cls.fit(x, []float64{0, 0, 0, 1, 1, 1}))
	assert.Equal(t, []float64{0, 1}, cls.predict(mat.NewDense(2, 1, []float64{0, 13})))
}

func TestRidgeClassifier(t *testing.T) {
	x := mat.NewDense(6, 1, []float64{1, 2, 3, 10, 11, 12})

	m, err := newModel(automl.ModelSpec{Name: RidgeClassifier, Params: hpo.Point{"alpha": 0.1}}, automl.Classification)
	require.NoError(t, err)
	require.NoError(t, m.fit(x, []float64{0, 0, 0, 1, 1, 1}))
	assert.Equal(t, []float64{0, 1}, m.predict(mat.NewDense(2, 1, []float64{0, 13})))
}

func TestModelMode(t *testing.T) {
	_, err := newModel(automl.ModelSpec{Name: Ridge}, automl.Classification)
	assert.True(t, errors.Is(err, automl.ErrUnknownModel))

	_, err = newModel(automl.ModelSpec{Name: "XGBRegressor"}, automl.Regression)
	assert.True(t, errors.Is(err, automl.ErrUnknownModel))
}

func TestRunnerFitPredict(t *testing.T) {
	data := linearFrame(t)
	dir := t.TempDir()

	trainer := NewTrainer(DefaultConfig())

	req := request(dir, automl.ModelSpec{Name: LinearRegression, Params: hpo.Point{"fit_intercept": "true"}})
	req.XTransforms = []automl.TransformSpec{automl.NewTransformSpec(automl.ZScore, "x1")}

	runner, err := trainer.Train(context.Background(), req)
	require.NoError(t, err)

	_, _, err = runner.Predict(context.Background(), data, automl.Validation)
	assert.True(t, errors.Is(err, ErrNotFitted))

	require.NoError(t, runner.Fit(context.Background(), data))

	sizes := 0

	for _, split := range []automl.Split{automl.Training, automl.Validation, automl.Test} {
		truth, pred, err := runner.Predict(context.Background(), data, split)
		require.NoError(t, err)
		require.Len(t, pred, len(truth))

		mse, err := metrics.Regression().Compute("mse", truth, pred)
		require.NoError(t, err)
		assert.Less(t, mse, 1e-6, split)

		sizes += len(truth)
	}

	// The splits partition the rows.
	assert.Equal(t, data.Rows(), sizes)

	_, err = os.Stat(filepath.Join(runner.Path(), ArtifactFileName))
	assert.NoError(t, err)
}

func TestRunnerSplitsAreSeeded(t *testing.T) {
	data := linearFrame(t)
	trainer := NewTrainer(DefaultConfig())

	model := automl.ModelSpec{Name: LinearRegression}

	a, err := trainer.Train(context.Background(), request(t.TempDir(), model))
	require.NoError(t, err)

	b, err := trainer.Train(context.Background(), request(t.TempDir(), model))
	require.NoError(t, err)

	require.NoError(t, a.Fit(context.Background(), data))
	require.NoError(t, b.Fit(context.Background(), data))

	ta, _, err := a.Predict(context.Background(), data, automl.Test)
	require.NoError(t, err)

	tb, _, err := b.Predict(context.Background(), data, automl.Test)
	require.NoError(t, err)

	assert.Equal(t, ta, tb)
	assert.NotEqual(t, a.Path(), b.Path())
}

func TestRunnerOutputTransformIsInverted(t *testing.T) {
	rows := make([][]float64, 40)
	for i := range rows {
		x := float64(i + 1)
		rows[i] = []float64{x, x * x}
	}

	data, err := dataset.New([]string{"x", "y"}, rows)
	require.NoError(t, err)

	req := automl.TrainRequest{
		Model:          automl.ModelSpec{Name: LinearRegression},
		InputFeatures:  []string{"x"},
		OutputFeatures: []string{"y"},
		YTransforms:    []automl.TransformSpec{automl.NewTransformSpec(automl.Sqrt, "y")},
		EvalMetric:     "mse",
		Mode:           automl.Regression,
		Prefix:         t.TempDir(),
		Seed:           1,
	}

	runner, err := NewTrainer(DefaultConfig()).Train(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, runner.Fit(context.Background(), data))

	truth, pred, err := runner.Predict(context.Background(), data, automl.Test)
	require.NoError(t, err)

	// sqrt(y) is linear in x, so the inverted predictions are exact.
	for i := range truth {
		assert.InDelta(t, truth[i], pred[i], 1e-6)
	}
}

func TestCrossValScore(t *testing.T) {
	data := linearFrame(t)

	config := DefaultConfig()
	config.SaveArtifacts = false

	runner, err := NewTrainer(config).Train(context.Background(), request(t.TempDir(), automl.ModelSpec{Name: Ridge, Params: hpo.Point{"alpha": 1e-6}}))
	require.NoError(t, err)

	score, err := runner.CrossValScore(context.Background(), data)
	require.NoError(t, err)
	assert.Less(t, score, 1e-3)

	// The runner is trained afterwards.
	_, _, err = runner.Predict(context.Background(), data, automl.Validation)
	assert.NoError(t, err)
}

func TestClassificationRunner(t *testing.T) {
	rows := make([][]float64, 50)
	for i := range rows {
		label := 0.0
		if i >= 25 {
			label = 1
		}

		rows[i] = []float64{float64(i), float64(i % 3), label}
	}

	data, err := dataset.New([]string{"x1", "x2", "y"}, rows)
	require.NoError(t, err)

	req := request(t.TempDir(), automl.ModelSpec{Name: KNeighborsClassifier, Params: hpo.Point{"n_neighbors": 3}})
	req.Mode = automl.Classification
	req.EvalMetric = "accuracy"

	runner, err := NewTrainer(DefaultConfig()).Train(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, runner.Fit(context.Background(), data))

	truth, pred, err := runner.Predict(context.Background(), data, automl.Test)
	require.NoError(t, err)

	acc, err := metrics.Classification().Compute("accuracy", truth, pred)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, acc, 0.8)
}

func TestTrainValidation(t *testing.T) {
	trainer := NewTrainer(DefaultConfig())

	req := request(t.TempDir(), automl.ModelSpec{Name: LinearRegression})
	req.OutputFeatures = []string{"y", "z"}

	_, err := trainer.Train(context.Background(), req)
	assert.True(t, errors.Is(err, ErrOutputs))

	req = request(t.TempDir(), automl.ModelSpec{Name: LinearRegression})
	req.EvalMetric = "accuracy"

	_, err = trainer.Train(context.Background(), req)
	assert.True(t, errors.Is(err, metrics.ErrUnknownMetric))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = trainer.Train(ctx, request(t.TempDir(), automl.ModelSpec{Name: LinearRegression}))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSpaces(t *testing.T) {
	for _, mode := range []automl.Mode{automl.Regression, automl.Classification} {
		for name, space := range Spaces(mode) {
			require.NoError(t, space.Validate(), name)

			// Every default space yields a buildable model.
			p := space.Sample(rand.New(rand.NewSource(1)))
			_, err := newModel(automl.ModelSpec{Name: name, Params: p}, mode)
			assert.NoError(t, err, name)
		}
	}
}
