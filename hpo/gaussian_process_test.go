package hpo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGaussianProcessPrior(t *testing.T) {
	gp := newGaussianProcess()

	mean, variance := gp.Predict([]float64{0.5})
	assert.Equal(t, 0.0, mean)
	assert.Equal(t, 1.0, variance)
}

func TestGaussianProcessInterpolates(t *testing.T) {
	gp := newGaussianProcess()
	gp.Update([]float64{0.0}, 4)
	gp.Update([]float64{0.5}, 1)
	gp.Update([]float64{1.0}, 3)

	// Near an observation the mean is close to it and the variance is small.
	mean, variance := gp.Predict([]float64{0.5})
	assert.InDelta(t, 1.0, mean, 0.05)
	assert.Less(t, variance, 0.01)

	// Far from observations uncertainty grows.
	_, farVariance := gp.Predict([]float64{3.0})
	assert.Greater(t, farVariance, variance)
}

func TestGaussianProcessDuplicatePoints(t *testing.T) {
	gp := newGaussianProcess()

	// Identical points make the kernel singular without jitter.
	for i := 0; i < 5; i++ {
		gp.Update([]float64{1, 0}, float64(i))
	}

	mean, variance := gp.Predict([]float64{1, 0})
	assert.InDelta(t, 2.0, mean, 0.1)
	assert.GreaterOrEqual(t, variance, 0.0)
	assert.Equal(t, 5, gp.Len())
}

func TestRBFKernel(t *testing.T) {
	gp := newGaussianProcess()
	gp.SetSigma(1.0)

	assert.Equal(t, 1.0, gp.GetSigma())
	assert.Equal(t, 1.0, gp.RBFKernel([]float64{1, 2}, []float64{1, 2}))
	assert.Less(t, gp.RBFKernel([]float64{0}, []float64{3}), 0.02)
	assert.Panics(t, func() { gp.RBFKernel([]float64{0}, []float64{0, 1}) })
}

func TestAcquisitionPrefersBetterMeans(t *testing.T) {
	params := AcquisitionParams{Beta: 2, Xi: 0.01, BestSoFar: 1.0}

	for name, acq := range map[string]AcquisitionFunc{
		"ucb": UCB,
		"pi":  ProbabilityOfImprovement,
		"ei":  ExpectedImprovement,
	} {
		better := acq(0.2, 0.1, params)
		worse := acq(2.0, 0.1, params)
		assert.Less(t, better, worse, name)
	}

	_, err := AcquisitionByName("nope")
	assert.Error(t, err)
}
