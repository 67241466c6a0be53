package hpo

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
)

//////
// Const, vars, types.
//////

// maxJitterTries bounds how often the kernel diagonal is inflated when the
// Cholesky factorization fails.
const maxJitterTries = 6

// gaussianProcess implements a thread-safe Gaussian Process regressor over the
// encoded search space. It predicts the score of untested points from the
// observed trials.
//
// Fields:
// - mu: RWMutex guarding every field
// - X: Observed encoded points
// - Y: Observed scores at each point in X
// - sigma: RBF length scale
// - noise: Base diagonal jitter added to the kernel matrix
//
// The posterior (Cholesky factor and weights) is recomputed on every Update so
// Predict is a pure read and may run from many goroutines.
type gaussianProcess struct {
	// mu protects access to all fields
	mu sync.RWMutex

	// X stores the encoded input points
	X [][]float64

	// Y stores the observed scores at each point in X
	Y []float64

	// sigma is the kernel width parameter
	sigma float64

	// noise is the base diagonal jitter
	noise float64

	// chol is the factorization of the kernel matrix, nil if none succeeded
	chol *mat.Cholesky

	// alpha holds K^-1 (Y - yMean) / yStd
	alpha *mat.VecDense

	// yMean and yStd standardize Y
	yMean, yStd float64
}

//////
// Methods.
//////

// rbf is the kernel without locking. Callers hold mu.
func rbf(x1, x2 []float64, sigma float64) float64 {
	if len(x1) != len(x2) {
		panic("input vectors must have the same length")
	}

	var sum float64

	for i := range x1 {
		diff := x1[i] - x2[i]

		sum += diff * diff
	}

	return math.Exp(-sum / (2 * sigma * sigma))
}

// RBFKernel implements the Radial Basis Function kernel:
//
//	k(x1, x2) = exp(-sum((x1 - x2)^2) / (2 * sigma^2))
//
// Important notes:
// - Panics if input vectors have different lengths
// - Returns 1.0 for identical points
func (gp *gaussianProcess) RBFKernel(x1, x2 []float64) float64 {
	gp.mu.RLock()
	sigma := gp.sigma
	gp.mu.RUnlock()

	return rbf(x1, x2, sigma)
}

// Predict returns the posterior mean and variance of the score at x.
//
// Returns (0, 1) when no observations exist, and the empirical mean and
// variance of Y when the kernel matrix could not be factorized.
func (gp *gaussianProcess) Predict(x []float64) (mean, variance float64) {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	if len(gp.X) == 0 {
		return 0, 1
	}

	if gp.chol == nil {
		return gp.yMean, gp.yStd * gp.yStd
	}

	k := mat.NewVecDense(len(gp.X), nil)
	for i := range gp.X {
		k.SetVec(i, rbf(x, gp.X[i], gp.sigma))
	}

	mean = gp.yMean + gp.yStd*mat.Dot(k, gp.alpha)

	var v mat.VecDense
	if err := gp.chol.SolveVecTo(&v, k); err != nil {
		return mean, gp.yStd * gp.yStd
	}

	variance = math.Max(1-mat.Dot(k, &v), 1e-12) * gp.yStd * gp.yStd

	return mean, variance
}

// Update adds an observation and refits the posterior. A copy of x is stored.
func (gp *gaussianProcess) Update(x []float64, y float64) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	newX := make([]float64, len(x))
	copy(newX, x)

	gp.X = append(gp.X, newX)
	gp.Y = append(gp.Y, y)

	gp.refit()
}

// refit recomputes the Cholesky factor and the weights. Callers hold mu.
func (gp *gaussianProcess) refit() {
	n := len(gp.X)

	gp.yMean, gp.yStd = meanStd(gp.Y)

	base := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := rbf(gp.X[i], gp.X[j], gp.sigma)
			base[i*n+j] = v
			base[j*n+i] = v
		}
	}

	gp.chol = nil

	jitter := gp.noise
	for try := 0; try < maxJitterTries; try++ {
		data := make([]float64, len(base))
		copy(data, base)

		for i := 0; i < n; i++ {
			data[i*n+i] += jitter
		}

		var chol mat.Cholesky
		if chol.Factorize(mat.NewSymDense(n, data)) {
			gp.chol = &chol

			break
		}

		jitter *= 10
	}

	if gp.chol == nil {
		gp.alpha = nil

		return
	}

	ys := mat.NewVecDense(n, nil)
	for i, y := range gp.Y {
		ys.SetVec(i, (y-gp.yMean)/gp.yStd)
	}

	var alpha mat.VecDense
	if err := gp.chol.SolveVecTo(&alpha, ys); err != nil {
		gp.chol = nil
		gp.alpha = nil

		return
	}

	gp.alpha = &alpha
}

// SetSigma updates the kernel width and refits the posterior.
func (gp *gaussianProcess) SetSigma(sigma float64) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	gp.sigma = sigma

	if len(gp.X) > 0 {
		gp.refit()
	}
}

// GetSigma returns the current kernel width.
func (gp *gaussianProcess) GetSigma() float64 {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	return gp.sigma
}

// Len returns the number of observations.
func (gp *gaussianProcess) Len() int {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	return len(gp.X)
}

//////
// Factory.
//////

// newGaussianProcess creates a Gaussian Process with sigma 0.5, suited to the
// [0, 1] encoding produced by Space.Encode.
func newGaussianProcess() *gaussianProcess {
	return &gaussianProcess{
		sigma: 0.5,
		noise: 1e-6,
		yStd:  1,
	}
}
