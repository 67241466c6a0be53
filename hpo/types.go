package hpo

import (
	"context"
	"math/rand"
)

// Algorithm names the search strategy used by an Optimizer.
type Algorithm string

const (
	// Bayes fits a Gaussian Process to the observed trials and picks the next
	// point by minimizing the acquisition function over random candidates.
	Bayes Algorithm = "bayes"

	// Random samples every trial uniformly from the space.
	Random Algorithm = "random"
)

// ProgressUpdate represents the current state of the optimization process.
type ProgressUpdate struct {
	// Phase is "InitialSampling" or "Optimization".
	Phase string

	// CurrentIteration is the 1-based trial number.
	CurrentIteration int

	// TotalIterations is the number of trials requested.
	TotalIterations int

	// CurrentParams holds the point just evaluated.
	CurrentParams Point

	// CurrentBestParams holds the best point found so far.
	CurrentBestParams Point

	// CurrentBestScore is the lowest score found so far.
	CurrentBestScore float64

	// LastScore is the score of CurrentParams.
	LastScore float64
}

// ObjectiveFunc evaluates one point of the space and returns the score to
// minimize.
//
// Returning an error aborts the run, except for errors wrapping the context
// error, which stop the run early and keep the completed trials.
//
// Usage example:
//
//	objective := ObjectiveFunc(func(ctx context.Context, p Point) (float64, error) {
//	    alpha, _ := p.Float("alpha")
//	    return trainAndScore(ctx, alpha)
//	})
type ObjectiveFunc func(ctx context.Context, params Point) (float64, error)

// AcquisitionFunc scores a candidate from the surrogate's prediction. Lower
// values indicate more promising points.
//
// Parameters:
// - mean: The predicted score at the candidate (lower is better)
// - variance: The predicted variance at the candidate
// - params: Additional parameters needed by specific acquisition functions
//
// Built-in acquisition functions: UCB, ProbabilityOfImprovement,
// ExpectedImprovement, ThompsonSampling.
type AcquisitionFunc func(mean, variance float64, params AcquisitionParams) float64

// AcquisitionParams holds parameters used by the acquisition functions.
type AcquisitionParams struct {
	// Beta weights the uncertainty term of UCB. Higher values explore more.
	Beta float64 `yaml:"beta"`

	// Xi is the minimum improvement PI and EI look for.
	Xi float64 `yaml:"xi"`

	// BestSoFar is the lowest score observed. Maintained by the optimizer.
	BestSoFar float64 `yaml:"-"`

	// RandomState feeds Thompson Sampling. The optimizer sets it to its own
	// seeded generator when nil.
	RandomState *rand.Rand `yaml:"-"`
}

// Config holds all configuration parameters for an optimization run.
//
// Usage example:
//
//	config := DefaultConfig()
//	config.Iterations = 30
//	config.InitialSamples = 5
//	config.AcquisitionFunc = ExpectedImprovement
type Config struct {
	// Algorithm selects the search strategy.
	Algorithm Algorithm

	// Iterations is the total number of objective evaluations.
	Iterations int

	// InitialSamples is how many of the first evaluations are drawn at random
	// before the surrogate model drives the search. Previous results count
	// towards it.
	InitialSamples int

	// NumCandidates is how many random candidates are scored by the
	// acquisition function per model-driven evaluation.
	NumCandidates int

	// AcquisitionFunc determines the strategy for selecting the next point.
	AcquisitionFunc AcquisitionFunc

	// AcqParams holds the parameters for the acquisition function.
	AcqParams AcquisitionParams

	// Seed makes sampling reproducible.
	Seed int64

	// Workers bounds the goroutines scoring candidates.
	Workers int

	// KernelWidth is the RBF width of the surrogate over the [0, 1]
	// encoding. Zero keeps 0.5.
	KernelWidth float64

	// OutputDir receives trials.yaml after Fit. Empty disables persistence.
	OutputDir string

	// ProgressChan receives an update after every trial. If nil, no updates
	// are sent; a full channel drops the update.
	ProgressChan chan<- ProgressUpdate
}

// Trial is one evaluated point.
type Trial struct {
	// Index is the 1-based position in the run. Previous results carry 0.
	Index int `yaml:"index"`

	// Params is the evaluated point.
	Params Point `yaml:"params"`

	// Score is the objective value.
	Score float64 `yaml:"score"`
}

// Result is the outcome of Fit.
type Result struct {
	// Trials holds the evaluations of this run in order.
	Trials []Trial

	// Best is the lowest scoring trial, including previous results.
	Best Trial

	// Stopped reports that the run ended before Iterations evaluations.
	Stopped bool
}

// BestParas returns a copy of the best point. It is empty when nothing was
// evaluated.
func (r *Result) BestParas() Point {
	if r == nil || r.Best.Params == nil {
		return Point{}
	}

	return r.Best.Params.Clone()
}
