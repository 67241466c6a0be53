package hpo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/exp/slices"
)

// ErrInvalidConfig is returned by New for unusable configurations.
var ErrInvalidConfig = errors.New("invalid optimizer config")

// TrialsFileName is the file written to Config.OutputDir after Fit.
const TrialsFileName = "trials.yaml"

// Optimizer runs a fixed number of trials of an objective over a Space.
//
// An Optimizer is single use: Fit evaluates the objective sequentially and
// keeps the result for BestParas and Trials.
type Optimizer struct {
	config    Config
	space     Space
	objective ObjectiveFunc
	rng       *rand.Rand

	mu       sync.Mutex
	previous []Trial
	result   *Result
}

// prediction is the surrogate's output for one candidate.
type prediction struct {
	index    int
	mean     float64
	variance float64
	ok       bool
}

//////
// Exported functionalities.
//////

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Algorithm:       Bayes,
		Iterations:      50,
		InitialSamples:  10,
		NumCandidates:   50,
		AcquisitionFunc: UCB,
		AcqParams: AcquisitionParams{
			BestSoFar: math.MaxFloat64,
			Beta:      2.0,
			Xi:        0.01,
		},
		Seed:         time.Now().UnixNano(),
		Workers:      runtime.NumCPU(),
		ProgressChan: nil, // Default to no progress updates.
	}
}

// New validates the space and configuration and returns an Optimizer.
//
// Usage example:
//
//	space := Space{
//	    Real("alpha", 1e-4, 10),
//	    Categorical("fit_intercept", "true", "false"),
//	}
//
//	opt, err := New(space, objective, DefaultConfig())
//	if err != nil {
//	    return err
//	}
//
//	res, err := opt.Fit(ctx)
func New(space Space, objective ObjectiveFunc, config Config) (*Optimizer, error) {
	if objective == nil {
		return nil, fmt.Errorf("%w: nil objective", ErrInvalidConfig)
	}

	if err := space.Validate(); err != nil {
		return nil, err
	}

	if config.Iterations < 0 {
		return nil, fmt.Errorf("%w: negative iterations %d", ErrInvalidConfig, config.Iterations)
	}

	switch config.Algorithm {
	case "":
		config.Algorithm = Bayes
	case Bayes, Random:
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidConfig, config.Algorithm)
	}

	if config.AcquisitionFunc == nil {
		config.AcquisitionFunc = UCB
	}

	if config.NumCandidates <= 0 {
		config.NumCandidates = 1
	}

	if config.Workers <= 0 {
		config.Workers = 1
	}

	if config.KernelWidth < 0 || math.IsNaN(config.KernelWidth) {
		return nil, fmt.Errorf("%w: kernel width %v", ErrInvalidConfig, config.KernelWidth)
	}

	if config.AcqParams.RandomState == nil {
		config.AcqParams.RandomState = rand.New(rand.NewSource(config.Seed + 1))
	}

	return &Optimizer{
		config:    config,
		space:     space.Clone(),
		objective: objective,
		rng:       rand.New(rand.NewSource(config.Seed)),
	}, nil
}

// AddPreviousResults seeds the optimizer with trials evaluated elsewhere.
// They inform the surrogate and compete for Best but do not consume
// iterations.
func (o *Optimizer) AddPreviousResults(trials ...Trial) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, t := range trials {
		if _, err := o.space.Encode(t.Params); err != nil {
			return fmt.Errorf("previous result: %w", err)
		}

		o.previous = append(o.previous, Trial{Params: t.Params.Clone(), Score: t.Score})
	}

	return nil
}

// Fit runs the optimization.
//
// How it works:
// 1. Previous results are fed to the surrogate model
// 2. The first InitialSamples trials (all of them for Random) sample the
// space uniformly
// 3. Every later trial scores NumCandidates random candidates with the
// Gaussian Process and the acquisition function and evaluates the lowest
//
// Cancelling ctx stops the run before the next trial; the completed trials are
// returned with Stopped set and a nil error. Any other objective error aborts
// the run and is returned together with the partial result.
func (o *Optimizer) Fit(ctx context.Context) (*Result, error) {
	o.mu.Lock()
	previous := slices.Clone(o.previous)
	o.mu.Unlock()

	gp := newGaussianProcess()
	if o.config.KernelWidth > 0 {
		gp.SetSigma(o.config.KernelWidth)
	}

	result := &Result{}

	var (
		best     Trial
		haveBest bool
	)

	// observe feeds a finite score to the surrogate model.
	observe := func(params Point, score float64) {
		if math.IsNaN(score) || math.IsInf(score, 0) {
			return
		}

		x, err := o.space.Encode(params)
		if err != nil {
			return
		}

		gp.Update(x, score)
	}

	// updateBest keeps the lowest score. NaN never wins over a number.
	updateBest := func(t Trial) {
		if !haveBest || t.Score < best.Score || (math.IsNaN(best.Score) && !math.IsNaN(t.Score)) {
			best = t
			haveBest = true
		}
	}

	// bestScore is what the acquisition function compares against.
	bestScore := func() float64 {
		if !haveBest || math.IsNaN(best.Score) {
			return math.MaxFloat64
		}

		return best.Score
	}

	sendProgress := func(phase string, iteration int, params Point, score float64) {
		if o.config.ProgressChan == nil {
			return
		}

		update := ProgressUpdate{
			Phase:             phase,
			CurrentIteration:  iteration,
			TotalIterations:   o.config.Iterations,
			CurrentParams:     params.Clone(),
			CurrentBestParams: best.Params.Clone(),
			CurrentBestScore:  best.Score,
			LastScore:         score,
		}

		select {
		case o.config.ProgressChan <- update:
		default:
			// Skip update if channel is full.
		}
	}

	for _, t := range previous {
		observe(t.Params, t.Score)
		updateBest(t)
	}

	initial := o.config.InitialSamples - len(previous)
	if initial < 0 {
		initial = 0
	}

	if o.config.Algorithm == Random {
		initial = o.config.Iterations
	}

	for i := 0; i < o.config.Iterations; i++ {
		if ctx.Err() != nil {
			result.Stopped = true

			break
		}

		phase := "InitialSampling"

		var params Point

		if i < initial || gp.Len() == 0 {
			params = o.space.Sample(o.rng)
		} else {
			phase = "Optimization"
			params = o.propose(gp, bestScore())
		}

		score, err := o.objective(ctx, params)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				result.Stopped = true

				break
			}

			o.finish(result, best, haveBest)

			return result, fmt.Errorf("trial %d: %w", i+1, err)
		}

		trial := Trial{Index: i + 1, Params: params, Score: score}
		result.Trials = append(result.Trials, trial)

		observe(params, score)
		updateBest(trial)

		sendProgress(phase, i+1, params, score)
	}

	o.finish(result, best, haveBest)

	if o.config.OutputDir != "" {
		if err := SaveTrials(filepath.Join(o.config.OutputDir, TrialsFileName), result.Trials); err != nil {
			return result, err
		}
	}

	return result, nil
}

// BestParas returns the best point of the last Fit, or an empty point.
func (o *Optimizer) BestParas() Point {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.result.BestParas()
}

// Trials returns the trials evaluated by the last Fit.
func (o *Optimizer) Trials() []Trial {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.result == nil {
		return nil
	}

	return slices.Clone(o.result.Trials)
}

// Config returns the effective configuration.
func (o *Optimizer) Config() Config {
	return o.config
}

// Space returns a copy of the search space.
func (o *Optimizer) Space() Space {
	return o.space.Clone()
}

//////
// Internal.
//////

func (o *Optimizer) finish(result *Result, best Trial, haveBest bool) {
	if haveBest {
		result.Best = best
	}

	o.mu.Lock()
	o.result = result
	o.mu.Unlock()
}

// propose samples NumCandidates points, predicts them concurrently and
// returns the one with the lowest acquisition value.
func (o *Optimizer) propose(gp *gaussianProcess, bestSoFar float64) Point {
	candidates := make([]Point, o.config.NumCandidates)
	for j := range candidates {
		candidates[j] = o.space.Sample(o.rng)
	}

	p := pool.NewWithResults[prediction]().WithMaxGoroutines(o.config.Workers)

	for j, candidate := range candidates {
		j, candidate := j, candidate

		p.Go(func() prediction {
			x, err := o.space.Encode(candidate)
			if err != nil {
				return prediction{index: j}
			}

			mean, variance := gp.Predict(x)

			return prediction{index: j, mean: mean, variance: variance, ok: true}
		})
	}

	predictions := p.Wait()

	// Results arrive in completion order; acquisition is applied in candidate
	// order so Thompson sampling stays reproducible.
	slices.SortFunc(predictions, func(a, b prediction) int {
		return a.index - b.index
	})

	params := o.config.AcqParams
	params.BestSoFar = bestSoFar

	next := candidates[0]
	bestAcquisition := math.Inf(1)

	for _, pred := range predictions {
		if !pred.ok {
			continue
		}

		acquisition := o.config.AcquisitionFunc(pred.mean, pred.variance, params)
		if acquisition < bestAcquisition {
			bestAcquisition = acquisition
			next = candidates[pred.index]
		}
	}

	return next
}
