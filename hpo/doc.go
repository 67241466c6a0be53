// Package hpo provides single-objective hyperparameter optimization over typed
// search spaces, using Bayesian optimization with Gaussian Processes or plain
// random search.
//
// # Features
//
//   - Typed search spaces: real, integer and categorical dimensions, declared in
//     code or decoded from YAML
//   - Bayesian Optimization: a Gaussian Process (gonum Cholesky posterior) over
//     the normalized, one-hot encoded space drives the search after an initial
//     random phase
//   - Multiple Acquisition Functions: Upper Confidence Bound (UCB), Probability
//     of Improvement (PI), Expected Improvement (EI) and Thompson Sampling
//   - Previous results: trials recorded by an earlier run seed the surrogate
//   - Progress Monitoring: real-time updates on optimization progress via channels
//   - Early stop: cancelling the context ends the run and keeps completed trials
//
// # Acquisition Functions
//
// All acquisition functions follow the minimization convention used by the
// optimizer: the candidate with the lowest value is evaluated next.
//
//	config := DefaultConfig()  // Uses UCB by default
//	config.AcqParams.Beta = 2.0  // Adjust exploration-exploitation trade-off
//
//	config.AcquisitionFunc = ExpectedImprovement
//	config.AcqParams.Xi = 0.01  // Minimum improvement threshold
//
// # Configuration
//
//	type Config struct {
//	    Algorithm       Algorithm              // "bayes" or "random"
//	    Iterations      int                    // Total objective evaluations
//	    InitialSamples  int                    // Random evaluations before the model
//	    NumCandidates   int                    // Candidates per model-driven step
//	    AcquisitionFunc AcquisitionFunc        // Strategy for point selection
//	    AcqParams       AcquisitionParams      // Parameters for acquisition function
//	    Seed            int64                  // Sampling seed
//	    Workers         int                    // Goroutines scoring candidates
//	    OutputDir       string                 // Where trials.yaml is written
//	    ProgressChan    chan<- ProgressUpdate  // For progress monitoring
//	}
//
// # Example
//
//	space := hpo.Space{
//	    hpo.Real("alpha", 1e-4, 10),
//	    hpo.Integer("max_depth", 2, 12),
//	    hpo.Categorical("criterion", "mse", "mae"),
//	}
//
//	opt, err := hpo.New(space, objective, hpo.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//
//	res, err := opt.Fit(ctx)
//	if err != nil {
//	    return err
//	}
//
//	best := res.BestParas()
//
// # Thread Safety
//
// Fit evaluates the objective sequentially. Candidate predictions run on a
// bounded worker pool and only read the Gaussian Process.
package hpo
