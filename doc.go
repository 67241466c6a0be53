// Package automl searches jointly over per-feature transformations, estimators
// and estimator hyperparameters.
//
// A Pipeline runs two nested optimizations. The parent loop samples one
// transformation for every feature to transform and, when more than one model
// is considered, the estimator. For each parent trial the child loop tunes the
// hyperparameters of the chosen estimator with the transformations fixed; the
// tuned pipeline is then trained, scored on the validation split and every
// monitored metric is recorded in the run Ledger.
//
// Both loops minimize. Metrics that are maximized are turned into 1 - value
// and non-finite scores into WorstScore before they reach the search.
//
// Training and evaluation are delegated to a Trainer. The estimator package
// provides one working on dataset.Frame values.
//
// Usage example:
//
//	opts := automl.DefaultOptions()
//	opts.InputFeatures = []string{"x1", "x2"}
//	opts.OutputFeatures = []string{"y"}
//	opts.InputsToTransform = opts.InputFeatures
//	opts.ParentIterations = 30
//	opts.ChildIterations = 10
//
//	pl, err := automl.New(opts, estimator.NewTrainer(estimator.DefaultConfig()))
//	if err != nil {
//	    return err
//	}
//
//	if _, err := pl.Fit(ctx, data); err != nil {
//	    return err
//	}
//
//	best, err := pl.BestPipeline("r2")
package automl
