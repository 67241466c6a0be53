package automl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thalesfsp/automl/dataset"
	"github.com/thalesfsp/automl/hpo"
	"github.com/thalesfsp/automl/metrics"
)

// State is the lifecycle stage of a Pipeline.
type State int

const (
	// Idle is the state before the first Fit.
	Idle State = iota

	// Running is the state during Fit.
	Running

	// Done is the state after Fit returned.
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ProgressUpdate is sent after every parent iteration.
type ProgressUpdate struct {
	// Iteration is the 1-based parent iteration.
	Iteration int

	// TotalIterations is the number of parent iterations requested.
	TotalIterations int

	// Record is the pipeline evaluated at Iteration.
	Record ParentTrialRecord

	// ValScore is the normalized score returned to the parent search.
	ValScore float64

	// Metrics holds the monitored metrics of Iteration.
	Metrics map[string]float64
}

// Pipeline searches jointly over feature transformations, estimators and
// their hyperparameters.
//
// The parent loop samples one transformation per feature and, when more than
// one model is considered, the estimator. For every parent trial the child
// loop tunes the hyperparameters of the chosen estimator before the pipeline
// is trained and scored on the validation split.
type Pipeline struct {
	opts     Options
	trainer  Trainer
	registry *metrics.Registry
	catalog  *Catalog
	logger   logrus.FieldLogger
	path     string

	mu        sync.Mutex
	state     State
	ledger    *Ledger
	optimizer *hpo.Optimizer
	result    *hpo.Result
	models    int
}

// runState is the mutable state of one Fit. It is owned by the objective
// closures, which the optimizers call sequentially.
type runState struct {
	pipeline   *Pipeline
	data       *dataset.Frame
	catalog    CatalogSnapshot
	space      SearchSpace
	ledger     *Ledger
	parentIter int
	childIter  int
}

//////
// Factory.
//////

// New validates opts and returns a Pipeline. The run directory is created
// and the options are written to it.
func New(opts Options, trainer Trainer) (*Pipeline, error) {
	if trainer == nil {
		return nil, fmt.Errorf("%w: nil trainer", ErrInvalidOptions)
	}

	if err := opts.validate(); err != nil {
		return nil, err
	}

	registry := opts.Metrics
	if registry == nil {
		r, err := metrics.ForMode(string(opts.Mode))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
		}

		registry = r
	}

	for _, m := range opts.Monitor {
		if !registry.Has(m) {
			return nil, fmt.Errorf("%w: monitor: %w: %s", ErrInvalidOptions, metrics.ErrUnknownMetric, m)
		}
	}

	var defaults map[string]hpo.Space
	if provider, ok := trainer.(SpaceProvider); ok {
		defaults = provider.Spaces(opts.Mode)
	}

	models := opts.Models
	if len(models) == 0 {
		for m := range defaults {
			models = append(models, m)
		}

		sort.Strings(models)
	}

	if len(models) == 0 {
		return nil, errNoModels
	}

	catalog := NewCatalog(opts.ChildIterations)

	for _, m := range models {
		space, ok := opts.Spaces[m]
		if !ok {
			space = defaults[m]
		}

		if err := catalog.AddModel(m, space); err != nil {
			return nil, err
		}
	}

	for m := range opts.Spaces {
		if !catalog.has(m) {
			return nil, &UnknownModelError{Model: m}
		}
	}

	for m, n := range opts.ChildBudgets {
		if err := catalog.SetChildBudget(m, n); err != nil {
			return nil, err
		}
	}

	if _, err := BuildSpace(spaceRequest(opts, models)); err != nil {
		return nil, err
	}

	path := filepath.Join(opts.ResultsDir, opts.Prefix+"_"+time.Now().Format("20060102_150405.000000"))
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}

	p := &Pipeline{
		opts:     opts,
		trainer:  trainer,
		registry: registry,
		catalog:  catalog,
		logger:   opts.Logger,
		path:     path,
	}

	if err := p.saveConfig(); err != nil {
		return nil, err
	}

	return p, nil
}

//////
// Exported functionalities.
//////

// Fit runs the optimization on data and returns the parent search result.
//
// Cancelling ctx stops the run after the current parent iteration; the
// completed iterations are kept and saved. An error of the trainer or of a
// runner aborts the run.
func (p *Pipeline) Fit(ctx context.Context, data *dataset.Frame) (*hpo.Result, error) {
	return p.FitWithPrevious(ctx, data, nil)
}

// FitWithPrevious is Fit with the parent search seeded with trials from an
// earlier run, as loaded by hpo.LoadTrials.
func (p *Pipeline) FitWithPrevious(ctx context.Context, data *dataset.Frame, previous []hpo.Trial) (*hpo.Result, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: nil data", ErrInvalidOptions)
	}

	for _, f := range append(append([]string{}, p.opts.InputFeatures...), p.opts.OutputFeatures...) {
		if !data.Has(f) {
			return nil, fmt.Errorf("%w: %s is not in the data", ErrUnknownFeature, f)
		}
	}

	p.mu.Lock()

	if p.state == Running {
		p.mu.Unlock()

		return nil, ErrAlreadyRunning
	}

	snapshot := p.catalog.Snapshot()

	space, err := BuildSpace(spaceRequest(p.opts, snapshot.Models()))
	if err != nil {
		p.mu.Unlock()

		return nil, err
	}

	rs := p.reset(data, snapshot, space)

	p.state = Running
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.state = Done
		p.mu.Unlock()
	}()

	config := p.optimizerConfig(p.opts.ParentAlgorithm, p.opts.ParentIterations, p.path, p.opts.Seed)

	optimizer, err := hpo.New(space.Space, rs.parentObjective, config)
	if err != nil {
		return nil, err
	}

	if len(previous) > 0 {
		if err := optimizer.AddPreviousResults(previous...); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	p.optimizer = optimizer
	p.mu.Unlock()

	result, err := optimizer.Fit(ctx)

	rs.ledger.finish()

	p.mu.Lock()
	p.result = result
	p.mu.Unlock()

	if err != nil {
		return result, fmt.Errorf("parent optimization: %w", err)
	}

	if result.Stopped {
		p.logger.Warnf("optimization stopped early after %d of %d iterations", rs.ledger.Len(), p.opts.ParentIterations)
	}

	if err := p.saveResults(rs.ledger); err != nil {
		return result, err
	}

	if _, err := p.writeReport(); err != nil {
		return result, err
	}

	if err := p.saveConfig(); err != nil {
		return result, err
	}

	return result, nil
}

// State returns the lifecycle stage.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

// Path returns the run directory.
func (p *Pipeline) Path() string {
	return p.path
}

// Options returns the effective options.
func (p *Pipeline) Options() Options {
	return p.opts
}

// Metrics returns the metric registry.
func (p *Pipeline) Metrics() *metrics.Registry {
	return p.registry
}

// Optimizer returns the parent optimizer of the last Fit.
func (p *Pipeline) Optimizer() (*hpo.Optimizer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.optimizer == nil {
		return nil, ErrNotFitted
	}

	return p.optimizer, nil
}

// Ledger returns the history of the last Fit.
func (p *Pipeline) Ledger() (*Ledger, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ledger == nil {
		return nil, ErrNotFitted
	}

	return p.ledger, nil
}

// AddModel adds model to the catalog with space and the default child
// budget.
func (p *Pipeline) AddModel(model string, space hpo.Space) error {
	return p.catalog.AddModel(model, space)
}

// RemoveModel removes models from the catalog, all or none.
func (p *Pipeline) RemoveModel(models ...string) error {
	return p.catalog.RemoveModel(models...)
}

// UpdateSpace replaces the hyperparameter space of model.
func (p *Pipeline) UpdateSpace(model string, space hpo.Space) error {
	return p.catalog.UpdateSpace(model, space)
}

// SetChildBudget sets the number of child iterations of model.
func (p *Pipeline) SetChildBudget(model string, n int) error {
	return p.catalog.SetChildBudget(model, n)
}

// Models returns the models of the catalog.
func (p *Pipeline) Models() []string {
	return p.catalog.Models()
}

// Space returns the parent search space built from the current catalog.
func (p *Pipeline) Space() (SearchSpace, error) {
	return BuildSpace(spaceRequest(p.opts, p.catalog.Models()))
}

// BestValue returns the best value of metric in the last Fit.
func (p *Pipeline) BestValue(metric string) (float64, error) {
	l, err := p.Ledger()
	if err != nil {
		return 0, err
	}

	return l.BestValue(metric)
}

// BestIteration returns the 1-based iteration of BestValue.
func (p *Pipeline) BestIteration(metric string) (int, error) {
	l, err := p.Ledger()
	if err != nil {
		return 0, err
	}

	return l.BestIteration(metric)
}

// BestPipeline returns the record at BestIteration.
func (p *Pipeline) BestPipeline(metric string) (ParentTrialRecord, error) {
	l, err := p.Ledger()
	if err != nil {
		return ParentTrialRecord{}, err
	}

	return l.BestPipeline(metric)
}

// BestPipelineForModel returns the best record of model with respect to
// metric and its rounded value.
func (p *Pipeline) BestPipelineForModel(model, metric string) (float64, ParentTrialRecord, error) {
	l, err := p.Ledger()
	if err != nil {
		return 0, ParentTrialRecord{}, err
	}

	return l.BestPipelineForModel(model, metric)
}

//////
// Internal.
//////

func spaceRequest(opts Options, models []string) SpaceRequest {
	return SpaceRequest{
		InputsToTransform:     opts.InputsToTransform,
		InputTransformations:  opts.InputTransformations,
		OutputsToTransform:    opts.OutputsToTransform,
		OutputTransformations: opts.OutputTransformations,
		Models:                models,
	}
}

// reset starts a fresh ledger. Callers hold mu.
func (p *Pipeline) reset(data *dataset.Frame, snapshot CatalogSnapshot, space SearchSpace) *runState {
	ledger := newLedger(p.registry, p.opts.Monitor, p.opts.ParentIterations, snapshot.MaxBudget())

	p.ledger = ledger
	p.optimizer = nil
	p.result = nil
	p.models = len(snapshot.Models())

	p.logger.Info(formatRow(append([]string{"Iter", p.opts.EvalMetric}, ledger.Monitor()...)))

	return &runState{
		pipeline: p,
		data:     data,
		catalog:  snapshot,
		space:    space,
		ledger:   ledger,
	}
}

func (p *Pipeline) optimizerConfig(algorithm hpo.Algorithm, iterations int, outputDir string, seed int64) hpo.Config {
	config := hpo.DefaultConfig()
	config.Algorithm = algorithm
	config.Iterations = iterations
	config.InitialSamples = p.opts.InitialSamples
	config.NumCandidates = p.opts.NumCandidates
	config.KernelWidth = p.opts.KernelWidth
	config.Seed = seed
	config.OutputDir = outputDir

	if acq, err := hpo.AcquisitionByName(p.opts.Acquisition); err == nil {
		config.AcquisitionFunc = acq
	}

	if p.opts.Workers > 0 {
		config.Workers = p.opts.Workers
	}

	return config
}

func (p *Pipeline) request(model ModelSpec, x, y []TransformSpec, prefix string, seed int64) TrainRequest {
	return TrainRequest{
		Model:          model,
		InputFeatures:  p.opts.InputFeatures,
		OutputFeatures: p.opts.OutputFeatures,
		XTransforms:    x,
		YTransforms:    y,
		EvalMetric:     p.opts.EvalMetric,
		Mode:           p.opts.Mode,
		Prefix:         prefix,
		Seed:           seed,
	}
}

// fitAndEval trains runner and returns its normalized score, cross validated
// when cv is set.
func (p *Pipeline) fitAndEval(ctx context.Context, runner Runner, data *dataset.Frame, cv bool) (float64, error) {
	if cv {
		v, err := runner.CrossValScore(ctx, data)
		if err != nil {
			return 0, err
		}

		direction, err := p.registry.Direction(p.opts.EvalMetric)
		if err != nil {
			return 0, err
		}

		return NormalizeScore(v, direction), nil
	}

	if err := runner.Fit(ctx, data); err != nil {
		return 0, err
	}

	truth, pred, err := runner.Predict(ctx, data, Validation)
	if err != nil {
		return 0, err
	}

	return Normalize(p.registry, p.opts.EvalMetric, truth, pred)
}

func (p *Pipeline) sendProgress(update ProgressUpdate) {
	if p.opts.ProgressChan == nil {
		return
	}

	select {
	case p.opts.ProgressChan <- update:
	default:
		// Skip update if channel is full.
	}
}

// parentObjective evaluates one parent suggestion.
func (rs *runState) parentObjective(ctx context.Context, suggestion hpo.Point) (float64, error) {
	p := rs.pipeline

	rs.parentIter++
	iteration := rs.parentIter

	model := rs.space.Estimator
	if rs.space.OptimizeEstimator {
		name, ok := suggestion.Category(EstimatorDimension)
		if !ok {
			return 0, fmt.Errorf("parent iteration %d: suggestion has no %s", iteration, EstimatorDimension)
		}

		model = name
	}

	x, y := Cook(suggestion, rs.space.Features, p.opts.InputsToTransform)

	params, err := rs.optimizeHyperparameters(ctx, model, x, y)
	if err != nil {
		return 0, fmt.Errorf("parent iteration %d: %w", iteration, err)
	}

	spec := ModelSpec{Name: model, Params: params}

	runner, err := p.trainer.Train(ctx, p.request(spec, x, y, p.path, p.opts.Seed))
	if err != nil {
		return 0, fmt.Errorf("parent iteration %d: %w", iteration, err)
	}

	valScore, err := p.fitAndEval(ctx, runner, rs.data, p.opts.CVParent)
	if err != nil {
		return 0, fmt.Errorf("parent iteration %d: %w", iteration, err)
	}

	truth, pred, err := runner.Predict(ctx, rs.data, Validation)
	if err != nil {
		return 0, fmt.Errorf("parent iteration %d: %w", iteration, err)
	}

	values := make(map[string]float64, len(rs.ledger.Monitor()))
	row := []string{fmt.Sprint(iteration), fmt.Sprintf("%.3f", valScore)}

	for _, m := range rs.ledger.Monitor() {
		v, err := p.registry.Compute(m, truth, pred)
		if err != nil {
			return 0, fmt.Errorf("parent iteration %d: %w", iteration, err)
		}

		values[m] = v
		row = append(row, fmt.Sprintf("%.7f", v))
	}

	record := ParentTrialRecord{
		Iteration:   iteration,
		XTransforms: x,
		YTransforms: y,
		Model:       spec,
		Path:        runner.Path(),
	}

	rs.ledger.append(record, values, valScore)

	p.logger.Info(formatRow(row))

	p.sendProgress(ProgressUpdate{
		Iteration:       iteration,
		TotalIterations: p.opts.ParentIterations,
		Record:          record.clone(),
		ValScore:        valScore,
		Metrics:         values,
	})

	return valScore, nil
}

// optimizeHyperparameters runs the child loop of model with fixed
// transformations and returns the best hyperparameters. A zero budget returns
// an empty point.
func (rs *runState) optimizeHyperparameters(ctx context.Context, model string, x, y []TransformSpec) (hpo.Point, error) {
	p := rs.pipeline

	rs.childIter = 0

	budget, err := rs.catalog.Budget(model)
	if err != nil {
		return nil, err
	}

	space, err := rs.catalog.Space(model)
	if err != nil {
		return nil, err
	}

	if budget == 0 {
		return hpo.Point{}, nil
	}

	parent := rs.parentIter
	prefix := filepath.Join(p.path, fmt.Sprintf("%d_child", parent))
	seed := p.opts.Seed + int64(parent)

	objective := func(ctx context.Context, params hpo.Point) (float64, error) {
		rs.childIter++

		runner, err := p.trainer.Train(ctx, p.request(ModelSpec{Name: model, Params: params}, x, y, prefix, p.opts.Seed))
		if err != nil {
			return 0, err
		}

		score, err := p.fitAndEval(ctx, runner, rs.data, p.opts.CVChild)
		if err != nil {
			return 0, err
		}

		rs.ledger.setChild(parent-1, rs.childIter-1, score)

		p.logger.WithFields(logrus.Fields{
			"parent": parent,
			"child":  rs.childIter,
			"model":  model,
			"score":  score,
		}).Debug("child trial")

		return score, nil
	}

	optimizer, err := hpo.New(space, objective, p.optimizerConfig(p.opts.ChildAlgorithm, budget, prefix, seed))
	if err != nil {
		return nil, err
	}

	result, err := optimizer.Fit(ctx)

	// Runners of the child trials are no longer referenced.
	runtime.GC()

	if err != nil {
		return nil, fmt.Errorf("child optimization of %s: %w", model, err)
	}

	if result.Stopped {
		return nil, fmt.Errorf("child optimization of %s: %w", model, ctx.Err())
	}

	return result.BestParas(), nil
}

// formatRow lays out a progress line in fixed-width columns.
func formatRow(cells []string) string {
	var b strings.Builder

	for i, c := range cells {
		switch i {
		case 0:
			fmt.Fprintf(&b, "%-5s ", c)
		case 1:
			fmt.Fprintf(&b, "%-18s ", c)
		default:
			fmt.Fprintf(&b, "%-15s ", c)
		}
	}

	return strings.TrimRight(b.String(), " ")
}
