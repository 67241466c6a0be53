package automl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"gopkg.in/yaml.v3"

	"github.com/thalesfsp/automl/dataset"
	"github.com/thalesfsp/automl/hpo"
)

// BaselinesFileName is written under the baselines directory of the run.
const BaselinesFileName = "results.yaml"

// Evaluation is the score of one trained pipeline on the test split.
type Evaluation struct {
	Model   ModelSpec          `yaml:"model"`
	Path    string             `yaml:"path"`
	Metrics map[string]float64 `yaml:"metrics"`
}

// Baselines trains every model of the catalog with default hyperparameters
// and no transformation, and scores each on the test split. Models are
// trained concurrently; results follow the catalog order.
func (p *Pipeline) Baselines(ctx context.Context, data *dataset.Frame) ([]Evaluation, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: nil data", ErrInvalidOptions)
	}

	models := p.catalog.Models()
	dir := filepath.Join(p.path, "baselines")

	workers := p.opts.Workers
	if workers <= 0 {
		workers = len(models)
	}

	var (
		mu      sync.Mutex
		results = make([]Evaluation, len(models))
	)

	wp := pool.New().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(max(workers, 1))

	for i, model := range models {
		i, model := i, model

		wp.Go(func(ctx context.Context) error {
			spec := ModelSpec{Name: model, Params: hpo.Point{}}

			eval, err := p.evaluate(ctx, data, spec, nil, nil, dir)
			if err != nil {
				return fmt.Errorf("baseline of %s: %w", model, err)
			}

			mu.Lock()
			results[i] = eval
			mu.Unlock()

			p.logger.Debugf("baseline of %s done", model)

			return nil
		})
	}

	if err := wp.Wait(); err != nil {
		return nil, err
	}

	out, err := yaml.Marshal(results)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	if err := os.WriteFile(filepath.Join(dir, BaselinesFileName), out, 0o644); err != nil {
		return nil, err
	}

	return results, nil
}

// RefitBest rebuilds the best pipeline of metric from its record, trains it
// again and scores it on the test split.
func (p *Pipeline) RefitBest(ctx context.Context, data *dataset.Frame, metric string) (Evaluation, error) {
	if data == nil {
		return Evaluation{}, fmt.Errorf("%w: nil data", ErrInvalidOptions)
	}

	record, err := p.BestPipeline(metric)
	if err != nil {
		return Evaluation{}, err
	}

	return p.evaluate(ctx, data, record.Model, record.XTransforms, record.YTransforms,
		filepath.Join(p.path, "results_from_scratch"))
}

// evaluate trains one pipeline and computes the monitored metrics on the
// test split.
func (p *Pipeline) evaluate(ctx context.Context, data *dataset.Frame, model ModelSpec, x, y []TransformSpec, prefix string) (Evaluation, error) {
	runner, err := p.trainer.Train(ctx, p.request(model, x, y, prefix, p.opts.Seed))
	if err != nil {
		return Evaluation{}, err
	}

	if err := runner.Fit(ctx, data); err != nil {
		return Evaluation{}, err
	}

	truth, pred, err := runner.Predict(ctx, data, Test)
	if err != nil {
		return Evaluation{}, err
	}

	values := make(map[string]float64, len(p.opts.Monitor))

	for _, m := range p.opts.Monitor {
		v, err := p.registry.Compute(m, truth, pred)
		if err != nil {
			return Evaluation{}, err
		}

		values[m] = v
	}

	return Evaluation{Model: model.Clone(), Path: runner.Path(), Metrics: values}, nil
}
