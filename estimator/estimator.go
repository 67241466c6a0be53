// Package estimator trains and evaluates pipelines on a dataset.Frame: the
// transformations of every input and output column, followed by one of a few
// linear and nearest neighbour models.
//
// Trainer implements automl.Trainer and automl.SpaceProvider.
package estimator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"github.com/thalesfsp/automl"
	"github.com/thalesfsp/automl/dataset"
	"github.com/thalesfsp/automl/hpo"
	"github.com/thalesfsp/automl/metrics"
)

// ArtifactFileName is written to the runner's path after Fit.
const ArtifactFileName = "model.yaml"

var (
	// ErrNoData is returned when a split or a column has no usable rows.
	ErrNoData = errors.New("no data")

	// ErrSingular is returned when a linear system cannot be solved.
	ErrSingular = errors.New("singular system")

	// ErrUnknownTransform is returned for transformation names without an
	// implementation.
	ErrUnknownTransform = errors.New("unknown transformation")

	// ErrNotFitted is returned by Predict before Fit.
	ErrNotFitted = errors.New("runner not fitted")

	// ErrOutputs is returned when a request does not name exactly one output.
	ErrOutputs = errors.New("exactly one output feature is supported")
)

// Config controls data splitting and cross validation.
type Config struct {
	// TestFraction of the usable rows is held out for testing.
	TestFraction float64 `yaml:"test_fraction"`

	// ValFraction of the remaining rows is used for validation.
	ValFraction float64 `yaml:"val_fraction"`

	// Folds is the number of cross validation folds.
	Folds int `yaml:"folds"`

	// Workers bounds the folds trained concurrently.
	Workers int `yaml:"workers"`

	// SaveArtifacts writes model.yaml after every Fit.
	SaveArtifacts bool `yaml:"save_artifacts"`

	Logger logrus.FieldLogger `yaml:"-"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		TestFraction:  0.2,
		ValFraction:   0.2,
		Folds:         5,
		Workers:       4,
		SaveArtifacts: true,
	}
}

// Trainer builds Runners. It is safe for concurrent use.
type Trainer struct {
	config Config
	seq    atomic.Int64
}

// NewTrainer returns a Trainer.
func NewTrainer(config Config) *Trainer {
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

	if config.Folds < 2 {
		config.Folds = 2
	}

	if config.Workers <= 0 {
		config.Workers = 1
	}

	return &Trainer{config: config}
}

// Spaces returns the default hyperparameter spaces of mode.
func (t *Trainer) Spaces(mode automl.Mode) map[string]hpo.Space {
	return Spaces(mode)
}

// Train validates req and returns an untrained Runner.
func (t *Trainer) Train(ctx context.Context, req automl.TrainRequest) (automl.Runner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(req.InputFeatures) == 0 {
		return nil, fmt.Errorf("%w: no input features", ErrNoData)
	}

	if len(req.OutputFeatures) != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrOutputs, len(req.OutputFeatures))
	}

	if _, err := newModel(req.Model, req.Mode); err != nil {
		return nil, err
	}

	registry, err := metrics.ForMode(string(req.Mode))
	if err != nil {
		return nil, err
	}

	if !registry.Has(req.EvalMetric) {
		return nil, fmt.Errorf("%w: %s", metrics.ErrUnknownMetric, req.EvalMetric)
	}

	for _, spec := range append(append([]automl.TransformSpec{}, req.XTransforms...), req.YTransforms...) {
		if _, err := fitScaler(spec.Method, []float64{1, 2}); err != nil {
			return nil, err
		}
	}

	name := fmt.Sprintf("%s_%d_%s", time.Now().Format("20060102_150405"), t.seq.Add(1), req.Model.Name)

	return &Runner{
		config:   t.config,
		req:      req,
		registry: registry,
		path:     filepath.Join(req.Prefix, name),
	}, nil
}

// Runner is one pipeline: transformations and a model.
type Runner struct {
	config   Config
	req      automl.TrainRequest
	registry *metrics.Registry
	path     string

	mu     sync.Mutex
	fitted *fitted
}

// fitted holds the trained state of a Runner.
type fitted struct {
	inputs []chain
	output chain
	model  model
}

// artifact is the persisted form of a trained Runner.
type artifact struct {
	Model          automl.ModelSpec       `yaml:"model"`
	InputFeatures  []string               `yaml:"input_features"`
	OutputFeatures []string               `yaml:"output_features"`
	XTransforms    []automl.TransformSpec `yaml:"x_transformation"`
	YTransforms    []automl.TransformSpec `yaml:"y_transformation"`
	Seed           int64                  `yaml:"seed"`
	TrainRows      int                    `yaml:"train_rows"`
	State          map[string]any         `yaml:"state"`
}

// Path returns the artifact directory.
func (r *Runner) Path() string {
	return r.path
}

// Fit trains on the training split.
func (r *Runner) Fit(ctx context.Context, data *dataset.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s, err := r.split(data)
	if err != nil {
		return err
	}

	f, err := r.fitOn(data, s.train)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.fitted = f
	r.mu.Unlock()

	if r.config.SaveArtifacts {
		return r.save(f, len(s.train))
	}

	return nil
}

// Predict returns the true and predicted outputs of split.
func (r *Runner) Predict(ctx context.Context, data *dataset.Frame, split automl.Split) ([]float64, []float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	f := r.fitted
	r.mu.Unlock()

	if f == nil {
		return nil, nil, ErrNotFitted
	}

	s, err := r.split(data)
	if err != nil {
		return nil, nil, err
	}

	var rows []int

	switch split {
	case automl.Training:
		rows = s.train
	case automl.Validation:
		rows = s.validation
	case automl.Test:
		rows = s.test
	default:
		return nil, nil, fmt.Errorf("unknown split %q", split)
	}

	return r.predictOn(f, data, rows)
}

// CrossValScore returns the eval metric averaged over k folds of the training
// and validation rows, then trains on the training split.
func (r *Runner) CrossValScore(ctx context.Context, data *dataset.Frame) (float64, error) {
	s, err := r.split(data)
	if err != nil {
		return 0, err
	}

	rows := append(append([]int{}, s.train...), s.validation...)

	folds := r.config.Folds
	if folds > len(rows) {
		folds = len(rows)
	}

	if folds < 2 {
		return 0, fmt.Errorf("%w: %d rows cannot be cross validated", ErrNoData, len(rows))
	}

	p := pool.NewWithResults[float64]().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(r.config.Workers)

	for k := 0; k < folds; k++ {
		k := k

		p.Go(func(ctx context.Context) (float64, error) {
			var train, held []int

			for i, row := range rows {
				if i%folds == k {
					held = append(held, row)
				} else {
					train = append(train, row)
				}
			}

			f, err := r.fitOn(data, train)
			if err != nil {
				return 0, fmt.Errorf("fold %d: %w", k+1, err)
			}

			truth, pred, err := r.predictOn(f, data, held)
			if err != nil {
				return 0, fmt.Errorf("fold %d: %w", k+1, err)
			}

			return r.registry.Compute(r.req.EvalMetric, truth, pred)
		})
	}

	scores, err := p.Wait()
	if err != nil {
		return 0, err
	}

	if err := r.Fit(ctx, data); err != nil {
		return 0, err
	}

	return stat.Mean(scores, nil), nil
}

//////
// Internal.
//////

type splits struct {
	train, validation, test []int
}

// split shuffles the usable rows with the request seed and partitions them.
// Rows with a non-finite input or output are not usable.
func (r *Runner) split(data *dataset.Frame) (splits, error) {
	if data == nil {
		return splits{}, fmt.Errorf("%w: nil frame", ErrNoData)
	}

	columns := append(append([]string{}, r.req.InputFeatures...), r.req.OutputFeatures...)

	all, err := data.Matrix(columns, nil)
	if err != nil {
		return splits{}, err
	}

	var usable []int

	for i := 0; i < data.Rows(); i++ {
		ok := true
		for _, v := range all.RawRowView(i) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				ok = false

				break
			}
		}

		if ok {
			usable = append(usable, i)
		}
	}

	n := len(usable)
	if n < 3 {
		return splits{}, fmt.Errorf("%w: %d usable rows", ErrNoData, n)
	}

	perm := rand.New(rand.NewSource(r.req.Seed)).Perm(n)

	nTest := clampCount(int(math.Round(float64(n)*r.config.TestFraction)), r.config.TestFraction, n)
	nVal := clampCount(int(math.Round(float64(n-nTest)*r.config.ValFraction)), r.config.ValFraction, n-nTest)

	rows := make([]int, n)
	for i, p := range perm {
		rows[i] = usable[p]
	}

	return splits{
		test:       rows[:nTest],
		validation: rows[nTest : nTest+nVal],
		train:      rows[nTest+nVal:],
	}, nil
}

// clampCount keeps at least one row in a requested split and one row for
// the rest.
func clampCount(count int, fraction float64, n int) int {
	if fraction > 0 && count < 1 {
		count = 1
	}

	if count > n-1 {
		count = n - 1
	}

	if count < 0 {
		count = 0
	}

	return count
}

// fitOn fits the transformations and the model on rows.
func (r *Runner) fitOn(data *dataset.Frame, rows []int) (*fitted, error) {
	x, err := data.Matrix(r.req.InputFeatures, rows)
	if err != nil {
		return nil, err
	}

	y, err := data.Matrix(r.req.OutputFeatures, rows)
	if err != nil {
		return nil, err
	}

	f := &fitted{inputs: make([]chain, len(r.req.InputFeatures))}

	for j, feature := range r.req.InputFeatures {
		col := mat.Col(nil, j, x)

		c, err := fitChain(feature, r.req.XTransforms, col)
		if err != nil {
			return nil, err
		}

		f.inputs[j] = c
		x.SetCol(j, c.transform(col))
	}

	target := mat.Col(nil, 0, y)

	f.output, err = fitChain(r.req.OutputFeatures[0], r.req.YTransforms, target)
	if err != nil {
		return nil, err
	}

	m, err := newModel(r.req.Model, r.req.Mode)
	if err != nil {
		return nil, err
	}

	if err := m.fit(x, f.output.transform(target)); err != nil {
		return nil, err
	}

	f.model = m

	return f, nil
}

// predictOn returns the true outputs of rows and the predictions mapped back
// to the original output scale.
func (r *Runner) predictOn(f *fitted, data *dataset.Frame, rows []int) ([]float64, []float64, error) {
	x, err := data.Matrix(r.req.InputFeatures, rows)
	if err != nil {
		return nil, nil, err
	}

	y, err := data.Matrix(r.req.OutputFeatures, rows)
	if err != nil {
		return nil, nil, err
	}

	for j, c := range f.inputs {
		x.SetCol(j, c.transform(mat.Col(nil, j, x)))
	}

	pred := f.output.inverse(f.model.predict(x))

	return mat.Col(nil, 0, y), pred, nil
}

func (r *Runner) save(f *fitted, trainRows int) error {
	if err := os.MkdirAll(r.path, 0o755); err != nil {
		return err
	}

	out, err := yaml.Marshal(artifact{
		Model:          r.req.Model,
		InputFeatures:  r.req.InputFeatures,
		OutputFeatures: r.req.OutputFeatures,
		XTransforms:    r.req.XTransforms,
		YTransforms:    r.req.YTransforms,
		Seed:           r.req.Seed,
		TrainRows:      trainRows,
		State:          f.model.state(),
	})
	if err != nil {
		return err
	}

	path := filepath.Join(r.path, ArtifactFileName)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return err
	}

	r.config.Logger.Debugf("model saved to %s", path)

	return nil
}
