package automl

import (
	"context"

	"github.com/thalesfsp/automl/dataset"
	"github.com/thalesfsp/automl/hpo"
)

// Mode is the kind of problem being solved.
type Mode string

const (
	// Regression predicts continuous outputs.
	Regression Mode = "regression"

	// Classification predicts class labels.
	Classification Mode = "classification"
)

// Split names a partition of the data.
type Split string

const (
	Training   Split = "training"
	Validation Split = "validation"
	Test       Split = "test"
)

// ModelSpec is an estimator id with its hyperparameters.
type ModelSpec struct {
	Name   string    `yaml:"name"`
	Params hpo.Point `yaml:"params"`
}

// Clone returns a copy with its own Params.
func (m ModelSpec) Clone() ModelSpec {
	return ModelSpec{Name: m.Name, Params: m.Params.Clone()}
}

// TrainRequest describes one pipeline to build.
type TrainRequest struct {
	Model          ModelSpec
	InputFeatures  []string
	OutputFeatures []string
	XTransforms    []TransformSpec
	YTransforms    []TransformSpec
	EvalMetric     string
	Mode           Mode

	// Prefix is the directory under which the runner keeps its artifacts.
	Prefix string

	// Seed drives the data split and any randomness of the estimator.
	Seed int64
}

// Trainer builds runners. Implementations must be safe for concurrent use.
type Trainer interface {
	Train(ctx context.Context, req TrainRequest) (Runner, error)
}

// Runner trains and evaluates one pipeline.
type Runner interface {
	// Fit trains on the training split of data.
	Fit(ctx context.Context, data *dataset.Frame) error

	// Predict returns the true and predicted outputs of split, in the
	// original output scale.
	Predict(ctx context.Context, data *dataset.Frame, split Split) (truth, pred []float64, err error)

	// CrossValScore returns the eval metric averaged over folds and leaves
	// the runner trained on the training split.
	CrossValScore(ctx context.Context, data *dataset.Frame) (float64, error)

	// Path is where the runner keeps its artifacts.
	Path() string
}

// SpaceProvider is implemented by trainers shipping default hyperparameter
// spaces.
type SpaceProvider interface {
	Spaces(mode Mode) map[string]hpo.Space
}
