package automl

import (
	"bytes"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/thalesfsp/automl/hpo"
	"github.com/thalesfsp/automl/metrics"
)

// Options configures a Pipeline.
//
// Usage example:
//
//	opts := DefaultOptions()
//	opts.InputFeatures = []string{"tide_cm", "wat_temp_c", "sal_psu"}
//	opts.OutputFeatures = []string{"tetx_coppml"}
//	opts.InputsToTransform = opts.InputFeatures
//	opts.Models = []string{"LinearRegression", "Ridge"}
//	opts.ParentIterations = 30
type Options struct {
	// InputFeatures and OutputFeatures name the data columns used by the
	// estimators.
	InputFeatures  []string `yaml:"input_features"`
	OutputFeatures []string `yaml:"output_features"`

	// InputsToTransform are the input features whose transformation is
	// searched. Empty means no input is transformed.
	InputsToTransform []string `yaml:"inputs_to_transform,omitempty"`

	// InputTransformations restricts the candidates of input features.
	InputTransformations TransformSelection `yaml:"input_transformations,omitempty"`

	// OutputsToTransform are the output features whose transformation is
	// searched.
	OutputsToTransform []string `yaml:"outputs_to_transform,omitempty"`

	// OutputTransformations restricts the candidates of output features to
	// a subset of DefaultOutputTransformations.
	OutputTransformations TransformSelection `yaml:"output_transformations,omitempty"`

	// Models are the estimator ids considered. Empty selects every model of
	// the trainer's default spaces.
	Models []string `yaml:"models,omitempty"`

	// Spaces overrides the hyperparameter space of models.
	Spaces map[string]hpo.Space `yaml:"spaces,omitempty"`

	// ChildBudgets overrides ChildIterations per model.
	ChildBudgets map[string]int `yaml:"child_budgets,omitempty"`

	ParentIterations int           `yaml:"parent_iterations"`
	ChildIterations  int           `yaml:"child_iterations"`
	ParentAlgorithm  hpo.Algorithm `yaml:"parent_algorithm"`
	ChildAlgorithm   hpo.Algorithm `yaml:"child_algorithm"`

	// Acquisition is one of "ucb", "pi", "ei" or "thompson".
	Acquisition    string  `yaml:"acquisition"`
	InitialSamples int     `yaml:"initial_samples"`
	NumCandidates  int     `yaml:"num_candidates"`
	KernelWidth    float64 `yaml:"kernel_width,omitempty"`

	// EvalMetric is the metric both loops optimize.
	EvalMetric string `yaml:"eval_metric"`

	// CVParent and CVChild score with cross validation instead of the
	// validation split.
	CVParent bool `yaml:"cv_parent_hpo"`
	CVChild  bool `yaml:"cv_child_hpo"`

	// Monitor lists the metrics recorded at every parent iteration.
	// EvalMetric is always added.
	Monitor []string `yaml:"monitor,omitempty"`

	Mode Mode `yaml:"mode"`

	// Prefix names the run directory created under ResultsDir.
	Prefix     string `yaml:"prefix,omitempty"`
	ResultsDir string `yaml:"results_dir"`

	Seed    int64 `yaml:"seed"`
	Workers int   `yaml:"workers,omitempty"`

	// Logger receives the progress lines. Defaults to the logrus standard
	// logger.
	Logger logrus.FieldLogger `yaml:"-"`

	// ProgressChan receives an update after every parent iteration. A full
	// channel drops the update.
	ProgressChan chan<- ProgressUpdate `yaml:"-"`

	// Metrics overrides the built-in registry of Mode.
	Metrics *metrics.Registry `yaml:"-"`
}

// DefaultOptions returns the default options for a regression problem.
func DefaultOptions() Options {
	return Options{
		ParentIterations: 100,
		ChildIterations:  25,
		ParentAlgorithm:  hpo.Bayes,
		ChildAlgorithm:   hpo.Bayes,
		Acquisition:      "ucb",
		InitialSamples:   10,
		NumCandidates:    50,
		Mode:             Regression,
		ResultsDir:       "results",
		Seed:             313,
	}
}

// LoadOptions reads options from a YAML file on top of DefaultOptions.
// Unknown keys are rejected.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("reading options: %w", err)
	}

	opts := DefaultOptions()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&opts); err != nil {
		return Options{}, fmt.Errorf("parsing options: %w", err)
	}

	return opts, nil
}

// defaultEvalMetric is used when EvalMetric is empty.
func defaultEvalMetric(mode Mode) string {
	if mode == Classification {
		return "accuracy"
	}

	return "mse"
}

// defaultMonitor is used when Monitor is empty.
func defaultMonitor(mode Mode) []string {
	if mode == Classification {
		return []string{"accuracy"}
	}

	return []string{"r2"}
}

// validate checks the options and fills in the derived defaults.
func (o *Options) validate() error {
	switch o.Mode {
	case "":
		o.Mode = Regression
	case Regression, Classification:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidOptions, o.Mode)
	}

	if len(o.InputFeatures) == 0 || len(o.OutputFeatures) == 0 {
		return fmt.Errorf("%w: input and output features are required", ErrInvalidOptions)
	}

	for _, f := range o.InputsToTransform {
		if !slices.Contains(o.InputFeatures, f) {
			return fmt.Errorf("%w: %s is not an input feature", ErrUnknownFeature, f)
		}
	}

	for _, f := range o.OutputsToTransform {
		if !slices.Contains(o.OutputFeatures, f) {
			return fmt.Errorf("%w: %s is not an output feature", ErrUnknownFeature, f)
		}
	}

	if o.ParentIterations < 0 || o.ChildIterations < 0 {
		return fmt.Errorf("%w: negative iterations", ErrInvalidBudget)
	}

	if o.KernelWidth < 0 {
		return fmt.Errorf("%w: negative kernel width", ErrInvalidOptions)
	}

	if _, err := hpo.AcquisitionByName(o.Acquisition); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	seen := make(map[string]struct{}, len(o.Models))
	for _, m := range o.Models {
		if _, ok := seen[m]; ok {
			return fmt.Errorf("%w: models contain %s more than once", ErrInvalidOptions, m)
		}

		seen[m] = struct{}{}
	}

	if o.EvalMetric == "" {
		o.EvalMetric = defaultEvalMetric(o.Mode)
	}

	if len(o.Monitor) == 0 {
		o.Monitor = defaultMonitor(o.Mode)
	}

	o.Monitor = dedupe(o.Monitor)
	if !slices.Contains(o.Monitor, o.EvalMetric) {
		o.Monitor = append(o.Monitor, o.EvalMetric)
	}

	if o.Prefix == "" {
		o.Prefix = "pipeline_opt"
	}

	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}

	return nil
}
