package automl

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thalesfsp/automl/hpo"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "options.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoadOptions(t *testing.T) {
	path := writeFile(t, `input_features: [tide_cm, wat_temp_c]
output_features: [tetx_coppml]
inputs_to_transform: [tide_cm]
input_transformations:
  tide_cm: [log, sqrt]
output_transformations: [log, none]
models: [Ridge]
spaces:
  Ridge:
    - name: alpha
      type: real
      low: 0.1
      high: 2
child_budgets:
  Ridge: 4
parent_iterations: 12
`)

	opts, err := LoadOptions(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"tide_cm", "wat_temp_c"}, opts.InputFeatures)
	assert.Equal(t, []string{"log", "sqrt"}, opts.InputTransformations.Candidates("tide_cm", DefaultTransformations))
	assert.Equal(t, DefaultTransformations, opts.InputTransformations.Candidates("wat_temp_c", DefaultTransformations))
	assert.Equal(t, []string{"log", "none"}, opts.OutputTransformations.Candidates("tetx_coppml", DefaultOutputTransformations))
	assert.Equal(t, hpo.Space{hpo.Real("alpha", 0.1, 2)}, opts.Spaces["Ridge"])
	assert.Equal(t, map[string]int{"Ridge": 4}, opts.ChildBudgets)
	assert.Equal(t, 12, opts.ParentIterations)

	// Unset keys keep their defaults.
	defaults := DefaultOptions()
	assert.Equal(t, defaults.ChildIterations, opts.ChildIterations)
	assert.Equal(t, defaults.Seed, opts.Seed)
	assert.Equal(t, defaults.Acquisition, opts.Acquisition)
}

func TestLoadOptionsRejectsUnknownKeys(t *testing.T) {
	_, err := LoadOptions(writeFile(t, "input_features: [a]\nparent_iteration: 3\n"))
	assert.ErrorContains(t, err, "parsing options")

	_, err = LoadOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading options")
}

func TestValidateDefaults(t *testing.T) {
	opts := DefaultOptions()
	opts.Mode = Classification
	opts.InputFeatures = []string{"a"}
	opts.OutputFeatures = []string{"label"}
	opts.Monitor = []string{"f1_score", "f1_score"}

	require.NoError(t, opts.validate())

	assert.Equal(t, "accuracy", opts.EvalMetric)
	assert.Equal(t, []string{"f1_score", "accuracy"}, opts.Monitor)
	assert.Equal(t, "pipeline_opt", opts.Prefix)
	assert.NotNil(t, opts.Logger)
}

func TestFormatRow(t *testing.T) {
	assert.Equal(t, "1     0.250              0.9000000       1.5000000",
		formatRow([]string{"1", "0.250", "0.9000000", "1.5000000"}))
	assert.Equal(t, "Iter", formatRow([]string{"Iter"}))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "0.1235", formatValue(0.123456))
	assert.Equal(t, "2", formatValue(2))
	assert.Equal(t, "NaN", formatValue(math.NaN()))
	assert.Equal(t, "+Inf", formatValue(math.Inf(1)))
}
