package cli

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thalesfsp/automl"
)

// execute runs the command tree with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.Execute()

	return out.String(), err
}

// writeData writes y = 2*x1 - x2 + 3 with a little noise.
func writeData(t *testing.T, dir string) string {
	t.Helper()

	rng := rand.New(rand.NewSource(7))

	var b strings.Builder
	b.WriteString("x1,x2,y\n")

	for i := 0; i < 40; i++ {
		x1 := float64(i) / 4
		x2 := rng.Float64() * 10
		y := 2*x1 - x2 + 3 + rng.NormFloat64()*0.1

		fmt.Fprintf(&b, "%g,%g,%g\n", x1, x2, y)
	}

	path := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	return path
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()

	config := fmt.Sprintf(`input_features: [x1, x2]
output_features: [y]
inputs_to_transform: [x1]
input_transformations: [minmax, zscore, none]
models: [Ridge, LinearRegression]
parent_iterations: 3
child_iterations: 2
initial_samples: 2
num_candidates: 5
monitor: [r2, mae]
results_dir: %s
prefix: cli
`, filepath.Join(dir, "results"))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(config), 0o644))

	return path
}

func TestTransformsCommand(t *testing.T) {
	out, err := execute(t, "transforms")
	require.NoError(t, err)

	assert.Contains(t, out, "inputs:  "+strings.Join(automl.DefaultTransformations, ", "))
	assert.Contains(t, out, "outputs: "+strings.Join(automl.DefaultOutputTransformations, ", "))
}

func TestModelsCommand(t *testing.T) {
	out, err := execute(t, "models")
	require.NoError(t, err)
	assert.Contains(t, out, "Ridge\n")
	assert.Contains(t, out, "alpha (real): [0.001, 10]")
	assert.NotContains(t, out, "RidgeClassifier")

	out, err = execute(t, "models", "--mode", "classification")
	require.NoError(t, err)
	assert.Contains(t, out, "KNeighborsClassifier\n")
	assert.Contains(t, out, "weights (categorical): uniform, distance")

	_, err = execute(t, "models", "--mode", "ranking")
	assert.ErrorIs(t, err, automl.ErrInvalidOptions)
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := execute(t, "--log", "loud", "transforms")
	assert.ErrorContains(t, err, "invalid log level")
}

func TestRunRequiresFlags(t *testing.T) {
	_, err := execute(t, "run")
	assert.Error(t, err)
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "--log", "error", "run",
		"--config", writeConfig(t, dir),
		"--data", writeData(t, dir),
		"--seed", "5",
		"--baselines",
		"--refit", "mse",
	)
	require.NoError(t, err)

	assert.Contains(t, out, "baseline Ridge: ")
	assert.Contains(t, out, "baseline LinearRegression: ")
	assert.Contains(t, out, "after completing 3 iterations")
	assert.Contains(t, out, "With respect to mse")
	assert.Contains(t, out, "refit ")

	runs, err := filepath.Glob(filepath.Join(dir, "results", "cli_*"))
	require.NoError(t, err)
	require.Len(t, runs, 1)

	// The saved options carry the seed of the command line.
	opts, err := automl.LoadOptions(filepath.Join(runs[0], automl.ConfigFileName))
	require.NoError(t, err)
	assert.Equal(t, int64(5), opts.Seed)
	assert.Equal(t, []string{"r2", "mae", "mse"}, opts.Monitor)

	for _, name := range []string{automl.ErrorsFileName, automl.ReportFileName, automl.ParentTrialsFileName} {
		_, err := os.Stat(filepath.Join(runs[0], name))
		assert.NoError(t, err, name)
	}
}

func TestRunMissingConfig(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "--log", "error", "run",
		"--config", filepath.Join(dir, "missing.yaml"),
		"--data", writeData(t, dir),
	)
	assert.ErrorContains(t, err, "reading options")
}
