package automl

import (
	"math"

	"github.com/thalesfsp/automl/metrics"
)

// WorstScore replaces non-finite scores handed to the search.
const WorstScore = 1.0

// NormalizeScore maps a metric value to the minimization convention of the
// search: maximize-type values become 1 - value, and non-finite results become
// WorstScore.
func NormalizeScore(value float64, direction metrics.Direction) float64 {
	if direction == metrics.Maximize {
		value = 1.0 - value
	}

	if math.IsNaN(value) || math.IsInf(value, 0) {
		return WorstScore
	}

	return value
}

// Normalize computes metric on (truth, pred) and normalizes it.
func Normalize(registry *metrics.Registry, metric string, truth, pred []float64) (float64, error) {
	m, err := registry.Lookup(metric)
	if err != nil {
		return 0, err
	}

	value, err := registry.Compute(metric, truth, pred)
	if err != nil {
		return 0, err
	}

	return NormalizeScore(value, m.Direction), nil
}
