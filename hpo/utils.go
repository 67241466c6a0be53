package hpo

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

//////
// Helper functions.
//////

// Helper function used by PI and EI to compute the cumulative distribution
// function of the standard normal distribution.
func normalCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}

// Helper function used by EI to compute the probability density function
// of the standard normal distribution.
func normalPDF(x float64) float64 {
	return math.Exp(-x*x/2.0) / math.Sqrt(2.0*math.Pi)
}

// toFloat converts the numeric values a Point may hold to float64. YAML
// decoding yields int for whole numbers, so both integer and float kinds are
// accepted.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// meanStd returns the mean and standard deviation of ys. A zero or undefined
// deviation is reported as 1 so callers can divide by it.
func meanStd(ys []float64) (float64, float64) {
	if len(ys) == 0 {
		return 0, 1
	}

	mean, std := stat.MeanStdDev(ys, nil)
	if std == 0 || math.IsNaN(std) {
		std = 1
	}

	return mean, std
}
