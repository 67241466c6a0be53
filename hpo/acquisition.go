package hpo

import (
	"fmt"
	"math"
	"strings"
)

//////
// Available acquisition functions for Bayesian optimization.
// All of them follow the minimization convention: the candidate with the
// lowest acquisition value is evaluated next.
//////

// UCB implements the (lower) confidence bound: the predicted score minus Beta
// standard deviations.
//
// Example:
//
//	params := AcquisitionParams{Beta: 2.0}
//	value := UCB(0.5, 0.2, params)
func UCB(mean, variance float64, params AcquisitionParams) float64 {
	return mean - params.Beta*math.Sqrt(math.Max(variance, 0))
}

// ProbabilityOfImprovement returns the negated probability that the candidate
// beats BestSoFar by at least Xi.
//
// Example:
//
//	params := AcquisitionParams{BestSoFar: 1.0, Xi: 0.01}
//	value := ProbabilityOfImprovement(0.9, 0.2, params)
func ProbabilityOfImprovement(mean, variance float64, params AcquisitionParams) float64 {
	sigma := math.Sqrt(math.Max(variance, 0))
	improvement := params.BestSoFar - mean - params.Xi

	if sigma == 0 {
		if improvement > 0 {
			return -1
		}

		return 0
	}

	return -normalCDF(improvement / sigma)
}

// ExpectedImprovement returns the negated expected improvement over BestSoFar.
// It weighs both how likely and how large an improvement is.
//
// Example:
//
//	params := AcquisitionParams{BestSoFar: 1.0, Xi: 0.01}
//	value := ExpectedImprovement(0.9, 0.2, params)
func ExpectedImprovement(mean, variance float64, params AcquisitionParams) float64 {
	sigma := math.Sqrt(math.Max(variance, 0))
	improvement := params.BestSoFar - mean - params.Xi

	if sigma == 0 {
		return -math.Max(improvement, 0)
	}

	z := improvement / sigma

	return -(improvement*normalCDF(z) + sigma*normalPDF(z))
}

// ThompsonSampling draws one sample from the posterior at the candidate.
//
// Warning:
// - RandomState must be set; the optimizer sets it when left nil.
func ThompsonSampling(mean, variance float64, params AcquisitionParams) float64 {
	return mean + math.Sqrt(math.Max(variance, 0))*params.RandomState.NormFloat64()
}

// AcquisitionByName resolves "ucb", "pi", "ei" or "thompson" (case
// insensitive). An empty name resolves to UCB.
func AcquisitionByName(name string) (AcquisitionFunc, error) {
	switch strings.ToLower(name) {
	case "", "ucb":
		return UCB, nil
	case "pi":
		return ProbabilityOfImprovement, nil
	case "ei":
		return ExpectedImprovement, nil
	case "thompson", "ts":
		return ThompsonSampling, nil
	default:
		return nil, fmt.Errorf("unknown acquisition function %q", name)
	}
}
