package automl

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/thalesfsp/automl/hpo"
)

// EstimatorDimension is the name of the parent-space dimension choosing the
// estimator.
const EstimatorDimension = "estimator"

// errNoModels is returned when no estimator is registered.
var errNoModels = fmt.Errorf("%w: no models to optimize", ErrInvalidOptions)

// SpaceRequest is the input of BuildSpace.
type SpaceRequest struct {
	InputsToTransform     []string
	InputTransformations  TransformSelection
	OutputsToTransform    []string
	OutputTransformations TransformSelection
	Models                []string
}

// SearchSpace is the parent search space together with how to read a
// suggestion from it.
type SearchSpace struct {
	// Space holds one categorical dimension per feature and, when more than
	// one model is considered, the estimator dimension.
	Space hpo.Space

	// Features lists the transformed features in dimension order.
	Features []string

	// OptimizeEstimator reports whether the estimator is sampled.
	OptimizeEstimator bool

	// Estimator is the single model used when OptimizeEstimator is false.
	Estimator string
}

// BuildSpace constructs the parent search space.
func BuildSpace(req SpaceRequest) (SearchSpace, error) {
	if len(req.Models) == 0 {
		return SearchSpace{}, errNoModels
	}

	if err := checkOverrides(req.InputTransformations, req.InputsToTransform); err != nil {
		return SearchSpace{}, err
	}

	if err := checkOverrides(req.OutputTransformations, req.OutputsToTransform); err != nil {
		return SearchSpace{}, err
	}

	var out SearchSpace

	add := func(feature string, candidates, allowed []string) error {
		if feature == EstimatorDimension {
			return fmt.Errorf("%w: %q is reserved", ErrUnknownFeature, feature)
		}

		if slices.Contains(out.Features, feature) {
			return fmt.Errorf("%w: %s is both an input and an output to transform", ErrUnknownFeature, feature)
		}

		if len(candidates) == 0 {
			return &InvalidTransformError{Feature: feature, Allowed: allowed}
		}

		for _, name := range candidates {
			if !slices.Contains(allowed, name) {
				return &InvalidTransformError{Feature: feature, Transform: name, Allowed: allowed}
			}
		}

		out.Space = append(out.Space, hpo.Categorical(feature, dedupe(candidates)...))
		out.Features = append(out.Features, feature)

		return nil
	}

	for _, feature := range req.InputsToTransform {
		candidates := req.InputTransformations.Candidates(feature, DefaultTransformations)
		if err := add(feature, candidates, DefaultTransformations); err != nil {
			return SearchSpace{}, err
		}
	}

	for _, feature := range req.OutputsToTransform {
		candidates := req.OutputTransformations.Candidates(feature, DefaultOutputTransformations)
		if err := add(feature, candidates, DefaultOutputTransformations); err != nil {
			return SearchSpace{}, err
		}
	}

	if len(req.Models) > 1 {
		out.Space = append(out.Space, hpo.Categorical(EstimatorDimension, req.Models...))
		out.OptimizeEstimator = true
	} else {
		out.Estimator = req.Models[0]
	}

	return out, nil
}

// checkOverrides rejects PerFeature keys that are not features to transform.
func checkOverrides(sel TransformSelection, features []string) error {
	for _, feature := range sel.overriddenFeatures() {
		if !slices.Contains(features, feature) {
			return fmt.Errorf("%w: transformations given for %s which is not to be transformed", ErrUnknownFeature, feature)
		}
	}

	return nil
}

func dedupe(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}

	return out
}
