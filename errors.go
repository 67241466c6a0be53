package automl

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidTransform matches InvalidTransformError.
	ErrInvalidTransform = errors.New("invalid transformation")

	// ErrDuplicateModel matches DuplicateModelError.
	ErrDuplicateModel = errors.New("duplicate model")

	// ErrUnknownModel matches UnknownModelError.
	ErrUnknownModel = errors.New("unknown model")

	// ErrMetricNotMonitored matches MetricNotMonitoredError.
	ErrMetricNotMonitored = errors.New("metric not monitored")

	// ErrModelNotUsed matches ModelNotUsedError.
	ErrModelNotUsed = errors.New("model not used")

	// ErrUnknownFeature is returned when a feature is not an input or output
	// feature, or is missing from the data.
	ErrUnknownFeature = errors.New("unknown feature")

	// ErrInvalidOptions is returned for unusable pipeline options.
	ErrInvalidOptions = errors.New("invalid options")

	// ErrInvalidBudget is returned for negative child iteration budgets.
	ErrInvalidBudget = errors.New("invalid child iteration budget")

	// ErrNotFitted is returned by queries before the first Fit.
	ErrNotFitted = errors.New("pipeline not fitted")

	// ErrAlreadyRunning is returned by Fit while another Fit is in progress.
	ErrAlreadyRunning = errors.New("pipeline already running")

	// ErrNoValidValue is returned when a metric history holds only NaN.
	ErrNoValidValue = errors.New("no valid metric value")
)

// InvalidTransformError reports a transformation that is not allowed for a
// feature's role.
type InvalidTransformError struct {
	Feature   string
	Transform string
	Allowed   []string
}

func (e *InvalidTransformError) Error() string {
	return fmt.Sprintf("transformation %q for feature %q must be one of %s",
		e.Transform, e.Feature, strings.Join(e.Allowed, ", "))
}

// Is matches ErrInvalidTransform.
func (e *InvalidTransformError) Is(target error) bool {
	return target == ErrInvalidTransform
}

// DuplicateModelError reports a model registered twice.
type DuplicateModelError struct {
	Model string
}

func (e *DuplicateModelError) Error() string {
	return fmt.Sprintf("model %s is already present, use UpdateSpace to change its space", e.Model)
}

// Is matches ErrDuplicateModel.
func (e *DuplicateModelError) Is(target error) bool {
	return target == ErrDuplicateModel
}

// UnknownModelError reports a model that is not being considered.
type UnknownModelError struct {
	Model string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("model %s is not being considered", e.Model)
}

// Is matches ErrUnknownModel.
func (e *UnknownModelError) Is(target error) bool {
	return target == ErrUnknownModel
}

// MetricNotMonitoredError reports a query on a metric without history.
type MetricNotMonitoredError struct {
	Metric    string
	Available []string
}

func (e *MetricNotMonitoredError) Error() string {
	return fmt.Sprintf("metric %s was not monitored, choose from [%s]", e.Metric, strings.Join(e.Available, ", "))
}

// Is matches ErrMetricNotMonitored.
func (e *MetricNotMonitoredError) Is(target error) bool {
	return target == ErrMetricNotMonitored
}

// ModelNotUsedError reports a model never selected during optimization.
type ModelNotUsedError struct {
	Model string
}

func (e *ModelNotUsedError) Error() string {
	return fmt.Sprintf("model %s is not used during optimization", e.Model)
}

// Is matches ErrModelNotUsed.
func (e *ModelNotUsedError) Is(target error) bool {
	return target == ErrModelNotUsed
}
