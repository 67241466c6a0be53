// Package metrics maps performance metric names to typed functions and their
// optimization direction.
//
// A Registry is a closed lookup table: metric names are resolved once, at
// setup, and unknown names fail with ErrUnknownMetric.
package metrics

import (
	"errors"
	"fmt"
	"sort"
)

// Direction tells whether lower or higher values of a metric are better.
type Direction string

const (
	// Minimize marks error-type metrics.
	Minimize Direction = "min"

	// Maximize marks skill-type metrics.
	Maximize Direction = "max"
)

var (
	// ErrUnknownMetric is returned when a name is not registered.
	ErrUnknownMetric = errors.New("unknown metric")

	// ErrLengthMismatch is returned when true and predicted values differ in length.
	ErrLengthMismatch = errors.New("true and predicted lengths differ")

	// ErrDuplicateMetric is returned when a name is registered twice.
	ErrDuplicateMetric = errors.New("metric already registered")
)

// Func computes a metric from true and predicted values.
type Func func(truth, pred []float64) float64

// Metric is a named metric function with its direction.
type Metric struct {
	Name      string
	Direction Direction
	Fn        Func
}

// Registry holds the metrics of one problem mode.
type Registry struct {
	mode    string
	metrics map[string]Metric
}

// NewRegistry returns a registry for mode holding ms.
func NewRegistry(mode string, ms ...Metric) (*Registry, error) {
	r := &Registry{mode: mode, metrics: make(map[string]Metric, len(ms))}

	for _, m := range ms {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register adds m.
func (r *Registry) Register(m Metric) error {
	if _, ok := r.metrics[m.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateMetric, m.Name)
	}

	if m.Direction != Minimize && m.Direction != Maximize {
		return fmt.Errorf("metric %s: invalid direction %q", m.Name, m.Direction)
	}

	r.metrics[m.Name] = m

	return nil
}

// Mode returns the problem mode the registry serves.
func (r *Registry) Mode() string {
	return r.mode
}

// Lookup returns the metric registered under name.
func (r *Registry) Lookup(name string) (Metric, error) {
	m, ok := r.metrics[name]
	if !ok {
		return Metric{}, fmt.Errorf("%w: %q for %s", ErrUnknownMetric, name, r.mode)
	}

	return m, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.metrics[name]

	return ok
}

// Direction returns the optimization direction of name.
func (r *Registry) Direction(name string) (Direction, error) {
	m, err := r.Lookup(name)
	if err != nil {
		return "", err
	}

	return m.Direction, nil
}

// Compute evaluates name on (truth, pred).
func (r *Registry) Compute(name string, truth, pred []float64) (float64, error) {
	m, err := r.Lookup(name)
	if err != nil {
		return 0, err
	}

	if len(truth) != len(pred) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(truth), len(pred))
	}

	return m.Fn(truth, pred), nil
}

// Names returns the registered names sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// ForMode returns the built-in registry for "regression" or "classification".
func ForMode(mode string) (*Registry, error) {
	switch mode {
	case "regression":
		return Regression(), nil
	case "classification":
		return Classification(), nil
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
}
