package hpo

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"
)

//////
// Const, vars, types.
//////

// DimensionType identifies how a dimension is sampled and encoded.
type DimensionType string

const (
	// RealType is a continuous dimension in [Low, High].
	RealType DimensionType = "real"

	// IntegerType is an integer dimension in [Low, High], both inclusive.
	IntegerType DimensionType = "integer"

	// CategoricalType is a choice among Categories.
	CategoricalType DimensionType = "categorical"
)

var (
	// ErrInvalidDimension is returned when a dimension is malformed.
	ErrInvalidDimension = errors.New("invalid dimension")

	// ErrInvalidValue is returned when a parameter value does not fit its dimension.
	ErrInvalidValue = errors.New("invalid parameter value")
)

// Dimension is one named axis of a search space.
//
// Values produced for each type:
//   - RealType: float64
//   - IntegerType: int
//   - CategoricalType: string
type Dimension struct {
	// Name is the parameter name handed to the objective.
	Name string `yaml:"name"`

	// Type selects sampling and encoding.
	Type DimensionType `yaml:"type"`

	// Low is the inclusive lower bound of real and integer dimensions.
	Low float64 `yaml:"low,omitempty"`

	// High is the inclusive upper bound of real and integer dimensions.
	High float64 `yaml:"high,omitempty"`

	// Categories holds the choices of a categorical dimension.
	Categories []string `yaml:"categories,omitempty"`
}

// Space is an ordered list of dimensions.
type Space []Dimension

// Point is one assignment of values to the dimensions of a Space.
type Point map[string]any

//////
// Factory.
//////

// Real returns a continuous dimension.
func Real(name string, low, high float64) Dimension {
	return Dimension{Name: name, Type: RealType, Low: low, High: high}
}

// Integer returns an integer dimension.
func Integer(name string, low, high int) Dimension {
	return Dimension{Name: name, Type: IntegerType, Low: float64(low), High: float64(high)}
}

// Categorical returns a categorical dimension.
func Categorical(name string, categories ...string) Dimension {
	return Dimension{Name: name, Type: CategoricalType, Categories: slices.Clone(categories)}
}

// NewRange builds a numeric dimension whose type follows T: integer kinds give
// an IntegerType dimension, float kinds a RealType one.
//
// Usage example:
//
//	space := Space{
//	    NewRange[int]("n_neighbors", 1, 30),
//	    NewRange[float64]("alpha", 1e-4, 10),
//	}
func NewRange[T constraints.Integer | constraints.Float](name string, min, max T) Dimension {
	switch any(min).(type) {
	case float32, float64:
		return Real(name, float64(min), float64(max))
	default:
		return Integer(name, int(min), int(max))
	}
}

//////
// Methods.
//////

// Validate reports whether the dimension is well formed.
func (d Dimension) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidDimension)
	}

	switch d.Type {
	case RealType, IntegerType:
		if math.IsNaN(d.Low) || math.IsNaN(d.High) || d.Low > d.High {
			return fmt.Errorf("%w: %s has range [%v, %v]", ErrInvalidDimension, d.Name, d.Low, d.High)
		}
	case CategoricalType:
		if len(d.Categories) == 0 {
			return fmt.Errorf("%w: %s has no categories", ErrInvalidDimension, d.Name)
		}
	default:
		return fmt.Errorf("%w: %s has unknown type %q", ErrInvalidDimension, d.Name, d.Type)
	}

	return nil
}

// width is the number of encoded features this dimension contributes.
func (d Dimension) width() int {
	if d.Type == CategoricalType {
		return len(d.Categories)
	}

	return 1
}

// sample draws a uniform value from the dimension.
func (d Dimension) sample(rng *rand.Rand) any {
	switch d.Type {
	case IntegerType:
		low, high := int64(d.Low), int64(d.High)

		return int(low + rng.Int63n(high-low+1))
	case CategoricalType:
		return d.Categories[rng.Intn(len(d.Categories))]
	default:
		return d.Low + rng.Float64()*(d.High-d.Low)
	}
}

// encode appends the normalized representation of v to dst. Numeric values map
// to [0, 1]; categorical values are one-hot.
func (d Dimension) encode(v any, dst []float64) ([]float64, error) {
	if d.Type == CategoricalType {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a string, got %T", ErrInvalidValue, d.Name, v)
		}

		idx := slices.Index(d.Categories, s)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s has no category %q", ErrInvalidValue, d.Name, s)
		}

		for i := range d.Categories {
			if i == idx {
				dst = append(dst, 1)
			} else {
				dst = append(dst, 0)
			}
		}

		return dst, nil
	}

	f, ok := toFloat(v)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects a number, got %T", ErrInvalidValue, d.Name, v)
	}

	if d.High == d.Low {
		return append(dst, 0), nil
	}

	return append(dst, (f-d.Low)/(d.High-d.Low)), nil
}

// Validate checks every dimension and rejects duplicate names.
func (s Space) Validate() error {
	seen := make(map[string]struct{}, len(s))

	for _, d := range s {
		if err := d.Validate(); err != nil {
			return err
		}

		if _, ok := seen[d.Name]; ok {
			return fmt.Errorf("%w: duplicate name %s", ErrInvalidDimension, d.Name)
		}

		seen[d.Name] = struct{}{}
	}

	return nil
}

// Names returns the dimension names in order.
func (s Space) Names() []string {
	names := make([]string, len(s))
	for i, d := range s {
		names[i] = d.Name
	}

	return names
}

// Clone returns a deep copy of the space.
func (s Space) Clone() Space {
	if s == nil {
		return nil
	}

	out := make(Space, len(s))
	for i, d := range s {
		d.Categories = slices.Clone(d.Categories)
		out[i] = d
	}

	return out
}

// Sample draws one random point.
func (s Space) Sample(rng *rand.Rand) Point {
	p := make(Point, len(s))
	for _, d := range s {
		p[d.Name] = d.sample(rng)
	}

	return p
}

// Encode maps a point to the normalized vector used by the surrogate model.
func (s Space) Encode(p Point) ([]float64, error) {
	width := 0
	for _, d := range s {
		width += d.width()
	}

	out := make([]float64, 0, width)

	for _, d := range s {
		v, ok := p[d.Name]
		if !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrInvalidValue, d.Name)
		}

		var err error

		out, err = d.encode(v, out)
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

// Clone returns a shallow copy of the point.
func (p Point) Clone() Point {
	out := make(Point, len(p))
	for k, v := range p {
		out[k] = v
	}

	return out
}

// Category returns the categorical value stored under name.
func (p Point) Category(name string) (string, bool) {
	s, ok := p[name].(string)

	return s, ok
}

// Float returns the numeric value stored under name as float64.
func (p Point) Float(name string) (float64, bool) {
	return toFloat(p[name])
}

// Int returns the numeric value stored under name as int.
func (p Point) Int(name string) (int, bool) {
	f, ok := toFloat(p[name])
	if !ok {
		return 0, false
	}

	return int(math.Round(f)), true
}
