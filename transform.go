package automl

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/thalesfsp/automl/hpo"
)

// Transformation names.
const (
	MinMax     = "minmax"
	Center     = "center"
	Scale      = "scale"
	ZScore     = "zscore"
	BoxCox     = "box-cox"
	YeoJohnson = "yeo-johnson"
	Quantile   = "quantile"
	Robust     = "robust"
	Log        = "log"
	Log2       = "log2"
	Log10      = "log10"
	Sqrt       = "sqrt"
	None       = "none"
)

var (
	// DefaultTransformations are the candidates for input features.
	DefaultTransformations = []string{
		MinMax, Center, Scale, ZScore, BoxCox, YeoJohnson,
		Quantile, Robust, Log, Log2, Log10, Sqrt, None,
	}

	// DefaultOutputTransformations are the candidates for output features.
	// They are invertible, so predictions can be mapped back.
	DefaultOutputTransformations = []string{Log, Log2, Log10, Sqrt, None}
)

// TransformSpec is one transformation applied to a set of features.
type TransformSpec struct {
	Method         string   `yaml:"method"`
	Features       []string `yaml:"features"`
	TreatNegatives bool     `yaml:"treat_negatives,omitempty"`
	ReplaceZeros   bool     `yaml:"replace_zeros,omitempty"`
}

// NewTransformSpec returns the spec for method on feature with the family's
// side constraints set: log-family and box-cox treat negatives and replace
// zeros, sqrt treats negatives.
func NewTransformSpec(method, feature string) TransformSpec {
	t := TransformSpec{Method: method, Features: []string{feature}}

	switch {
	case strings.HasPrefix(method, Log), method == BoxCox:
		t.TreatNegatives = true
		t.ReplaceZeros = true
	case method == Sqrt:
		t.TreatNegatives = true
	}

	return t
}

type selectionKind int

const (
	selectionDefault selectionKind = iota
	selectionUniform
	selectionPerFeature
)

// TransformSelection chooses the candidate transformations per feature. It is
// either Uniform (one list for every feature) or PerFeature (a list per
// feature, other features falling back to the role's defaults). The zero value
// selects the defaults for every feature.
type TransformSelection struct {
	kind       selectionKind
	uniform    []string
	perFeature map[string][]string
}

// Uniform selects the same candidates for every feature.
func Uniform(names ...string) TransformSelection {
	return TransformSelection{kind: selectionUniform, uniform: slices.Clone(names)}
}

// PerFeature selects candidates feature by feature.
func PerFeature(m map[string][]string) TransformSelection {
	cp := make(map[string][]string, len(m))
	for k, v := range m {
		cp[k] = slices.Clone(v)
	}

	return TransformSelection{kind: selectionPerFeature, perFeature: cp}
}

// IsZero reports whether the selection falls back to defaults everywhere.
func (s TransformSelection) IsZero() bool {
	return s.kind == selectionDefault
}

// Candidates resolves the candidate list of feature.
func (s TransformSelection) Candidates(feature string, defaults []string) []string {
	switch s.kind {
	case selectionUniform:
		return slices.Clone(s.uniform)
	case selectionPerFeature:
		if names, ok := s.perFeature[feature]; ok {
			return slices.Clone(names)
		}
	}

	return slices.Clone(defaults)
}

// overriddenFeatures returns the sorted keys of a PerFeature selection.
func (s TransformSelection) overriddenFeatures() []string {
	if s.kind != selectionPerFeature {
		return nil
	}

	keys := make([]string, 0, len(s.perFeature))
	for k := range s.perFeature {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// UnmarshalYAML decodes a sequence into Uniform and a mapping into PerFeature.
func (s *TransformSelection) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return err
		}

		*s = Uniform(names...)
	case yaml.MappingNode:
		var m map[string][]string
		if err := node.Decode(&m); err != nil {
			return err
		}

		*s = PerFeature(m)
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*s = TransformSelection{}

			return nil
		}

		*s = Uniform(node.Value)
	default:
		return fmt.Errorf("line %d: transformations must be a list or a mapping", node.Line)
	}

	return nil
}

// MarshalYAML encodes the variant back to a sequence or a mapping.
func (s TransformSelection) MarshalYAML() (any, error) {
	switch s.kind {
	case selectionUniform:
		return s.uniform, nil
	case selectionPerFeature:
		return s.perFeature, nil
	default:
		return nil, nil
	}
}

// Cook turns a parent suggestion into input and output transformations.
// Features are visited in the given order; "none" and keys that are not
// features (such as the estimator choice) are skipped. A feature listed in
// inputs goes to x, any other to y.
func Cook(suggestion hpo.Point, features, inputs []string) (x, y []TransformSpec) {
	for _, feature := range features {
		method, ok := suggestion.Category(feature)
		if !ok || method == None {
			continue
		}

		t := NewTransformSpec(method, feature)

		if slices.Contains(inputs, feature) {
			x = append(x, t)
		} else {
			y = append(y, t)
		}
	}

	return x, y
}
