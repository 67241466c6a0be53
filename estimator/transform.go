package estimator

import (
	"fmt"
	"math"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/thalesfsp/automl"
)

// minPositive replaces non-positive values fed to log-type transformations.
const minPositive = 1e-8

// scaler is one fitted transformation of a single column.
type scaler interface {
	transform(v float64) float64
	inverse(v float64) float64
}

// step is a scaler with the side constraints of its spec.
type step struct {
	spec   automl.TransformSpec
	shift  float64
	scaler scaler
}

// chain applies the transformations of one column in order.
type chain []step

func (c chain) transform(values []float64) []float64 {
	out := slices.Clone(values)
	for _, s := range c {
		for i, v := range out {
			out[i] = s.scaler.transform(v + s.shift)
		}
	}

	return out
}

// inverse undoes the chain, last transformation first.
func (c chain) inverse(values []float64) []float64 {
	out := slices.Clone(values)
	for k := len(c) - 1; k >= 0; k-- {
		s := c[k]
		for i, v := range out {
			out[i] = s.scaler.inverse(v) - s.shift
		}
	}

	return out
}

// fitChain fits every spec naming feature on values, in order.
func fitChain(feature string, specs []automl.TransformSpec, values []float64) (chain, error) {
	var c chain

	current := slices.Clone(values)

	for _, spec := range specs {
		if !slices.Contains(spec.Features, feature) {
			continue
		}

		s, err := fitStep(spec, current)
		if err != nil {
			return nil, fmt.Errorf("%s of %s: %w", spec.Method, feature, err)
		}

		c = append(c, s)
		current = chain{s}.transform(current)
	}

	return c, nil
}

func fitStep(spec automl.TransformSpec, values []float64) (step, error) {
	s := step{spec: spec}

	finite := finiteValues(values)
	if len(finite) == 0 {
		return s, ErrNoData
	}

	low := floats.Min(finite)

	if spec.TreatNegatives && low < 0 {
		s.shift = -low
	}

	if spec.ReplaceZeros && low+s.shift <= 0 {
		s.shift++
	}

	shifted := make([]float64, len(finite))
	for i, v := range finite {
		shifted[i] = v + s.shift
	}

	sc, err := fitScaler(spec.Method, shifted)
	if err != nil {
		return s, err
	}

	s.scaler = sc

	return s, nil
}

func fitScaler(method string, values []float64) (scaler, error) {
	switch method {
	case automl.MinMax:
		low, high := floats.Min(values), floats.Max(values)

		return affine{offset: low, scale: nonZero(high - low)}, nil
	case automl.Center:
		return affine{offset: stat.Mean(values, nil), scale: 1}, nil
	case automl.Scale:
		return affine{scale: nonZero(stat.StdDev(values, nil))}, nil
	case automl.ZScore:
		mean, std := stat.MeanStdDev(values, nil)

		return affine{offset: mean, scale: nonZero(std)}, nil
	case automl.Robust:
		sorted := sortedCopy(values)
		q1 := stat.Quantile(0.25, stat.Empirical, sorted, nil)
		q3 := stat.Quantile(0.75, stat.Empirical, sorted, nil)

		return affine{offset: stat.Quantile(0.5, stat.Empirical, sorted, nil), scale: nonZero(q3 - q1)}, nil
	case automl.Quantile:
		return quantile{sorted: sortedCopy(values)}, nil
	case automl.BoxCox:
		return boxCox{lambda: fitLambda(values, boxCoxLogLikelihood)}, nil
	case automl.YeoJohnson:
		return yeoJohnson{lambda: fitLambda(values, yeoJohnsonLogLikelihood)}, nil
	case automl.Log:
		return logBase{base: math.E}, nil
	case automl.Log2:
		return logBase{base: 2}, nil
	case automl.Log10:
		return logBase{base: 10}, nil
	case automl.Sqrt:
		return sqrt{}, nil
	case automl.None:
		return affine{scale: 1}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransform, method)
	}
}

//////
// Scalers.
//////

// affine maps v to (v - offset) / scale.
type affine struct {
	offset, scale float64
}

func (a affine) transform(v float64) float64 { return (v - a.offset) / a.scale }
func (a affine) inverse(v float64) float64   { return v*a.scale + a.offset }

// quantile maps values to their empirical CDF in [0, 1].
type quantile struct {
	sorted []float64
}

func (q quantile) transform(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}

	return stat.CDF(v, stat.Empirical, q.sorted, nil)
}

func (q quantile) inverse(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}

	return stat.Quantile(math.Min(math.Max(v, 0), 1), stat.Empirical, q.sorted, nil)
}

type logBase struct {
	base float64
}

func (l logBase) transform(v float64) float64 {
	return math.Log(math.Max(v, minPositive)) / math.Log(l.base)
}

func (l logBase) inverse(v float64) float64 {
	return math.Pow(l.base, v)
}

type sqrt struct{}

func (sqrt) transform(v float64) float64 { return math.Sqrt(math.Max(v, 0)) }
func (sqrt) inverse(v float64) float64   { return v * v }

type boxCox struct {
	lambda float64
}

func (b boxCox) transform(v float64) float64 {
	v = math.Max(v, minPositive)
	if math.Abs(b.lambda) < 1e-8 {
		return math.Log(v)
	}

	return (math.Pow(v, b.lambda) - 1) / b.lambda
}

func (b boxCox) inverse(v float64) float64 {
	if math.Abs(b.lambda) < 1e-8 {
		return math.Exp(v)
	}

	return math.Pow(v*b.lambda+1, 1/b.lambda)
}

type yeoJohnson struct {
	lambda float64
}

func (y yeoJohnson) transform(v float64) float64 {
	l := y.lambda

	switch {
	case v >= 0 && math.Abs(l) < 1e-8:
		return math.Log1p(v)
	case v >= 0:
		return (math.Pow(v+1, l) - 1) / l
	case math.Abs(l-2) < 1e-8:
		return -math.Log1p(-v)
	default:
		return -(math.Pow(1-v, 2-l) - 1) / (2 - l)
	}
}

func (y yeoJohnson) inverse(v float64) float64 {
	l := y.lambda

	switch {
	case v >= 0 && math.Abs(l) < 1e-8:
		return math.Expm1(v)
	case v >= 0:
		return math.Pow(v*l+1, 1/l) - 1
	case math.Abs(l-2) < 1e-8:
		return -math.Expm1(-v)
	default:
		return 1 - math.Pow(1-(2-l)*v, 1/(2-l))
	}
}

//////
// Helpers.
//////

// fitLambda picks the power parameter maximizing llf over a grid.
func fitLambda(values []float64, llf func([]float64, float64) float64) float64 {
	best, bestLL := 1.0, math.Inf(-1)

	for l := -2.0; l <= 2.0+1e-9; l += 0.1 {
		ll := llf(values, l)
		if !math.IsNaN(ll) && ll > bestLL {
			best, bestLL = l, ll
		}
	}

	return math.Round(best*10) / 10
}

func boxCoxLogLikelihood(values []float64, lambda float64) float64 {
	t := boxCox{lambda: lambda}

	y := make([]float64, len(values))

	var logSum float64

	for i, v := range values {
		y[i] = t.transform(v)
		logSum += math.Log(math.Max(v, minPositive))
	}

	variance := stat.PopVariance(y, nil)
	if variance <= 0 {
		return math.NaN()
	}

	return (lambda-1)*logSum - float64(len(values))/2*math.Log(variance)
}

func yeoJohnsonLogLikelihood(values []float64, lambda float64) float64 {
	t := yeoJohnson{lambda: lambda}

	y := make([]float64, len(values))

	var logSum float64

	for i, v := range values {
		y[i] = t.transform(v)
		logSum += math.Copysign(1, v) * math.Log1p(math.Abs(v))
	}

	variance := stat.PopVariance(y, nil)
	if variance <= 0 {
		return math.NaN()
	}

	return (lambda-1)*logSum - float64(len(values))/2*math.Log(variance)
}

func finiteValues(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}

	return out
}

func sortedCopy(values []float64) []float64 {
	out := slices.Clone(values)
	slices.Sort(out)

	return out
}

func nonZero(v float64) float64 {
	if v == 0 || math.IsNaN(v) {
		return 1
	}

	return v
}
