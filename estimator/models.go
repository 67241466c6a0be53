package estimator

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/thalesfsp/automl"
	"github.com/thalesfsp/automl/hpo"
)

// Model ids.
const (
	LinearRegression     = "LinearRegression"
	Ridge                = "Ridge"
	KNeighborsRegressor  = "KNeighborsRegressor"
	KNeighborsClassifier = "KNeighborsClassifier"
	RidgeClassifier      = "RidgeClassifier"
)

// model is an estimator trained on a design matrix.
type model interface {
	fit(x *mat.Dense, y []float64) error
	predict(x *mat.Dense) []float64

	// state is what gets persisted with the artifact.
	state() map[string]any
}

// Spaces returns the default hyperparameter spaces of mode.
func Spaces(mode automl.Mode) map[string]hpo.Space {
	if mode == automl.Classification {
		return map[string]hpo.Space{
			KNeighborsClassifier: {
				hpo.NewRange("n_neighbors", 1, 20),
				hpo.Categorical("weights", "uniform", "distance"),
			},
			RidgeClassifier: {
				hpo.NewRange("alpha", 1e-3, 10.0),
				hpo.Categorical("fit_intercept", "true", "false"),
			},
		}
	}

	return map[string]hpo.Space{
		LinearRegression: {
			hpo.Categorical("fit_intercept", "true", "false"),
		},
		Ridge: {
			hpo.NewRange("alpha", 1e-3, 10.0),
			hpo.Categorical("fit_intercept", "true", "false"),
		},
		KNeighborsRegressor: {
			hpo.NewRange("n_neighbors", 1, 20),
			hpo.Categorical("weights", "uniform", "distance"),
		},
	}
}

// newModel builds the estimator named by spec. Missing hyperparameters take
// their defaults.
func newModel(spec automl.ModelSpec, mode automl.Mode) (model, error) {
	intercept := true
	if v, ok := spec.Params.Category("fit_intercept"); ok {
		intercept = v != "false"
	}

	alpha := 1.0
	if v, ok := spec.Params.Float("alpha"); ok {
		alpha = v
	}

	k := 5
	if v, ok := spec.Params.Int("n_neighbors"); ok {
		k = v
	}

	distance := false
	if v, ok := spec.Params.Category("weights"); ok {
		distance = v == "distance"
	}

	switch {
	case spec.Name == LinearRegression && mode == automl.Regression:
		return &linear{intercept: intercept}, nil
	case spec.Name == Ridge && mode == automl.Regression:
		return &linear{alpha: alpha, intercept: intercept}, nil
	case spec.Name == KNeighborsRegressor && mode == automl.Regression:
		return &neighbors{k: k, distance: distance}, nil
	case spec.Name == KNeighborsClassifier && mode == automl.Classification:
		return &neighbors{k: k, distance: distance, classify: true}, nil
	case spec.Name == RidgeClassifier && mode == automl.Classification:
		return &ridgeClassifier{alpha: alpha, intercept: intercept}, nil
	default:
		return nil, &automl.UnknownModelError{Model: spec.Name}
	}
}

//////
// Linear models.
//////

// linear is least squares with an L2 penalty of alpha on the coefficients.
// The intercept is not penalized.
type linear struct {
	alpha     float64
	intercept bool

	coef []float64
	bias float64
}

func (l *linear) fit(x *mat.Dense, y []float64) error {
	coef, bias, err := solveRidge(x, y, l.alpha, l.intercept)
	if err != nil {
		return err
	}

	l.coef, l.bias = coef, bias

	return nil
}

func (l *linear) predict(x *mat.Dense) []float64 {
	return linearPredict(x, l.coef, l.bias)
}

func (l *linear) state() map[string]any {
	return map[string]any{"coef": l.coef, "intercept": l.bias}
}

// ridgeClassifier fits one ridge regression per class on +1/-1 targets and
// predicts the class with the highest response.
type ridgeClassifier struct {
	alpha     float64
	intercept bool

	classes []float64
	coefs   [][]float64
	biases  []float64
}

func (r *ridgeClassifier) fit(x *mat.Dense, y []float64) error {
	r.classes = classesOf(y)
	r.coefs = make([][]float64, len(r.classes))
	r.biases = make([]float64, len(r.classes))

	target := make([]float64, len(y))

	for c, class := range r.classes {
		for i, v := range y {
			target[i] = -1
			if math.Round(v) == class {
				target[i] = 1
			}
		}

		coef, bias, err := solveRidge(x, target, r.alpha, r.intercept)
		if err != nil {
			return err
		}

		r.coefs[c], r.biases[c] = coef, bias
	}

	return nil
}

func (r *ridgeClassifier) predict(x *mat.Dense) []float64 {
	rows, _ := x.Dims()
	out := make([]float64, rows)

	if len(r.classes) == 0 {
		return out
	}

	scores := make([][]float64, len(r.classes))
	for c := range r.classes {
		scores[c] = linearPredict(x, r.coefs[c], r.biases[c])
	}

	for i := range out {
		best := 0
		for c := range r.classes {
			if scores[c][i] > scores[best][i] {
				best = c
			}
		}

		out[i] = r.classes[best]
	}

	return out
}

func (r *ridgeClassifier) state() map[string]any {
	return map[string]any{"classes": r.classes, "coef": r.coefs, "intercept": r.biases}
}

// solveRidge solves (XᵀX + αI)w = Xᵀy on centered data when intercept is
// set.
func solveRidge(x *mat.Dense, y []float64, alpha float64, intercept bool) ([]float64, float64, error) {
	rows, cols := x.Dims()
	if rows == 0 {
		return nil, 0, ErrNoData
	}

	xc := mat.DenseCopyOf(x)
	yc := slices.Clone(y)

	means := make([]float64, cols)

	var yMean float64

	if intercept {
		for j := 0; j < cols; j++ {
			means[j] = floats.Sum(mat.Col(nil, j, x)) / float64(rows)
		}

		yMean = floats.Sum(y) / float64(rows)

		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				xc.Set(i, j, xc.At(i, j)-means[j])
			}

			yc[i] -= yMean
		}
	}

	var gram mat.SymDense
	gram.SymOuterK(1, xc.T())

	// A small ridge keeps plain least squares solvable for collinear inputs.
	reg := math.Max(alpha, 1e-10)
	for j := 0; j < cols; j++ {
		gram.SetSym(j, j, gram.At(j, j)+reg)
	}

	var rhs mat.VecDense
	rhs.MulVec(xc.T(), mat.NewVecDense(rows, yc))

	var chol mat.Cholesky
	if !chol.Factorize(&gram) {
		return nil, 0, fmt.Errorf("%w: gram matrix is not positive definite", ErrSingular)
	}

	var w mat.VecDense
	if err := chol.SolveVecTo(&w, &rhs); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrSingular, err)
	}

	coef := make([]float64, cols)
	for j := range coef {
		coef[j] = w.AtVec(j)
	}

	bias := 0.0
	if intercept {
		bias = yMean - floats.Dot(coef, means)
	}

	return coef, bias, nil
}

func linearPredict(x *mat.Dense, coef []float64, bias float64) []float64 {
	rows, _ := x.Dims()
	out := make([]float64, rows)

	if coef == nil {
		return out
	}

	var v mat.VecDense
	v.MulVec(x, mat.NewVecDense(len(coef), coef))

	for i := range out {
		out[i] = v.AtVec(i) + bias
	}

	return out
}

//////
// Nearest neighbours.
//////

// neighbors predicts from the k closest training rows in euclidean distance:
// their (weighted) mean, or their (weighted) majority class.
type neighbors struct {
	k        int
	distance bool
	classify bool

	x *mat.Dense
	y []float64
}

func (n *neighbors) fit(x *mat.Dense, y []float64) error {
	rows, _ := x.Dims()
	if rows == 0 {
		return ErrNoData
	}

	n.x = mat.DenseCopyOf(x)
	n.y = slices.Clone(y)

	return nil
}

func (n *neighbors) predict(x *mat.Dense) []float64 {
	rows, _ := x.Dims()
	out := make([]float64, rows)

	if n.x == nil {
		return out
	}

	trainRows, _ := n.x.Dims()

	k := n.k
	if k < 1 {
		k = 1
	}

	if k > trainRows {
		k = trainRows
	}

	type neighbor struct {
		dist float64
		y    float64
	}

	all := make([]neighbor, trainRows)

	for i := 0; i < rows; i++ {
		q := x.RawRowView(i)

		for j := 0; j < trainRows; j++ {
			all[j] = neighbor{dist: floats.Distance(q, n.x.RawRowView(j), 2), y: n.y[j]}
		}

		sort.SliceStable(all, func(a, b int) bool { return all[a].dist < all[b].dist })

		weights := make([]float64, k)
		for j := 0; j < k; j++ {
			weights[j] = 1
			if n.distance {
				weights[j] = 1 / math.Max(all[j].dist, 1e-12)
			}
		}

		if n.classify {
			votes := make(map[float64]float64)
			for j := 0; j < k; j++ {
				votes[math.Round(all[j].y)] += weights[j]
			}

			best, bestVotes := 0.0, math.Inf(-1)
			for _, class := range classesOf(n.y) {
				if votes[class] > bestVotes {
					best, bestVotes = class, votes[class]
				}
			}

			out[i] = best

			continue
		}

		var sum, wsum float64
		for j := 0; j < k; j++ {
			sum += weights[j] * all[j].y
			wsum += weights[j]
		}

		out[i] = sum / wsum
	}

	return out
}

func (n *neighbors) state() map[string]any {
	rows, _ := n.x.Dims()

	return map[string]any{"k": n.k, "distance_weighted": n.distance, "train_rows": rows}
}

// classesOf returns the sorted distinct rounded labels.
func classesOf(y []float64) []float64 {
	var classes []float64
	for _, v := range y {
		c := math.Round(v)
		if !slices.Contains(classes, c) {
			classes = append(classes, c)
		}
	}

	slices.Sort(classes)

	return classes
}
