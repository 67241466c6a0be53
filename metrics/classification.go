package metrics

import (
	"math"
	"sort"
)

// Classification returns the registry of classification metrics. Labels are
// the rounded predicted and true values; precision, recall and f1_score are
// macro averages over the labels seen in either slice.
func Classification() *Registry {
	r, _ := NewRegistry("classification",
		Metric{Name: "accuracy", Direction: Maximize, Fn: Accuracy},
		Metric{Name: "precision", Direction: Maximize, Fn: Precision},
		Metric{Name: "recall", Direction: Maximize, Fn: Recall},
		Metric{Name: "f1_score", Direction: Maximize, Fn: F1Score},
	)

	return r
}

// Accuracy is the fraction of matching labels.
func Accuracy(truth, pred []float64) float64 {
	if len(truth) == 0 {
		return math.NaN()
	}

	var hits int
	for i := range truth {
		if math.Round(truth[i]) == math.Round(pred[i]) {
			hits++
		}
	}

	return float64(hits) / float64(len(truth))
}

// Precision is the macro-averaged precision.
func Precision(truth, pred []float64) float64 {
	p, _, _ := macro(truth, pred)

	return p
}

// Recall is the macro-averaged recall.
func Recall(truth, pred []float64) float64 {
	_, r, _ := macro(truth, pred)

	return r
}

// F1Score is the macro-averaged F1 score.
func F1Score(truth, pred []float64) float64 {
	_, _, f := macro(truth, pred)

	return f
}

type counts struct {
	tp, fp, fn int
}

// macro computes macro-averaged precision, recall and F1. A class with no
// predicted (or true) members contributes 0 to precision (or recall).
func macro(truth, pred []float64) (precision, recall, f1 float64) {
	if len(truth) == 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}

	perClass := make(map[float64]*counts)

	get := func(label float64) *counts {
		c, ok := perClass[label]
		if !ok {
			c = &counts{}
			perClass[label] = c
		}

		return c
	}

	for i := range truth {
		t, p := math.Round(truth[i]), math.Round(pred[i])
		if t == p {
			get(t).tp++

			continue
		}

		get(p).fp++
		get(t).fn++
	}

	labels := make([]float64, 0, len(perClass))
	for label := range perClass {
		labels = append(labels, label)
	}

	sort.Float64s(labels)

	for _, label := range labels {
		c := perClass[label]

		var p, r, f float64

		if c.tp+c.fp > 0 {
			p = float64(c.tp) / float64(c.tp+c.fp)
		}

		if c.tp+c.fn > 0 {
			r = float64(c.tp) / float64(c.tp+c.fn)
		}

		if p+r > 0 {
			f = 2 * p * r / (p + r)
		}

		precision += p
		recall += r
		f1 += f
	}

	n := float64(len(labels))

	return precision / n, recall / n, f1 / n
}
