package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Regression returns the registry of regression metrics:
// mse, rmse, mae, mape (min) and r2, r2_score, nse, corr_coeff, kge (max).
//
// r2 is the squared Pearson correlation; r2_score and nse are the coefficient
// of determination 1 - SSE/SST.
func Regression() *Registry {
	r, _ := NewRegistry("regression",
		Metric{Name: "mse", Direction: Minimize, Fn: MSE},
		Metric{Name: "rmse", Direction: Minimize, Fn: RMSE},
		Metric{Name: "mae", Direction: Minimize, Fn: MAE},
		Metric{Name: "mape", Direction: Minimize, Fn: MAPE},
		Metric{Name: "r2", Direction: Maximize, Fn: R2},
		Metric{Name: "r2_score", Direction: Maximize, Fn: R2Score},
		Metric{Name: "nse", Direction: Maximize, Fn: R2Score},
		Metric{Name: "corr_coeff", Direction: Maximize, Fn: CorrCoeff},
		Metric{Name: "kge", Direction: Maximize, Fn: KGE},
	)

	return r
}

// MSE is the mean squared error.
func MSE(truth, pred []float64) float64 {
	if len(truth) == 0 {
		return math.NaN()
	}

	var sum float64
	for i := range truth {
		d := truth[i] - pred[i]
		sum += d * d
	}

	return sum / float64(len(truth))
}

// RMSE is the root mean squared error.
func RMSE(truth, pred []float64) float64 {
	return math.Sqrt(MSE(truth, pred))
}

// MAE is the mean absolute error.
func MAE(truth, pred []float64) float64 {
	if len(truth) == 0 {
		return math.NaN()
	}

	var sum float64
	for i := range truth {
		sum += math.Abs(truth[i] - pred[i])
	}

	return sum / float64(len(truth))
}

// MAPE is the mean absolute percentage error. Zero true values make it
// non-finite.
func MAPE(truth, pred []float64) float64 {
	if len(truth) == 0 {
		return math.NaN()
	}

	var sum float64
	for i := range truth {
		sum += math.Abs((truth[i] - pred[i]) / truth[i])
	}

	return sum / float64(len(truth)) * 100
}

// CorrCoeff is the Pearson correlation coefficient.
func CorrCoeff(truth, pred []float64) float64 {
	if len(truth) < 2 {
		return math.NaN()
	}

	return stat.Correlation(truth, pred, nil)
}

// R2 is the squared Pearson correlation.
func R2(truth, pred []float64) float64 {
	r := CorrCoeff(truth, pred)

	return r * r
}

// R2Score is 1 - SSE/SST.
func R2Score(truth, pred []float64) float64 {
	if len(truth) == 0 {
		return math.NaN()
	}

	mean := stat.Mean(truth, nil)

	var sse, sst float64
	for i := range truth {
		sse += (truth[i] - pred[i]) * (truth[i] - pred[i])
		sst += (truth[i] - mean) * (truth[i] - mean)
	}

	return 1 - sse/sst
}

// KGE is the Kling-Gupta efficiency.
func KGE(truth, pred []float64) float64 {
	if len(truth) < 2 {
		return math.NaN()
	}

	r := stat.Correlation(truth, pred, nil)
	alpha := stat.StdDev(pred, nil) / stat.StdDev(truth, nil)
	beta := stat.Mean(pred, nil) / stat.Mean(truth, nil)

	return 1 - math.Sqrt((r-1)*(r-1)+(alpha-1)*(alpha-1)+(beta-1)*(beta-1))
}
