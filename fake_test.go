package automl

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/thalesfsp/automl/dataset"
	"github.com/thalesfsp/automl/hpo"
)

// fakeTrainer builds runners predicting truth + offset(req) on every split.
type fakeTrainer struct {
	mu       sync.Mutex
	requests []TrainRequest
	seq      int

	truth   []float64
	offset  func(req TrainRequest) float64
	cvScore float64
	fitErr  error
	onTrain func(req TrainRequest)
}

func newFakeTrainer() *fakeTrainer {
	return &fakeTrainer{
		truth: []float64{1, 2, 3, 4, 5},
		// The child loop drives alpha towards 0.
		offset: func(req TrainRequest) float64 {
			alpha, _ := req.Model.Params.Float("alpha")

			return alpha
		},
		cvScore: 0.25,
	}
}

func (f *fakeTrainer) Train(_ context.Context, req TrainRequest) (Runner, error) {
	f.mu.Lock()
	f.seq++
	seq := f.seq
	f.requests = append(f.requests, req)
	hook := f.onTrain
	f.mu.Unlock()

	if hook != nil {
		hook(req)
	}

	return &fakeRunner{
		trainer: f,
		req:     req,
		path:    filepath.Join(req.Prefix, fmt.Sprintf("%s_%d", req.Model.Name, seq)),
	}, nil
}

// Requests returns the requests received so far.
func (f *fakeTrainer) Requests() []TrainRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]TrainRequest(nil), f.requests...)
}

type fakeRunner struct {
	trainer *fakeTrainer
	req     TrainRequest
	path    string
	fitted  bool
}

func (r *fakeRunner) Fit(context.Context, *dataset.Frame) error {
	if r.trainer.fitErr != nil {
		return r.trainer.fitErr
	}

	r.fitted = true

	return nil
}

func (r *fakeRunner) Predict(_ context.Context, _ *dataset.Frame, _ Split) ([]float64, []float64, error) {
	if !r.fitted {
		return nil, nil, fmt.Errorf("not fitted")
	}

	offset := r.trainer.offset(r.req)

	truth := append([]float64(nil), r.trainer.truth...)
	pred := make([]float64, len(truth))

	for i, v := range truth {
		pred[i] = v + offset
	}

	return truth, pred, nil
}

func (r *fakeRunner) CrossValScore(ctx context.Context, data *dataset.Frame) (float64, error) {
	if err := r.Fit(ctx, data); err != nil {
		return 0, err
	}

	return r.trainer.cvScore, nil
}

func (r *fakeRunner) Path() string {
	return r.path
}

// fakeProvider adds default spaces to a fakeTrainer.
type fakeProvider struct {
	*fakeTrainer
}

func (fakeProvider) Spaces(Mode) map[string]hpo.Space {
	return map[string]hpo.Space{
		"Ridge": {hpo.Real("alpha", 0, 1)},
		"Lasso": {hpo.Real("alpha", 0, 2)},
	}
}
