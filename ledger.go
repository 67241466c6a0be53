package automl

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/mat"

	"github.com/thalesfsp/automl/metrics"
)

// ValScoreKey names the history of the normalized scores returned to the
// parent search. It can be queried like a monitored metric and is minimized.
const ValScoreKey = "val_scores"

// ParentTrialRecord is one completed parent iteration.
type ParentTrialRecord struct {
	Iteration   int             `yaml:"iteration"`
	XTransforms []TransformSpec `yaml:"x_transformation"`
	YTransforms []TransformSpec `yaml:"y_transformation"`
	Model       ModelSpec       `yaml:"model"`
	Path        string          `yaml:"path"`
}

// clone returns a deep copy of the record.
func (r ParentTrialRecord) clone() ParentTrialRecord {
	out := r
	out.XTransforms = cloneSpecs(r.XTransforms)
	out.YTransforms = cloneSpecs(r.YTransforms)
	out.Model = r.Model.Clone()

	return out
}

func cloneSpecs(in []TransformSpec) []TransformSpec {
	if in == nil {
		return nil
	}

	out := make([]TransformSpec, len(in))
	for i, t := range in {
		t.Features = slices.Clone(t.Features)
		out[i] = t
	}

	return out
}

// ChildScores is the grid of child trial scores: one row per parent
// iteration, one column per child trial. Cells never written hold NaN.
type ChildScores struct {
	rows, cols int
	data       *mat.Dense
}

func newChildScores(rows, cols int) *ChildScores {
	c := &ChildScores{rows: rows, cols: cols}

	// mat.Dense has no zero-sized form.
	if rows > 0 && cols > 0 {
		values := make([]float64, rows*cols)
		for i := range values {
			values[i] = math.NaN()
		}

		c.data = mat.NewDense(rows, cols, values)
	}

	return c
}

// Dims returns the grid shape.
func (c *ChildScores) Dims() (rows, cols int) {
	return c.rows, c.cols
}

// At returns the score of child trial child of parent iteration parent, both
// 0-based. Out of range cells are NaN.
func (c *ChildScores) At(parent, child int) float64 {
	if c.data == nil || parent < 0 || child < 0 || parent >= c.rows || child >= c.cols {
		return math.NaN()
	}

	return c.data.At(parent, child)
}

// Row returns a copy of the scores of one parent iteration.
func (c *ChildScores) Row(parent int) []float64 {
	row := make([]float64, c.cols)
	for j := range row {
		row[j] = c.At(parent, j)
	}

	return row
}

func (c *ChildScores) set(parent, child int, v float64) {
	if c.data == nil || parent < 0 || child < 0 || parent >= c.rows || child >= c.cols {
		return
	}

	c.data.Set(parent, child, v)
}

func (c *ChildScores) clone() *ChildScores {
	out := &ChildScores{rows: c.rows, cols: c.cols}
	if c.data != nil {
		out.data = mat.DenseCopyOf(c.data)
	}

	return out
}

// Ledger is the history of one optimization run: parent trial records, the
// value of every monitored metric at every iteration, the normalized scores
// and the child score grid.
//
// Every record has a value in every history; values may be NaN.
type Ledger struct {
	mu sync.RWMutex

	registry  *metrics.Registry
	monitor   []string
	records   []ParentTrialRecord
	histories map[string][]float64
	valScores []float64
	child     *ChildScores
	start     time.Time
	end       time.Time
}

func newLedger(registry *metrics.Registry, monitor []string, parentIterations, maxChild int) *Ledger {
	l := &Ledger{
		registry:  registry,
		monitor:   slices.Clone(monitor),
		histories: make(map[string][]float64, len(monitor)),
		child:     newChildScores(parentIterations, maxChild),
		start:     time.Now(),
	}

	for _, m := range monitor {
		l.histories[m] = nil
	}

	return l
}

// append records one completed parent iteration.
func (l *Ledger) append(record ParentTrialRecord, values map[string]float64, valScore float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, record.clone())

	for _, m := range l.monitor {
		v, ok := values[m]
		if !ok {
			v = math.NaN()
		}

		l.histories[m] = append(l.histories[m], v)
	}

	l.valScores = append(l.valScores, valScore)
}

func (l *Ledger) setChild(parent, child int, v float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.child.set(parent, child, v)
}

func (l *Ledger) finish() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.end = time.Now()
}

// Monitor returns the monitored metric names.
func (l *Ledger) Monitor() []string {
	return slices.Clone(l.monitor)
}

// Len returns the number of completed parent iterations.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.records)
}

// Records returns the parent trial records in iteration order.
func (l *Ledger) Records() []ParentTrialRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]ParentTrialRecord, len(l.records))
	for i, r := range l.records {
		out[i] = r.clone()
	}

	return out
}

// Record returns the record of a 1-based iteration.
func (l *Ledger) Record(iteration int) (ParentTrialRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if iteration < 1 || iteration > len(l.records) {
		return ParentTrialRecord{}, false
	}

	return l.records[iteration-1].clone(), true
}

// History returns the values of metric in iteration order. ValScoreKey
// returns the normalized scores.
func (l *Ledger) History(metric string) ([]float64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.history(metric)
}

// ValScores returns the normalized scores in iteration order.
func (l *Ledger) ValScores() []float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return slices.Clone(l.valScores)
}

// ChildScores returns a copy of the child score grid.
func (l *Ledger) ChildScores() *ChildScores {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.child.clone()
}

// Start returns when the run started.
func (l *Ledger) Start() time.Time {
	return l.start
}

// End returns when the run finished, the zero time while running.
func (l *Ledger) End() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.end
}

// BestValue returns the best value of metric: the minimum for minimized
// metrics, the maximum otherwise. NaN values are ignored.
func (l *Ledger) BestValue(metric string) (float64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, v, err := l.best(metric)

	return v, err
}

// BestIteration returns the 1-based iteration of BestValue. Ties go to the
// earliest iteration.
func (l *Ledger) BestIteration(metric string) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i, _, err := l.best(metric)
	if err != nil {
		return 0, err
	}

	return i + 1, nil
}

// BestPipeline returns the record at BestIteration.
func (l *Ledger) BestPipeline(metric string) (ParentTrialRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i, _, err := l.best(metric)
	if err != nil {
		return ParentTrialRecord{}, err
	}

	return l.records[i].clone(), nil
}

// BestPipelineForModel returns the best record among those using model,
// together with its metric value rounded to 4 decimals.
//
// Records are keyed by their rounded value, a later iteration replacing an
// earlier one with the same key. The best key is the smallest for minimized
// metrics and the largest otherwise; NaN keys only win when nothing else is
// available.
func (l *Ledger) BestPipelineForModel(model, metric string) (float64, ParentTrialRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	history, err := l.history(metric)
	if err != nil {
		return 0, ParentTrialRecord{}, err
	}

	direction := l.direction(metric)

	byKey := make(map[float64]int)

	var (
		used   bool
		nanIdx = -1
	)

	for i, r := range l.records {
		if r.Model.Name != model {
			continue
		}

		used = true

		v := history[i]
		if math.IsNaN(v) {
			nanIdx = i

			continue
		}

		byKey[round4(v)] = i
	}

	if !used {
		return 0, ParentTrialRecord{}, &ModelNotUsedError{Model: model}
	}

	if len(byKey) == 0 {
		return math.NaN(), l.records[nanIdx].clone(), nil
	}

	keys := make([]float64, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	best := keys[len(keys)-1]
	if direction == metrics.Minimize {
		best = keys[0]
	}

	return best, l.records[byKey[best]].clone(), nil
}

//////
// Internal.
//////

// history returns the stored values of metric. Callers hold mu.
func (l *Ledger) history(metric string) ([]float64, error) {
	if metric == ValScoreKey {
		return slices.Clone(l.valScores), nil
	}

	h, ok := l.histories[metric]
	if !ok {
		return nil, &MetricNotMonitoredError{Metric: metric, Available: l.Monitor()}
	}

	return slices.Clone(h), nil
}

func (l *Ledger) direction(metric string) metrics.Direction {
	if metric == ValScoreKey {
		return metrics.Minimize
	}

	d, err := l.registry.Direction(metric)
	if err != nil {
		return metrics.Minimize
	}

	return d
}

// best returns the 0-based index and value of the best non-NaN entry.
// Callers hold mu.
func (l *Ledger) best(metric string) (int, float64, error) {
	history, err := l.history(metric)
	if err != nil {
		return 0, 0, err
	}

	maximize := l.direction(metric) == metrics.Maximize

	idx := -1

	for i, v := range history {
		if math.IsNaN(v) {
			continue
		}

		if idx < 0 || (maximize && v > history[idx]) || (!maximize && v < history[idx]) {
			idx = i
		}
	}

	if idx < 0 {
		return 0, 0, fmt.Errorf("%w: %s", ErrNoValidValue, metric)
	}

	return idx, history[idx], nil
}

// round4 rounds finite values to 4 decimal places.
func round4(v float64) float64 {
	if math.IsInf(v, 0) {
		return v
	}

	return decimal.NewFromFloat(v).Round(4).InexactFloat64()
}
