package automl

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/thalesfsp/automl/hpo"
)

// Files written to the run directory.
const (
	ConfigFileName       = "config.yaml"
	ErrorsFileName       = "errors.csv"
	ChildScoresFileName  = "child_val_scores.csv"
	ParentTrialsFileName = "parent_trials.yaml"
	ReportFileName       = "report.txt"
)

// Report describes the last Fit: when it ran, how many iterations completed
// and, for every monitored metric, the best model and where it is saved.
func (p *Pipeline) Report() (string, error) {
	l, err := p.Ledger()
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	models := p.models
	p.mu.Unlock()

	end := l.End()

	var b strings.Builder

	fmt.Fprintf(&b, "The optimization started at %s", l.Start().Format("Mon Jan 2 15:04:05 2006"))

	if !end.IsZero() {
		fmt.Fprintf(&b, " and ended at %s", end.Format("Mon Jan 2 15:04:05 2006"))
	}

	fmt.Fprintf(&b, " after completing %d iterations. The optimization considered %d models.\n", l.Len(), models)

	if l.Len() < p.opts.ParentIterations {
		fmt.Fprintf(&b, "The given parent iterations were %d but optimization stopped early.\n", p.opts.ParentIterations)
	}

	for _, metric := range l.Monitor() {
		b.WriteString("\n")

		record, err := l.BestPipeline(metric)
		if err != nil {
			fmt.Fprintf(&b, "No valid value of %s was recorded.\n", metric)

			continue
		}

		value, _ := l.BestValue(metric)
		iteration, _ := l.BestIteration(metric)

		fmt.Fprintf(&b, "With respect to %s, the best model was %s which had '%s' value of %s. ",
			metric, record.Model.Name, metric, formatValue(value))
		fmt.Fprintf(&b, "This model was obtained at iteration %d and is saved at %s.\n", iteration, record.Path)
	}

	return b.String(), nil
}

//////
// Internal.
//////

func (p *Pipeline) writeReport() (string, error) {
	text, err := p.Report()
	if err != nil {
		return "", err
	}

	path := filepath.Join(p.path, ReportFileName)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", err
	}

	p.logger.Debugf("report written to %s", path)

	return text, nil
}

// saveConfig writes the options, with the current catalog, to the run
// directory. The file can be read back with LoadOptions.
func (p *Pipeline) saveConfig() error {
	snapshot := p.catalog.Snapshot()

	opts := p.opts
	opts.Models = snapshot.Models()
	opts.Spaces = nil
	opts.ChildBudgets = nil

	for _, m := range opts.Models {
		space, _ := snapshot.Space(m)
		if len(space) > 0 {
			if opts.Spaces == nil {
				opts.Spaces = make(map[string]hpo.Space)
			}

			opts.Spaces[m] = space
		}

		if n, _ := snapshot.Budget(m); n != opts.ChildIterations {
			if opts.ChildBudgets == nil {
				opts.ChildBudgets = make(map[string]int)
			}

			opts.ChildBudgets[m] = n
		}
	}

	data, err := yaml.Marshal(opts)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(p.path, ConfigFileName), data, 0o644)
}

// saveResults writes the metric table, the child score grid and the parent
// trial records.
func (p *Pipeline) saveResults(l *Ledger) error {
	monitor := l.Monitor()

	header := append([]string{"iteration"}, monitor...)
	header = append(header, ValScoreKey)

	rows := [][]string{header}

	valScores := l.ValScores()

	histories := make([][]float64, len(monitor))
	for i, m := range monitor {
		h, err := l.History(m)
		if err != nil {
			return err
		}

		histories[i] = h
	}

	for i := range valScores {
		row := []string{strconv.Itoa(i + 1)}
		for _, h := range histories {
			row = append(row, formatFloat(h[i]))
		}

		rows = append(rows, append(row, formatFloat(valScores[i])))
	}

	if err := writeCSV(filepath.Join(p.path, ErrorsFileName), rows); err != nil {
		return err
	}

	child := l.ChildScores()
	nRows, nCols := child.Dims()

	header = []string{"parent_iter"}
	for j := 0; j < nCols; j++ {
		header = append(header, fmt.Sprintf("child_iter_%d", j))
	}

	rows = [][]string{header}

	for i := 0; i < nRows; i++ {
		row := []string{strconv.Itoa(i + 1)}
		for _, v := range child.Row(i) {
			row = append(row, formatFloat(v))
		}

		rows = append(rows, row)
	}

	if err := writeCSV(filepath.Join(p.path, ChildScoresFileName), rows); err != nil {
		return err
	}

	data, err := yaml.Marshal(l.Records())
	if err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(p.path, ParentTrialsFileName), data, 0o644); err != nil {
		return err
	}

	p.logger.Debugf("results saved to %s", p.path)

	return nil
}

// LoadParentTrials reads the records written after Fit.
func LoadParentTrials(path string) ([]ParentTrialRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var records []ParentTrialRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return records, nil
}

func writeCSV(path string, rows [][]string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, f.Close())
	}()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return err
	}

	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// formatValue rounds finite values to 4 decimals.
func formatValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return formatFloat(v)
	}

	return decimal.NewFromFloat(v).Round(4).String()
}
