// Package dataset holds tabular numeric data as a gonum matrix with named
// columns.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrUnknownColumn is returned when a column name is not in the frame.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrEmpty is returned for frames without rows or columns.
	ErrEmpty = errors.New("empty frame")

	// ErrRagged is returned when rows differ in length from the header.
	ErrRagged = errors.New("row length does not match columns")
)

// Frame is an immutable table of float64 values.
type Frame struct {
	columns []string
	index   map[string]int
	data    *mat.Dense
}

// New builds a frame from row-major values.
func New(columns []string, rows [][]float64) (*Frame, error) {
	if len(columns) == 0 || len(rows) == 0 {
		return nil, ErrEmpty
	}

	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, ok := index[c]; ok {
			return nil, fmt.Errorf("duplicate column %q", c)
		}

		index[c] = i
	}

	data := make([]float64, 0, len(rows)*len(columns))
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrRagged, i, len(row), len(columns))
		}

		data = append(data, row...)
	}

	cols := make([]string, len(columns))
	copy(cols, columns)

	return &Frame{
		columns: cols,
		index:   index,
		data:    mat.NewDense(len(rows), len(columns), data),
	}, nil
}

// ReadCSV parses a CSV with a header row. Empty cells and "nan" become NaN.
func ReadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}

		return nil, fmt.Errorf("read header: %w", err)
	}

	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows [][]float64

	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}

		row := make([]float64, len(record))
		for j, cell := range record {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				row[j] = math.NaN()

				continue
			}

			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, header[j], err)
			}

			row[j] = v
		}

		rows = append(rows, row)
	}

	return New(header, rows)
}

// Load reads a CSV file.
func Load(path string) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	frame, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return frame, nil
}

// Columns returns the column names in order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.columns))
	copy(out, f.columns)

	return out
}

// Has reports whether the frame has a column called name.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]

	return ok
}

// Rows returns the number of rows.
func (f *Frame) Rows() int {
	r, _ := f.data.Dims()

	return r
}

// Column returns a copy of one column.
func (f *Frame) Column(name string) ([]float64, error) {
	j, ok := f.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}

	return mat.Col(nil, j, f.data), nil
}

// Matrix returns the given columns for the given rows as a new matrix. A nil
// rows slice selects every row.
func (f *Frame) Matrix(columns []string, rows []int) (*mat.Dense, error) {
	if rows == nil {
		rows = make([]int, f.Rows())
		for i := range rows {
			rows[i] = i
		}
	}

	if len(columns) == 0 || len(rows) == 0 {
		return nil, ErrEmpty
	}

	idx := make([]int, len(columns))
	for k, c := range columns {
		j, ok := f.index[c]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, c)
		}

		idx[k] = j
	}

	out := mat.NewDense(len(rows), len(columns), nil)
	for i, r := range rows {
		for k, j := range idx {
			out.Set(i, k, f.data.At(r, j))
		}
	}

	return out, nil
}
