// Package dataset provides a column-ordered numeric table loaded from CSV.
// Numeric columns are []float64; anything that fails to parse stays a string
// column and is passed through untouched to the output CSV.
package dataset

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

type column struct {
	name    string
	numeric []float64
	text    []string
}

func (c *column) isNumeric() bool { return c.numeric != nil }

// Frame is an in-memory table with stable column order and one row per
// physical unit. All mutating operations keep every column at the same length.
type Frame struct {
	cols  []*column
	index map[string]int
	n     int
}

func NewFrame(n int) *Frame {
	return &Frame{index: make(map[string]int), n: n}
}

func (f *Frame) NumRows() int { return f.n }

func (f *Frame) Columns() []string {
	out := make([]string, len(f.cols))
	for i, c := range f.cols {
		out[i] = c.name
	}
	return out
}

func (f *Frame) HasColumn(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Numeric returns the values of a numeric column. The returned slice is the
// backing store; callers that mutate it must own the frame.
func (f *Frame) Numeric(name string) ([]float64, bool) {
	i, ok := f.index[name]
	if !ok || !f.cols[i].isNumeric() {
		return nil, false
	}
	return f.cols[i].numeric, true
}

func (f *Frame) Text(name string) ([]string, bool) {
	i, ok := f.index[name]
	if !ok || f.cols[i].isNumeric() {
		return nil, false
	}
	return f.cols[i].text, true
}

// SetNumeric replaces a column or appends it at the end of the column order.
func (f *Frame) SetNumeric(name string, vals []float64) error {
	if len(vals) != f.n {
		return fmt.Errorf("column %s: expected %d rows, got %d", name, f.n, len(vals))
	}
	if i, ok := f.index[name]; ok {
		f.cols[i] = &column{name: name, numeric: vals}
		return nil
	}
	f.index[name] = len(f.cols)
	f.cols = append(f.cols, &column{name: name, numeric: vals})
	return nil
}

func (f *Frame) SetText(name string, vals []string) error {
	if len(vals) != f.n {
		return fmt.Errorf("column %s: expected %d rows, got %d", name, f.n, len(vals))
	}
	if i, ok := f.index[name]; ok {
		f.cols[i] = &column{name: name, text: vals}
		return nil
	}
	f.index[name] = len(f.cols)
	f.cols = append(f.cols, &column{name: name, text: vals})
	return nil
}

// Rename changes a column name in place, keeping its position.
func (f *Frame) Rename(from, to string) {
	i, ok := f.index[from]
	if !ok || from == to {
		return
	}
	delete(f.index, from)
	f.cols[i].name = to
	f.index[to] = i
}

// NumericColumns returns the names of all numeric columns, in column order,
// skipping any name present in exclude.
func (f *Frame) NumericColumns(exclude map[string]bool) []string {
	var out []string
	for _, c := range f.cols {
		if c.isNumeric() && !exclude[c.name] {
			out = append(out, c.name)
		}
	}
	return out
}

// Matrix assembles the named numeric columns into a dense row-major matrix.
func (f *Frame) Matrix(cols []string) (*mat.Dense, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("no columns requested")
	}
	m := mat.NewDense(f.n, len(cols), nil)
	for j, name := range cols {
		v, ok := f.Numeric(name)
		if !ok {
			return nil, fmt.Errorf("column %s is not numeric", name)
		}
		for i := 0; i < f.n; i++ {
			m.Set(i, j, v[i])
		}
	}
	return m, nil
}

// Clone deep-copies the frame.
func (f *Frame) Clone() *Frame {
	out := NewFrame(f.n)
	for _, c := range f.cols {
		if c.isNumeric() {
			v := make([]float64, len(c.numeric))
			copy(v, c.numeric)
			_ = out.SetNumeric(c.name, v)
		} else {
			v := make([]string, len(c.text))
			copy(v, c.text)
			_ = out.SetText(c.name, v)
		}
	}
	return out
}

// SelectRows builds a new frame holding the given rows, in the given order.
// Row indices may repeat.
func (f *Frame) SelectRows(rows []int) *Frame {
	out := NewFrame(len(rows))
	for _, c := range f.cols {
		if c.isNumeric() {
			v := make([]float64, len(rows))
			for i, r := range rows {
				v[i] = c.numeric[r]
			}
			_ = out.SetNumeric(c.name, v)
		} else {
			v := make([]string, len(rows))
			for i, r := range rows {
				v[i] = c.text[r]
			}
			_ = out.SetText(c.name, v)
		}
	}
	return out
}

// SortDescendingBy reorders all rows by the named numeric column, largest
// first. Ties keep their original relative order.
func (f *Frame) SortDescendingBy(name string) error {
	key, ok := f.Numeric(name)
	if !ok {
		return fmt.Errorf("column %s is not numeric", name)
	}
	order := make([]int, f.n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		va, vb := key[order[a]], key[order[b]]
		if math.IsNaN(vb) {
			return !math.IsNaN(va)
		}
		return va > vb
	})
	sorted := f.SelectRows(order)
	f.cols = sorted.cols
	f.index = sorted.index
	return nil
}
