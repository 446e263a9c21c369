package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
)

// ReadCSV loads a CSV file into a Frame. A column becomes numeric when every
// non-empty cell parses as a float; empty cells in numeric columns become NaN.
func ReadCSV(path string) (*Frame, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer fh.Close()
	return ReadCSVFrom(fh)
}

func ReadCSVFrom(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("csv has no header row")
	}
	header := records[0]
	rows := records[1:]
	f := NewFrame(len(rows))

	for j, name := range header {
		raw := make([]string, len(rows))
		for i, rec := range rows {
			if j < len(rec) {
				raw[i] = rec[j]
			}
		}
		vals, numeric := tryParseNumeric(raw)
		if numeric {
			if err := f.SetNumeric(name, vals); err != nil {
				return nil, err
			}
		} else {
			if err := f.SetText(name, raw); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

func tryParseNumeric(raw []string) ([]float64, bool) {
	vals := make([]float64, len(raw))
	seen := false
	for i, s := range raw {
		if s == "" {
			vals[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		vals[i] = v
		seen = true
	}
	return vals, seen
}

// WriteCSV writes the frame with its current column order and row order.
func (f *Frame) WriteCSV(path string) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer fh.Close()
	return f.WriteCSVTo(fh)
}

func (f *Frame) WriteCSVTo(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Columns()); err != nil {
		return err
	}
	rec := make([]string, len(f.cols))
	for i := 0; i < f.n; i++ {
		for j, c := range f.cols {
			if c.isNumeric() {
				v := c.numeric[i]
				if math.IsNaN(v) {
					rec[j] = ""
				} else {
					rec[j] = strconv.FormatFloat(v, 'g', -1, 64)
				}
			} else {
				rec[j] = c.text[i]
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
