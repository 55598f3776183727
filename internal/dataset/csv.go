package dataset

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// WriteCSV writes the frame to path as CSV with RFC3339 timestamps.
// Missing values are written as empty cells.
func (f *Frame) WriteCSV(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	header := append([]string{f.TimeCol}, f.Cols...)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(header))
	for i := range f.Times {
		row[0] = f.Times[i].UTC().Format(time.RFC3339)
		for j, col := range f.Cols {
			v := f.Data[col][i]
			if math.IsNaN(v) {
				row[j+1] = ""
			} else {
				row[j+1] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// ReadCSV loads a frame previously written by WriteCSV. The first header
// column is the timestamp index.
func ReadCSV(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty csv file %s", path)
	}

	header := records[0]
	f := New(header[0])
	cols := header[1:]
	values := make([][]float64, len(cols))

	for i, rec := range records[1:] {
		t, err := time.Parse(time.RFC3339, rec[0])
		if err != nil {
			return nil, fmt.Errorf("parse timestamp on row %d: %w", i+1, err)
		}
		f.Times = append(f.Times, t)
		for j := range cols {
			cell := rec[j+1]
			if cell == "" {
				values[j] = append(values[j], math.NaN())
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("parse %q on row %d: %w", cols[j], i+1, err)
			}
			values[j] = append(values[j], v)
		}
	}

	for j, col := range cols {
		if err := f.AddColumn(col, values[j]); err != nil {
			return nil, err
		}
	}
	return f, nil
}
