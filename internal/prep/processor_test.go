package prep

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"loadcast/internal/dataset"
	"loadcast/pkg/logger"
)

func writeRaw(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write raw file: %v", err)
	}
	return path
}

func newTestProcessor(t *testing.T) (*Processor, string, string) {
	t.Helper()
	rawDir := t.TempDir()
	processedDir := t.TempDir()
	return NewProcessor(rawDir, processedDir, nil, logger.Nop()), rawDir, processedDir
}

const messyCSV = `timestamp,load,site
2023-01-01 02:00:00,,a
2023-01-01 00:00:00,10.5,a
2023-01-01 01:00:00,bad,a
2023-01-01 00:00:00,99.9,a
2023-01-01 03:00:00,12.25,a
`

func TestProcessCleansAndDerives(t *testing.T) {
	p, rawDir, _ := newTestProcessor(t)
	writeRaw(t, rawDir, "meter.csv", messyCSV)

	frame, path, err := p.Process(context.Background(), "meter.csv", "timestamp", "load")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if frame.Len() != 4 {
		t.Fatalf("rows = %d, want 4 (duplicate dropped)", frame.Len())
	}
	for i := 1; i < frame.Len(); i++ {
		if !frame.Times[i].After(frame.Times[i-1]) {
			t.Fatalf("timestamps not strictly increasing at %d", i)
		}
	}

	load, _ := frame.Column("load")
	for i, v := range load {
		if math.IsNaN(v) {
			t.Fatalf("missing value survived imputation at row %d", i)
		}
	}
	// Duplicate keeps first occurrence; non-numeric and empty ffill from 10.5.
	want := []float64{10.5, 10.5, 10.5, 12.25}
	for i := range want {
		if load[i] != want[i] {
			t.Fatalf("load[%d] = %v, want %v", i, load[i], want[i])
		}
	}

	for _, col := range dataset.CalendarFeatures {
		if !frame.HasColumn(col) {
			t.Fatalf("missing calendar feature %q", col)
		}
	}

	if filepath.Base(path) != "processed_meter.csv" {
		t.Fatalf("processed name = %q", filepath.Base(path))
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("processed file missing: %v", err)
	}
}

func TestProcessIdempotent(t *testing.T) {
	p, rawDir, _ := newTestProcessor(t)
	writeRaw(t, rawDir, "meter.csv", messyCSV)

	_, path1, err := p.Process(context.Background(), "meter.csv", "timestamp", "load")
	if err != nil {
		t.Fatalf("first Process: %v", err)
	}
	first, err := os.ReadFile(path1)
	if err != nil {
		t.Fatalf("read first output: %v", err)
	}

	_, path2, err := p.Process(context.Background(), "meter.csv", "timestamp", "load")
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	second, err := os.ReadFile(path2)
	if err != nil {
		t.Fatalf("read second output: %v", err)
	}

	if path1 != path2 {
		t.Fatalf("paths differ: %q vs %q", path1, path2)
	}
	if string(first) != string(second) {
		t.Fatal("reprocessing the same input produced different bytes")
	}
}

func TestProcessSnapshotsOutsideSources(t *testing.T) {
	p, rawDir, _ := newTestProcessor(t)
	elsewhere := t.TempDir()
	src := writeRaw(t, elsewhere, "ext.csv", messyCSV)

	if _, _, err := p.Process(context.Background(), src, "timestamp", "load"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, err := os.Stat(filepath.Join(rawDir, "ext.csv")); err != nil {
		t.Fatalf("raw snapshot missing: %v", err)
	}
}

func TestProcessErrorTaxonomy(t *testing.T) {
	p, rawDir, _ := newTestProcessor(t)
	writeRaw(t, rawDir, "ok.csv", messyCSV)
	writeRaw(t, rawDir, "baddates.csv", "timestamp,load\nnot-a-date,1\n")

	cases := []struct {
		name    string
		source  string
		dtCol   string
		valCol  string
		wantErr error
	}{
		{"missing source", "nope.csv", "timestamp", "load", ErrSourceNotFound},
		{"missing datetime column", "ok.csv", "ds", "load", ErrSchemaMismatch},
		{"missing value column", "ok.csv", "timestamp", "demand", ErrSchemaMismatch},
		{"unparseable datetime", "baddates.csv", "timestamp", "load", ErrDatetimeParse},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := p.Process(context.Background(), tc.source, tc.dtCol, tc.valCol)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}
