package dataset

import (
	"math"
	"path/filepath"
	"testing"
	"time"
)

func makeFrame(t *testing.T, n int) *Frame {
	t.Helper()
	f := New("timestamp")
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	vals := make([]float64, n)
	for i := 0; i < n; i++ {
		f.Times = append(f.Times, base.Add(time.Duration(i)*time.Hour))
		vals[i] = float64(i)
	}
	if err := f.AddColumn("load", vals); err != nil {
		t.Fatalf("AddColumn: %v", err)
	}
	return f
}

func TestSortAndDedup(t *testing.T) {
	f := New("ts")
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	f.Times = []time.Time{base.Add(2 * time.Hour), base, base, base.Add(time.Hour)}
	f.AddColumn("v", []float64{3, 1, 99, 2})

	f.SortByTime()
	removed := f.DedupTimes()

	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if f.Len() != 3 {
		t.Fatalf("len = %d, want 3", f.Len())
	}
	v, _ := f.Column("v")
	// Stable sort keeps the first of the duplicate timestamps.
	want := []float64{1, 2, 3}
	for i := range want {
		if v[i] != want[i] {
			t.Fatalf("v[%d] = %v, want %v", i, v[i], want[i])
		}
	}
}

func TestCalendarFeatures(t *testing.T) {
	f := New("ts")
	// Wednesday 2023-02-15 13:00 UTC.
	f.Times = []time.Time{time.Date(2023, 2, 15, 13, 0, 0, 0, time.UTC)}
	f.AddColumn("v", []float64{1})
	f.AddCalendarFeatures()

	checks := map[string]float64{
		FeatHour:      13,
		FeatDayOfWeek: 2, // Monday=0
		FeatDayOfYear: 46,
		FeatMonth:     2,
		FeatYear:      2023,
		FeatQuarter:   1,
	}
	for col, want := range checks {
		got, ok := f.Column(col)
		if !ok {
			t.Fatalf("missing column %q", col)
		}
		if got[0] != want {
			t.Fatalf("%s = %v, want %v", col, got[0], want)
		}
	}
}

func TestCSVRoundTrip(t *testing.T) {
	f := makeFrame(t, 5)
	vals, _ := f.Column("load")
	vals[2] = math.NaN()

	path := filepath.Join(t.TempDir(), "frame.csv")
	if err := f.WriteCSV(path); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	got, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if got.Len() != 5 || got.TimeCol != "timestamp" {
		t.Fatalf("unexpected frame: len=%d timeCol=%q", got.Len(), got.TimeCol)
	}
	loaded, _ := got.Column("load")
	if !math.IsNaN(loaded[2]) {
		t.Fatalf("expected NaN at row 2, got %v", loaded[2])
	}
	if loaded[4] != 4 {
		t.Fatalf("loaded[4] = %v, want 4", loaded[4])
	}
	if !got.Times[1].Equal(f.Times[1]) {
		t.Fatalf("time mismatch: %v vs %v", got.Times[1], f.Times[1])
	}
}

func TestInferFreq(t *testing.T) {
	f := makeFrame(t, 10)
	if got := f.InferFreq(); got != time.Hour {
		t.Fatalf("InferFreq = %v, want 1h", got)
	}
	if got := New("ts").InferFreq(); got != 0 {
		t.Fatalf("empty frame freq = %v, want 0", got)
	}
}
