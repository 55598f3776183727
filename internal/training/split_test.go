package training

import (
	"errors"
	"testing"
	"time"

	"loadcast/internal/dataset"
)

func hourlyFrame(t *testing.T, n int, gen func(i int) float64) *dataset.Frame {
	t.Helper()
	f := dataset.New("timestamp")
	base := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC) // a Monday
	vals := make([]float64, n)
	for i := 0; i < n; i++ {
		f.Times = append(f.Times, base.Add(time.Duration(i)*time.Hour))
		vals[i] = gen(i)
	}
	if err := f.AddColumn("load", vals); err != nil {
		t.Fatalf("AddColumn: %v", err)
	}
	f.AddCalendarFeatures()
	return f
}

func TestSplitChronological(t *testing.T) {
	f := hourlyFrame(t, 100, func(i int) float64 { return float64(i) })

	train, val, test, err := Split(f, 0.2, 0.1)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if train.Len() != 70 || val.Len() != 10 || test.Len() != 20 {
		t.Fatalf("sizes = %d/%d/%d, want 70/10/20", train.Len(), val.Len(), test.Len())
	}
	if !train.Times[69].Before(val.Times[0]) || !val.Times[9].Before(test.Times[0]) {
		t.Fatal("segments are not chronological")
	}
}

func TestSplitValidation(t *testing.T) {
	f := hourlyFrame(t, 50, func(i int) float64 { return 1 })

	bad := [][2]float64{{0, 0.1}, {1, 0}, {-0.2, 0}, {0.2, -0.1}, {0.6, 0.4}}
	for _, fr := range bad {
		if _, _, _, err := Split(f, fr[0], fr[1]); !errors.Is(err, ErrInvalidSplit) {
			t.Fatalf("Split(%v, %v) err = %v, want ErrInvalidSplit", fr[0], fr[1], err)
		}
	}
}
