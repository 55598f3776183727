package dataset

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Frame is a column-ordered table over a timestamp index. Missing numeric
// values are NaN.
type Frame struct {
	TimeCol string
	Times   []time.Time
	Cols    []string
	Data    map[string][]float64
}

// New creates an empty frame indexed by timeCol.
func New(timeCol string) *Frame {
	return &Frame{
		TimeCol: timeCol,
		Data:    make(map[string][]float64),
	}
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Times)
}

// AddColumn appends a column. The length must match the index.
func (f *Frame) AddColumn(name string, values []float64) error {
	if len(values) != len(f.Times) {
		return fmt.Errorf("column %q has %d values, index has %d", name, len(values), len(f.Times))
	}
	if _, exists := f.Data[name]; !exists {
		f.Cols = append(f.Cols, name)
	}
	f.Data[name] = values
	return nil
}

// Column returns a column by name.
func (f *Frame) Column(name string) ([]float64, bool) {
	v, ok := f.Data[name]
	return v, ok
}

// HasColumn reports whether the column exists.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.Data[name]
	return ok
}

// Slice returns a view-copy of rows [i, j).
func (f *Frame) Slice(i, j int) *Frame {
	out := New(f.TimeCol)
	out.Times = append([]time.Time(nil), f.Times[i:j]...)
	for _, col := range f.Cols {
		vals := append([]float64(nil), f.Data[col][i:j]...)
		out.Cols = append(out.Cols, col)
		out.Data[col] = vals
	}
	return out
}

// SortByTime sorts rows ascending by timestamp. The sort is stable so the
// first of two duplicate timestamps keeps its position.
func (f *Frame) SortByTime() {
	idx := make([]int, len(f.Times))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return f.Times[idx[a]].Before(f.Times[idx[b]])
	})

	times := make([]time.Time, len(f.Times))
	for i, j := range idx {
		times[i] = f.Times[j]
	}
	f.Times = times

	for _, col := range f.Cols {
		src := f.Data[col]
		vals := make([]float64, len(src))
		for i, j := range idx {
			vals[i] = src[j]
		}
		f.Data[col] = vals
	}
}

// DedupTimes removes rows with duplicate timestamps, keeping the first
// occurrence. Assumes the frame is already sorted. Returns removed count.
func (f *Frame) DedupTimes() int {
	if len(f.Times) == 0 {
		return 0
	}
	keep := make([]int, 0, len(f.Times))
	keep = append(keep, 0)
	for i := 1; i < len(f.Times); i++ {
		if !f.Times[i].Equal(f.Times[i-1]) {
			keep = append(keep, i)
		}
	}
	removed := len(f.Times) - len(keep)
	if removed == 0 {
		return 0
	}

	times := make([]time.Time, len(keep))
	for i, j := range keep {
		times[i] = f.Times[j]
	}
	f.Times = times

	for _, col := range f.Cols {
		src := f.Data[col]
		vals := make([]float64, len(keep))
		for i, j := range keep {
			vals[i] = src[j]
		}
		f.Data[col] = vals
	}
	return removed
}

// MissingCount returns the number of NaN values in a column.
func (f *Frame) MissingCount(col string) int {
	n := 0
	for _, v := range f.Data[col] {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

// NonMissing returns the column values with NaNs dropped.
func (f *Frame) NonMissing(col string) []float64 {
	src, ok := f.Data[col]
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(src))
	for _, v := range src {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// InferFreq returns the sampling interval as the median delta between
// consecutive timestamps, or zero when fewer than two rows exist.
func (f *Frame) InferFreq() time.Duration {
	if len(f.Times) < 2 {
		return 0
	}
	deltas := make([]time.Duration, 0, len(f.Times)-1)
	for i := 1; i < len(f.Times); i++ {
		deltas = append(deltas, f.Times[i].Sub(f.Times[i-1]))
	}
	sort.Slice(deltas, func(a, b int) bool { return deltas[a] < deltas[b] })
	return deltas[len(deltas)/2]
}
