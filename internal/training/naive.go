package training

import (
	"errors"
	"fmt"
	"time"

	"loadcast/internal/dataset"
)

// NaiveModel is the persistence fallback: it repeats the last observed value.
// It accepts any input and is the family of last resort when everything else
// fails to fit.
type NaiveModel struct {
	LastValue float64   `json:"last_value"`
	LastTime  time.Time `json:"last_time"`
	FreqNanos int64     `json:"freq_nanos"`
}

func (m *NaiveModel) Family() Family     { return FamilyNaive }
func (m *NaiveModel) Features() []string { return nil }

func (m *NaiveModel) Fit(train, _ *dataset.Frame, target string) error {
	y, ok := train.Column(target)
	if !ok {
		return fmt.Errorf("target column %q missing", target)
	}
	if len(y) == 0 {
		return errors.New("no observations")
	}
	m.LastValue = y[len(y)-1]
	m.LastTime = train.Times[len(train.Times)-1]
	freq := train.InferFreq()
	if freq <= 0 {
		freq = time.Hour
	}
	m.FreqNanos = int64(freq)
	return nil
}

func (m *NaiveModel) Predict(f *dataset.Frame) ([]float64, error) {
	if f.Len() == 0 {
		return nil, errors.New("frame has no rows")
	}
	out := make([]float64, f.Len())
	for i := range out {
		out[i] = m.LastValue
	}
	return out, nil
}

// Forecast repeats the last value for `steps` intervals.
func (m *NaiveModel) Forecast(steps int) ([]time.Time, []float64) {
	freq := time.Duration(m.FreqNanos)
	if freq <= 0 {
		freq = time.Hour
	}
	times := make([]time.Time, steps)
	vals := make([]float64, steps)
	for i := 0; i < steps; i++ {
		times[i] = m.LastTime.Add(time.Duration(i+1) * freq)
		vals[i] = m.LastValue
	}
	return times, vals
}
