package training

import (
	"errors"
	"fmt"
	"time"

	"loadcast/internal/dataset"
)

// SeasonalModel is an additive decomposition fit on time alone: a linear
// trend plus hour-of-day and day-of-week effects estimated from the trend
// residuals. It needs no input columns at prediction time.
type SeasonalModel struct {
	Intercept  float64   `json:"intercept"`
	Slope      float64   `json:"slope"` // per hour since origin
	HourEffect []float64 `json:"hour_effect"`
	DowEffect  []float64 `json:"dow_effect"`
	Origin     time.Time `json:"origin"`
	LastTime   time.Time `json:"last_time"`
	FreqNanos  int64     `json:"freq_nanos"`
}

func (m *SeasonalModel) Family() Family     { return FamilySeasonal }
func (m *SeasonalModel) Features() []string { return nil }

// Fit estimates trend and seasonal effects by least squares.
func (m *SeasonalModel) Fit(train, _ *dataset.Frame, target string) error {
	y, ok := train.Column(target)
	if !ok {
		return fmt.Errorf("target column %q missing", target)
	}
	if len(y) < 2 {
		return errors.New("need at least 2 observations")
	}

	m.Origin = train.Times[0]
	m.LastTime = train.Times[len(train.Times)-1]
	freq := train.InferFreq()
	if freq <= 0 {
		freq = time.Hour
	}
	m.FreqNanos = int64(freq)

	x := make([]float64, len(y))
	for i, t := range train.Times {
		x[i] = t.Sub(m.Origin).Hours()
	}
	m.Slope, m.Intercept = olsLine(x, y)

	// Hour-of-day effects from trend residuals.
	m.HourEffect = make([]float64, 24)
	hourCount := make([]float64, 24)
	resid := make([]float64, len(y))
	for i := range y {
		resid[i] = y[i] - (m.Intercept + m.Slope*x[i])
		h := train.Times[i].Hour()
		m.HourEffect[h] += resid[i]
		hourCount[h]++
	}
	for h := range m.HourEffect {
		if hourCount[h] > 0 {
			m.HourEffect[h] /= hourCount[h]
		}
	}

	// Day-of-week effects from what the hour effect leaves over.
	m.DowEffect = make([]float64, 7)
	dowCount := make([]float64, 7)
	for i := range y {
		d := mondayIndexed(train.Times[i])
		m.DowEffect[d] += resid[i] - m.HourEffect[train.Times[i].Hour()]
		dowCount[d]++
	}
	for d := range m.DowEffect {
		if dowCount[d] > 0 {
			m.DowEffect[d] /= dowCount[d]
		}
	}
	return nil
}

// Predict evaluates the model at the frame's timestamps.
func (m *SeasonalModel) Predict(f *dataset.Frame) ([]float64, error) {
	if len(f.Times) == 0 {
		return nil, errors.New("frame has no timestamps")
	}
	return m.ForecastAt(f.Times), nil
}

// ForecastAt evaluates the fitted decomposition at arbitrary timestamps.
func (m *SeasonalModel) ForecastAt(times []time.Time) []float64 {
	out := make([]float64, len(times))
	for i, t := range times {
		x := t.Sub(m.Origin).Hours()
		out[i] = m.Intercept + m.Slope*x + m.HourEffect[t.Hour()] + m.DowEffect[mondayIndexed(t)]
	}
	return out
}

// Forecast extends the series `steps` intervals past the training data at the
// inferred frequency, returning the timestamps alongside the values.
func (m *SeasonalModel) Forecast(steps int) ([]time.Time, []float64) {
	freq := time.Duration(m.FreqNanos)
	if freq <= 0 {
		freq = time.Hour
	}
	times := make([]time.Time, steps)
	for i := 0; i < steps; i++ {
		times[i] = m.LastTime.Add(time.Duration(i+1) * freq)
	}
	return times, m.ForecastAt(times)
}

// olsLine fits y = slope*x + intercept by ordinary least squares.
func olsLine(x, y []float64) (slope, intercept float64) {
	n := float64(len(x))
	var sx, sy, sxx, sxy float64
	for i := range x {
		sx += x[i]
		sy += y[i]
		sxx += x[i] * x[i]
		sxy += x[i] * y[i]
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0, sy / n
	}
	slope = (n*sxy - sx*sy) / den
	intercept = (sy - slope*sx) / n
	return slope, intercept
}

// mondayIndexed maps a timestamp's weekday to Monday=0 … Sunday=6.
func mondayIndexed(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
