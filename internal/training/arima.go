package training

import (
	"errors"
	"fmt"
	"time"

	"loadcast/internal/dataset"
)

// ARIMAModel is an ARIMA(p,d,q) forecaster fit by the Hannan–Rissanen
// procedure: a long autoregression estimates the innovations, then the AR and
// MA coefficients come from a single least-squares regression on lagged
// values and lagged innovations. Forecasts set future innovations to zero and
// integrate the differenced predictions back to the original scale.
type ARIMAModel struct {
	P int `json:"p"`
	D int `json:"d"`
	Q int `json:"q"`

	Phi   []float64 `json:"phi"`
	Theta []float64 `json:"theta"`
	Mu    float64   `json:"mu"`

	// Tails carry the state needed to forecast past the training data:
	// the last P differenced values, the last Q innovations, and the last
	// value at each differencing level for integration.
	WTail      []float64 `json:"w_tail"`
	ETail      []float64 `json:"e_tail"`
	LastLevels []float64 `json:"last_levels"`

	LastTime  time.Time `json:"last_time"`
	FreqNanos int64     `json:"freq_nanos"`
}

func (m *ARIMAModel) Family() Family     { return FamilyARIMA }
func (m *ARIMAModel) Features() []string { return nil }

// Fit estimates the model from the target column.
func (m *ARIMAModel) Fit(train, _ *dataset.Frame, target string) error {
	if m.P < 0 || m.D < 0 || m.Q < 0 {
		return fmt.Errorf("invalid order (%d,%d,%d)", m.P, m.D, m.Q)
	}
	y, ok := train.Column(target)
	if !ok {
		return fmt.Errorf("target column %q missing", target)
	}

	m.LastTime = train.Times[len(train.Times)-1]
	freq := train.InferFreq()
	if freq <= 0 {
		freq = time.Hour
	}
	m.FreqNanos = int64(freq)

	w, levels, err := difference(y, m.D)
	if err != nil {
		return err
	}
	m.LastLevels = levels

	longOrder := m.P + m.Q
	if longOrder < 10 {
		longOrder = 10
	}
	minRows := longOrder + m.P + m.Q + 8
	if len(w) < minRows {
		return fmt.Errorf("need at least %d observations after differencing, have %d", minRows, len(w))
	}

	m.Mu = mean(w)
	centered := make([]float64, len(w))
	for i, v := range w {
		centered[i] = v - m.Mu
	}

	// Stage 1: long AR to estimate innovations.
	innov, err := longARResiduals(centered, longOrder)
	if err != nil {
		return err
	}

	// Stage 2: regress on P lags of the series and Q lags of the innovations.
	start := m.P
	if s := longOrder + m.Q; s > start {
		start = s
	}
	rows := len(centered) - start
	if rows < m.P+m.Q+2 {
		return errors.New("not enough rows for the second-stage regression")
	}

	X := make([][]float64, rows)
	b := make([]float64, rows)
	for i := 0; i < rows; i++ {
		t := start + i
		row := make([]float64, m.P+m.Q)
		for j := 0; j < m.P; j++ {
			row[j] = centered[t-j-1]
		}
		for j := 0; j < m.Q; j++ {
			row[m.P+j] = innov[t-j-1]
		}
		X[i] = row
		b[i] = centered[t]
	}

	coef, err := solveLeastSquares(X, b)
	if err != nil {
		return fmt.Errorf("second-stage regression: %w", err)
	}
	m.Phi = coef[:m.P]
	m.Theta = coef[m.P:]

	// State tails, most recent last.
	m.WTail = tail(centered, m.P)
	m.ETail = tail(innov, m.Q)
	return nil
}

// Predict forecasts one value per row of the held-out frame.
func (m *ARIMAModel) Predict(f *dataset.Frame) ([]float64, error) {
	if f.Len() == 0 {
		return nil, errors.New("frame has no rows")
	}
	_, vals := m.Forecast(f.Len())
	return vals, nil
}

// Forecast extends the series `steps` intervals with zero future innovations.
func (m *ARIMAModel) Forecast(steps int) ([]time.Time, []float64) {
	w := append([]float64(nil), m.WTail...)
	e := append([]float64(nil), m.ETail...)
	levels := append([]float64(nil), m.LastLevels...)

	freq := time.Duration(m.FreqNanos)
	if freq <= 0 {
		freq = time.Hour
	}

	times := make([]time.Time, steps)
	out := make([]float64, steps)
	for h := 0; h < steps; h++ {
		var v float64
		for j := 0; j < m.P && j < len(w); j++ {
			v += m.Phi[j] * w[len(w)-1-j]
		}
		for j := 0; j < m.Q && j < len(e); j++ {
			v += m.Theta[j] * e[len(e)-1-j]
		}
		w = append(w, v)
		e = append(e, 0)

		out[h] = integrate(levels, v+m.Mu)
		times[h] = m.LastTime.Add(time.Duration(h+1) * freq)
	}
	return times, out
}

// difference applies d rounds of first differencing and returns the last
// value at each level for later integration (levels[0] is the original scale).
func difference(y []float64, d int) ([]float64, []float64, error) {
	if len(y) <= d {
		return nil, nil, fmt.Errorf("cannot difference %d observations %d times", len(y), d)
	}
	levels := make([]float64, d)
	cur := append([]float64(nil), y...)
	for k := 0; k < d; k++ {
		levels[k] = cur[len(cur)-1]
		next := make([]float64, len(cur)-1)
		for i := 1; i < len(cur); i++ {
			next[i-1] = cur[i] - cur[i-1]
		}
		cur = next
	}
	return cur, levels, nil
}

// integrate undoes the differencing for a single forecast value, updating the
// running last-value state in place.
func integrate(levels []float64, w float64) float64 {
	v := w
	for k := len(levels) - 1; k >= 0; k-- {
		v += levels[k]
		levels[k] = v
	}
	return v
}

// longARResiduals fits an AR(order) by least squares and returns the in-sample
// residuals, zero-padded for the first `order` positions.
func longARResiduals(w []float64, order int) ([]float64, error) {
	rows := len(w) - order
	X := make([][]float64, rows)
	b := make([]float64, rows)
	for i := 0; i < rows; i++ {
		t := order + i
		row := make([]float64, order)
		for j := 0; j < order; j++ {
			row[j] = w[t-j-1]
		}
		X[i] = row
		b[i] = w[t]
	}
	coef, err := solveLeastSquares(X, b)
	if err != nil {
		return nil, fmt.Errorf("long autoregression: %w", err)
	}

	resid := make([]float64, len(w))
	for t := order; t < len(w); t++ {
		fit := 0.0
		for j := 0; j < order; j++ {
			fit += coef[j] * w[t-j-1]
		}
		resid[t] = w[t] - fit
	}
	return resid, nil
}

// solveLeastSquares solves min ||Xc - b|| via the normal equations with a
// small ridge term for numerical stability.
func solveLeastSquares(X [][]float64, b []float64) ([]float64, error) {
	if len(X) == 0 {
		return nil, errors.New("empty system")
	}
	p := len(X[0])
	if p == 0 {
		return []float64{}, nil
	}

	ata := make([][]float64, p)
	atb := make([]float64, p)
	for i := range ata {
		ata[i] = make([]float64, p)
	}
	for r := range X {
		for i := 0; i < p; i++ {
			atb[i] += X[r][i] * b[r]
			for j := i; j < p; j++ {
				ata[i][j] += X[r][i] * X[r][j]
			}
		}
	}
	const ridge = 1e-8
	for i := 0; i < p; i++ {
		ata[i][i] += ridge
		for j := 0; j < i; j++ {
			ata[i][j] = ata[j][i]
		}
	}
	return gaussSolve(ata, atb)
}

// gaussSolve solves a square system by Gaussian elimination with partial
// pivoting. The inputs are modified.
func gaussSolve(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if abs(a[r][col]) > abs(a[pivot][col]) {
				pivot = r
			}
		}
		if abs(a[pivot][col]) < 1e-12 {
			return nil, errors.New("singular system")
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for r := col + 1; r < n; r++ {
			f := a[r][col] / a[col][col]
			for c := col; c < n; c++ {
				a[r][c] -= f * a[col][c]
			}
			b[r] -= f * b[col]
		}
	}

	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := b[i]
		for j := i + 1; j < n; j++ {
			sum -= a[i][j] * x[j]
		}
		x[i] = sum / a[i][i]
	}
	return x, nil
}

func tail(vals []float64, n int) []float64 {
	if n <= 0 {
		return []float64{}
	}
	if len(vals) < n {
		return append([]float64(nil), vals...)
	}
	return append([]float64(nil), vals[len(vals)-n:]...)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
