package monitoring

import (
	"errors"
	"math"
	"sort"
)

// ErrTooFewObservations means a sample is too small for the two-sample test.
var ErrTooFewObservations = errors.New("too few observations")

// KSTest runs the two-sample Kolmogorov–Smirnov test and returns the
// statistic D and its asymptotic p-value. Each sample needs at least two
// observations.
func KSTest(a, b []float64) (d, p float64, err error) {
	if len(a) < 2 || len(b) < 2 {
		return 0, 0, ErrTooFewObservations
	}

	sa := append([]float64(nil), a...)
	sb := append([]float64(nil), b...)
	sort.Float64s(sa)
	sort.Float64s(sb)

	// Maximum distance between the two empirical CDFs.
	var i, j int
	n1, n2 := float64(len(sa)), float64(len(sb))
	for i < len(sa) && j < len(sb) {
		v1, v2 := sa[i], sb[j]
		if v1 <= v2 {
			i++
		}
		if v2 <= v1 {
			j++
		}
		dist := math.Abs(float64(i)/n1 - float64(j)/n2)
		if dist > d {
			d = dist
		}
	}

	ne := n1 * n2 / (n1 + n2)
	lambda := (math.Sqrt(ne) + 0.12 + 0.11/math.Sqrt(ne)) * d
	return d, kolmogorovQ(lambda), nil
}

// kolmogorovQ is the asymptotic Kolmogorov survival function
// Q(λ) = 2 Σ_{k≥1} (-1)^{k-1} exp(-2 k² λ²).
func kolmogorovQ(lambda float64) float64 {
	if lambda <= 0 {
		return 1
	}
	sum := 0.0
	sign := 1.0
	for k := 1; k <= 100; k++ {
		term := sign * math.Exp(-2*float64(k*k)*lambda*lambda)
		sum += term
		if math.Abs(term) < 1e-12 {
			break
		}
		sign = -sign
	}
	q := 2 * sum
	if q < 0 {
		return 0
	}
	if q > 1 {
		return 1
	}
	return q
}
