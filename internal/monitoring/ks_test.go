package monitoring

import (
	"errors"
	"math/rand"
	"testing"
)

func TestKSSameDistribution(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	a := make([]float64, 500)
	b := make([]float64, 500)
	for i := range a {
		a[i] = rng.NormFloat64()
		b[i] = rng.NormFloat64()
	}

	_, p, err := KSTest(a, b)
	if err != nil {
		t.Fatalf("KSTest: %v", err)
	}
	if p < 0.05 {
		t.Fatalf("p = %v, same-distribution samples should not be flagged at 0.05", p)
	}
}

func TestKSDetectsMeanShift(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	a := make([]float64, 400)
	b := make([]float64, 400)
	for i := range a {
		a[i] = rng.NormFloat64()
		b[i] = rng.NormFloat64() + 1.5
	}

	d, p, err := KSTest(a, b)
	if err != nil {
		t.Fatalf("KSTest: %v", err)
	}
	if p > 0.001 {
		t.Fatalf("p = %v (D=%v), a 1.5σ shift must be detected", p, d)
	}
}

func TestKSTooFewObservations(t *testing.T) {
	if _, _, err := KSTest([]float64{1}, []float64{1, 2, 3}); !errors.Is(err, ErrTooFewObservations) {
		t.Fatalf("err = %v, want ErrTooFewObservations", err)
	}
}

func TestKolmogorovQBounds(t *testing.T) {
	if q := kolmogorovQ(0); q != 1 {
		t.Fatalf("Q(0) = %v, want 1", q)
	}
	if q := kolmogorovQ(10); q > 1e-10 {
		t.Fatalf("Q(10) = %v, want ~0", q)
	}
	mid := kolmogorovQ(0.8)
	if mid <= 0 || mid >= 1 {
		t.Fatalf("Q(0.8) = %v, want in (0,1)", mid)
	}
}
