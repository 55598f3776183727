package training

import (
	"math"
	"testing"
)

func TestMAPEConventions(t *testing.T) {
	cases := []struct {
		name   string
		actual []float64
		pred   []float64
		want   float64
	}{
		{"exact", []float64{10, 20}, []float64{10, 20}, 0},
		{"zero rows excluded", []float64{0, 10}, []float64{5, 11}, 0.1},
		{"all zero true, zero preds", []float64{0, 0, 0}, []float64{0, 0, 0}, 0},
		{"all zero true, nonzero preds", []float64{0}, []float64{5}, math.Inf(1)},
		{"non-finite preds", []float64{1, 2}, []float64{math.NaN(), 2}, math.Inf(1)},
		{"empty", nil, nil, math.Inf(1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := MAPE(tc.actual, tc.pred)
			if math.IsInf(tc.want, 1) {
				if !math.IsInf(got, 1) {
					t.Fatalf("MAPE = %v, want +Inf", got)
				}
				return
			}
			if math.Abs(got-tc.want) > 1e-12 {
				t.Fatalf("MAPE = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMAEAndR2Degradation(t *testing.T) {
	actual := []float64{1, 2, 3}
	bad := []float64{1, math.Inf(1), 3}

	if got := MAE(actual, bad); !math.IsInf(got, 1) {
		t.Fatalf("MAE = %v, want +Inf", got)
	}
	if got := R2(actual, bad); !math.IsInf(got, -1) {
		t.Fatalf("R2 = %v, want -Inf", got)
	}

	if got := MAE(actual, []float64{2, 3, 4}); got != 1 {
		t.Fatalf("MAE = %v, want 1", got)
	}
	if got := R2(actual, actual); got != 1 {
		t.Fatalf("R2 = %v, want 1", got)
	}
}
