package training

import "math"

// Metrics holds the evaluation suite for one model on one sample.
type Metrics struct {
	MAPE float64 `json:"mape"`
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2"`
}

// Evaluate computes the full metric suite.
func Evaluate(actual, pred []float64) Metrics {
	return Metrics{
		MAPE: MAPE(actual, pred),
		MAE:  MAE(actual, pred),
		R2:   R2(actual, pred),
	}
}

// MAPE is the mean absolute percentage error over rows with non-zero actuals.
// When every actual is zero it returns 0 if predictions are also (near) zero,
// +Inf otherwise. Non-finite predictions yield +Inf.
func MAPE(actual, pred []float64) float64 {
	if len(actual) == 0 || len(actual) != len(pred) {
		return math.Inf(1)
	}
	if !allFinite(pred) {
		return math.Inf(1)
	}

	sum, n := 0.0, 0
	for i := range actual {
		if actual[i] == 0 {
			continue
		}
		sum += math.Abs((actual[i] - pred[i]) / actual[i])
		n++
	}
	if n > 0 {
		return sum / float64(n)
	}

	// All actuals zero: a prediction that is essentially zero is perfect.
	for _, p := range pred {
		if math.Abs(p) > 1e-9 {
			return math.Inf(1)
		}
	}
	return 0
}

// MAE is the mean absolute error, +Inf on non-finite predictions.
func MAE(actual, pred []float64) float64 {
	if len(actual) == 0 || len(actual) != len(pred) || !allFinite(pred) {
		return math.Inf(1)
	}
	sum := 0.0
	for i := range actual {
		sum += math.Abs(actual[i] - pred[i])
	}
	return sum / float64(len(actual))
}

// R2 is the coefficient of determination, -Inf on non-finite predictions.
func R2(actual, pred []float64) float64 {
	if len(actual) == 0 || len(actual) != len(pred) || !allFinite(pred) {
		return math.Inf(-1)
	}

	mean := 0.0
	for _, a := range actual {
		mean += a
	}
	mean /= float64(len(actual))

	var ssRes, ssTot float64
	for i := range actual {
		ssRes += (actual[i] - pred[i]) * (actual[i] - pred[i])
		ssTot += (actual[i] - mean) * (actual[i] - mean)
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return math.Inf(-1)
	}
	return 1 - ssRes/ssTot
}

func allFinite(vals []float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
