package training

import (
	"math"
	"path/filepath"
	"testing"
)

// dailyPattern is a load-like signal: a base level, a mild trend and a strong
// hour-of-day cycle.
func dailyPattern(i int) float64 {
	hour := i % 24
	return 100 + 0.05*float64(i) + 25*math.Sin(2*math.Pi*float64(hour)/24)
}

func TestSeasonalFitAndForecast(t *testing.T) {
	f := hourlyFrame(t, 24*14, dailyPattern)
	train, val, test, err := Split(f, 0.2, 0.1)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	m := &SeasonalModel{}
	if err := m.Fit(train, val, "load"); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	pred, err := m.Predict(test)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	actual, _ := test.Column("load")
	if mape := MAPE(actual, pred); mape > 0.1 {
		t.Fatalf("seasonal MAPE = %v on a clean seasonal signal", mape)
	}

	times, vals := m.Forecast(5)
	if len(times) != 5 || len(vals) != 5 {
		t.Fatalf("Forecast lengths: %d, %d", len(times), len(vals))
	}
	if !times[0].After(m.LastTime) {
		t.Fatal("forecast should start after the training window")
	}
}

func TestGBTFitPredictAndFeatures(t *testing.T) {
	f := hourlyFrame(t, 24*14, dailyPattern)
	train, val, test, err := Split(f, 0.2, 0.1)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	m := NewGBTModel(3, 42)
	if err := m.Fit(train, val, "load"); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if len(m.Features()) == 0 {
		t.Fatal("fitted model records no features")
	}

	pred, err := m.Predict(test)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	actual, _ := test.Column("load")
	if mape := MAPE(actual, pred); mape > 0.25 {
		t.Fatalf("gbt MAPE = %v on a learnable signal", mape)
	}

	// Columnar prediction rejects incomplete input.
	if _, err := m.PredictRows(map[string][]float64{"hour": {1}}, 1); err == nil {
		t.Fatal("expected error for missing feature columns")
	}
}

func TestARIMAForecastIsFinite(t *testing.T) {
	f := hourlyFrame(t, 24*14, dailyPattern)
	train, val, test, err := Split(f, 0.2, 0.1)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	m := &ARIMAModel{P: 5, D: 1, Q: 0}
	if err := m.Fit(train, val, "load"); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	pred, err := m.Predict(test)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(pred) != test.Len() {
		t.Fatalf("pred len = %d, want %d", len(pred), test.Len())
	}
	for i, v := range pred {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("non-finite forecast at step %d: %v", i, v)
		}
	}
}

func TestNaivePersistence(t *testing.T) {
	f := hourlyFrame(t, 48, func(i int) float64 { return float64(i) })
	m := &NaiveModel{}
	if err := m.Fit(f, nil, "load"); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	_, vals := m.Forecast(3)
	for _, v := range vals {
		if v != 47 {
			t.Fatalf("naive forecast = %v, want 47", v)
		}
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	f := hourlyFrame(t, 24*7, dailyPattern)
	m := &SeasonalModel{}
	if err := m.Fit(f, nil, "load"); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	path := filepath.Join(t.TempDir(), "model.json")
	if err := SaveArtifact(path, m, "load"); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}

	loaded, art, err := LoadArtifact(path)
	if err != nil {
		t.Fatalf("LoadArtifact: %v", err)
	}
	if art.Family != FamilySeasonal || art.Target != "load" {
		t.Fatalf("artifact header: %+v", art)
	}

	want := m.ForecastAt(f.Times[:3])
	got, err := loaded.Predict(f.Slice(0, 3))
	if err != nil {
		t.Fatalf("Predict on loaded model: %v", err)
	}
	for i := range want {
		if math.Abs(want[i]-got[i]) > 1e-9 {
			t.Fatalf("loaded model diverges at %d: %v vs %v", i, got[i], want[i])
		}
	}
}

func TestInferFamily(t *testing.T) {
	cases := map[string]Family{
		"models/x/v1/seasonal.json": FamilySeasonal,
		"prophet-export":            FamilySeasonal,
		"lightgbm v3":               FamilyGBT,
		"arima(5,1,0)":              FamilyARIMA,
		"something-else":            FamilyNaive,
	}
	for hint, want := range cases {
		if got := InferFamily(hint); got != want {
			t.Fatalf("InferFamily(%q) = %q, want %q", hint, got, want)
		}
	}
}
