package serving

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"loadcast/internal/dataset"
	"loadcast/internal/registry"
	"loadcast/internal/store"
	"loadcast/internal/training"
	"loadcast/pkg/cache"
	"loadcast/pkg/logger"
	"loadcast/pkg/metrics"
)

func trainedFrame(t *testing.T, n int) *dataset.Frame {
	t.Helper()
	f := dataset.New("timestamp")
	base := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	vals := make([]float64, n)
	for i := 0; i < n; i++ {
		f.Times = append(f.Times, base.Add(time.Duration(i)*time.Hour))
		vals[i] = 100 + 25*math.Sin(2*math.Pi*float64(i%24)/24)
	}
	if err := f.AddColumn("load", vals); err != nil {
		t.Fatalf("AddColumn: %v", err)
	}
	f.AddCalendarFeatures()
	return f
}

// registerModel fits a model of the given family and registers it.
func registerModel(t *testing.T, reg *registry.Registry, dir, name string, family training.Family) {
	t.Helper()
	f := trainedFrame(t, 24*10)

	var m training.Model
	switch family {
	case training.FamilySeasonal:
		m = &training.SeasonalModel{}
	case training.FamilyGBT:
		m = training.NewGBTModel(2, 11)
	case training.FamilyARIMA:
		m = &training.ARIMAModel{P: 3, D: 1, Q: 0}
	default:
		m = &training.NaiveModel{}
	}
	if err := m.Fit(f, nil, "load"); err != nil {
		t.Fatalf("fit %s: %v", family, err)
	}

	uri := filepath.Join(dir, name, "v1", "model.json")
	if err := training.SaveArtifact(uri, m, "load"); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}
	err := reg.Register(context.Background(), registry.Record{
		Name:     name,
		Version:  1,
		Family:   string(family),
		URI:      uri,
		Features: m.Features(),
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *registry.Registry, string) {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	reg := registry.New(s.DB())
	dir := t.TempDir()
	return NewDispatcher(reg, "", logger.Nop(), metrics.Nop()), reg, dir
}

func TestSeasonalPredictEnvelope(t *testing.T) {
	d, reg, dir := newTestDispatcher(t)
	registerModel(t, reg, dir, "m-seasonal", training.FamilySeasonal)

	req := &PredictRequest{Columns: map[string][]interface{}{
		"ds": {"2023-02-01T00:00:00Z", "2023-02-01T01:00:00Z"},
	}}
	points, err := d.Predict(context.Background(), "m-seasonal", req)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("points = %d, want 2", len(points))
	}
	if points[0].Index != "2023-02-01T00:00:00Z" {
		t.Fatalf("index = %q, want ISO timestamp", points[0].Index)
	}

	// Missing ds column violates the seasonal contract.
	if _, err := d.Predict(context.Background(), "m-seasonal", &PredictRequest{Steps: 3}); !errors.Is(err, ErrBadInput) {
		t.Fatalf("err = %v, want ErrBadInput", err)
	}
}

func TestGBTMissingFeaturesAreNamed(t *testing.T) {
	d, reg, dir := newTestDispatcher(t)
	registerModel(t, reg, dir, "m-gbt", training.FamilyGBT)

	req := &PredictRequest{Columns: map[string][]interface{}{
		"hour": {1.0, 2.0},
	}}
	_, err := d.Predict(context.Background(), "m-gbt", req)

	var missing *MissingFeaturesError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want MissingFeaturesError", err)
	}
	for _, f := range missing.Missing {
		if f == "hour" {
			t.Fatal("provided column reported missing")
		}
	}
	if len(missing.Missing) == 0 {
		t.Fatal("no missing columns named")
	}
}

func TestGBTPredictWithFullFeatures(t *testing.T) {
	d, reg, dir := newTestDispatcher(t)
	registerModel(t, reg, dir, "m-gbt", training.FamilyGBT)

	if err := d.Load(context.Background(), "m-gbt"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	info, err := d.Info("m-gbt")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}

	cols := make(map[string][]interface{}, len(info.Features)+1)
	for _, f := range info.Features {
		cols[f] = []interface{}{1.0, 2.0}
	}
	cols["extra"] = []interface{}{9.0, 9.0} // ignored

	points, err := d.Predict(context.Background(), "m-gbt", &PredictRequest{Columns: cols})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(points) != 2 || points[0].Index != "0" {
		t.Fatalf("points = %+v", points)
	}
}

func TestARIMAStepsContract(t *testing.T) {
	d, reg, dir := newTestDispatcher(t)
	registerModel(t, reg, dir, "m-arima", training.FamilyARIMA)

	if _, err := d.Predict(context.Background(), "m-arima", &PredictRequest{}); !errors.Is(err, ErrBadInput) {
		t.Fatalf("err = %v, want ErrBadInput", err)
	}

	points, err := d.Predict(context.Background(), "m-arima", &PredictRequest{Steps: 4})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(points) != 4 {
		t.Fatalf("points = %d, want 4", len(points))
	}
	if _, perr := time.Parse(time.RFC3339, points[0].Index); perr != nil {
		t.Fatalf("index %q is not ISO-8601", points[0].Index)
	}
}

func TestNaiveAcceptsAnything(t *testing.T) {
	d, reg, dir := newTestDispatcher(t)
	registerModel(t, reg, dir, "m-naive", training.FamilyNaive)

	points, err := d.Predict(context.Background(), "m-naive", &PredictRequest{
		Columns: map[string][]interface{}{"whatever": {1, 2, 3}},
	})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("points = %d, want 3", len(points))
	}

	if _, err := d.Predict(context.Background(), "m-naive", &PredictRequest{}); !errors.Is(err, ErrConversionFailed) {
		t.Fatalf("err = %v, want ErrConversionFailed", err)
	}
}

// countingCache wraps a cache.Service and counts reads and writes.
type countingCache struct {
	cache.Service
	gets, sets int
}

func (c *countingCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.gets++
	return c.Service.Get(ctx, key, dest)
}

func (c *countingCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.sets++
	return c.Service.Set(ctx, key, value, ttl)
}

func TestPredictResultCache(t *testing.T) {
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	reg := registry.New(s.DB())
	dir := t.TempDir()
	registerModel(t, reg, dir, "m-naive", training.FamilyNaive)

	mem := cache.NewMemoryCache()
	t.Cleanup(func() { mem.Close() })
	counting := &countingCache{Service: mem}

	d := NewDispatcher(reg, "", logger.Nop(), metrics.Nop(),
		WithResultCache(counting, time.Minute))

	req := &PredictRequest{Steps: 3}
	first, err := d.Predict(context.Background(), "m-naive", req)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if counting.sets != 1 {
		t.Fatalf("sets = %d, want 1", counting.sets)
	}

	second, err := d.Predict(context.Background(), "m-naive", req)
	if err != nil {
		t.Fatalf("Predict (cached): %v", err)
	}
	if counting.sets != 1 {
		t.Fatalf("cached hit wrote again, sets = %d", counting.sets)
	}
	if len(second) != len(first) || second[0] != first[0] {
		t.Fatalf("cached response diverged: %+v vs %+v", second, first)
	}

	// A different request must miss the cache.
	if _, err := d.Predict(context.Background(), "m-naive", &PredictRequest{Steps: 5}); err != nil {
		t.Fatalf("Predict (new request): %v", err)
	}
	if counting.sets != 2 {
		t.Fatalf("sets = %d, want 2", counting.sets)
	}
}

func TestInfoRequiresLoadedModel(t *testing.T) {
	d, reg, dir := newTestDispatcher(t)
	registerModel(t, reg, dir, "m", training.FamilyNaive)

	if _, err := d.Info("m"); !errors.Is(err, ErrModelNotLoaded) {
		t.Fatalf("err = %v, want ErrModelNotLoaded", err)
	}

	if err := d.Load(context.Background(), "m"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	info, err := d.Info("m")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Version != 1 || info.Family != training.FamilyNaive {
		t.Fatalf("info = %+v", info)
	}

	d.Evict("m")
	if _, err := d.Info("m"); !errors.Is(err, ErrModelNotLoaded) {
		t.Fatalf("after evict err = %v, want ErrModelNotLoaded", err)
	}

	if _, err := d.Predict(context.Background(), "ghost", &PredictRequest{Steps: 1}); !errors.Is(err, registry.ErrModelNotFound) {
		t.Fatalf("err = %v, want registry.ErrModelNotFound", err)
	}
}
