package serving

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"loadcast/internal/registry"
	"loadcast/internal/training"
	"loadcast/pkg/cache"
	"loadcast/pkg/logger"
	"loadcast/pkg/metrics"
	"loadcast/pkg/util"
)

// Point is one output row of a prediction. Index is an ISO-8601 timestamp
// when the model forecasts in time, otherwise a row ordinal.
type Point struct {
	Index string  `json:"index"`
	Value float64 `json:"value"`
}

// PredictRequest is the polymorphic prediction input. Time-step models use
// Steps; feature models consume Columns.
type PredictRequest struct {
	Steps   int                      `json:"steps,omitempty"`
	Columns map[string][]interface{} `json:"columns,omitempty"`
}

// ModelInfo describes one loaded model.
type ModelInfo struct {
	Name     string             `json:"name"`
	Version  int                `json:"version"`
	Family   training.Family    `json:"family"`
	Features []string           `json:"features,omitempty"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
	URI      string             `json:"uri"`
}

type loadedModel struct {
	model  training.Model
	record *registry.Record
	family training.Family
}

// Dispatcher loads registered models into an in-process cache and routes
// prediction requests by family. The registry decides which version a name
// resolves to; the dispatcher owns only the cache.
type Dispatcher struct {
	mu    sync.RWMutex
	cache map[string]*loadedModel

	registry *registry.Registry
	stage    string
	logger   *logger.Logger
	recorder *metrics.Recorder

	results    cache.Service
	resultsTTL time.Duration
}

// DispatcherOption configures optional dispatcher behavior.
type DispatcherOption func(*Dispatcher)

// WithResultCache caches successful prediction responses keyed by model
// version and request body. Identical requests within the TTL skip the model.
func WithResultCache(c cache.Service, ttl time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.results = c
		d.resultsTTL = ttl
	}
}

// NewDispatcher creates a Dispatcher resolving names at the given stage.
func NewDispatcher(reg *registry.Registry, stage string, log *logger.Logger, rec *metrics.Recorder, opts ...DispatcherOption) *Dispatcher {
	if stage == "" {
		stage = registry.StageNone
	}
	d := &Dispatcher{
		cache:    make(map[string]*loadedModel),
		registry: reg,
		stage:    stage,
		logger:   log,
		recorder: rec,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.results != nil && d.resultsTTL <= 0 {
		d.resultsTTL = 30 * time.Second
	}
	return d
}

// Load resolves the latest version of name at the dispatcher's stage and
// pulls its artifact into the cache, replacing any older cached version.
func (d *Dispatcher) Load(ctx context.Context, name string) error {
	rec, err := d.registry.Latest(ctx, name, d.stage)
	if err != nil {
		return err
	}

	family, ok := training.ParseFamily(rec.Family)
	if !ok {
		family = training.InferFamily(rec.URI)
		d.logger.Warn("unknown family in registry metadata, inferred from artifact",
			logger.String("model", name),
			logger.String("recorded", rec.Family),
			logger.String("inferred", string(family)))
	}

	model, _, err := training.LoadArtifact(rec.URI)
	if err != nil {
		return fmt.Errorf("%w: load artifact for %s v%d: %v", ErrPredictionUnavailable, name, rec.Version, err)
	}
	// The artifact is authoritative about what was actually serialized.
	if model.Family() != family {
		family = model.Family()
	}

	d.mu.Lock()
	d.cache[name] = &loadedModel{model: model, record: rec, family: family}
	d.mu.Unlock()

	d.logger.Info("model loaded",
		logger.String("model", name),
		logger.Int("version", rec.Version),
		logger.String("family", string(family)))
	return nil
}

// Evict drops a model from the cache.
func (d *Dispatcher) Evict(name string) {
	d.mu.Lock()
	delete(d.cache, name)
	d.mu.Unlock()
}

// Info reports the cached model for name, without loading anything.
func (d *Dispatcher) Info(name string) (*ModelInfo, error) {
	d.mu.RLock()
	lm, ok := d.cache[name]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotLoaded, name)
	}
	return &ModelInfo{
		Name:     lm.record.Name,
		Version:  lm.record.Version,
		Family:   lm.family,
		Features: lm.record.Features,
		Metrics:  lm.record.Metrics,
		URI:      lm.record.URI,
	}, nil
}

// Loaded lists the names of every cached model, sorted.
func (d *Dispatcher) Loaded() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.cache))
	for name := range d.cache {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Predict routes the request to the model's family-specific input contract.
// Models are loaded lazily on first use.
func (d *Dispatcher) Predict(ctx context.Context, name string, req *PredictRequest) ([]Point, error) {
	d.mu.RLock()
	lm, ok := d.cache[name]
	d.mu.RUnlock()
	if !ok {
		if err := d.Load(ctx, name); err != nil {
			return nil, err
		}
		d.mu.RLock()
		lm = d.cache[name]
		d.mu.RUnlock()
	}

	key := d.resultKey(name, lm.record.Version, req)
	if key != "" {
		var cached []Point
		if err := d.results.Get(ctx, key, &cached); err == nil {
			d.recorder.RecordPrediction(string(lm.family), "ok")
			return cached, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			d.logger.Warn("prediction cache read failed",
				logger.String("model", name), logger.Error(err))
		}
	}

	points, err := d.dispatch(lm, req)
	if err != nil {
		d.recorder.RecordPrediction(string(lm.family), "error")
		return nil, err
	}
	d.recorder.RecordPrediction(string(lm.family), "ok")

	if key != "" {
		if err := d.results.Set(ctx, key, points, d.resultsTTL); err != nil {
			d.logger.Warn("prediction cache write failed",
				logger.String("model", name), logger.Error(err))
		}
	}
	return points, nil
}

// resultKey is empty when result caching is off or the request cannot be
// canonicalized.
func (d *Dispatcher) resultKey(name string, version int, req *PredictRequest) string {
	if d.results == nil {
		return ""
	}
	body, err := json.Marshal(req)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(body)
	return fmt.Sprintf("pred:%s:v%d:%s", name, version, hex.EncodeToString(sum[:16]))
}

func (d *Dispatcher) dispatch(lm *loadedModel, req *PredictRequest) ([]Point, error) {
	switch m := lm.model.(type) {
	case *training.SeasonalModel:
		return predictSeasonal(m, req)
	case *training.GBTModel:
		return predictGBT(m, req)
	case *training.ARIMAModel:
		return predictARIMA(m, req)
	case *training.NaiveModel:
		return predictNaive(m, req)
	}
	return nil, fmt.Errorf("%w: unsupported model type %T", ErrPredictionUnavailable, lm.model)
}

// predictSeasonal requires a "ds" column of parseable timestamps.
func predictSeasonal(m *training.SeasonalModel, req *PredictRequest) ([]Point, error) {
	raw, ok := req.Columns["ds"]
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("%w: seasonal models require a non-empty \"ds\" column of timestamps", ErrBadInput)
	}
	times := make([]time.Time, len(raw))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: ds[%d] is not a string", ErrBadInput, i)
		}
		t, ok := util.ParseTimeAny(s)
		if !ok {
			return nil, fmt.Errorf("%w: ds[%d] value %q is not a timestamp", ErrBadInput, i, s)
		}
		times[i] = t
	}

	vals := m.ForecastAt(times)
	points := make([]Point, len(vals))
	for i := range vals {
		points[i] = Point{Index: times[i].UTC().Format(time.RFC3339), Value: vals[i]}
	}
	return points, nil
}

// predictGBT requires every recorded feature column; extras are ignored.
func predictGBT(m *training.GBTModel, req *PredictRequest) ([]Point, error) {
	features := m.Features()

	var missing []string
	for _, f := range features {
		if _, ok := req.Columns[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingFeaturesError{Missing: missing}
	}

	n := -1
	cols := make(map[string][]float64, len(features))
	for _, f := range features {
		vals, err := toFloats(req.Columns[f])
		if err != nil {
			return nil, fmt.Errorf("%w: column %q: %v", ErrConversionFailed, f, err)
		}
		if n == -1 {
			n = len(vals)
		} else if len(vals) != n {
			return nil, fmt.Errorf("%w: column %q has %d values, others have %d", ErrBadInput, f, len(vals), n)
		}
		cols[f] = vals
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: feature columns are empty", ErrBadInput)
	}

	vals, err := m.PredictRows(cols, n)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPredictionUnavailable, err)
	}
	points := make([]Point, len(vals))
	for i := range vals {
		points[i] = Point{Index: strconv.Itoa(i), Value: vals[i]}
	}
	return points, nil
}

// predictARIMA requires a positive integer step count.
func predictARIMA(m *training.ARIMAModel, req *PredictRequest) ([]Point, error) {
	if req.Steps <= 0 {
		return nil, fmt.Errorf("%w: arima models require steps > 0", ErrBadInput)
	}
	times, vals := m.Forecast(req.Steps)
	points := make([]Point, len(vals))
	for i := range vals {
		points[i] = Point{Index: times[i].UTC().Format(time.RFC3339), Value: vals[i]}
	}
	return points, nil
}

// predictNaive accepts a step count or any tabular input whose row count
// decides the output length.
func predictNaive(m *training.NaiveModel, req *PredictRequest) ([]Point, error) {
	if req.Steps > 0 {
		times, vals := m.Forecast(req.Steps)
		points := make([]Point, len(vals))
		for i := range vals {
			points[i] = Point{Index: times[i].UTC().Format(time.RFC3339), Value: vals[i]}
		}
		return points, nil
	}

	n := 0
	for _, col := range req.Columns {
		if len(col) > n {
			n = len(col)
		}
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: provide steps or at least one non-empty column", ErrConversionFailed)
	}
	points := make([]Point, n)
	for i := 0; i < n; i++ {
		points[i] = Point{Index: strconv.Itoa(i), Value: m.LastValue}
	}
	return points, nil
}

// toFloats converts a JSON-decoded column to floats.
func toFloats(raw []interface{}) ([]float64, error) {
	out := make([]float64, len(raw))
	for i, v := range raw {
		switch val := v.(type) {
		case float64:
			out[i] = val
		case int:
			out[i] = float64(val)
		case string:
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, fmt.Errorf("value %q at row %d is not numeric", val, i)
			}
			out[i] = f
		default:
			return nil, fmt.Errorf("unsupported value type %T at row %d", v, i)
		}
	}
	return out, nil
}
