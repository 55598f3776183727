package training

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"loadcast/internal/dataset"
	"loadcast/internal/registry"
	"loadcast/pkg/logger"
)

// ErrNoViableModel means every family failed to fit or evaluate.
var ErrNoViableModel = errors.New("no viable model")

// Config controls splitting and per-family fitting.
type Config struct {
	TestFraction       float64
	ValidationFraction float64
	SearchTrials       int
	ARIMAOrder         [3]int
	Seed               int64
}

func (c *Config) applyDefaults() {
	if c.TestFraction <= 0 {
		c.TestFraction = 0.2
	}
	if c.ValidationFraction < 0 {
		c.ValidationFraction = 0.1
	}
	if c.SearchTrials <= 0 {
		c.SearchTrials = 10
	}
	if c.ARIMAOrder == [3]int{} {
		c.ARIMAOrder = [3]int{5, 1, 0}
	}
}

// Registrar records trained model versions.
type Registrar interface {
	NextVersion(ctx context.Context, name string) (int, error)
	Register(ctx context.Context, rec registry.Record) error
}

// Result describes the selected model after a training run.
type Result struct {
	ModelName string  `json:"model_name"`
	Version   int     `json:"version"`
	Family    Family  `json:"family"`
	Metrics   Metrics `json:"metrics"`
	URI       string  `json:"uri"`
}

type candidate struct {
	model   Model
	metrics Metrics
}

// Trainer fits every family on a prepared frame and registers the winner.
type Trainer struct {
	registrar Registrar
	modelDir  string
	cfg       Config
	logger    *logger.Logger
}

// NewTrainer creates a Trainer persisting artifacts under modelDir.
func NewTrainer(reg Registrar, modelDir string, cfg Config, log *logger.Logger) *Trainer {
	cfg.applyDefaults()
	return &Trainer{
		registrar: reg,
		modelDir:  modelDir,
		cfg:       cfg,
		logger:    log,
	}
}

// Run trains all families, selects by test MAPE (ties broken by MAE), saves
// the winning artifact and registers it under modelName. A family that fails
// to fit or evaluate is excluded, never fatal; only all families failing is.
func (t *Trainer) Run(ctx context.Context, frame *dataset.Frame, modelName, target string) (*Result, error) {
	train, val, test, err := Split(frame, t.cfg.TestFraction, t.cfg.ValidationFraction)
	if err != nil {
		return nil, err
	}
	actual, ok := test.Column(target)
	if !ok {
		return nil, fmt.Errorf("%w: target column %q missing", ErrNoViableModel, target)
	}

	candidates := make(map[Family]candidate)
	for _, family := range Families {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		model, err := NewModel(family, t.cfg)
		if err != nil {
			return nil, err
		}
		if err := model.Fit(train, val, target); err != nil {
			t.logger.Warn("family excluded: fit failed",
				logger.String("family", string(family)), logger.Error(err))
			continue
		}

		pred, err := model.Predict(test)
		if err != nil {
			t.logger.Warn("family excluded: evaluation failed",
				logger.String("family", string(family)), logger.Error(err))
			continue
		}

		m := Evaluate(actual, pred)
		candidates[family] = candidate{model: model, metrics: m}
		t.logger.Info("family evaluated",
			logger.String("family", string(family)),
			logger.Float64("mape", m.MAPE),
			logger.Float64("mae", m.MAE),
			logger.Float64("r2", m.R2))
	}

	if len(candidates) == 0 {
		return nil, ErrNoViableModel
	}

	best := selectBest(candidates)
	winner := candidates[best]

	version, err := t.registrar.NextVersion(ctx, modelName)
	if err != nil {
		return nil, fmt.Errorf("allocate version: %w", err)
	}
	uri := filepath.Join(t.modelDir, modelName, fmt.Sprintf("v%d", version), "model.json")
	if err := SaveArtifact(uri, winner.model, target); err != nil {
		return nil, err
	}

	rec := registry.Record{
		Name:     modelName,
		Version:  version,
		Family:   string(best),
		URI:      uri,
		Features: winner.model.Features(),
		Metrics: map[string]float64{
			"mape": winner.metrics.MAPE,
			"mae":  winner.metrics.MAE,
			"r2":   winner.metrics.R2,
		},
	}
	if err := t.registrar.Register(ctx, rec); err != nil {
		return nil, fmt.Errorf("register model: %w", err)
	}

	t.logger.Info("model selected",
		logger.String("model", modelName),
		logger.Int("version", version),
		logger.String("family", string(best)),
		logger.Float64("mape", winner.metrics.MAPE))

	return &Result{
		ModelName: modelName,
		Version:   version,
		Family:    best,
		Metrics:   winner.metrics,
		URI:       uri,
	}, nil
}

// selectBest picks the family with the lowest MAPE, breaking ties by MAE.
// Iteration walks the fixed family order so selection is deterministic.
func selectBest(candidates map[Family]candidate) Family {
	var best Family
	first := true
	for _, family := range Families {
		c, ok := candidates[family]
		if !ok {
			continue
		}
		if first {
			best, first = family, false
			continue
		}
		b := candidates[best]
		if c.metrics.MAPE < b.metrics.MAPE ||
			(c.metrics.MAPE == b.metrics.MAPE && c.metrics.MAE < b.metrics.MAE) {
			best = family
		}
	}
	return best
}
