package training

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"loadcast/internal/dataset"
)

// Model is one trainable forecaster. Fit receives an optional validation
// segment; families that do not tune hyperparameters ignore it.
type Model interface {
	Family() Family
	Fit(train, val *dataset.Frame, target string) error
	// Predict produces one value per row of the held-out frame.
	Predict(f *dataset.Frame) ([]float64, error)
	// Features lists the input columns the model consumes, empty for
	// time-only models.
	Features() []string
}

// ErrUnknownFamily means an artifact names a family this build cannot load.
var ErrUnknownFamily = errors.New("unknown model family")

// Artifact is the on-disk JSON envelope for a fitted model.
type Artifact struct {
	Family   Family          `json:"family"`
	Target   string          `json:"target"`
	Features []string        `json:"features,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// NewModel constructs an unfitted model of the given family.
func NewModel(family Family, cfg Config) (Model, error) {
	switch family {
	case FamilySeasonal:
		return &SeasonalModel{}, nil
	case FamilyGBT:
		return NewGBTModel(cfg.SearchTrials, cfg.Seed), nil
	case FamilyARIMA:
		return &ARIMAModel{P: cfg.ARIMAOrder[0], D: cfg.ARIMAOrder[1], Q: cfg.ARIMAOrder[2]}, nil
	case FamilyNaive:
		return &NaiveModel{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFamily, family)
}

// SaveArtifact serializes a fitted model to path.
func SaveArtifact(path string, m Model, target string) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	art := Artifact{
		Family:   m.Family(),
		Target:   target,
		Features: m.Features(),
		Payload:  payload,
	}
	data, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// LoadArtifact reads an artifact and reconstructs the fitted model.
func LoadArtifact(path string) (Model, *Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read artifact: %w", err)
	}
	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, nil, fmt.Errorf("decode artifact: %w", err)
	}

	var m Model
	switch art.Family {
	case FamilySeasonal:
		m = &SeasonalModel{}
	case FamilyGBT:
		m = &GBTModel{}
	case FamilyARIMA:
		m = &ARIMAModel{}
	case FamilyNaive:
		m = &NaiveModel{}
	default:
		return nil, nil, fmt.Errorf("%w: %q in %s", ErrUnknownFamily, art.Family, path)
	}
	if err := json.Unmarshal(art.Payload, m); err != nil {
		return nil, nil, fmt.Errorf("decode %s payload: %w", art.Family, err)
	}
	return m, &art, nil
}
