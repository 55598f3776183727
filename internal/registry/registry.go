package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrModelNotFound means no registered version matches the lookup.
var ErrModelNotFound = errors.New("model not found")

// StageNone is the default lifecycle stage for new versions.
const StageNone = "None"

// Record is one immutable registered model version.
type Record struct {
	Name      string             `json:"name"`
	Version   int                `json:"version"`
	Family    string             `json:"family"`
	URI       string             `json:"uri"`
	Stage     string             `json:"stage"`
	Features  []string           `json:"features,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// Registry is the SQLite-backed model registry. It shares the store's
// connection; versions are monotonically increasing per name and records are
// never rewritten.
type Registry struct {
	db *sql.DB
}

// New wraps an open database that already carries the registry schema.
func New(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// NextVersion returns the version the next Register call for name will get.
func (r *Registry) NextVersion(ctx context.Context, name string) (int, error) {
	var max sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM registered_models WHERE name = ?`, name).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("query max version: %w", err)
	}
	return int(max.Int64) + 1, nil
}

// Register inserts a new version. A zero version is assigned automatically;
// stage defaults to None.
func (r *Registry) Register(ctx context.Context, rec Record) error {
	if rec.Name == "" {
		return errors.New("model name is required")
	}
	if rec.Version == 0 {
		v, err := r.NextVersion(ctx, rec.Name)
		if err != nil {
			return err
		}
		rec.Version = v
	}
	if rec.Stage == "" {
		rec.Stage = StageNone
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	features, err := json.Marshal(rec.Features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	metrics, err := marshalMetrics(rec.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO registered_models (name, version, family, uri, stage, features, metrics, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Name, rec.Version, rec.Family, rec.URI, rec.Stage,
		string(features), string(metrics), rec.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert model version: %w", err)
	}
	return nil
}

const recordColumns = `name, version, family, uri, stage, features, metrics, created_at`

// Latest returns the newest version of name in the given stage, falling back
// to the newest version overall when no version carries that stage.
func (r *Registry) Latest(ctx context.Context, name, stage string) (*Record, error) {
	if stage == "" {
		stage = StageNone
	}
	rec, err := r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM registered_models
		 WHERE name = ? AND stage = ? ORDER BY version DESC LIMIT 1`, name, stage))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrModelNotFound) {
		return nil, err
	}
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM registered_models
		 WHERE name = ? ORDER BY version DESC LIMIT 1`, name))
}

// Get returns one exact version.
func (r *Registry) Get(ctx context.Context, name string, version int) (*Record, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM registered_models
		 WHERE name = ? AND version = ?`, name, version))
}

// Versions lists all versions of a model, oldest first.
func (r *Registry) Versions(ctx context.Context, name string) ([]*Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM registered_models
		 WHERE name = ? ORDER BY version ASC`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *Registry) scanOne(row rowScanner) (*Record, error) {
	var rec Record
	var features, metrics, createdAt string
	err := row.Scan(&rec.Name, &rec.Version, &rec.Family, &rec.URI, &rec.Stage,
		&features, &metrics, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrModelNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(features), &rec.Features); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	if err := unmarshalMetrics(metrics, &rec.Metrics); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &rec, nil
}

// marshalMetrics tolerates non-finite values, which JSON cannot carry, by
// storing them as strings.
func marshalMetrics(m map[string]float64) ([]byte, error) {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if isFinite(v) {
			out[k] = v
		} else {
			out[k] = fmt.Sprintf("%g", v)
		}
	}
	return json.Marshal(out)
}

func unmarshalMetrics(s string, dst *map[string]float64) error {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return err
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case float64:
			out[k] = val
		case string:
			var f float64
			if _, err := fmt.Sscanf(val, "%g", &f); err != nil {
				return fmt.Errorf("metric %q: %w", k, err)
			}
			out[k] = f
		}
	}
	*dst = out
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
