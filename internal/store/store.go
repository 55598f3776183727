package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrProjectNotFound means no project exists with the given id.
var ErrProjectNotFound = errors.New("project not found")

// Status is a project lifecycle state.
type Status string

const (
	StatusNew          Status = "New"
	StatusDataUploaded Status = "DataUploaded"
	StatusProcessing   Status = "Processing"
	StatusProcessed    Status = "Processed"
	StatusReady        Status = "Ready"
	StatusError        Status = "Error"
)

// Project is one forecasting project and its durable run state.
type Project struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Status        Status    `json:"status"`
	RawSource     string    `json:"raw_source,omitempty"`
	DatetimeCol   string    `json:"datetime_col,omitempty"`
	ValueCol      string    `json:"value_col,omitempty"`
	ProcessedPath string    `json:"processed_path,omitempty"`
	Horizon       int       `json:"horizon,omitempty"`
	Granularity   string    `json:"granularity,omitempty"`
	TargetUnit    string    `json:"target_unit,omitempty"`
	ModelName     string    `json:"model_name,omitempty"`
	ModelVersion  int       `json:"model_version,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Store wraps a SQLite database holding projects and the model registry.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	status         TEXT NOT NULL,
	raw_source     TEXT NOT NULL DEFAULT '',
	datetime_col   TEXT NOT NULL DEFAULT '',
	value_col      TEXT NOT NULL DEFAULT '',
	processed_path TEXT NOT NULL DEFAULT '',
	horizon        INTEGER NOT NULL DEFAULT 0,
	granularity    TEXT NOT NULL DEFAULT '',
	target_unit    TEXT NOT NULL DEFAULT '',
	model_name     TEXT NOT NULL DEFAULT '',
	model_version  INTEGER NOT NULL DEFAULT 0,
	error_message  TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS registered_models (
	name       TEXT NOT NULL,
	version    INTEGER NOT NULL,
	family     TEXT NOT NULL,
	uri        TEXT NOT NULL,
	stage      TEXT NOT NULL DEFAULT 'None',
	features   TEXT NOT NULL DEFAULT '[]',
	metrics    TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	PRIMARY KEY (name, version)
);
`

// Open opens (or creates) the SQLite database in dataDir and applies the
// schema. Pass ":memory:" for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "loadcast.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single connection avoids "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the shared connection for sibling persistence layers.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateProject inserts a new project in the New state.
func (s *Store) CreateProject(ctx context.Context, name string) (*Project, error) {
	now := time.Now().UTC()
	p := &Project{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    StatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, string(p.Status), now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return p, nil
}

const projectColumns = `id, name, status, raw_source, datetime_col, value_col,
	processed_path, horizon, granularity, target_unit, model_name, model_version,
	error_message, created_at, updated_at`

// GetProject loads a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

// ListProjects returns all projects, newest first.
func (s *Store) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteProject removes a project.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// CompareAndSetStatus transitions the project's status to `to` only when its
// current status is one of `from`. Returns false when the guard lost, which is
// how concurrent run starts are serialized.
func (s *Store) CompareAndSetStatus(ctx context.Context, id string, from []Status, to Status) (bool, error) {
	if len(from) == 0 {
		return false, errors.New("no allowed source states")
	}
	placeholders := strings.Repeat(",?", len(from)-1)
	args := []interface{}{string(to), time.Now().UTC().Format(time.RFC3339), id}
	for _, st := range from {
		args = append(args, string(st))
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET status = ?, updated_at = ? WHERE id = ? AND status IN (?`+placeholders+`)`,
		args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Distinguish a lost race from a missing project.
		if _, err := s.GetProject(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// SetStatus updates the status unconditionally.
func (s *Store) SetStatus(ctx context.Context, id string, to Status) error {
	return s.UpdateProject(ctx, id, map[string]interface{}{"status": string(to)})
}

// updatableColumns whitelists the fields UpdateProject may touch.
var updatableColumns = map[string]bool{
	"status":         true,
	"raw_source":     true,
	"datetime_col":   true,
	"value_col":      true,
	"processed_path": true,
	"horizon":        true,
	"granularity":    true,
	"target_unit":    true,
	"model_name":     true,
	"model_version":  true,
	"error_message":  true,
}

// UpdateProject sets the given whitelisted fields and bumps updated_at.
func (s *Store) UpdateProject(ctx context.Context, id string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}

	sets := make([]string, 0, len(fields)+1)
	args := make([]interface{}, 0, len(fields)+2)
	for col, v := range fields {
		if !updatableColumns[col] {
			return fmt.Errorf("column %q is not updatable", col)
		}
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339), id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrProjectNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProject(row rowScanner) (*Project, error) {
	var p Project
	var status, createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.Name, &status, &p.RawSource, &p.DatetimeCol, &p.ValueCol,
		&p.ProcessedPath, &p.Horizon, &p.Granularity, &p.TargetUnit, &p.ModelName,
		&p.ModelVersion, &p.ErrorMessage, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Status = Status(status)
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &p, nil
}
