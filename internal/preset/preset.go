// Package preset persists named settings snapshots and the last engine run
// record in a local SQLite database (modernc driver, CGO-free).
package preset

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/emberfx/emberlink/internal/settings"
)

// ErrNotFound is returned when no preset exists under the requested name.
var ErrNotFound = errors.New("preset not found")

// Preset is one saved settings snapshot.
type Preset struct {
	Name      string             `json:"name"`
	Settings  settings.Animation `json:"settings"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// RunRecord is the last observed engine run, kept for diagnostics.
type RunRecord struct {
	PID       int       `json:"pid"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	ExitCode  int       `json:"exit_code"`
	Crashed   bool      `json:"crashed"`
}

// DB is the preset store. Use ":memory:" for an in-memory database.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty preset database path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS presets(
			name TEXT PRIMARY KEY,
			settings TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS engine_runs(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pid INTEGER NOT NULL,
			version TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			stopped_at TIMESTAMP NULL,
			exit_code INTEGER NOT NULL DEFAULT 0,
			crashed BOOLEAN NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_engine_runs_started ON engine_runs(started_at);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

// Save upserts a preset under name.
func (s *DB) Save(ctx context.Context, name string, a settings.Animation) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("preset name required")
	}
	blob, err := json.Marshal(a)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO presets(name, settings, created_at, updated_at)
		VALUES(?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			settings=excluded.settings,
			updated_at=excluded.updated_at;`,
		name, string(blob), now, now)
	return err
}

// Get returns the preset saved under name.
func (s *DB) Get(ctx context.Context, name string) (Preset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, settings, created_at, updated_at FROM presets WHERE name=?;`, name)
	var p Preset
	var blob string
	if err := row.Scan(&p.Name, &blob, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Preset{}, ErrNotFound
		}
		return Preset{}, err
	}
	if err := json.Unmarshal([]byte(blob), &p.Settings); err != nil {
		return Preset{}, err
	}
	return p, nil
}

// List returns every preset ordered by name.
func (s *DB) List(ctx context.Context) ([]Preset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, settings, created_at, updated_at FROM presets ORDER BY name;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Preset
	for rows.Next() {
		var p Preset
		var blob string
		if err := rows.Scan(&p.Name, &blob, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(blob), &p.Settings); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Delete removes the preset saved under name.
func (s *DB) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM presets WHERE name=?;`, name)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordStart inserts a new engine run row and returns its id.
func (s *DB) RecordStart(ctx context.Context, pid int, version string, startedAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO engine_runs(pid, version, started_at) VALUES(?, ?, ?);`,
		pid, version, startedAt.UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecordStop finalizes an engine run row.
func (s *DB) RecordStop(ctx context.Context, id int64, stoppedAt time.Time, exitCode int, crashed bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE engine_runs SET stopped_at=?, exit_code=?, crashed=? WHERE id=?;`,
		stoppedAt.UTC(), exitCode, crashed, id)
	return err
}

// LastRun returns the most recent engine run, if any.
func (s *DB) LastRun(ctx context.Context) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT pid, version, started_at, stopped_at, exit_code, crashed
		FROM engine_runs ORDER BY id DESC LIMIT 1;`)
	var r RunRecord
	var stopped sql.NullTime
	if err := row.Scan(&r.PID, &r.Version, &r.StartedAt, &stopped, &r.ExitCode, &r.Crashed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, ErrNotFound
		}
		return RunRecord{}, err
	}
	if stopped.Valid {
		r.StoppedAt = stopped.Time
	}
	return r, nil
}
