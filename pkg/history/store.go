// Package history persists completed dispatch runs to SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/harun/parley/pkg/dispatch"
)

// Run is one recorded dispatch run.
type Run struct {
	ID        string             `json:"id"`
	Task      string             `json:"task"`
	Final     string             `json:"final"`
	Outcomes  []dispatch.Outcome `json:"outcomes"`
	StartedAt time.Time          `json:"started_at"`
	Duration  time.Duration      `json:"duration"`
}

// Store persists runs to a SQLite database.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the history database at path.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates database tables
func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			task TEXT NOT NULL,
			final TEXT NOT NULL,
			outcomes TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores one completed run.
func (s *Store) Record(ctx context.Context, run Run) error {
	outcomes, err := json.Marshal(run.Outcomes)
	if err != nil {
		return fmt.Errorf("failed to marshal outcomes: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, task, final, outcomes, started_at, duration_ms) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Task, run.Final, string(outcomes),
		run.StartedAt.UnixMilli(), run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	s.logger.Debug().
		Str("run_id", run.ID).
		Int("outcomes", len(run.Outcomes)).
		Msg("Run recorded")

	return nil
}

// Recent returns the most recent runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task, final, outcomes, started_at, duration_ms FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run        Run
			outcomes   string
			startedAt  int64
			durationMS int64
		)
		if err := rows.Scan(&run.ID, &run.Task, &run.Final, &outcomes, &startedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(outcomes), &run.Outcomes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal outcomes: %w", err)
		}
		run.StartedAt = time.UnixMilli(startedAt)
		run.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// Get returns one run by ID.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, task, final, outcomes, started_at, duration_ms FROM runs WHERE id = ?`, id)

	var (
		run        Run
		outcomes   string
		startedAt  int64
		durationMS int64
	)
	if err := row.Scan(&run.ID, &run.Task, &run.Final, &outcomes, &startedAt, &durationMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s not found", id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if err := json.Unmarshal([]byte(outcomes), &run.Outcomes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outcomes: %w", err)
	}
	run.StartedAt = time.UnixMilli(startedAt)
	run.Duration = time.Duration(durationMS) * time.Millisecond

	return &run, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
