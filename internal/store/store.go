// Package store keeps crawl progress in SQLite so an interrupted run can be
// resumed from the last completed page.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/go-scripts/ngocrawl/internal/record"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusAborted = "aborted"
)

// ErrNoRun is returned when there is no run to resume.
var ErrNoRun = errors.New("no unfinished run")

// Run is one crawl run.
type Run struct {
	ID                string
	StartedAt         time.Time
	FinishedAt        time.Time
	Status            string
	LastCompletedPage int
	Err               string
}

// Store is a SQLite database of runs and the records of their completed pages.
type Store struct {
	db   *sql.DB
	path string
}

// DefaultPath returns the database location under the XDG data directory,
// creating the parent directory.
func DefaultPath() (string, error) {
	path, err := xdg.DataFile(filepath.Join("ngocrawl", "state.db"))
	if err != nil {
		return "", fmt.Errorf("failed to resolve state path: %w", err)
	}
	return path, nil
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, path: path}
	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		status TEXT NOT NULL,
		last_completed_page INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- one row per record, in crawl order
	CREATE TABLE IF NOT EXISTS records (
		run_id TEXT NOT NULL REFERENCES runs(id),
		page INTEGER NOT NULL,
		position INTEGER NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (run_id, page, position)
	);
	`
	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// BeginRun records a new running run.
func (s *Store) BeginRun(ctx context.Context) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now().Truncate(time.Second),
		Status:    StatusRunning,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, status) VALUES (?, ?, ?)`,
		run.ID, run.StartedAt.Unix(), run.Status)
	if err != nil {
		return Run{}, fmt.Errorf("failed to begin run: %w", err)
	}
	return run, nil
}

// LatestUnfinished returns the most recent run that did not finish. It
// returns ErrNoRun when every run finished.
func (s *Store) LatestUnfinished(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, status, last_completed_page, error
		FROM runs WHERE status != ?
		ORDER BY started_at DESC, rowid DESC LIMIT 1`, StatusDone)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNoRun
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to query runs: %w", err)
	}
	return run, nil
}

// GetRun returns the run with the given id.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, status, last_completed_page, error
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		return Run{}, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

func scanRun(row *sql.Row) (Run, error) {
	var (
		run      Run
		started  int64
		finished sql.NullInt64
	)
	if err := row.Scan(&run.ID, &started, &finished, &run.Status, &run.LastCompletedPage, &run.Err); err != nil {
		return Run{}, err
	}
	run.StartedAt = time.Unix(started, 0)
	if finished.Valid {
		run.FinishedAt = time.Unix(finished.Int64, 0)
	}
	return run, nil
}

// ReopenRun marks an unfinished run as running again.
func (s *Store) ReopenRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = NULL, error = '' WHERE id = ?`,
		StatusRunning, id)
	if err != nil {
		return fmt.Errorf("failed to reopen run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to reopen run %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// SavePage stores the records of a completed page and advances the run's
// last completed page. Saving a page again replaces its records; the last
// completed page never moves backwards.
func (s *Store) SavePage(ctx context.Context, runID string, page int, records []record.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE run_id = ? AND page = ?`, runID, page); err != nil {
		return fmt.Errorf("failed to clear page %d: %w", page, err)
	}

	for i, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO records (run_id, page, position, data) VALUES (?, ?, ?, ?)`,
			runID, page, i, string(data)); err != nil {
			return fmt.Errorf("failed to save record: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET last_completed_page = MAX(last_completed_page, ?) WHERE id = ?`,
		page, runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to update run %s: %w", runID, sql.ErrNoRows)
	}

	return tx.Commit()
}

// Records returns every stored record of a run in crawl order.
func (s *Store) Records(ctx context.Context, runID string) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM records WHERE run_id = ? ORDER BY page, position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []record.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		var rec record.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// FinishRun marks a run done or aborted. runErr is kept for aborted runs.
func (s *Store) FinishRun(ctx context.Context, runID, status string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, error = ? WHERE id = ?`,
		status, time.Now().Unix(), msg, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	return nil
}

// Checkpoint saves completed pages of one run.
type Checkpoint struct {
	store *Store
	runID string
}

// Checkpoint returns a checkpoint writer for runID.
func (s *Store) Checkpoint(runID string) *Checkpoint {
	return &Checkpoint{store: s, runID: runID}
}

// PageDone stores a completed page.
func (c *Checkpoint) PageDone(ctx context.Context, page int, records []record.Record) error {
	return c.store.SavePage(ctx, c.runID, page, records)
}
