// Package history keeps an sqlite audit log of runs and their results.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agent462/drove/internal/executor"
	"github.com/agent462/drove/internal/pathutil"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs(
	id TEXT PRIMARY KEY,
	grp TEXT NOT NULL,
	hosts INTEGER NOT NULL,
	commands INTEGER NOT NULL,
	succeeded INTEGER NOT NULL,
	failed INTEGER NOT NULL,
	started_at INTEGER NOT NULL,
	finished_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS results(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL REFERENCES runs(id),
	host TEXT NOT NULL,
	command TEXT NOT NULL,
	stdout TEXT,
	stderr TEXT,
	exit_code INTEGER,
	attempts INTEGER,
	kind TEXT,
	error_text TEXT,
	duration_ms INTEGER
);
CREATE INDEX IF NOT EXISTS results_run_id ON results(run_id);
`

// Run summarizes one invocation.
type Run struct {
	ID         string
	Group      string
	Hosts      int
	Commands   int
	Succeeded  int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Entry is a stored result row.
type Entry struct {
	RunID      string
	Host       string
	Command    string
	Stdout     string
	Stderr     string
	ExitCode   int
	Attempts   int
	Kind       string
	ErrorText  string
	DurationMs int64
}

// Store reads and writes the history database.
type Store struct{ db *sql.DB }

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory store.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		path = pathutil.Expand(path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db %s: %w", path, err)
	}
	// One connection: sqlite has a single writer and :memory: is per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Record stores run and its results in one transaction. Success counts are
// derived from results.
func (s *Store) Record(ctx context.Context, run Run, results []*executor.Result) (err error) {
	run.Succeeded, run.Failed = 0, 0
	for _, r := range results {
		if r.Succeeded() {
			run.Succeeded++
		} else {
			run.Failed++
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `INSERT INTO runs(id,grp,hosts,commands,succeeded,failed,started_at,finished_at) VALUES (?,?,?,?,?,?,?,?)`,
		run.ID, run.Group, run.Hosts, run.Commands, run.Succeeded, run.Failed, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli()); err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO results(run_id,host,command,stdout,stderr,exit_code,attempts,kind,error_text,duration_ms) VALUES (?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare result insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err = stmt.ExecContext(ctx, run.ID, r.Host, r.Command, string(r.Stdout), string(r.Stderr),
			r.ExitCode, r.Attempts, r.Kind().String(), r.ErrorText(), r.Duration.Milliseconds()); err != nil {
			return fmt.Errorf("insert result %s/%s: %w", r.Host, r.Command, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id,grp,hosts,commands,succeeded,failed,started_at,finished_at FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.Group, &r.Hosts, &r.Commands, &r.Succeeded, &r.Failed, &started, &finished); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started)
		r.FinishedAt = time.UnixMilli(finished)
		list = append(list, r)
	}
	return list, rows.Err()
}

// Results returns the stored results of a run in insertion order.
func (s *Store) Results(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id,host,command,stdout,stderr,exit_code,attempts,kind,error_text,duration_ms FROM results WHERE run_id=? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RunID, &e.Host, &e.Command, &e.Stdout, &e.Stderr, &e.ExitCode, &e.Attempts, &e.Kind, &e.ErrorText, &e.DurationMs); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}
