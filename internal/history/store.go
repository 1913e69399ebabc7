// Package history keeps a SQLite record of finished benchmark runs.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/cdabench/internal/junit"
)

// ErrNotFound is returned when a run ID is not in the store.
var ErrNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	load_factor INTEGER NOT NULL,
	targets     TEXT NOT NULL,
	tests       INTEGER NOT NULL,
	failures    INTEGER NOT NULL,
	errors      INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	report      TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS suites (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	target      TEXT NOT NULL,
	scenario    TEXT NOT NULL,
	title       TEXT NOT NULL,
	tests       INTEGER NOT NULL,
	failures    INTEGER NOT NULL,
	errors      INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	PRIMARY KEY (run_id, position)
);
CREATE INDEX IF NOT EXISTS runs_started ON runs(started_at);
`

// Run is one stored benchmark run.
type Run struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration"`
	LoadFactor int            `json:"load_factor"`
	Targets    []string       `json:"targets"`
	Tests      int            `json:"tests"`
	Failures   int            `json:"failures"`
	Errors     int            `json:"errors"`
	Skipped    int            `json:"skipped"`
	Report     string         `json:"report,omitempty"`
	Suites     []SuiteSummary `json:"suites,omitempty"`
}

// SuiteSummary is the stored rollup of one suite.
type SuiteSummary struct {
	Target   string        `json:"target"`
	Scenario string        `json:"scenario"`
	Title    string        `json:"title"`
	Tests    int           `json:"tests"`
	Failures int           `json:"failures"`
	Errors   int           `json:"errors"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// FromReport builds a Run from a finalized report.
func FromReport(id string, started time.Time, loadFactor int, reportPath string, r junit.ReportRoot) Run {
	run := Run{
		ID:         id,
		Name:       r.Name,
		StartedAt:  started.UTC(),
		Duration:   r.Time,
		LoadFactor: loadFactor,
		Tests:      r.Tests,
		Failures:   r.Failures,
		Errors:     r.Errors,
		Skipped:    r.Skipped,
		Report:     reportPath,
	}
	seen := map[string]bool{}
	for _, s := range r.Suites {
		if !seen[s.Package] {
			seen[s.Package] = true
			run.Targets = append(run.Targets, s.Package)
		}
		run.Suites = append(run.Suites, SuiteSummary{
			Target:   s.Package,
			Scenario: s.ID,
			Title:    s.Name,
			Tests:    s.Tests,
			Failures: s.Failures,
			Errors:   s.Errors,
			Skipped:  s.Skipped,
			Duration: s.Time,
		})
	}
	return run
}

// Store is a SQLite-backed run history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("history: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// A single connection keeps :memory: databases and pragmas consistent.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores run and its suites in one transaction.
func (s *Store) Record(ctx context.Context, run Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, name, started_at, duration_ms, load_factor, targets, tests, failures, errors, skipped, report)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.StartedAt.UnixMilli(), run.Duration.Milliseconds(), run.LoadFactor,
		strings.Join(run.Targets, ","), run.Tests, run.Failures, run.Errors, run.Skipped, run.Report)
	if err != nil {
		return fmt.Errorf("history: insert run %s: %w", run.ID, err)
	}
	for i, su := range run.Suites {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO suites (run_id, position, target, scenario, title, tests, failures, errors, skipped, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, su.Target, su.Scenario, su.Title, su.Tests, su.Failures, su.Errors, su.Skipped, su.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("history: insert suite %s/%s: %w", su.Target, su.Scenario, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

// List returns the most recent runs, newest first, without suites.
// limit <= 0 returns all runs.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT id, name, started_at, duration_ms, load_factor, targets, tests, failures, errors, skipped, report
	      FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	return runs, nil
}

// Get returns one run with its suites.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, started_at, duration_ms, load_factor, targets, tests, failures, errors, skipped, report
		 FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("history: %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT target, scenario, title, tests, failures, errors, skipped, duration_ms
		 FROM suites WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return Run{}, fmt.Errorf("history: suites of %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			su SuiteSummary
			ms int64
		)
		if err := rows.Scan(&su.Target, &su.Scenario, &su.Title, &su.Tests, &su.Failures, &su.Errors, &su.Skipped, &ms); err != nil {
			return Run{}, fmt.Errorf("history: scan suite: %w", err)
		}
		su.Duration = time.Duration(ms) * time.Millisecond
		run.Suites = append(run.Suites, su)
	}
	return run, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run            Run
		started, durMS int64
		targets        string
	)
	err := sc.Scan(&run.ID, &run.Name, &started, &durMS, &run.LoadFactor, &targets,
		&run.Tests, &run.Failures, &run.Errors, &run.Skipped, &run.Report)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("history: scan run: %w", err)
	}
	run.StartedAt = time.UnixMilli(started).UTC()
	run.Duration = time.Duration(durMS) * time.Millisecond
	if targets != "" {
		run.Targets = strings.Split(targets, ",")
	}
	return run, nil
}
