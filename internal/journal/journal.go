package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/imamik/dropship/internal/provisioning"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ErrRunNotFound is returned for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Journal is a SQLite-backed run history.
type Journal struct {
	db *sql.DB
}

// Run is one recorded invocation of the builder.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	Error      string
	Summary    string
	Events     int
}

// Entry is a recorded provisioning event.
type Entry struct {
	ID        int64
	RunID     string
	Timestamp time.Time
	Type      string
	Phase     string
	Resource  string
	Message   string
	Fields    map[string]string
}

// Open opens (creating if needed) the journal at path and migrates it.
func Open(ctx context.Context, path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// one writer; concurrent observers serialize through the pool
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// BeginRun inserts a running run.
func (j *Journal) BeginRun(ctx context.Context, id, summary string) error {
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO runs (id, started_at, status, summary) VALUES (?, ?, ?, ?)",
		id, time.Now().UTC(), StatusRunning, summary)
	if err != nil {
		return fmt.Errorf("failed to begin run %s: %w", id, err)
	}
	return nil
}

// EndRun closes a run with the outcome of runErr.
func (j *Journal) EndRun(ctx context.Context, id string, runErr error) error {
	status, msg := StatusSucceeded, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	res, err := j.db.ExecContext(ctx,
		"UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE id = ?",
		time.Now().UTC(), status, msg, id)
	if err != nil {
		return fmt.Errorf("failed to end run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// Record appends an event to a run.
func (j *Journal) Record(ctx context.Context, runID string, e provisioning.Event) error {
	fields, err := json.Marshal(e.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode event fields: %w", err)
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err = j.db.ExecContext(ctx,
		"INSERT INTO events (run_id, ts, type, phase, resource, message, fields) VALUES (?, ?, ?, ?, ?, ?, ?)",
		runID, ts.UTC(), string(e.Type), e.Phase, e.Resource, e.Message, string(fields))
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// Runs lists the most recent runs first. limit <= 0 lists all.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT r.id, r.started_at, r.finished_at, r.status, r.error, r.summary,
			(SELECT COUNT(*) FROM events e WHERE e.run_id = r.id)
		FROM runs r
		ORDER BY r.started_at DESC, r.id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Status, &r.Error, &r.Summary, &r.Events); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Events returns the events of a run in insertion order.
func (j *Journal) Events(ctx context.Context, runID string) ([]Entry, error) {
	var exists int
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs WHERE id = ?", runID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to look up run: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	rows, err := j.db.QueryContext(ctx,
		"SELECT id, run_id, ts, type, phase, resource, message, fields FROM events WHERE run_id = ? ORDER BY id",
		runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var fields string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Timestamp, &e.Type, &e.Phase, &e.Resource, &e.Message, &fields); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(fields), &e.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode event fields: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
