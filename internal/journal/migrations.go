package journal

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	version int64
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "create_runs_and_events",
		stmts: []string{
			`CREATE TABLE runs (
				id TEXT PRIMARY KEY,
				started_at DATETIME NOT NULL,
				finished_at DATETIME,
				status TEXT NOT NULL,
				error TEXT NOT NULL DEFAULT '',
				summary TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE TABLE events (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id TEXT NOT NULL,
				ts DATETIME NOT NULL,
				type TEXT NOT NULL,
				phase TEXT NOT NULL DEFAULT '',
				resource TEXT NOT NULL DEFAULT '',
				message TEXT NOT NULL DEFAULT '',
				fields TEXT NOT NULL DEFAULT '{}',
				FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX idx_events_run_id ON events(run_id)`,
		},
	},
}

// migrate applies pending migrations, each in its own transaction.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int64
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return fmt.Errorf("failed to run migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

func apply(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.version, m.name); err != nil {
		return err
	}
	return tx.Commit()
}
