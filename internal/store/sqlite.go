// Package store provides SQLite-backed persistence for the triad run log.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// schemaV1 defines the initial database schema.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS runs (
	run_id         TEXT PRIMARY KEY,
	request        TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'planning',
	iterations     INTEGER NOT NULL DEFAULT 0,
	state_version  INTEGER NOT NULL DEFAULT 1,
	last_event_seq INTEGER NOT NULL DEFAULT 0,
	created_at     INTEGER NOT NULL DEFAULT 0,
	updated_at     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS run_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	seq_no     INTEGER NOT NULL,
	kind       TEXT NOT NULL,
	stage      TEXT NOT NULL DEFAULT '',
	from_state TEXT NOT NULL DEFAULT '',
	to_state   TEXT NOT NULL DEFAULT '',
	detail     TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	UNIQUE(run_id, seq_no)
);
CREATE INDEX IF NOT EXISTS idx_run_events_run_seq ON run_events(run_id, seq_no);

CREATE TABLE IF NOT EXISTS artifacts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	stage      TEXT NOT NULL,
	kind       TEXT NOT NULL,
	iteration  INTEGER NOT NULL DEFAULT 0,
	body_json  TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_artifacts_run_kind ON artifacts(run_id, kind);

CREATE TABLE IF NOT EXISTS audit_records (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	stage      TEXT NOT NULL DEFAULT '',
	tool       TEXT NOT NULL,
	decision   TEXT NOT NULL DEFAULT 'denied',
	reason     TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_run ON audit_records(run_id);

CREATE TABLE IF NOT EXISTS usage_records (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	stage         TEXT NOT NULL DEFAULT '',
	iteration     INTEGER NOT NULL DEFAULT 0,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_usage_run ON usage_records(run_id);

CREATE TABLE IF NOT EXISTS score_records (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	stage        TEXT NOT NULL DEFAULT '',
	iteration    INTEGER NOT NULL DEFAULT 0,
	path         TEXT NOT NULL,
	score        REAL NOT NULL DEFAULT 0.0,
	syntax_valid INTEGER NOT NULL DEFAULT 1,
	source       TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_scores_run ON score_records(run_id);
`

// NewDB opens a SQLite database at the given path with recommended pragmas
// and runs the V1 schema migration.
func NewDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Limit connections to 1 for SQLite (WAL allows concurrent reads but single writer).
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return db, nil
}

func migrate(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), schemaV1)
	return err
}
