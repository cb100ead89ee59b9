// Package sqlite provides durable storage for balances, reports, stakes,
// and blocks behind the in-memory stores. The in-memory state stays
// authoritative at runtime; this layer is write-through on mutation and
// read-back at boot.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

// DB wraps the sqlite handle.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies migrations.
// Use ":memory:" for tests.
func Open(path string) (*DB, error) {
	handle, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single writer keeps "database is locked" errors away; the ledger's
	// write path is already serialized upstream.
	handle.SetMaxOpenConns(1)

	db := &DB{db: handle}
	if err := db.migrate(); err != nil {
		handle.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying handle.
func (db *DB) Close() error { return db.db.Close() }

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema migration statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		// Participant balances
		`CREATE TABLE IF NOT EXISTS balances (
			participant_id TEXT PRIMARY KEY,
			total_points     INTEGER NOT NULL DEFAULT 0,
			available_points INTEGER NOT NULL DEFAULT 0,
			staked_points    INTEGER NOT NULL DEFAULT 0,
			decay_rate       REAL NOT NULL DEFAULT 0,
			last_activity    TEXT NOT NULL
		)`,

		// Trust reports, open and terminal
		`CREATE TABLE IF NOT EXISTS reports (
			report_id   TEXT PRIMARY KEY,
			target      TEXT NOT NULL,
			action      TEXT NOT NULL,
			impact      INTEGER NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			evidence    TEXT NOT NULL DEFAULT '',
			reporter    TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			expiry      TEXT NOT NULL,
			min_stake   INTEGER NOT NULL,
			threshold   REAL NOT NULL,
			status      TEXT NOT NULL DEFAULT 'OPEN'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_target ON reports(target)`,

		// Stakes, keyed to both participant and report
		`CREATE TABLE IF NOT EXISTS stakes (
			stake_id       TEXT PRIMARY KEY,
			report_id      TEXT NOT NULL,
			participant_id TEXT NOT NULL,
			amount         INTEGER NOT NULL,
			supporting     INTEGER NOT NULL,
			timestamp      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stakes_report ON stakes(report_id)`,
		`CREATE INDEX IF NOT EXISTS idx_stakes_participant ON stakes(participant_id)`,

		// Decay run history
		`CREATE TABLE IF NOT EXISTS decay_log (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			run_at   TEXT NOT NULL,
			affected INTEGER NOT NULL
		)`,

		// Chain blocks, ordered by index with a unique hash
		`CREATE TABLE IF NOT EXISTS blocks (
			block_index   INTEGER PRIMARY KEY,
			timestamp     TEXT NOT NULL,
			previous_hash TEXT NOT NULL,
			content_hash  TEXT NOT NULL,
			hash          TEXT NOT NULL UNIQUE,
			payload_json  TEXT NOT NULL DEFAULT '{}'
		)`,
	}
}

func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
