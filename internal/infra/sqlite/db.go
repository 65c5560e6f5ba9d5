// Package sqlite implements the persistent local store.
//
// One database file per install, WAL mode, all state namespaced by player
// ID so a shared device never leaks snapshots across players. Tables:
//
//	player_state  — one row per player, the wholesale engine snapshot
//	credit_journal — append-only record of every local currency mutation
//	flush_journal  — audit of tap-batch flushes and their outcomes
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle.
type DB struct {
	db *sql.DB
}

// Open creates/opens the database under dir and applies migrations.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	path := filepath.Join(dir, "state.db")
	handle, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	db := &DB{db: handle}
	if err := db.migrate(); err != nil {
		handle.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the database handle.
func (db *DB) Close() error {
	return db.db.Close()
}

// Migrations returns the schema migration statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS player_state (
			player_id     TEXT PRIMARY KEY,
			snapshot      TEXT NOT NULL,
			balance       INTEGER NOT NULL DEFAULT 0,
			pending_delta INTEGER NOT NULL DEFAULT 0,
			updated_at    TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		`CREATE TABLE IF NOT EXISTS credit_journal (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			player_id  TEXT NOT NULL,
			timestamp  TEXT NOT NULL,
			tx_type    TEXT NOT NULL,
			entry_type TEXT NOT NULL,
			amount     INTEGER NOT NULL,
			batch_id   TEXT,
			note       TEXT,
			balance    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_player ON credit_journal(player_id, id)`,

		`CREATE TABLE IF NOT EXISTS flush_journal (
			batch_id   TEXT PRIMARY KEY,
			player_id  TEXT NOT NULL,
			taps       INTEGER NOT NULL,
			seq        INTEGER NOT NULL,
			outcome    TEXT NOT NULL DEFAULT 'PENDING',
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			settled_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_flush_player ON flush_journal(player_id, seq)`,
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
