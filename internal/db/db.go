// Package db provides the SQLite connection and schema for dimmerd.
package db

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, eris.Wrap(err, "failed to open database")
	}

	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "failed to initialize schema")
	}

	return &DB{db}, nil
}

// InitSchema creates all required tables
func InitSchema(db *sql.DB) error {
	// Command ledger - append-only history of what the fade engine did
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS command_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			command_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			origin TEXT NOT NULL,
			source TEXT,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_type_ts ON command_ledger(event_type, timestamp);
		CREATE INDEX IF NOT EXISTS idx_ledger_command ON command_ledger(command_id);
	`)
	if err != nil {
		return eris.Wrap(err, "failed to create command_ledger table")
	}

	// Resource state - generic JSON state store keyed by (kind, id)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS resource_state (
			kind TEXT NOT NULL,
			id TEXT NOT NULL,
			payload TEXT NOT NULL,
			version INTEGER DEFAULT 1,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (kind, id)
		);
		CREATE INDEX IF NOT EXISTS idx_resource_state_kind ON resource_state(kind);
	`)
	if err != nil {
		return eris.Wrap(err, "failed to create resource_state table")
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
