// Package store persists wallet-connect client state in SQLite: the last
// connection URI and a log of wallet notifications.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS setting (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS notification (
	event_id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	payment_hash TEXT NOT NULL DEFAULT '',
	amount INTEGER NOT NULL DEFAULT 0,
	received_at INTEGER NOT NULL,
	payload BLOB
);
CREATE INDEX IF NOT EXISTS notification_received_at ON notification (received_at);
`

// DefaultDataDir returns the default data directory for nwc-go databases.
// Uses $XDG_DATA_HOME/nwc-go, falling back to ~/.local/share/nwc-go.
func DefaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "nwc-go")
}

// DefaultPath returns the database path used when none is configured.
func DefaultPath() string {
	return filepath.Join(DefaultDataDir(), "nwc.db")
}

// Open opens or creates a SQLite store at the given path.
// If dbPath is empty, DefaultPath is used.
func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = DefaultPath()
	}

	// The database holds a wallet secret; keep it private.
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("store: create dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
