package store

import (
	"database/sql"
	"errors"
	"fmt"
)

const connectionURIKey = "connection_uri"

// SaveConnectionURI stores the URI of the current wallet connection.
func (s *Store) SaveConnectionURI(uri string) error {
	return s.setSetting(connectionURIKey, uri)
}

// LoadConnectionURI returns the saved connection URI, or "" if none is saved.
func (s *Store) LoadConnectionURI() (string, error) {
	return s.getSetting(connectionURIKey)
}

// ClearConnectionURI forgets the saved connection URI.
func (s *Store) ClearConnectionURI() error {
	if _, err := s.db.Exec("DELETE FROM setting WHERE key = ?", connectionURIKey); err != nil {
		return fmt.Errorf("store: clear %s: %w", connectionURIKey, err)
	}
	return nil
}

func (s *Store) setSetting(key, value string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO setting (key, value) VALUES (?, ?)",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("store: save %s: %w", key, err)
	}
	return nil
}

func (s *Store) getSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM setting WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: load %s: %w", key, err)
	}
	return value, nil
}
