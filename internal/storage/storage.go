package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// KeyAccessToken is the fixed key the session token is persisted under.
const KeyAccessToken = "access_token"

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("storage: store is closed")

// TokenStore persists string credentials by key
type TokenStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
	Close() error
}

// SQLiteStorage implements TokenStore on a single SQLite file
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) <dataDir>/netpulse.db and migrates it
func OpenSQLite(dataDir string) (*SQLiteStorage, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(dataDir, "netpulse.db")
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer is all a credential store needs; it also avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	ss := &SQLiteStorage{db: db, path: path}
	if err := ss.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return ss, nil
}

// Path returns the database file location.
func (ss *SQLiteStorage) Path() string {
	return ss.path
}

func (ss *SQLiteStorage) Get(key string) (string, bool, error) {
	if ss.db == nil {
		return "", false, ErrClosed
	}
	var value string
	err := ss.db.QueryRow(`SELECT value FROM credentials WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading credential %s: %w", key, err)
	}
	return value, true, nil
}

func (ss *SQLiteStorage) Set(key, value string) error {
	if ss.db == nil {
		return ErrClosed
	}
	_, err := ss.db.Exec(`
		INSERT INTO credentials (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("writing credential %s: %w", key, err)
	}
	return nil
}

func (ss *SQLiteStorage) Delete(key string) error {
	if ss.db == nil {
		return ErrClosed
	}
	if _, err := ss.db.Exec(`DELETE FROM credentials WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting credential %s: %w", key, err)
	}
	return nil
}

func (ss *SQLiteStorage) Close() error {
	if ss.db == nil {
		return nil
	}
	err := ss.db.Close()
	ss.db = nil
	return err
}
