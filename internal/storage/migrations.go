package storage

import (
	"database/sql"
	"fmt"
)

// schemaVersion is the latest migration known to this build.
const schemaVersion = 1

// migrate brings the schema up to schemaVersion. Each step runs in its own
// transaction and records itself in schema_migrations.
func (ss *SQLiteStorage) migrate() error {
	if _, err := ss.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	version, err := ss.currentVersion()
	if err != nil {
		return err
	}

	if version < 1 {
		if err := ss.migrateToV1(); err != nil {
			return fmt.Errorf("migrating to v1: %w", err)
		}
	}
	return nil
}

func (ss *SQLiteStorage) currentVersion() (int, error) {
	var version sql.NullInt64
	err := ss.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("checking migration version: %w", err)
	}
	return int(version.Int64), nil
}

// migrateToV1 creates the credentials table
func (ss *SQLiteStorage) migrateToV1() error {
	tx, err := ss.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS credentials (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating credentials table: %w", err)
	}

	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (1)`); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}

	return tx.Commit()
}
