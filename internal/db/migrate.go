// Package db provides database schema migration management.
package db

import (
	"database/sql"
	"fmt"
	"time"
)

// migration is a single versioned schema change. Migrations are embedded
// in the binary; the queue must survive restarts without external
// migration tooling.
type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "create action_queue table",
		SQL: `
		CREATE TABLE IF NOT EXISTS action_queue (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			attempts INTEGER NOT NULL DEFAULT 0 CHECK(attempts >= 0),
			last_error TEXT NOT NULL DEFAULT '',
			error_code TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			next_retry_at INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_action_queue_status ON action_queue(status);`,
	},
}

// Migrate applies any pending schema migrations in version order.
func Migrate(db *sql.DB) error {
	if err := initialize(db); err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}

	current, err := currentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := apply(db, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
	}

	return nil
}

// initialize creates the schema_migrations table if it doesn't exist.
func initialize(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL,
		description TEXT NOT NULL CHECK(length(description) > 0)
	);`
	_, err := db.Exec(query)
	return err
}

// currentVersion returns the highest applied schema version.
func currentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// apply runs a single migration inside a transaction.
func apply(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
		m.Version, time.Now().Unix(), m.Description,
	); err != nil {
		return err
	}

	return tx.Commit()
}
