// Package db tests for database setup and migrations.
package db

import (
	"testing"
)

// TestOpenCreatesDatabase verifies Open creates the data directory and a
// usable connection.
func TestOpenCreatesDatabase(t *testing.T) {
	database, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer database.Close()

	var mode string
	if err := database.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("Failed to read journal mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("Expected WAL journal mode, got %q", mode)
	}
}

// TestMigrateIdempotent verifies Migrate can run repeatedly without
// error and leaves the action_queue table in place.
func TestMigrateIdempotent(t *testing.T) {
	database, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer database.Close()

	if err := Migrate(database.DB); err != nil {
		t.Fatalf("First migrate failed: %v", err)
	}
	if err := Migrate(database.DB); err != nil {
		t.Fatalf("Second migrate failed: %v", err)
	}

	var name string
	err = database.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='action_queue'").Scan(&name)
	if err != nil {
		t.Fatalf("action_queue table missing: %v", err)
	}

	version := 0
	if err := database.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version); err != nil {
		t.Fatalf("Failed to read schema version: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("Expected schema version %d, got %d", len(migrations), version)
	}
}

// TestMigrateSurvivesReopen verifies the schema persists across
// connections.
func TestMigrateSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	database, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := Migrate(database.DB); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	database.Close()

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer reopened.Close()

	var count int
	if err := reopened.QueryRow("SELECT COUNT(*) FROM action_queue").Scan(&count); err != nil {
		t.Fatalf("action_queue not readable after reopen: %v", err)
	}
}
