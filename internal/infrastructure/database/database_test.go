package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/config"
)

func testHistoryConfig(t *testing.T) config.HistoryConfig {
	t.Helper()
	return config.HistoryConfig{
		Enabled:     true,
		Path:        filepath.Join(t.TempDir(), "telemetry.db"),
		WALMode:     true,
		BusyTimeout: 5,
	}
}

// openBareDB opens an unmigrated database in a temp directory.
func openBareDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(testHistoryConfig(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	return db
}

// openTestDB opens a database with the embedded migrations applied.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	db := openBareDB(t)
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func TestOpen(t *testing.T) {
	t.Run("creates file and nested directories", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "data", "nested", "telemetry.db")

		db, err := Open(config.HistoryConfig{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // test cleanup

		if _, err := os.Stat(dbPath); err != nil {
			t.Errorf("database file not created: %v", err)
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
		}
	})

	t.Run("without WAL", func(t *testing.T) {
		db, err := Open(config.HistoryConfig{Path: filepath.Join(t.TempDir(), "plain.db")})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // test cleanup

		var mode string
		if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
			t.Fatalf("journal_mode query error = %v", err)
		}
		if mode == "wal" {
			t.Error("journal_mode = wal, want default mode")
		}
	})

	t.Run("WAL enabled", func(t *testing.T) {
		db := openTestDB(t)

		var mode string
		if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
			t.Fatalf("journal_mode query error = %v", err)
		}
		if mode != "wal" {
			t.Errorf("journal_mode = %q, want wal", mode)
		}
	})

	t.Run("empty path", func(t *testing.T) {
		if _, err := Open(config.HistoryConfig{}); err == nil {
			t.Error("Open() with empty path should fail")
		}
	})
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestClose(t *testing.T) {
	db, err := Open(config.HistoryConfig{Path: filepath.Join(t.TempDir(), "close.db")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := db.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() after Close() should fail")
	}

	var zero DB
	if err := zero.Close(); err != nil {
		t.Errorf("Close() on zero DB error = %v", err)
	}
}
