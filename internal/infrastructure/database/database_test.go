package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// openTestDB opens a fresh database in a per-test temp directory.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	return db
}

func TestOpen(t *testing.T) {
	t.Run("creates database file and directory", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

		db, err := Open(Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // test cleanup

		if _, err := os.Stat(filepath.Dir(dbPath)); os.IsNotExist(err) {
			t.Error("database directory was not created")
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %v, want %v", db.Path(), dbPath)
		}
	})

	t.Run("foreign keys enabled", func(t *testing.T) {
		db := openTestDB(t)

		var fk int
		if err := db.QueryRowContext(context.Background(), "PRAGMA foreign_keys").Scan(&fk); err != nil {
			t.Fatalf("PRAGMA foreign_keys error = %v", err)
		}
		if fk != 1 {
			t.Errorf("foreign_keys = %d, want 1", fk)
		}
	})
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestClose(t *testing.T) {
	db, err := Open(Config{Path: filepath.Join(t.TempDir(), "close.db"), BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	db.DB = nil
	if err := db.Close(); err != nil {
		t.Errorf("Close() on nil DB error = %v", err)
	}
}

func TestPoolSize(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want int
	}{
		{"wal default", Config{WALMode: true}, defaultWALConns},
		{"rollback journal", Config{}, 1},
		{"explicit", Config{WALMode: true, MaxOpenConns: 2}, 2},
	}
	for _, tt := range tests {
		if got := poolSize(tt.cfg); got != tt.want {
			t.Errorf("%s: poolSize() = %d, want %d", tt.name, got, tt.want)
		}
	}

	db := openTestDB(t)
	if got := db.Stats().MaxOpenConnections; got != defaultWALConns {
		t.Errorf("MaxOpenConnections = %d, want %d", got, defaultWALConns)
	}
}

func TestDSN(t *testing.T) {
	got := dsn(Config{Path: "/var/lib/lexgate/lexgate.db", WALMode: true, BusyTimeout: 5})
	for _, want := range []string{
		"file:/var/lib/lexgate/lexgate.db?",
		"_busy_timeout=5000",
		"_foreign_keys=on",
		"_journal_mode=WAL",
		"_txlock=immediate",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("dsn() = %q, missing %q", got, want)
		}
	}
	if strings.Contains(dsn(Config{Path: "x.db"}), "_journal_mode") {
		t.Error("journal mode set without WAL")
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Error("Open() with empty path succeeded")
	}
}
