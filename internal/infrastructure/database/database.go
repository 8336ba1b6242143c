package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	pingTimeout     = 5 * time.Second
	connMaxIdleTime = 30 * time.Minute

	// defaultWALConns lets profile and membership reads run beside the
	// single writer. Without WAL, readers block the writer, so one
	// connection is used.
	defaultWALConns = 4
)

// ErrForeignKeysOff is returned by HealthCheck when the connection has
// foreign key enforcement disabled. Tenant cleanup relies on cascades.
var ErrForeignKeysOff = errors.New("sqlite foreign keys are disabled")

// DB wraps the SQLite handle shared by every repository.
//
// Repositories take the embedded *sql.DB, so the wrapper adds no per-query cost.
type DB struct {
	*sql.DB
	path string
}

// Config contains database configuration options.
// These map to the database section of config.yaml.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// The directory will be created if it doesn't exist.
	Path string

	// WALMode enables Write-Ahead Logging so profile reads proceed during writes.
	WALMode bool

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int

	// MaxOpenConns overrides the pool size. Zero picks 4 with WAL, 1 without.
	MaxOpenConns int
}

// dsn builds the go-sqlite3 connection string.
//
// Transactions take the write lock up front (_txlock=immediate) so the
// assignment and refresh-rotation transactions fail on busy_timeout
// instead of deadlocking on a lock upgrade.
func dsn(cfg Config) string {
	q := url.Values{}
	q.Set("_busy_timeout", strconv.Itoa(cfg.BusyTimeout*1000))
	q.Set("_foreign_keys", "on")
	q.Set("_txlock", "immediate")
	if cfg.WALMode {
		q.Set("_journal_mode", "WAL")
		q.Set("_synchronous", "NORMAL")
	}
	return "file:" + cfg.Path + "?" + q.Encode()
}

func poolSize(cfg Config) int {
	switch {
	case cfg.MaxOpenConns > 0:
		return cfg.MaxOpenConns
	case cfg.WALMode:
		return defaultWALConns
	default:
		return 1
	}
}

// Open opens (creating if needed) the database at cfg.Path, applies the
// connection pragmas and verifies it with a ping. The file is restricted
// to 0600 since it holds password hashes and refresh token hashes.
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	n := poolSize(cfg)
	sqlDB.SetMaxOpenConns(n)
	sqlDB.SetMaxIdleConns(n)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // file may not exist until first write

	return &DB{DB: sqlDB, path: cfg.Path}, nil
}

// Close closes the database connection gracefully.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the database file.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck runs a round trip on a pooled connection and confirms
// foreign keys are enforced on it.
func (db *DB) HealthCheck(ctx context.Context) error {
	var fk int
	if err := db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if fk != 1 {
		return ErrForeignKeysOff
	}
	return nil
}
