package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"
)

// ErrNoDownMigration is returned by MigrateDown when the latest applied
// migration has no .down.sql file.
var ErrNoDownMigration = errors.New("migration has no down SQL")

// Source is where migration files live, normally the embed.FS in the
// migrations package. Files are named
//
//	YYYYMMDD_HHMMSS_name.up.sql
//	YYYYMMDD_HHMMSS_name.down.sql
//
// and anything else in Dir is ignored.
type Source struct {
	FS  fs.FS
	Dir string
}

// Migration is one versioned schema change.
type Migration struct {
	Version string // YYYYMMDD_HHMMSS
	Name    string
	UpSQL   string
	DownSQL string
}

// MigrationRecord is a row of schema_migrations.
type MigrationRecord struct {
	Version   string
	AppliedAt time.Time
}

// MigrationStatus compares the database with a Source.
type MigrationStatus struct {
	Applied []MigrationRecord
	Pending []Migration
}

// Migrate applies every pending migration in version order, one
// transaction each. A failing migration is rolled back and stops the run;
// the ones before it stay applied.
func (db *DB) Migrate(ctx context.Context, src Source) error {
	if err := db.ensureMigrationsTable(ctx); err != nil {
		return err
	}
	status, err := db.MigrationStatus(ctx, src)
	if err != nil {
		return err
	}
	for _, m := range status.Pending {
		err := db.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
				m.Version, time.Now().UTC().Format(time.RFC3339))
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %s_%s: %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// MigrateDown reverts the most recently applied migration. Returns the
// reverted migration, or nil when nothing is applied.
func (db *DB) MigrateDown(ctx context.Context, src Source) (*Migration, error) {
	if err := db.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}
	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	if len(applied) == 0 {
		return nil, nil
	}
	latest := applied[len(applied)-1].Version

	all, err := loadMigrations(src)
	if err != nil {
		return nil, err
	}
	i := slices.IndexFunc(all, func(m Migration) bool { return m.Version == latest })
	if i < 0 {
		return nil, fmt.Errorf("applied migration %s is missing from source", latest)
	}
	m := all[i]
	if m.DownSQL == "" {
		return nil, fmt.Errorf("%w: %s_%s", ErrNoDownMigration, m.Version, m.Name)
	}

	err = db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, m.DownSQL); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = ?`, m.Version)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reverting %s_%s: %w", m.Version, m.Name, err)
	}
	return &m, nil
}

// MigrationStatus lists applied migrations and those in src not yet applied.
func (db *DB) MigrationStatus(ctx context.Context, src Source) (*MigrationStatus, error) {
	if err := db.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}
	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	all, err := loadMigrations(src)
	if err != nil {
		return nil, err
	}

	done := make(map[string]struct{}, len(applied))
	for _, r := range applied {
		done[r.Version] = struct{}{}
	}
	status := &MigrationStatus{Applied: applied}
	for _, m := range all {
		if _, ok := done[m.Version]; !ok {
			status.Pending = append(status.Pending, m)
		}
	}
	return status, nil
}

func (db *DB) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (db *DB) ensureMigrationsTable(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}
	return nil
}

func (db *DB) appliedMigrations(ctx context.Context) ([]MigrationRecord, error) {
	rows, err := db.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("reading schema_migrations: %w", err)
	}
	defer rows.Close()

	var out []MigrationRecord
	for rows.Next() {
		var (
			r  MigrationRecord
			at string
		)
		if err := rows.Scan(&r.Version, &at); err != nil {
			return nil, fmt.Errorf("scanning schema_migrations: %w", err)
		}
		r.AppliedAt, _ = time.Parse(time.RFC3339, at) //nolint:errcheck // written by Migrate
		out = append(out, r)
	}
	return out, rows.Err()
}

// migrationFile is a parsed migration filename.
type migrationFile struct {
	version string
	name    string
	up      bool
}

// parseMigrationFilename splits "20260301_090000_tenancy.up.sql".
func parseMigrationFilename(filename string) (migrationFile, bool) {
	base, ok := strings.CutSuffix(filename, ".sql")
	if !ok {
		return migrationFile{}, false
	}
	var f migrationFile
	switch {
	case strings.HasSuffix(base, ".up"):
		f.up = true
		base = strings.TrimSuffix(base, ".up")
	case strings.HasSuffix(base, ".down"):
		base = strings.TrimSuffix(base, ".down")
	default:
		return migrationFile{}, false
	}

	date, rest, ok := strings.Cut(base, "_")
	if !ok || len(date) != 8 {
		return migrationFile{}, false
	}
	clock, name, _ := strings.Cut(rest, "_")
	if len(clock) != 6 {
		return migrationFile{}, false
	}
	f.version = date + "_" + clock
	f.name = name
	return f, true
}

// loadMigrations reads src and pairs up and down files by version. A
// version with two up files is an error.
func loadMigrations(src Source) ([]Migration, error) {
	if src.FS == nil {
		return nil, nil
	}
	dir := src.Dir
	if dir == "" {
		dir = "."
	}
	entries, err := fs.ReadDir(src.FS, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations: %w", err)
	}

	byVersion := map[string]*Migration{}
	downs := map[string]string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		f, ok := parseMigrationFilename(e.Name())
		if !ok {
			continue
		}
		body, err := fs.ReadFile(src.FS, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		if !f.up {
			downs[f.version] = string(body)
			continue
		}
		if prev, dup := byVersion[f.version]; dup {
			return nil, fmt.Errorf("duplicate migration version %s (%s, %s)", f.version, prev.Name, f.name)
		}
		byVersion[f.version] = &Migration{Version: f.version, Name: f.name, UpSQL: string(body)}
	}

	out := make([]Migration, 0, len(byVersion))
	for v, m := range byVersion {
		m.DownSQL = downs[v]
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b Migration) int { return strings.Compare(a.Version, b.Version) })
	return out, nil
}
