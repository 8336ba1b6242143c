package database

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
)

func testSource() Source {
	return Source{
		FS: fstest.MapFS{
			"sql/20260301_090000_accounts.up.sql": {Data: []byte(
				`CREATE TABLE test_accounts (id TEXT PRIMARY KEY, email TEXT NOT NULL);`)},
			"sql/20260301_090000_accounts.down.sql": {Data: []byte(`DROP TABLE test_accounts;`)},
			"sql/20260302_100000_orgs.up.sql": {Data: []byte(
				`CREATE TABLE test_orgs (id TEXT PRIMARY KEY);`)},
			"sql/README.md": {Data: []byte("ignored")},
		},
		Dir: "sql",
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return count == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	src := testSource()

	if err := db.Migrate(ctx, src); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	for _, table := range []string{"test_accounts", "test_orgs"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s not created", table)
		}
	}

	status, err := db.MigrationStatus(ctx, src)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(status.Applied) != 2 || len(status.Pending) != 0 {
		t.Errorf("status = %d applied, %d pending; want 2, 0", len(status.Applied), len(status.Pending))
	}
	if status.Applied[0].AppliedAt.IsZero() {
		t.Error("applied_at not recorded")
	}

	// Idempotent
	if err := db.Migrate(ctx, src); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrate_FailureRollsBackThatMigration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	src := Source{FS: fstest.MapFS{
		"20260301_090000_good.up.sql": {Data: []byte(`CREATE TABLE good (id TEXT);`)},
		"20260302_090000_bad.up.sql":  {Data: []byte(`CREATE TABLE bad (id TEXT); NOT VALID SQL;`)},
	}}

	if err := db.Migrate(ctx, src); err == nil {
		t.Fatal("Migrate() expected error for bad SQL")
	}
	if !tableExists(t, db, "good") {
		t.Error("earlier migration should stay committed")
	}
	if tableExists(t, db, "bad") {
		t.Error("failed migration should be rolled back")
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	src := testSource()
	// Only the first migration has a down file.
	delete(src.FS.(fstest.MapFS), "sql/20260302_100000_orgs.up.sql")

	if err := db.Migrate(ctx, src); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	m, err := db.MigrateDown(ctx, src)
	if err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if m == nil || m.Name != "accounts" {
		t.Errorf("reverted = %+v, want accounts", m)
	}
	if tableExists(t, db, "test_accounts") {
		t.Error("table test_accounts should have been dropped")
	}

	status, err := db.MigrationStatus(ctx, src)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(status.Applied) != 0 || len(status.Pending) != 1 {
		t.Errorf("status after rollback = %+v", status)
	}

	// Nothing left to revert.
	if m, err := db.MigrateDown(ctx, src); err != nil || m != nil {
		t.Errorf("MigrateDown(empty) = %v, %v", m, err)
	}
}

func TestMigrateDown_NoDownSQL(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	src := testSource()

	if err := db.Migrate(ctx, src); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if _, err := db.MigrateDown(ctx, src); !errors.Is(err, ErrNoDownMigration) {
		t.Errorf("MigrateDown() error = %v, want ErrNoDownMigration", err)
	}
}

func TestMigrate_NilSource(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(context.Background(), Source{}); err != nil {
		t.Fatalf("Migrate() with no source error = %v", err)
	}
}

func TestMigrate_DuplicateVersion(t *testing.T) {
	db := openTestDB(t)
	src := Source{FS: fstest.MapFS{
		"20260301_090000_a.up.sql": {Data: []byte(`CREATE TABLE a (id TEXT);`)},
		"20260301_090000_b.up.sql": {Data: []byte(`CREATE TABLE b (id TEXT);`)},
	}}
	if err := db.Migrate(context.Background(), src); err == nil {
		t.Fatal("Migrate() expected duplicate version error")
	}
	if tableExists(t, db, "a") || tableExists(t, db, "b") {
		t.Error("nothing should be applied when the source is inconsistent")
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename string
		want     migrationFile
		ok       bool
	}{
		{"20260301_090000_tenancy.up.sql", migrationFile{"20260301_090000", "tenancy", true}, true},
		{"20260301_090000_initial_schema.down.sql", migrationFile{"20260301_090000", "initial_schema", false}, true},
		{"20260301_090000.up.sql", migrationFile{"20260301_090000", "", true}, true},
		{"readme.txt", migrationFile{}, false},
		{"20260301_090000_tenancy.sql", migrationFile{}, false},
		{"invalid.up.sql", migrationFile{}, false},
		{"2026_090000_short.up.sql", migrationFile{}, false},
	}

	for _, tt := range tests {
		got, ok := parseMigrationFilename(tt.filename)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseMigrationFilename(%q) = %+v, %v; want %+v, %v", tt.filename, got, ok, tt.want, tt.ok)
		}
	}
}
