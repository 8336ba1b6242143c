// Package testutil provides database fixtures shared by package tests.
//
// Seed helpers write rows with plain SQL so that any package can use them
// without importing the repository under test.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/lexgate-core/internal/infrastructure/database"
	"github.com/nerrad567/lexgate-core/migrations"
)

// OpenDB returns a migrated SQLite database in a per-test temp directory.
// The database is closed on test cleanup.
func OpenDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background(), migrations.Source()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db.DB
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func exec(t testing.TB, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("seed %q: %v", query, err)
	}
}

// SeedAccount inserts a credential record without a password.
func SeedAccount(t testing.TB, db *sql.DB, id, email string) {
	t.Helper()
	exec(t, db,
		`INSERT INTO accounts (id, email, is_active, created_at, updated_at) VALUES (?, ?, 1, ?, ?)`,
		id, email, now(), now())
}

// SeedOrganization inserts an organization.
func SeedOrganization(t testing.TB, db *sql.DB, id, name string) {
	t.Helper()
	exec(t, db, `INSERT INTO organizations (id, name, created_at) VALUES (?, ?, ?)`, id, name, now())
}

// SeedProfile inserts an active profile. An empty orgID leaves the profile unlinked.
func SeedProfile(t testing.TB, db *sql.DB, userID, email, role, orgID, membershipRole string) {
	t.Helper()
	exec(t, db,
		`INSERT INTO profiles (user_id, email, display_name, role, organization_id, membership_role, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		userID, email, email, role, nullable(orgID), nullable(membershipRole), now(), now())
}

// SeedMembership inserts a membership with the given status (active or revoked).
func SeedMembership(t testing.TB, db *sql.DB, id, userID, orgID, role, status string) {
	t.Helper()
	exec(t, db,
		`INSERT INTO memberships (id, user_id, organization_id, role, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, userID, orgID, role, status, now(), now())
}

// SeedMember creates account, active membership and a profile linked to orgID in one call.
func SeedMember(t testing.TB, db *sql.DB, userID, role, orgID, membershipRole string) {
	t.Helper()
	email := userID + "@example.test"
	SeedAccount(t, db, userID, email)
	SeedMembership(t, db, "mem-"+userID+"-"+orgID, userID, orgID, membershipRole, "active")
	SeedProfile(t, db, userID, email, role, orgID, membershipRole)
}

// SeedCase inserts a case. An empty clientUserID leaves the named party unset.
func SeedCase(t testing.TB, db *sql.DB, id, orgID, title, clientUserID string) {
	t.Helper()
	exec(t, db,
		`INSERT INTO cases (id, organization_id, title, client_user_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, orgID, title, nullable(clientUserID), now())
}

// SeedAssignment assigns a user to a case.
func SeedAssignment(t testing.TB, db *sql.DB, userID, caseID string) {
	t.Helper()
	exec(t, db,
		`INSERT INTO case_assignments (user_id, case_id, created_at) VALUES (?, ?, ?)`,
		userID, caseID, now())
}

// SeedDocument inserts a document under a case.
func SeedDocument(t testing.TB, db *sql.DB, id, caseID, orgID, title string) {
	t.Helper()
	exec(t, db,
		`INSERT INTO documents (id, case_id, organization_id, title, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, caseID, orgID, title, now())
}

// SeedMessage inserts a message under a case.
func SeedMessage(t testing.TB, db *sql.DB, id, caseID, orgID, body string) {
	t.Helper()
	exec(t, db,
		`INSERT INTO messages (id, case_id, organization_id, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, caseID, orgID, body, now())
}

// RevokeMembership marks the user's membership in orgID revoked.
func RevokeMembership(t testing.TB, db *sql.DB, userID, orgID string) {
	t.Helper()
	exec(t, db, `UPDATE memberships SET status = 'revoked' WHERE user_id = ? AND organization_id = ?`, userID, orgID)
}

// DeactivateProfile clears the profile's activation flag.
func DeactivateProfile(t testing.TB, db *sql.DB, userID string) {
	t.Helper()
	exec(t, db, `UPDATE profiles SET is_active = 0 WHERE user_id = ?`, userID)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
