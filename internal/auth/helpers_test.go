package auth

import (
	"database/sql"
	"testing"

	"github.com/nerrad567/lexgate-core/internal/testutil"
)

const testSecret = "test-secret-that-is-at-least-32-characters"

// testDB returns a migrated temp database.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	return testutil.OpenDB(t)
}

// seedTestAccount inserts an active account with password "test-password".
func seedTestAccount(t *testing.T, db *sql.DB, email string) *Account {
	t.Helper()

	hash, err := HashPassword("test-password")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	account := &Account{Email: email, PasswordHash: hash, IsActive: true}
	if err := NewAccountRepository(db).Create(t.Context(), account); err != nil {
		t.Fatalf("creating test account %s: %v", email, err)
	}
	return account
}

func testService(db *sql.DB) *Service {
	return NewService(NewAccountRepository(db), NewTokenRepository(db), ServiceConfig{Secret: testSecret})
}
