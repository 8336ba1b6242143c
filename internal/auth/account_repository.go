package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// AccountRepository defines the interface for credential record persistence.
type AccountRepository interface {
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetActive(ctx context.Context, id string, active bool) error
	Count(ctx context.Context) (int, error)
}

// SQLiteAccountRepository implements AccountRepository using SQLite.
type SQLiteAccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new SQLite-backed account repository.
func NewAccountRepository(db *sql.DB) *SQLiteAccountRepository {
	return &SQLiteAccountRepository{db: db}
}

const accountColumns = "id, email, password_hash, is_active, created_at, updated_at"

// Create inserts a new account. The ID is generated if empty and the email
// is normalised before storage.
func (r *SQLiteAccountRepository) Create(ctx context.Context, account *Account) error {
	account.Email = NormalizeEmail(account.Email)
	if !IsValidEmail(account.Email) {
		return ErrInvalidEmail
	}
	if account.ID == "" {
		account.ID = "usr-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	account.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	account.UpdatedAt = account.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, password_hash, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		account.ID, account.Email, nullString(account.PasswordHash),
		boolToInt(account.IsActive), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("creating account: %w", err)
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *SQLiteAccountRepository) GetByID(ctx context.Context, id string) (*Account, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
	return scanAccount(row)
}

// GetByEmail retrieves an account by (normalised) email.
func (r *SQLiteAccountRepository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE email = ?", NormalizeEmail(email))
	return scanAccount(row)
}

// UpdatePassword changes an account's password hash.
func (r *SQLiteAccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.update(ctx, "password_hash = ?", nullString(passwordHash), id)
}

// SetActive enables or disables an account's credentials.
func (r *SQLiteAccountRepository) SetActive(ctx context.Context, id string, active bool) error {
	return r.update(ctx, "is_active = ?", boolToInt(active), id)
}

func (r *SQLiteAccountRepository) update(ctx context.Context, set string, value any, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"UPDATE accounts SET "+set+", updated_at = ? WHERE id = ?", //nolint:gosec // set is a package constant
		value, now, id)
	if err != nil {
		return fmt.Errorf("updating account: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Count returns the total number of accounts.
func (r *SQLiteAccountRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting accounts: %w", err)
	}
	return count, nil
}

func scanAccount(row *sql.Row) (*Account, error) {
	var a Account
	var hash sql.NullString
	var isActive int
	var createdAt, updatedAt string

	if err := row.Scan(&a.ID, &a.Email, &hash, &isActive, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("scanning account: %w", err)
	}

	a.PasswordHash = hash.String
	a.IsActive = isActive != 0
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &a, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
