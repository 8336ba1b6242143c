package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TokenRepository stores refresh tokens by hash. Tokens from one login
// share a FamilyID; rotation revokes a token and adds its successor to the
// same family.
type TokenRepository interface {
	Create(ctx context.Context, token *RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldID string, next *RefreshToken) error
	RevokeFamily(ctx context.Context, familyID string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// SQLiteTokenRepository is the refresh_tokens table.
type SQLiteTokenRepository struct {
	db *sql.DB
}

// NewTokenRepository returns a TokenRepository over db.
func NewTokenRepository(db *sql.DB) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{db: db}
}

// HashToken is the stored form of a raw refresh token. Raw tokens are
// never written to the database.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

const tokenColumns = "id, user_id, family_id, token_hash, device_info, expires_at, revoked, created_at"

// execer is *sql.DB or *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func stamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }

// Create stores token. An empty FamilyID starts a new family.
func (r *SQLiteTokenRepository) Create(ctx context.Context, token *RefreshToken) error {
	if err := insertToken(ctx, r.db, token); err != nil {
		return fmt.Errorf("storing refresh token: %w", err)
	}
	return nil
}

func insertToken(ctx context.Context, db execer, t *RefreshToken) error {
	if t.ID == "" {
		t.ID = "rt-" + uuid.NewString()[:16]
	}
	if t.FamilyID == "" {
		t.FamilyID = uuid.NewString()
	}
	t.CreatedAt = time.Now().UTC().Truncate(time.Second)

	_, err := db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (`+tokenColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.FamilyID, t.TokenHash, nullString(t.DeviceInfo),
		stamp(t.ExpiresAt), boolToInt(t.Revoked), stamp(t.CreatedAt))
	return err
}

// GetByTokenHash returns the token with this hash, revoked or not, or
// ErrTokenInvalid. Callers check Revoked and ExpiresAt themselves so that
// reuse of a rotated token can be detected.
func (r *SQLiteTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	t, err := scanToken(r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM refresh_tokens WHERE token_hash = ?`, tokenHash))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrTokenInvalid
	case err != nil:
		return nil, fmt.Errorf("loading refresh token: %w", err)
	}
	return t, nil
}

// RotateRefreshToken revokes oldID and stores next in one transaction.
// When oldID is already revoked, because another request rotated it
// first, nothing is stored and ErrTokenReuse is returned.
func (r *SQLiteTokenRepository) RotateRefreshToken(ctx context.Context, oldID string, next *RefreshToken) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning rotation: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = 1 WHERE id = ? AND revoked = 0`, oldID)
	if err != nil {
		return fmt.Errorf("revoking rotated token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // supported by go-sqlite3
		return ErrTokenReuse
	}
	if err := insertToken(ctx, tx, next); err != nil {
		return fmt.Errorf("storing successor token: %w", err)
	}
	return tx.Commit()
}

// RevokeFamily ends one login session on every device it was refreshed on.
func (r *SQLiteTokenRepository) RevokeFamily(ctx context.Context, familyID string) error {
	return r.revokeWhere(ctx, "family_id", familyID)
}

// RevokeAllForUser ends every session of an account.
func (r *SQLiteTokenRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	return r.revokeWhere(ctx, "user_id", userID)
}

// revokeWhere revokes by a fixed column name; column never comes from input.
func (r *SQLiteTokenRepository) revokeWhere(ctx context.Context, column, value string) error {
	q := `UPDATE refresh_tokens SET revoked = 1 WHERE revoked = 0 AND ` + column + ` = ?` // #nosec G202 -- column is a constant
	if _, err := r.db.ExecContext(ctx, q, value); err != nil {
		return fmt.Errorf("revoking refresh tokens by %s: %w", column, err)
	}
	return nil
}

// DeleteExpired removes tokens past their expiry, revoked or not, and
// returns how many went. Revoked but unexpired tokens stay so reuse is
// still recognised.
func (r *SQLiteTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= ?`, stamp(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("deleting expired refresh tokens: %w", err)
	}
	return res.RowsAffected()
}

// rowScanner is *sql.Row or *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(s rowScanner) (*RefreshToken, error) {
	var (
		t                    RefreshToken
		device               sql.NullString
		revoked              int
		expiresAt, createdAt string
	)
	if err := s.Scan(&t.ID, &t.UserID, &t.FamilyID, &t.TokenHash, &device, &expiresAt, &revoked, &createdAt); err != nil {
		return nil, err
	}
	t.DeviceInfo = device.String
	t.Revoked = revoked != 0
	t.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // written by insertToken
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // written by insertToken
	return &t, nil
}
