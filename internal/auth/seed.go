package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
)

// seedPasswordBytes gives a 24 character URL-safe password.
const seedPasswordBytes = 18

// SeedOwner creates the first account when the account table is empty and
// returns it with its generated password. The password is for the caller
// to hand to the operator once; it is not logged. On a non-empty table it
// returns (nil, "", nil).
func SeedOwner(ctx context.Context, accounts AccountRepository, email string, logger *slog.Logger) (*Account, string, error) {
	n, err := accounts.Count(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("counting accounts: %w", err)
	}
	if n > 0 {
		logger.Debug("owner seed skipped", "accounts", n)
		return nil, "", nil
	}

	email = NormalizeEmail(email)
	if !IsValidEmail(email) {
		return nil, "", fmt.Errorf("bootstrap owner: %w: %q", ErrInvalidEmail, email)
	}

	raw := make([]byte, seedPasswordBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("generating owner password: %w", err)
	}
	password := base64.RawURLEncoding.EncodeToString(raw)

	hash, err := HashPassword(password)
	if err != nil {
		return nil, "", err
	}

	owner := &Account{Email: email, PasswordHash: hash, IsActive: true}
	if err := accounts.Create(ctx, owner); err != nil {
		return nil, "", fmt.Errorf("creating owner account: %w", err)
	}

	logger.Warn("bootstrap owner account created; rotate its password",
		"account_id", owner.ID,
		"email", owner.Email,
	)
	return owner, password, nil
}
