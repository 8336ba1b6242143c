package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/lexgate-core/internal/session"
)

// ServiceConfig holds token signing settings for the Service.
type ServiceConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Service is the credential backend: it verifies passwords, issues access and
// refresh tokens, rotates refresh tokens and revokes sessions.
type Service struct {
	accounts AccountRepository
	tokens   TokenRepository
	cfg      ServiceConfig
}

// NewService creates a credential backend.
func NewService(accounts AccountRepository, tokens TokenRepository, cfg ServiceConfig) *Service {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = session.RefreshMaxAge
	}
	return &Service{accounts: accounts, tokens: tokens, cfg: cfg}
}

// PasswordLogin verifies an email/password pair and issues a new session.
// Unknown emails, IdP-only accounts and wrong passwords all return
// ErrInvalidCredentials after the same amount of hashing work.
func (s *Service) PasswordLogin(ctx context.Context, email, password, deviceInfo string) (*Account, *TokenPair, error) {
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, nil, fmt.Errorf("looking up account: %w", err)
	}

	hash := dummyHash()
	if account != nil && account.PasswordHash != "" {
		hash = account.PasswordHash
	}
	ok, err := VerifyPassword(password, hash)
	if err != nil {
		return nil, nil, fmt.Errorf("verifying password: %w", err)
	}
	if account == nil || account.PasswordHash == "" || !ok {
		return nil, nil, ErrInvalidCredentials
	}
	if !account.IsActive {
		return nil, nil, ErrAccountInactive
	}

	if NeedsRehash(account.PasswordHash) {
		// Best effort: the old hash keeps working if the rewrite fails.
		if upgraded, hashErr := HashPassword(password); hashErr == nil {
			if s.accounts.UpdatePassword(ctx, account.ID, upgraded) == nil {
				account.PasswordHash = upgraded
			}
		}
	}

	pair, err := s.IssueSession(ctx, account, deviceInfo)
	if err != nil {
		return nil, nil, err
	}
	return account, pair, nil
}

// VerifyCredentials adapts PasswordLogin to the session bridge.
func (s *Service) VerifyCredentials(ctx context.Context, email, password, deviceInfo string) (*session.Grant, error) {
	account, pair, err := s.PasswordLogin(ctx, email, password, deviceInfo)
	if err != nil {
		return nil, err
	}
	return Grant(account, pair), nil
}

// IssueSession starts a new refresh-token family for an account and signs
// an access token bound to it. Used after password login and IdP callback.
func (s *Service) IssueSession(ctx context.Context, account *Account, deviceInfo string) (*TokenPair, error) {
	raw, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	rt := &RefreshToken{
		UserID:     account.ID,
		TokenHash:  HashToken(raw),
		DeviceInfo: deviceInfo,
		ExpiresAt:  time.Now().Add(s.cfg.RefreshTTL),
	}
	if err := s.tokens.Create(ctx, rt); err != nil {
		return nil, err
	}

	return s.pair(account, rt.FamilyID, raw)
}

// Refresh exchanges a refresh token for a new pair in the same family.
// Presenting a revoked token revokes the whole family and returns ErrTokenReuse.
func (s *Service) Refresh(ctx context.Context, rawRefresh, deviceInfo string) (*Account, *TokenPair, error) {
	if rawRefresh == "" {
		return nil, nil, ErrTokenInvalid
	}

	stored, err := s.tokens.GetByTokenHash(ctx, HashToken(rawRefresh))
	if err != nil {
		return nil, nil, err
	}
	if stored.Revoked {
		if err := s.tokens.RevokeFamily(ctx, stored.FamilyID); err != nil {
			return nil, nil, err
		}
		return nil, nil, ErrTokenReuse
	}
	if time.Now().After(stored.ExpiresAt) {
		return nil, nil, ErrTokenExpired
	}

	account, err := s.accounts.GetByID(ctx, stored.UserID)
	if err != nil {
		return nil, nil, err
	}
	if !account.IsActive {
		if err := s.tokens.RevokeAllForUser(ctx, account.ID); err != nil {
			return nil, nil, err
		}
		return nil, nil, ErrAccountInactive
	}

	raw, err := GenerateRefreshToken()
	if err != nil {
		return nil, nil, err
	}
	next := &RefreshToken{
		UserID:     account.ID,
		FamilyID:   stored.FamilyID,
		TokenHash:  HashToken(raw),
		DeviceInfo: deviceInfo,
		ExpiresAt:  time.Now().Add(s.cfg.RefreshTTL),
	}
	if err := s.tokens.RotateRefreshToken(ctx, stored.ID, next); err != nil {
		if errors.Is(err, ErrTokenReuse) {
			if revokeErr := s.tokens.RevokeFamily(ctx, stored.FamilyID); revokeErr != nil {
				return nil, nil, revokeErr
			}
		}
		return nil, nil, err
	}

	pair, err := s.pair(account, stored.FamilyID, raw)
	if err != nil {
		return nil, nil, err
	}
	return account, pair, nil
}

// Logout revokes the session family the refresh token belongs to.
// Unknown tokens are ignored so logout is idempotent.
func (s *Service) Logout(ctx context.Context, rawRefresh string) error {
	if rawRefresh == "" {
		return nil
	}
	stored, err := s.tokens.GetByTokenHash(ctx, HashToken(rawRefresh))
	if errors.Is(err, ErrTokenInvalid) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.tokens.RevokeFamily(ctx, stored.FamilyID)
}

// Authenticate verifies an access token and returns its claims.
func (s *Service) Authenticate(accessToken string) (*Claims, error) {
	if accessToken == "" {
		return nil, ErrTokenInvalid
	}
	return ParseToken(accessToken, s.cfg.Secret)
}

// Account returns the credential record for an ID.
func (s *Service) Account(ctx context.Context, id string) (*Account, error) {
	return s.accounts.GetByID(ctx, id)
}

// SweepExpired deletes expired refresh tokens.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	return s.tokens.DeleteExpired(ctx)
}

func (s *Service) pair(account *Account, familyID, rawRefresh string) (*TokenPair, error) {
	access, err := GenerateAccessToken(account, familyID, s.cfg.Secret, s.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: rawRefresh,
		ExpiresIn:    int(s.cfg.AccessTTL / time.Second),
	}, nil
}

// Grant converts a token pair to the session bridge's cookie contract.
func Grant(account *Account, pair *TokenPair) *session.Grant {
	return &session.Grant{
		UserID:       account.ID,
		Email:        account.Email,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}
}
