package session

import (
	"context"
	"errors"
	"strings"
)

// ErrMissingFields is returned when email or password is blank.
var ErrMissingFields = errors.New("email and password are required")

// Grant is a verified credential exchange: the tokens to persist and the
// account they belong to.
type Grant struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// CredentialVerifier checks an email/password pair and issues tokens.
// Implementations must not write cookies.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, email, password, deviceInfo string) (*Grant, error)
}

// Bridge exchanges verified credentials for a cookie session.
type Bridge struct {
	verifier CredentialVerifier
}

// NewBridge creates a Bridge backed by the given credential verifier.
func NewBridge(verifier CredentialVerifier) *Bridge {
	return &Bridge{verifier: verifier}
}

// PasswordLogin validates input, verifies the credentials and establishes
// the session. On any failure no cookie is written.
func (b *Bridge) PasswordLogin(ctx context.Context, w *Writer, email, password string) (*Grant, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrMissingFields
	}

	var deviceInfo string
	if w.r != nil {
		deviceInfo = w.r.UserAgent()
	}
	g, err := b.verifier.VerifyCredentials(ctx, email, password, deviceInfo)
	if err != nil {
		return nil, err
	}
	if err := Issue(w, g); err != nil {
		return nil, err
	}
	return g, nil
}

// Issue establishes the session for a grant from any credential source.
func Issue(w *Writer, g *Grant) error {
	if g == nil {
		return ErrMissingTokens
	}
	return w.Establish(g.AccessToken, g.RefreshToken, g.ExpiresIn)
}
