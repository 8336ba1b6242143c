// Package session is the only writer of LexGate's session cookies.
//
// Access is split by capability. A Reader is a read-only view over the
// request's cookies and can be handed to any component. A Writer wraps the
// http.ResponseWriter and is only constructed inside handlers, so code that
// holds just a Reader cannot mutate the session.
package session

import (
	"errors"
	"net/http"
	"time"
)

// Cookie names.
const (
	AccessCookie   = "access-token"
	RefreshCookie  = "refresh-token"
	StateCookie    = "pkce-state"
	VerifierCookie = "pkce-verifier"
)

// Cookie lifetimes.
const (
	RefreshMaxAge = 30 * 24 * time.Hour
	PKCEMaxAge    = 5 * time.Minute
)

// ErrMissingTokens is returned by Establish when either token is empty.
var ErrMissingTokens = errors.New("missing tokens")

// Options control cookie attributes shared by all session cookies.
type Options struct {
	// Secure sets the Secure attribute. Disable only for local HTTP development.
	Secure bool
}

// Reader is a read-only view of the session cookies on a request.
type Reader struct {
	r *http.Request
}

// Read returns the read-only session view for r.
func Read(r *http.Request) Reader {
	return Reader{r: r}
}

func (s Reader) value(name string) string {
	if s.r == nil {
		return ""
	}
	c, err := s.r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// AccessToken returns the access-token cookie value, or "".
func (s Reader) AccessToken() string { return s.value(AccessCookie) }

// RefreshToken returns the refresh-token cookie value, or "".
func (s Reader) RefreshToken() string { return s.value(RefreshCookie) }

// HasSession reports whether either session cookie is present. It performs
// no verification.
func (s Reader) HasSession() bool {
	return s.AccessToken() != "" || s.RefreshToken() != ""
}

// PKCE returns the stored state and verifier without consuming them.
func (s Reader) PKCE() (state, verifier string) {
	return s.value(StateCookie), s.value(VerifierCookie)
}

// Writer can set and delete session cookies. Construct it only inside an
// HTTP handler.
type Writer struct {
	w    http.ResponseWriter
	r    *http.Request
	opts Options
}

// NewWriter returns the write handle for one request/response pair.
func NewWriter(w http.ResponseWriter, r *http.Request, opts Options) *Writer {
	return &Writer{w: w, r: r, opts: opts}
}

// Reader returns the read-only view of the same request.
func (s *Writer) Reader() Reader {
	return Read(s.r)
}

// Establish writes the access and refresh cookies. The access cookie lives
// max(1, expiresIn) seconds; the refresh cookie lives RefreshMaxAge.
func (s *Writer) Establish(accessToken, refreshToken string, expiresIn int) error {
	if accessToken == "" || refreshToken == "" {
		return ErrMissingTokens
	}
	s.set(AccessCookie, accessToken, max(1, expiresIn))
	s.set(RefreshCookie, refreshToken, int(RefreshMaxAge/time.Second))
	return nil
}

// End deletes both session cookies. Deleting absent cookies is not an error.
func (s *Writer) End() {
	s.clear(AccessCookie)
	s.clear(RefreshCookie)
}

// SetPKCE stores the PKCE state and verifier for PKCEMaxAge.
func (s *Writer) SetPKCE(state, verifier string) {
	maxAge := int(PKCEMaxAge / time.Second)
	s.set(StateCookie, state, maxAge)
	s.set(VerifierCookie, verifier, maxAge)
}

// ConsumePKCE returns the stored PKCE pair and deletes both cookies.
// The cookies are deleted even when absent.
func (s *Writer) ConsumePKCE() (state, verifier string) {
	state, verifier = s.Reader().PKCE()
	s.clear(StateCookie)
	s.clear(VerifierCookie)
	return state, verifier
}

func (s *Writer) set(name, value string, maxAge int) {
	http.SetCookie(s.w, s.cookie(name, value, maxAge))
}

func (s *Writer) clear(name string) {
	c := s.cookie(name, "", -1)
	c.Expires = time.Unix(0, 0)
	http.SetCookie(s.w, c)
}

func (s *Writer) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
