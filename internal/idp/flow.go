package idp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/nerrad567/lexgate-core/internal/auth"
	"github.com/nerrad567/lexgate-core/internal/autherr"
	"github.com/nerrad567/lexgate-core/internal/identity"
	"github.com/nerrad567/lexgate-core/internal/session"
)

// DefaultTimeout bounds the code exchange and userinfo fetch together.
const DefaultTimeout = 10 * time.Second

// Callback failures that are not part of the authorization taxonomy.
var (
	ErrProviderDenied  = errors.New("identity provider returned an error")
	ErrMissingCode     = errors.New("authorization code missing")
	ErrExchange        = errors.New("code exchange failed")
	ErrUserInfo        = errors.New("userinfo request failed")
	ErrMissingEmail    = errors.New("identity provider returned no email")
	ErrUnverifiedEmail = errors.New("email is not verified by the identity provider")
)

// Sealer encrypts provider tokens at rest. *envelope.KeySource satisfies it.
type Sealer interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(payload string) (string, error)
}

// SessionIssuer starts a LexGate session for an account. *auth.Service satisfies it.
type SessionIssuer interface {
	IssueSession(ctx context.Context, account *auth.Account, deviceInfo string) (*auth.TokenPair, error)
}

// ProfileStore is the subset of identity.Store the flow needs.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*identity.Profile, error)
	CreateProfile(ctx context.Context, p *identity.Profile) error
}

// Recorder counts callback outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	IdPCallback(outcome string)
}

// Config describes the provider and flow limits.
type Config struct {
	Provider     string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	RedirectURL  string
	Scopes       []string
	Timeout      time.Duration

	// HTTPClient is used for the token and userinfo requests. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
	Recorder   Recorder
	Logger     *slog.Logger
}

// Deps are the stores and services the flow writes to.
type Deps struct {
	Accounts auth.AccountRepository
	Profiles ProfileStore
	Links    LinkRepository
	Sessions SessionIssuer
	Sealer   Sealer
}

// Flow runs the authorization-code flow with PKCE against one provider.
type Flow struct {
	oauth    *oauth2.Config
	cfg      Config
	deps     Deps
	provider string
}

// Result describes a completed callback.
type Result struct {
	Account *auth.Account
	Created bool
	Linked  bool
}

// UserInfo is the provider's description of the signed-in user.
type UserInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified,omitempty"`
	Name          string `json:"name"`
}

// emailVerified reports whether the provider asserted the email as
// verified. An absent claim counts as unverified.
func (u *UserInfo) emailVerified() bool {
	return u.EmailVerified != nil && *u.EmailVerified
}

// NewFlow creates a flow. The timeout is clamped to DefaultTimeout.
func NewFlow(cfg Config, deps Deps) *Flow {
	if cfg.Timeout <= 0 || cfg.Timeout > DefaultTimeout {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "oidc"
	}
	return &Flow{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
				// Fixed so a rejected exchange is not replayed with the other style.
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		cfg:      cfg,
		deps:     deps,
		provider: provider,
	}
}

// Provider returns the provider name used for links.
func (f *Flow) Provider() string {
	return f.provider
}

// Start generates a fresh state and verifier, stores both in short-lived
// cookies and returns the provider authorization URL.
func (f *Flow) Start(w *session.Writer) (string, error) {
	state, err := randomState()
	if err != nil {
		return "", err
	}
	verifier := oauth2.GenerateVerifier()
	w.SetPKCE(state, verifier)
	return f.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), nil
}

// Callback completes the flow. Both PKCE cookies are consumed before
// anything else, so a callback can be attempted at most once per Start.
func (f *Flow) Callback(ctx context.Context, r *http.Request, w *session.Writer) (*Result, error) {
	storedState, verifier := w.ConsumePKCE()

	q := r.URL.Query()
	state := q.Get("state")
	if storedState == "" || state == "" ||
		subtle.ConstantTimeCompare([]byte(storedState), []byte(state)) != 1 {
		f.outcome("state_mismatch")
		return nil, autherr.PKCEStateMismatch("state")
	}
	if verifier == "" {
		f.outcome("state_mismatch")
		return nil, autherr.PKCEStateMismatch("verifier")
	}
	if e := q.Get("error"); e != "" {
		f.outcome("provider_error")
		return nil, fmt.Errorf("%w: %s", ErrProviderDenied, e)
	}
	code := q.Get("code")
	if code == "" {
		f.outcome("missing_code")
		return nil, ErrMissingCode
	}

	tok, info, err := f.exchange(ctx, code, verifier)
	if err != nil {
		return nil, err
	}

	res, err := f.linkAccount(ctx, info)
	if err != nil {
		f.outcome("link_failed")
		return nil, err
	}
	if err := f.storeTokens(ctx, res.Account.ID, info.Subject, tok); err != nil {
		f.outcome("link_failed")
		return nil, err
	}

	pair, err := f.deps.Sessions.IssueSession(ctx, res.Account, r.UserAgent())
	if err != nil {
		f.outcome("error")
		return nil, fmt.Errorf("issuing session: %w", err)
	}
	if err := session.Issue(w, auth.Grant(res.Account, pair)); err != nil {
		f.outcome("error")
		return nil, err
	}

	f.outcome("ok")
	f.cfg.Logger.Info("idp login",
		"provider", f.provider,
		"user_id", res.Account.ID,
		"created", res.Created,
	)
	return res, nil
}

// StoredToken decrypts the provider tokens saved for a link. A payload that
// fails authentication yields CRYPTO_INTEGRITY_FAILURE.
func (f *Flow) StoredToken(ctx context.Context, subject string) (*oauth2.Token, error) {
	link, err := f.deps.Links.Get(ctx, f.provider, subject)
	if err != nil {
		return nil, err
	}
	return f.openLink(link)
}

func (f *Flow) openLink(link *Link) (*oauth2.Token, error) {
	access, err := f.deps.Sealer.Decrypt(link.AccessTokenEnc)
	if err != nil {
		return nil, autherr.CryptoIntegrityFailure(err)
	}
	tok := &oauth2.Token{AccessToken: access, Expiry: link.ExpiresAt}
	if link.RefreshTokenEnc != "" {
		refresh, err := f.deps.Sealer.Decrypt(link.RefreshTokenEnc)
		if err != nil {
			return nil, autherr.CryptoIntegrityFailure(err)
		}
		tok.RefreshToken = refresh
	}
	return tok, nil
}

// exchange trades the code for tokens and fetches userinfo under one
// deadline. Neither request is retried: codes are single use.
func (f *Flow) exchange(ctx context.Context, code, verifier string) (*oauth2.Token, *UserInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.cfg.HTTPClient)

	tok, err := f.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		f.outcome("exchange_failed")
		return nil, nil, fmt.Errorf("%w: %w", ErrExchange, err)
	}

	info, err := f.userInfo(ctx, tok)
	if err != nil {
		f.outcome("userinfo_failed")
		return nil, nil, err
	}
	return tok, info, nil
}

func (f *Flow) userInfo(ctx context.Context, tok *oauth2.Token) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserInfo, err)
	}
	tok.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	resp, err := f.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserInfo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUserInfo, resp.StatusCode)
	}

	var info UserInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: decoding: %w", ErrUserInfo, err)
	}
	if info.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrUserInfo)
	}
	return &info, nil
}

// linkAccount resolves the local account for a provider identity. An
// existing link wins; otherwise an email the provider marks verified is
// matched to an existing account; otherwise, when no account holds the
// email, a new account is created with a client profile and no organization.
func (f *Flow) linkAccount(ctx context.Context, info *UserInfo) (*Result, error) {
	link, err := f.deps.Links.Get(ctx, f.provider, info.Subject)
	switch {
	case err == nil:
		account, err := f.deps.Accounts.GetByID(ctx, link.UserID)
		if err != nil {
			return nil, fmt.Errorf("loading linked account: %w", err)
		}
		if !account.IsActive {
			return nil, auth.ErrAccountInactive
		}
		return &Result{Account: account}, nil
	case !errors.Is(err, ErrLinkNotFound):
		return nil, err
	}

	email := auth.NormalizeEmail(info.Email)
	if email == "" {
		return nil, ErrMissingEmail
	}

	account, err := f.deps.Accounts.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if !info.emailVerified() {
			return nil, ErrUnverifiedEmail
		}
		if !account.IsActive {
			return nil, auth.ErrAccountInactive
		}
		if err := f.ensureProfile(ctx, account, info); err != nil {
			return nil, err
		}
		return &Result{Account: account, Linked: true}, nil
	case !errors.Is(err, auth.ErrAccountNotFound):
		return nil, fmt.Errorf("looking up account: %w", err)
	}

	account = &auth.Account{Email: email, IsActive: true}
	if err := f.deps.Accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("creating account: %w", err)
	}
	if err := f.ensureProfile(ctx, account, info); err != nil {
		return nil, err
	}
	return &Result{Account: account, Created: true, Linked: true}, nil
}

func (f *Flow) ensureProfile(ctx context.Context, account *auth.Account, info *UserInfo) error {
	_, err := f.deps.Profiles.GetProfile(ctx, account.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, identity.ErrProfileNotFound) {
		return fmt.Errorf("loading profile: %w", err)
	}

	name := info.Name
	if name == "" {
		name = account.Email
	}
	err = f.deps.Profiles.CreateProfile(ctx, &identity.Profile{
		UserID:      account.ID,
		Email:       account.Email,
		DisplayName: name,
		Role:        identity.RoleClient,
		IsActive:    true,
	})
	if err != nil && !errors.Is(err, identity.ErrProfileExists) {
		return fmt.Errorf("creating profile: %w", err)
	}
	return nil
}

// storeTokens seals the provider tokens onto the link. When the provider
// omits a refresh token, the previously stored one is kept after its
// integrity is verified.
func (f *Flow) storeTokens(ctx context.Context, userID, subject string, tok *oauth2.Token) error {
	link := &Link{
		Provider:  f.provider,
		Subject:   subject,
		UserID:    userID,
		ExpiresAt: tok.Expiry,
	}

	var err error
	if link.AccessTokenEnc, err = f.deps.Sealer.Encrypt(tok.AccessToken); err != nil {
		return fmt.Errorf("sealing access token: %w", err)
	}

	if tok.RefreshToken != "" {
		if link.RefreshTokenEnc, err = f.deps.Sealer.Encrypt(tok.RefreshToken); err != nil {
			return fmt.Errorf("sealing refresh token: %w", err)
		}
	} else if prev, err := f.deps.Links.Get(ctx, f.provider, subject); err == nil && prev.RefreshTokenEnc != "" {
		if _, err := f.deps.Sealer.Decrypt(prev.RefreshTokenEnc); err != nil {
			return autherr.CryptoIntegrityFailure(err)
		}
		link.RefreshTokenEnc = prev.RefreshTokenEnc
	}

	return f.deps.Links.Upsert(ctx, link)
}

func (f *Flow) outcome(o string) {
	if f.cfg.Recorder != nil {
		f.cfg.Recorder.IdPCallback(o)
	}
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
