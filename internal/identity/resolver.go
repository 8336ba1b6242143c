package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/nerrad567/lexgate-core/internal/auth"
	"github.com/nerrad567/lexgate-core/internal/autherr"
	"github.com/nerrad567/lexgate-core/internal/session"
)

// Resolution limits.
const (
	DefaultTimeout = 5 * time.Second
	retryBackoff   = 50 * time.Millisecond
)

// TokenVerifier verifies an access token. Implemented by auth.Service.
type TokenVerifier interface {
	Authenticate(accessToken string) (*auth.Claims, error)
}

// Recorder counts resolution outcomes.
type Recorder interface {
	IdentityOutcome(code string)
}

// Config configures a Resolver.
type Config struct {
	// Timeout bounds each profile store call. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Retries is the number of extra LookupProfile attempts on retryable errors.
	Retries int

	Recorder Recorder
	Logger   *slog.Logger
}

// Resolver turns a session into an Identity and enforces RequireAuth.
type Resolver struct {
	tokens TokenVerifier
	store  Store
	cfg    Config
}

// NewResolver creates a Resolver.
func NewResolver(tokens TokenVerifier, store Store, cfg Config) *Resolver {
	if cfg.Timeout <= 0 || cfg.Timeout > DefaultTimeout {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resolver{tokens: tokens, store: store, cfg: cfg}
}

// Store returns the backing store.
func (r *Resolver) Store() Store {
	return r.store
}

// CurrentProfile resolves the session on s. It returns (nil, nil) when
// there is no valid session, an Identity with a nil Profile when the account
// has no profile yet, and an ErrStoreUnavailable-wrapped error when the
// store fails or times out.
func (r *Resolver) CurrentProfile(ctx context.Context, s session.Reader) (*Identity, error) {
	token := s.AccessToken()
	if token == "" {
		return nil, nil //nolint:nilnil // absence of a session is not an error
	}
	claims, err := r.tokens.Authenticate(token)
	if err != nil {
		return nil, nil //nolint:nilnil // an unverifiable token is no session
	}

	id := &Identity{UserID: claims.Subject, Email: claims.Email, SessionID: claims.SessionID}

	profile, err := r.LookupProfile(ctx, claims.Subject)
	if errors.Is(err, ErrProfileNotFound) {
		return id, nil
	}
	if err != nil {
		return nil, err
	}
	id.Profile = profile

	if profile.OrganizationID == "" {
		return id, nil
	}

	var membership *Membership
	err = r.call(ctx, func(ctx context.Context) error {
		var err error
		membership, err = r.store.ActiveMembership(ctx, profile.UserID, profile.OrganizationID)
		return err
	})
	switch {
	case errors.Is(err, ErrMembershipNotFound):
	case err != nil:
		return nil, err
	default:
		id.Membership = membership
	}
	return id, nil
}

// LookupProfile loads a profile, retrying transient failures up to
// Config.Retries times. ErrProfileNotFound is returned immediately.
func (r *Resolver) LookupProfile(ctx context.Context, userID string) (*Profile, error) {
	var profile *Profile
	var err error

	for attempt := 0; attempt <= r.cfg.Retries; attempt++ {
		if attempt > 0 {
			r.cfg.Logger.Warn("retrying profile lookup", "user_id", userID, "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, ctx.Err())
			case <-time.After(retryBackoff * time.Duration(attempt)):
			}
		}

		err = r.call(ctx, func(ctx context.Context) error {
			var err error
			profile, err = r.store.GetProfile(ctx, userID)
			return err
		})
		if err == nil || errors.Is(err, ErrProfileNotFound) {
			return profile, err
		}
	}
	return nil, err
}

// call runs fn under the per-call timeout and marks failures other than
// not-found as ErrStoreUnavailable.
func (r *Resolver) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	err := fn(ctx)
	if err == nil || errors.Is(err, ErrProfileNotFound) || errors.Is(err, ErrMembershipNotFound) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// Requirement narrows what RequireAuth accepts.
type Requirement func(*requirements)

type requirements struct {
	roles         []Role
	orgID         string
	allowUnlinked bool
}

// WithRoles restricts access to the given profile roles.
func WithRoles(roles ...Role) Requirement {
	return func(o *requirements) { o.roles = append(o.roles, roles...) }
}

// ForOrganization requires the caller's effective organization to be orgID.
func ForOrganization(orgID string) Requirement {
	return func(o *requirements) { o.orgID = orgID }
}

// AllowUnlinked admits profiles without an organization or without an
// active membership. Only organization selection uses it.
func AllowUnlinked() Requirement {
	return func(o *requirements) { o.allowUnlinked = true }
}

// RequireAuth resolves the caller and checks, in this order:
//
//  1. a valid session with a profile          NO_SESSION
//  2. the profile is active                   PERMISSION_DENIED (profile_inactive)
//  3. the profile is linked to an org         NO_ORGANIZATION, with candidates
//  4. the membership in that org is active    NO_ACTIVE_MEMBERSHIP
//  5. ForOrganization matches                 ORG_ACCESS_DENIED
//  6. WithRoles contains the profile role     PERMISSION_DENIED (role)
//
// Store failures are returned as ErrStoreUnavailable, never as a taxonomy code.
func (r *Resolver) RequireAuth(ctx context.Context, s session.Reader, reqs ...Requirement) (*Identity, error) {
	var opts requirements
	for _, req := range reqs {
		req(&opts)
	}

	id, err := r.requireAuth(ctx, s, opts)
	if r.cfg.Recorder != nil {
		r.cfg.Recorder.IdentityOutcome(OutcomeLabel(err))
	}
	return id, err
}

func (r *Resolver) requireAuth(ctx context.Context, s session.Reader, opts requirements) (*Identity, error) {
	id, err := r.CurrentProfile(ctx, s)
	if err != nil {
		return nil, err
	}
	if id == nil || id.Profile == nil {
		return nil, autherr.NoSession()
	}
	if !id.Profile.IsActive {
		return nil, autherr.PermissionDenied("profile_inactive")
	}

	if id.Profile.OrganizationID == "" {
		if opts.allowUnlinked {
			return id, nil
		}
		candidates, err := r.candidates(ctx, id.UserID)
		if err != nil {
			return nil, err
		}
		return nil, autherr.NoOrganization(candidates)
	}

	if id.Membership == nil {
		if opts.allowUnlinked {
			return id, nil
		}
		return nil, autherr.NoActiveMembership()
	}

	if opts.orgID != "" && opts.orgID != id.Profile.OrganizationID {
		return nil, autherr.OrgAccessDenied()
	}

	if len(opts.roles) > 0 && !slices.Contains(opts.roles, id.Profile.Role) {
		return nil, autherr.PermissionDenied("role")
	}
	return id, nil
}

// candidates lists the active memberships a caller could select.
func (r *Resolver) candidates(ctx context.Context, userID string) ([]autherr.Candidate, error) {
	var memberships []Membership
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		memberships, err = r.store.ListMemberships(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := []autherr.Candidate{}
	for _, m := range memberships {
		if m.Status != StatusActive {
			continue
		}
		out = append(out, autherr.Candidate{
			MembershipID:     m.ID,
			OrganizationID:   m.OrganizationID,
			OrganizationName: m.OrganizationName,
			Role:             string(m.Role),
		})
	}
	return out, nil
}

// SelectOrganization makes orgID the caller's effective organization. The
// caller must hold an active membership there.
func (r *Resolver) SelectOrganization(ctx context.Context, userID, orgID string) (*Membership, error) {
	var m *Membership
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		m, err = r.store.ActiveMembership(ctx, userID, orgID)
		return err
	})
	if errors.Is(err, ErrMembershipNotFound) {
		return nil, autherr.OrgAccessDenied()
	}
	if err != nil {
		return nil, err
	}

	if err := r.call(ctx, func(ctx context.Context) error {
		return r.store.LinkOrganization(ctx, userID, orgID, m.Role)
	}); err != nil {
		return nil, err
	}
	return m, nil
}
