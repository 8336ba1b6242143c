package identity

import (
	"errors"
	"time"

	"github.com/nerrad567/lexgate-core/internal/autherr"
)

// Role is a profile's practice-wide role.
type Role string

const (
	RoleOwnerAdmin Role = "owner-admin"
	RoleStaffAdmin Role = "staff-admin"
	RoleLawyer     Role = "lawyer"
	RoleAnalyst    Role = "analyst"
	RoleClient     Role = "client"
)

// ValidRoles lists every profile role.
var ValidRoles = []Role{RoleOwnerAdmin, RoleStaffAdmin, RoleLawyer, RoleAnalyst, RoleClient}

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// IsAdmin reports whether r administers its organization.
func (r Role) IsAdmin() bool {
	return r == RoleOwnerAdmin || r == RoleStaffAdmin
}

// MembershipRole is a profile's role within one organization.
type MembershipRole string

const (
	MembershipOwner  MembershipRole = "owner"
	MembershipMember MembershipRole = "member"
)

// MembershipStatus is the lifecycle state of a membership.
type MembershipStatus string

const (
	StatusActive  MembershipStatus = "active"
	StatusRevoked MembershipStatus = "revoked"
)

// Organization is a tenant.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile is the durable application record for a human identity.
// OrganizationID is empty until the profile is linked to a tenant.
type Profile struct {
	UserID         string         `json:"user_id"`
	Email          string         `json:"email"`
	DisplayName    string         `json:"display_name"`
	Role           Role           `json:"role"`
	OrganizationID string         `json:"organization_id,omitempty"`
	MembershipRole MembershipRole `json:"membership_role,omitempty"`
	IsActive       bool           `json:"is_active"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Membership links a profile to an organization with its own status.
type Membership struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	OrganizationID   string           `json:"organization_id"`
	OrganizationName string           `json:"organization_name,omitempty"`
	Role             MembershipRole   `json:"role"`
	Status           MembershipStatus `json:"status"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Identity is a verified session resolved against the profile store.
// Profile is nil when the account has no profile yet; Membership is nil
// when the profile's organization has no active membership for it.
type Identity struct {
	UserID     string
	Email      string
	SessionID  string
	Profile    *Profile
	Membership *Membership
}

// OrganizationID returns the caller's effective organization, or "".
func (i *Identity) OrganizationID() string {
	if i == nil || i.Profile == nil || i.Membership == nil {
		return ""
	}
	return i.Profile.OrganizationID
}

// Role returns the caller's profile role, or "".
func (i *Identity) Role() Role {
	if i == nil || i.Profile == nil {
		return ""
	}
	return i.Profile.Role
}

// Sentinel errors for identity operations.
var (
	ErrProfileNotFound      = errors.New("profile not found")
	ErrProfileExists        = errors.New("profile already exists")
	ErrMembershipNotFound   = errors.New("membership not found")
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrInvalidRole          = errors.New("invalid role")

	// ErrStoreUnavailable marks a failed or timed-out profile store call.
	// It is retryable; the request should fail rather than hang.
	ErrStoreUnavailable = errors.New("profile store unavailable")
)

// IsRetryable reports whether err is a transient store failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// OutcomeStoreUnavailable labels resolutions that failed on the store.
const OutcomeStoreUnavailable = "store_unavailable"

// OutcomeLabel names a resolution result for metrics: "" on success, the
// taxonomy code, store_unavailable, or "error".
func OutcomeLabel(err error) string {
	switch {
	case err == nil:
		return ""
	case autherr.CodeOf(err) != "":
		return string(autherr.CodeOf(err))
	case IsRetryable(err):
		return OutcomeStoreUnavailable
	default:
		return "error"
	}
}
