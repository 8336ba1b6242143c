package authz

import (
	"errors"
	"time"
)

// Decision is the outcome of an access check.
type Decision int

const (
	// NotFound: the resource is absent or belongs to another organization.
	NotFound Decision = iota
	// Denied: the resource exists in the caller's organization but policy forbids access.
	Denied
	// Allowed: access is permitted.
	Allowed
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	default:
		return "not_found"
	}
}

// Resource kinds, used as metric labels.
const (
	ResourceCase         = "case"
	ResourceDocument     = "document"
	ResourceMessage      = "message"
	ResourceOrganization = "organization"
)

// Case is a matter belonging to one organization.
type Case struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Title          string    `json:"title"`
	ClientUserID   string    `json:"client_user_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Document is a file record attached to a case.
type Document struct {
	ID             string    `json:"id"`
	CaseID         string    `json:"case_id"`
	OrganizationID string    `json:"organization_id"`
	Title          string    `json:"title"`
	CreatedAt      time.Time `json:"created_at"`
}

// Message is a note or message attached to a case.
type Message struct {
	ID             string    `json:"id"`
	CaseID         string    `json:"case_id"`
	OrganizationID string    `json:"organization_id"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

// Assignment links a lawyer or analyst to a case.
type Assignment struct {
	UserID    string    `json:"user_id"`
	CaseID    string    `json:"case_id"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Sentinel errors.
var (
	// ErrNoOrganization is returned when an identity without an organization
	// reaches the engine. Callers must run identity resolution first.
	ErrNoOrganization = errors.New("authz: identity has no organization")

	// ErrNotFound is returned by repositories for absent or cross-tenant rows.
	ErrNotFound = errors.New("resource not found")
)
