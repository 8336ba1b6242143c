// Package autherr defines the closed set of authorization outcomes shared by
// every LexGate component.
//
// An outcome is a tagged variant: an *Error carrying a stable Code plus
// code-specific payload (candidate memberships for NO_ORGANIZATION). Callers
// switch on Code rather than matching message strings:
//
//	switch autherr.CodeOf(err) {
//	case autherr.CodeNoSession:
//	    // redirect to login
//	case autherr.CodeNoOrganization:
//	    // render organization chooser from err.Candidates
//	}
//
// Adding a failure mode means adding a Code. Existing codes are never overloaded.
package autherr

import (
	"errors"
	"fmt"
)

// Code identifies an authorization outcome.
type Code string

// Identity resolution codes.
const (
	CodeNoSession          Code = "NO_SESSION"
	CodeNoOrganization     Code = "NO_ORGANIZATION"
	CodeNoActiveMembership Code = "NO_ACTIVE_MEMBERSHIP"
	CodeOrgAccessDenied    Code = "ORG_ACCESS_DENIED"
	CodePermissionDenied   Code = "PERMISSION_DENIED"
)

// Cross-cutting codes raised by the IdP flow and stored-secret decryption.
const (
	CodePKCEStateMismatch      Code = "PKCE_STATE_MISMATCH"
	CodeCryptoIntegrityFailure Code = "CRYPTO_INTEGRITY_FAILURE"
)

// Codes lists every defined code in a stable order.
var Codes = []Code{
	CodeNoSession,
	CodeNoOrganization,
	CodeNoActiveMembership,
	CodeOrgAccessDenied,
	CodePermissionDenied,
	CodePKCEStateMismatch,
	CodeCryptoIntegrityFailure,
}

// IsValid reports whether c is one of the defined codes.
func (c Code) IsValid() bool {
	for _, v := range Codes {
		if c == v {
			return true
		}
	}
	return false
}

// Fatal reports whether the outcome must restart the flow rather than be retried.
func (c Code) Fatal() bool {
	return c == CodePKCEStateMismatch || c == CodeCryptoIntegrityFailure
}

// Candidate is a membership the caller could activate to leave the
// NO_ORGANIZATION state.
type Candidate struct {
	MembershipID     string `json:"membership_id"`
	OrganizationID   string `json:"organization_id"`
	OrganizationName string `json:"organization_name"`
	Role             string `json:"membership_role"`
}

// Error is a typed authorization outcome.
type Error struct {
	Code    Code
	Message string

	// Candidates is set only for CodeNoOrganization.
	Candidates []Candidate

	// Reason is a machine-readable qualifier, e.g. "profile_inactive" or "role".
	Reason string

	cause error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches another *Error with the same code, so errors.Is(err, autherr.NoSession())
// works regardless of message or payload.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NoSession reports a request without a verifiable session.
func NoSession() *Error {
	return &Error{Code: CodeNoSession, Message: "no active session"}
}

// NoOrganization reports a profile not yet linked to an organization.
func NoOrganization(candidates []Candidate) *Error {
	if candidates == nil {
		candidates = []Candidate{}
	}
	return &Error{
		Code:       CodeNoOrganization,
		Message:    "profile is not linked to an organization",
		Candidates: candidates,
	}
}

// NoActiveMembership reports a revoked or missing membership in the profile's organization.
func NoActiveMembership() *Error {
	return &Error{Code: CodeNoActiveMembership, Message: "membership is not active"}
}

// OrgAccessDenied reports a request targeting an organization other than the caller's.
func OrgAccessDenied() *Error {
	return &Error{Code: CodeOrgAccessDenied, Message: "organization access denied"}
}

// PermissionDenied reports a role or account-state failure inside the caller's organization.
func PermissionDenied(reason string) *Error {
	return &Error{Code: CodePermissionDenied, Message: "insufficient permission", Reason: reason}
}

// PKCEStateMismatch reports a callback whose state or verifier cannot be trusted.
func PKCEStateMismatch(reason string) *Error {
	return &Error{Code: CodePKCEStateMismatch, Message: "pkce state mismatch", Reason: reason}
}

// CryptoIntegrityFailure wraps a decryption failure of a stored secret.
func CryptoIntegrityFailure(cause error) *Error {
	return &Error{Code: CodeCryptoIntegrityFailure, Message: "stored secret failed integrity check", cause: cause}
}

// CodeOf returns the code carried by err, or "" when err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// As extracts the *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
