// Package authz decides whether a resolved identity may read a case,
// document, message or organization record.
//
// Decisions are three-valued. NotFound covers resources that do not exist
// and resources owned by another organization, so a caller cannot probe
// other tenants. Denied is reserved for resources inside the caller's own
// organization that the role policy forbids.
//
// Role scope lives in one table (casePolicy). Documents and messages
// inherit the decision of their case.
package authz
