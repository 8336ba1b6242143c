// Package auth is LexGate's credential backend.
//
// It owns the account record (email + Argon2id password hash) and the
// session tokens handed to the session bridge:
//   - HS256 access tokens carrying only the account ID, email and session ID
//   - opaque 256-bit refresh tokens, stored as SHA-256 hashes and grouped in
//     families; each refresh rotates the token, and presenting a revoked
//     token revokes the whole family
//
// Roles, organizations and memberships are not encoded in tokens. They are
// resolved from the profile store on every request by the identity package.
package auth
