// Package idp signs users in through an external OAuth2 identity provider
// using the authorization-code flow with PKCE (S256).
//
// Start stores a random state and code verifier in five-minute cookies and
// returns the provider URL. Callback consumes both cookies before doing
// anything else, rejects a mismatched state with PKCE_STATE_MISMATCH
// without touching the network, exchanges the code once under a bounded
// deadline, links or creates the local account and finally issues a
// LexGate session.
//
// Provider tokens are stored sealed with package envelope. A stored token
// that fails authentication surfaces as CRYPTO_INTEGRITY_FAILURE.
package idp
