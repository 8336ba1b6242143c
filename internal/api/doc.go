// Package api implements the HTTP surface of LexGate Core.
//
// This package provides:
//   - session endpoints: password login, session sync, refresh, logout,
//     the external IdP start/callback pair and identity introspection
//   - tenant-scoped case, document and message reads
//   - administration of organization selection, memberships and case assignments
//   - the audit log, health and Prometheus endpoints
//
// # Request pipeline
//
// Every request passes the same chain: request ID, logging, recovery,
// metrics, CORS, body limit, then the edge gatekeeper. Protected handlers
// are wrapped by requireAuth, which resolves the caller before the handler
// asks the authorization engine about a specific resource. The order is
// fixed by the router; nothing downstream re-checks cookies.
//
// # Errors
//
// Identity failures keep their taxonomy code in the JSON body
// ({status, code, message, reason, candidates}). Authorization denials are
// 403 insufficient_permission; resources outside the caller's organization
// are 404. A slow or failed profile store is 503 with Retry-After.
//
// # Lifecycle
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Audit entries are written by a single background goroutine from a
// bounded channel and fanned out to MQTT and InfluxDB when configured.
package api
