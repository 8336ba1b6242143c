package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/nerrad567/lexgate-core/internal/audit"
	"github.com/nerrad567/lexgate-core/internal/autherr"
	"github.com/nerrad567/lexgate-core/internal/identity"
	"github.com/nerrad567/lexgate-core/internal/infrastructure/mqtt"
)

// auditChanSize is the buffer size for the async audit log channel.
// Entries beyond this are dropped (best-effort) to avoid back-pressure on requests.
const auditChanSize = 256

// auditSource tags entries written by the HTTP API.
const auditSource = "api"

// auditLog enqueues an audit entry for asynchronous write and publication.
// If the channel is full the entry is dropped, counted and logged.
func (s *Server) auditLog(entry *audit.AuditLog) {
	if s.auditCh == nil {
		return
	}
	if entry.Source == "" {
		entry.Source = auditSource
	}

	select {
	case s.auditCh <- entry:
	default:
		s.metrics.AuditDropped()
		s.logger.Warn("audit log channel full, dropping entry",
			"action", entry.Action,
			"entity_type", entry.EntityType,
		)
	}
}

// auditDenied records a taxonomy failure raised by identity resolution.
func (s *Server) auditDenied(r *http.Request, id *identity.Identity, err error) {
	entry := &audit.AuditLog{
		Action:     audit.ActionAccessDenied,
		EntityType: audit.EntitySession,
		Details: map[string]any{
			"code": string(autherr.CodeOf(err)),
			"path": r.URL.Path,
		},
	}
	if e, ok := autherr.As(err); ok && e.Reason != "" {
		entry.Details["reason"] = e.Reason
	}
	if id != nil {
		entry.UserID = id.UserID
		entry.OrganizationID = id.OrganizationID()
	}
	s.auditLog(entry)
}

// drainAuditLog reads entries from the audit channel and handles them serially.
// This avoids unbounded goroutine creation and is kinder to SQLite's serial write model.
// It runs until the context is cancelled, then drains remaining entries.
func (s *Server) drainAuditLog(ctx context.Context) {
	for {
		select {
		case entry := <-s.auditCh:
			s.writeAudit(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-s.auditCh:
					s.writeAudit(entry)
				default:
					return
				}
			}
		}
	}
}

// writeAudit persists one entry and fans it out to MQTT and InfluxDB.
func (s *Server) writeAudit(entry *audit.AuditLog) {
	if s.auditRepo != nil {
		if err := s.auditRepo.Create(context.Background(), entry); err != nil {
			s.logger.Error("audit log write failed",
				"action", entry.Action,
				"entity_type", entry.EntityType,
				"error", err,
			)
		}
	}

	if s.influx != nil {
		action, outcome := eventOutcome(entry.Action)
		s.influx.WriteAuthEvent(action, outcome)
	}

	if s.mqtt != nil && s.mqtt.IsConnected() {
		ev := mqtt.AuthEvent{
			Action:         entry.Action,
			UserID:         entry.UserID,
			OrganizationID: entry.OrganizationID,
			EntityType:     entry.EntityType,
			EntityID:       entry.EntityID,
			Timestamp:      entry.CreatedAt,
		}
		if err := s.mqtt.PublishAuthEvent(ev); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
			s.logger.Warn("auth event publish failed", "action", entry.Action, "error", err)
		}
	}
}

// eventOutcome splits an audit action into the action/outcome pair used
// for the auth event time series.
func eventOutcome(action string) (string, string) {
	switch action {
	case audit.ActionLoginFailed:
		return audit.ActionLogin, "failed"
	case audit.ActionIdPFailed:
		return audit.ActionIdPLogin, "failed"
	case audit.ActionRefreshReuse:
		return audit.ActionRefresh, "reuse"
	case audit.ActionAccessDenied:
		return "access", "denied"
	default:
		return action, "ok"
	}
}

// handleListAuditLogs returns paginated audit entries for the caller's
// organization.
//
// Query parameters:
//   - action: filter by action (login, logout, access_denied, ...)
//   - entity_type: filter by entity type (session, case, membership, ...)
//   - entity_id: filter by specific entity ID
//   - user_id: filter by acting user
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeInternalError(w, "audit logging not configured")
		return
	}
	id := identityFrom(r.Context())

	q := r.URL.Query()
	filter := audit.Filter{
		OrganizationID: id.OrganizationID(),
		Action:         q.Get("action"),
		EntityType:     q.Get("entity_type"),
		EntityID:       q.Get("entity_id"),
		UserID:         q.Get("user_id"),
	}

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
