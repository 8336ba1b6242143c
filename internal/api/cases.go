package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nerrad567/lexgate-core/internal/audit"
	"github.com/nerrad567/lexgate-core/internal/authz"
	"github.com/nerrad567/lexgate-core/internal/identity"
)

// decide writes the response for a non-allowed decision or a failed check
// and reports whether the handler may continue.
func (s *Server) decide(w http.ResponseWriter, r *http.Request, d authz.Decision, err error, entityType, entityID string) bool {
	if err != nil {
		if identity.IsRetryable(err) {
			writeUnavailable(w, "profile store unavailable, retry shortly")
			return false
		}
		s.logger.Error("authorization check failed",
			"entity_type", entityType,
			"entity_id", entityID,
			"request_id", requestIDFrom(r.Context()),
			"error", err,
		)
		writeInternalError(w, "authorization check failed")
		return false
	}

	switch d {
	case authz.Allowed:
		return true
	case authz.Denied:
		id := identityFrom(r.Context())
		s.auditLog(&audit.AuditLog{
			Action:         audit.ActionAccessDenied,
			EntityType:     entityType,
			EntityID:       entityID,
			UserID:         id.UserID,
			OrganizationID: id.OrganizationID(),
			Details:        map[string]any{"role": string(id.Role())},
		})
		writeForbidden(w)
	default:
		writeNotFound(w, entityType+" not found")
	}
	return false
}

// handleListCases returns the cases visible to the caller's role.
func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	cases, err := s.engine.Cases().ListForIdentity(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to list cases", "error", err)
		writeInternalError(w, "failed to list cases")
		return
	}
	if cases == nil {
		cases = []authz.Case{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cases": cases,
		"count": len(cases),
	})
}

// handleGetCase returns one case.
func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "id")
	d, c, err := s.engine.CanAccessCase(r.Context(), identityFrom(r.Context()), caseID)
	if !s.decide(w, r, d, err, audit.EntityCase, caseID) {
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleListCaseDocuments returns the documents attached to a case.
func (s *Server) handleListCaseDocuments(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	caseID := chi.URLParam(r, "id")
	d, c, err := s.engine.CanAccessCase(r.Context(), id, caseID)
	if !s.decide(w, r, d, err, audit.EntityCase, caseID) {
		return
	}

	docs, err := s.engine.Cases().ListDocuments(r.Context(), c.OrganizationID, c.ID)
	if err != nil {
		s.logger.Error("failed to list documents", "case_id", caseID, "error", err)
		writeInternalError(w, "failed to list documents")
		return
	}
	if docs == nil {
		docs = []authz.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"count":     len(docs),
	})
}

// handleListCaseMessages returns the messages attached to a case.
func (s *Server) handleListCaseMessages(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	caseID := chi.URLParam(r, "id")
	d, c, err := s.engine.CanAccessCase(r.Context(), id, caseID)
	if !s.decide(w, r, d, err, audit.EntityCase, caseID) {
		return
	}

	msgs, err := s.engine.Cases().ListMessages(r.Context(), c.OrganizationID, c.ID)
	if err != nil {
		s.logger.Error("failed to list messages", "case_id", caseID, "error", err)
		writeInternalError(w, "failed to list messages")
		return
	}
	if msgs == nil {
		msgs = []authz.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": msgs,
		"count":    len(msgs),
	})
}

// handleGetDocument returns one document.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")
	d, doc, err := s.engine.CanAccessDocument(r.Context(), identityFrom(r.Context()), docID)
	if !s.decide(w, r, d, err, audit.EntityDocument, docID) {
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleGetMessage returns one message.
func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	msgID := chi.URLParam(r, "id")
	d, msg, err := s.engine.CanAccessMessage(r.Context(), identityFrom(r.Context()), msgID)
	if !s.decide(w, r, d, err, audit.EntityMessage, msgID) {
		return
	}
	writeJSON(w, http.StatusOK, msg)
}
