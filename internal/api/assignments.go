package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nerrad567/lexgate-core/internal/audit"
	"github.com/nerrad567/lexgate-core/internal/authz"
	"github.com/nerrad567/lexgate-core/internal/identity"
)

// maxAssignees caps one PUT body.
const maxAssignees = 100

// setAssignmentsRequest is the JSON body for PUT /cases/{id}/assignments.
type setAssignmentsRequest struct {
	UserIDs []string `json:"user_ids"`
}

// errInvalidAssignee marks an assignee that cannot hold a case assignment.
var errInvalidAssignee = errors.New("invalid assignee")

// handleGetAssignments lists the lawyers and analysts assigned to a case.
func (s *Server) handleGetAssignments(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "id")
	d, _, err := s.engine.CanAccessCase(r.Context(), identityFrom(r.Context()), caseID)
	if !s.decide(w, r, d, err, audit.EntityCase, caseID) {
		return
	}

	list, err := s.engine.Assignments().GetAssignments(r.Context(), caseID)
	if err != nil {
		s.logger.Error("failed to get assignments", "case_id", caseID, "error", err)
		writeInternalError(w, "failed to get assignments")
		return
	}
	if list == nil {
		list = []authz.Assignment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"assignments": list,
		"count":       len(list),
	})
}

// handleSetAssignments replaces a case's assignments. Every assignee must
// be an active lawyer or analyst in the caller's organization.
func (s *Server) handleSetAssignments(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	caseID := chi.URLParam(r, "id")

	var req setAssignmentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.UserIDs) > maxAssignees {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, fmt.Sprintf("at most %d assignees", maxAssignees))
		return
	}

	d, c, err := s.engine.CanAccessCase(r.Context(), id, caseID)
	if !s.decide(w, r, d, err, audit.EntityCase, caseID) {
		return
	}

	for _, userID := range req.UserIDs {
		if err := s.checkAssignee(r, c.OrganizationID, userID); err != nil {
			if errors.Is(err, errInvalidAssignee) {
				writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
				return
			}
			s.logger.Error("failed to check assignee", "user_id", userID, "error", err)
			writeInternalError(w, "failed to check assignee")
			return
		}
	}

	if err := s.engine.Assignments().SetAssignments(r.Context(), c.ID, req.UserIDs, id.UserID); err != nil {
		s.logger.Error("failed to set assignments", "case_id", caseID, "error", err)
		writeInternalError(w, "failed to set assignments")
		return
	}

	s.auditLog(&audit.AuditLog{
		Action:         audit.ActionAssignmentsSet,
		EntityType:     audit.EntityCase,
		EntityID:       c.ID,
		UserID:         id.UserID,
		OrganizationID: c.OrganizationID,
		Details:        map[string]any{"user_ids": req.UserIDs},
	})

	list, err := s.engine.Assignments().GetAssignments(r.Context(), c.ID)
	if err != nil {
		s.logger.Error("failed to get assignments", "case_id", caseID, "error", err)
		writeInternalError(w, "failed to get assignments")
		return
	}
	if list == nil {
		list = []authz.Assignment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"assignments": list,
		"count":       len(list),
	})
}

// checkAssignee verifies userID holds an active membership in orgID and a
// role whose case scope is assignment-based.
func (s *Server) checkAssignee(r *http.Request, orgID, userID string) error {
	store := s.resolver.Store()

	_, err := store.ActiveMembership(r.Context(), userID, orgID)
	if errors.Is(err, identity.ErrMembershipNotFound) {
		return fmt.Errorf("%w: %s is not an active member", errInvalidAssignee, userID)
	}
	if err != nil {
		return err
	}

	p, err := store.GetProfile(r.Context(), userID)
	if errors.Is(err, identity.ErrProfileNotFound) {
		return fmt.Errorf("%w: %s has no profile", errInvalidAssignee, userID)
	}
	if err != nil {
		return err
	}
	if authz.CaseScope(p.Role) != authz.ScopeAssigned {
		return fmt.Errorf("%w: %s has role %s", errInvalidAssignee, userID, p.Role)
	}
	return nil
}
