package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nerrad567/lexgate-core/internal/audit"
	"github.com/nerrad567/lexgate-core/internal/identity"
	"github.com/nerrad567/lexgate-core/internal/infrastructure/mqtt"
)

// revokeCommandTimeout bounds the store work for one MQTT revocation.
const revokeCommandTimeout = 5 * time.Second

// ErrRevokeOrgMismatch is returned when a revocation command names an
// organization other than the membership's.
var ErrRevokeOrgMismatch = errors.New("membership does not belong to the named organization")

// selectOrganizationRequest is the JSON body for POST /organizations/select.
type selectOrganizationRequest struct {
	OrganizationID string `json:"organization_id"`
}

// handleSelectOrganization links the caller's profile to one of their
// active memberships. Reachable while the profile has no organization.
func (s *Server) handleSelectOrganization(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())

	var req selectOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.OrganizationID == "" {
		writeBadRequest(w, "organization_id is required")
		return
	}

	m, err := s.resolver.SelectOrganization(r.Context(), id.UserID, req.OrganizationID)
	if err != nil {
		if writeAuthError(w, err) {
			s.auditDenied(r, id, err)
		} else {
			s.logger.Error("organization selection failed", "user_id", id.UserID, "error", err)
		}
		return
	}

	landing := s.dashboardRoute()
	if p, err := s.resolver.LookupProfile(r.Context(), id.UserID); err == nil {
		landing = identity.LandingRoute(p)
	}

	s.auditLog(&audit.AuditLog{
		Action:         audit.ActionOrgSelected,
		EntityType:     audit.EntityOrganization,
		EntityID:       m.OrganizationID,
		UserID:         id.UserID,
		OrganizationID: m.OrganizationID,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"membership": m,
		"landing":    landing,
	})
}

// handleListMemberships returns every membership of the caller's organization.
func (s *Server) handleListMemberships(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	orgID := chi.URLParam(r, "id")

	d, err := s.engine.CanAccessOrganization(r.Context(), id, orgID)
	if !s.decide(w, r, d, err, audit.EntityOrganization, orgID) {
		return
	}

	list, err := s.resolver.Store().ListOrganizationMemberships(r.Context(), orgID)
	if err != nil {
		s.logger.Error("failed to list memberships", "organization_id", orgID, "error", err)
		writeInternalError(w, "failed to list memberships")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"memberships": list,
		"count":       len(list),
	})
}

// handleRevokeMembership revokes a membership in the caller's organization.
// The revoked user loses access on their next privileged request.
func (s *Server) handleRevokeMembership(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	membershipID := chi.URLParam(r, "id")
	store := s.resolver.Store()

	m, err := store.GetMembership(r.Context(), membershipID)
	if errors.Is(err, identity.ErrMembershipNotFound) || (err == nil && m.OrganizationID != id.OrganizationID()) {
		writeNotFound(w, "membership not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load membership", "membership_id", membershipID, "error", err)
		writeInternalError(w, "failed to load membership")
		return
	}
	if m.UserID == id.UserID {
		writeError(w, http.StatusConflict, ErrCodeConflict, "cannot revoke your own membership")
		return
	}

	if m.Status != identity.StatusRevoked {
		if err := store.RevokeMembership(r.Context(), m.ID); err != nil {
			s.logger.Error("failed to revoke membership", "membership_id", m.ID, "error", err)
			writeInternalError(w, "failed to revoke membership")
			return
		}
		s.auditLog(&audit.AuditLog{
			Action:         audit.ActionMembershipRevoked,
			EntityType:     audit.EntityMembership,
			EntityID:       m.ID,
			UserID:         id.UserID,
			OrganizationID: m.OrganizationID,
			Details:        map[string]any{"member_user_id": m.UserID},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// HandleRevokeCommand applies a membership revocation received over MQTT.
// The command must name the membership's own organization.
func (s *Server) HandleRevokeCommand(cmd mqtt.RevokeCommand) error {
	ctx, cancel := context.WithTimeout(context.Background(), revokeCommandTimeout)
	defer cancel()

	store := s.resolver.Store()
	m, err := store.GetMembership(ctx, cmd.MembershipID)
	if err != nil {
		return fmt.Errorf("loading membership %s: %w", cmd.MembershipID, err)
	}
	if m.OrganizationID != cmd.OrganizationID {
		return ErrRevokeOrgMismatch
	}
	if m.Status == identity.StatusRevoked {
		return nil
	}
	if err := store.RevokeMembership(ctx, m.ID); err != nil {
		return fmt.Errorf("revoking membership %s: %w", m.ID, err)
	}

	s.logger.Info("membership revoked by command",
		"membership_id", m.ID,
		"organization_id", m.OrganizationID,
		"requested_by", cmd.RequestedBy,
	)
	s.auditLog(&audit.AuditLog{
		Action:         audit.ActionMembershipRevoked,
		EntityType:     audit.EntityMembership,
		EntityID:       m.ID,
		OrganizationID: m.OrganizationID,
		Source:         "mqtt",
		Details: map[string]any{
			"member_user_id": m.UserID,
			"requested_by":   cmd.RequestedBy,
		},
	})
	return nil
}
