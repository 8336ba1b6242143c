package api

import (
	"errors"
	"net/http"

	"github.com/nerrad567/lexgate-core/internal/audit"
	"github.com/nerrad567/lexgate-core/internal/auth"
	"github.com/nerrad567/lexgate-core/internal/autherr"
	"github.com/nerrad567/lexgate-core/internal/identity"
	"github.com/nerrad567/lexgate-core/internal/session"
)

// handleDashboard sends a browser to the route its role lands on, or to the
// page that resolves its identity error.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	id, err := s.resolver.RequireAuth(r.Context(), session.Read(r))
	if err != nil {
		if identity.IsRetryable(err) {
			writeUnavailable(w, "profile store unavailable, retry shortly")
			return
		}
		if autherr.Is(err, autherr.CodeNoSession) {
			s.resumeSession(w, r)
			return
		}
		http.Redirect(w, r, identity.ErrorRedirect(err, r.URL.RequestURI()), http.StatusFound)
		return
	}
	http.Redirect(w, r, identity.LandingRoute(id.Profile), http.StatusFound)
}

// resumeSession handles a page request that resolved to no session. When
// the access token is missing or no longer verifies, a usable refresh
// cookie is rotated and the page reloaded. Otherwise both cookies are
// deleted before redirecting to login: the gatekeeper sends any request
// still holding a session cookie from /login straight back here.
func (s *Server) resumeSession(w http.ResponseWriter, r *http.Request) {
	sw := s.sessionWriter(w, r)
	reader := sw.Reader()
	target := r.URL.RequestURI()

	// A verified token without a profile would resolve the same way after a
	// refresh, so it is not retried.
	_, verr := s.auth.Authenticate(reader.AccessToken())
	if raw := reader.RefreshToken(); raw != "" && verr != nil {
		account, pair, err := s.auth.Refresh(r.Context(), raw, r.UserAgent())
		switch {
		case err == nil:
			if err := session.Issue(sw, auth.Grant(account, pair)); err != nil {
				s.logger.Error("writing refreshed session failed", "error", err)
				writeInternalError(w, "refresh failed")
				return
			}
			s.auditLog(&audit.AuditLog{
				Action:     audit.ActionRefresh,
				EntityType: audit.EntitySession,
				UserID:     account.ID,
				Details:    map[string]any{"trigger": "page"},
			})
			http.Redirect(w, r, target, http.StatusFound)
			return
		case errors.Is(err, auth.ErrTokenReuse):
			s.logger.Warn("refresh token reuse detected, session family revoked")
			s.auditLog(&audit.AuditLog{
				Action:     audit.ActionRefreshReuse,
				EntityType: audit.EntitySession,
			})
		case !sessionEnded(err):
			s.logger.Error("page refresh failed", "error", err)
			writeUnavailable(w, "session store unavailable, retry shortly")
			return
		}
	}

	sw.End()
	http.Redirect(w, r, identity.ErrorRedirect(autherr.NoSession(), target), http.StatusFound)
}

// sessionEnded reports whether a refresh error means the session is over,
// as opposed to the store failing.
func sessionEnded(err error) bool {
	return errors.Is(err, auth.ErrTokenReuse) ||
		errors.Is(err, auth.ErrTokenInvalid) ||
		errors.Is(err, auth.ErrTokenExpired) ||
		errors.Is(err, auth.ErrTokenRevoked) ||
		errors.Is(err, auth.ErrAccountInactive) ||
		errors.Is(err, auth.ErrAccountNotFound)
}

// handleLanding returns the caller's landing route as JSON.
func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"route":           identity.LandingRoute(id.Profile),
		"role":            id.Role(),
		"organization_id": id.OrganizationID(),
	})
}
