package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/nerrad567/lexgate-core/internal/audit"
	"github.com/nerrad567/lexgate-core/internal/auth"
	"github.com/nerrad567/lexgate-core/internal/autherr"
	"github.com/nerrad567/lexgate-core/internal/idp"
	"github.com/nerrad567/lexgate-core/internal/session"
)

// loginRequest is the JSON body for POST /api/auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// sessionSyncRequest is the JSON body for POST /api/auth/session.
type sessionSyncRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// userInfo is the public view of an account.
type userInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// loginResponse is returned by login and refresh.
type loginResponse struct {
	OK        bool     `json:"ok"`
	User      userInfo `json:"user"`
	ExpiresIn int      `json:"expires_in,omitempty"`
}

// sessionWriter returns the cookie write handle for this response.
func (s *Server) sessionWriter(w http.ResponseWriter, r *http.Request) *session.Writer {
	return session.NewWriter(w, r, session.Options{Secure: s.sessionCfg.SecureCookies})
}

// writeFailure writes the {ok:false,error} body used by the session endpoints.
func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": message})
}

// handleLogin exchanges email and password for a cookie session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	g, err := s.bridge.PasswordLogin(r.Context(), s.sessionWriter(w, r), req.Email, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrMissingFields):
		writeFailure(w, http.StatusBadRequest, "Email and password are required")
		return
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrAccountInactive):
		s.auditLog(&audit.AuditLog{
			Action:     audit.ActionLoginFailed,
			EntityType: audit.EntitySession,
			Details:    map[string]any{"email": auth.NormalizeEmail(req.Email)},
		})
		writeFailure(w, http.StatusUnauthorized, "Invalid credentials")
		return
	default:
		s.logger.Error("login failed", "error", err)
		writeFailure(w, http.StatusInternalServerError, "login failed")
		return
	}

	s.auditLog(&audit.AuditLog{
		Action:     audit.ActionLogin,
		EntityType: audit.EntitySession,
		UserID:     g.UserID,
		Details:    map[string]any{"method": "password"},
	})
	writeJSON(w, http.StatusOK, loginResponse{
		OK:   true,
		User: userInfo{ID: g.UserID, Email: g.Email},
	})
}

// handleSessionSync mirrors tokens obtained by a client-side identity
// library into the session cookies.
func (s *Server) handleSessionSync(w http.ResponseWriter, r *http.Request) {
	var req sessionSyncRequest
	//nolint:errcheck // a malformed body is reported as missing tokens below
	json.NewDecoder(r.Body).Decode(&req)

	if err := s.sessionWriter(w, r).Establish(req.AccessToken, req.RefreshToken, req.ExpiresIn); err != nil {
		writeFailure(w, http.StatusBadRequest, "Missing tokens")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleLogout revokes the refresh family server-side and deletes the
// session cookies. It always succeeds.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	reader := session.Read(r)

	var userID string
	if claims, err := s.auth.Authenticate(reader.AccessToken()); err == nil {
		userID = claims.Subject
	}
	if err := s.auth.Logout(r.Context(), reader.RefreshToken()); err != nil {
		s.logger.Warn("refresh token revocation failed on logout", "error", err)
	}

	s.sessionWriter(w, r).End()

	if reader.HasSession() {
		s.auditLog(&audit.AuditLog{
			Action:     audit.ActionLogout,
			EntityType: audit.EntitySession,
			UserID:     userID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleRefresh rotates the refresh token inside its family and rewrites
// both cookies. Presenting an already-rotated token revokes the family.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	raw := session.Read(r).RefreshToken()
	if raw == "" {
		writeAuthError(w, autherr.NoSession())
		return
	}

	sw := s.sessionWriter(w, r)
	account, pair, err := s.auth.Refresh(r.Context(), raw, r.UserAgent())
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrTokenReuse):
		sw.End()
		s.logger.Warn("refresh token reuse detected, session family revoked")
		s.auditLog(&audit.AuditLog{
			Action:     audit.ActionRefreshReuse,
			EntityType: audit.EntitySession,
		})
		writeError(w, http.StatusUnauthorized, string(autherr.CodeNoSession), "session revoked")
		return
	case sessionEnded(err):
		sw.End()
		writeAuthError(w, autherr.NoSession())
		return
	default:
		s.logger.Error("refresh failed", "error", err)
		writeInternalError(w, "refresh failed")
		return
	}

	if err := session.Issue(sw, auth.Grant(account, pair)); err != nil {
		s.logger.Error("writing refreshed session failed", "error", err)
		writeInternalError(w, "refresh failed")
		return
	}

	s.auditLog(&audit.AuditLog{
		Action:     audit.ActionRefresh,
		EntityType: audit.EntitySession,
		UserID:     account.ID,
	})
	writeJSON(w, http.StatusOK, loginResponse{
		OK:        true,
		User:      userInfo{ID: account.ID, Email: account.Email},
		ExpiresIn: pair.ExpiresIn,
	})
}

// handleIdPStart begins the provider login and returns its URL.
func (s *Server) handleIdPStart(w http.ResponseWriter, r *http.Request) {
	if s.idp == nil {
		writeFailure(w, http.StatusInternalServerError, "identity provider not configured")
		return
	}
	authURL, err := s.idp.Start(s.sessionWriter(w, r))
	if err != nil {
		s.logger.Error("idp start failed", "error", err)
		writeFailure(w, http.StatusInternalServerError, "could not start identity provider login")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "url": authURL})
}

// handleIdPCallback completes the provider login. Success lands on the
// dashboard; any failure goes back to the login page with an error code.
func (s *Server) handleIdPCallback(w http.ResponseWriter, r *http.Request) {
	if s.idp == nil {
		http.Redirect(w, r, s.loginErrorURL("idp_disabled"), http.StatusFound)
		return
	}

	res, err := s.idp.Callback(r.Context(), r, s.sessionWriter(w, r))
	if err != nil {
		code := callbackErrorCode(err)
		s.logger.Warn("idp callback failed", "reason", code, "error", err)
		s.auditLog(&audit.AuditLog{
			Action:     audit.ActionIdPFailed,
			EntityType: audit.EntitySession,
			Details:    map[string]any{"code": code, "provider": s.idp.Provider()},
		})
		http.Redirect(w, r, s.loginErrorURL(code), http.StatusFound)
		return
	}

	s.auditLog(&audit.AuditLog{
		Action:     audit.ActionIdPLogin,
		EntityType: audit.EntitySession,
		UserID:     res.Account.ID,
		Details: map[string]any{
			"provider": s.idp.Provider(),
			"created":  res.Created,
			"linked":   res.Linked,
		},
	})
	http.Redirect(w, r, s.dashboardRoute(), http.StatusFound)
}

// callbackErrorCode names a callback failure for the login page banner.
func callbackErrorCode(err error) string {
	if code := autherr.CodeOf(err); code != "" {
		return string(code)
	}
	switch {
	case errors.Is(err, idp.ErrProviderDenied):
		return "provider_denied"
	case errors.Is(err, idp.ErrMissingCode):
		return "missing_code"
	case errors.Is(err, idp.ErrMissingEmail):
		return "missing_email"
	case errors.Is(err, idp.ErrUnverifiedEmail):
		return "unverified_email"
	default:
		return "idp_failed"
	}
}

func (s *Server) loginErrorURL(code string) string {
	login := s.sessionCfg.LoginRoute
	if login == "" {
		login = "/login"
	}
	return login + "?error=" + url.QueryEscape(code)
}

func (s *Server) dashboardRoute() string {
	if s.sessionCfg.DashboardRoute == "" {
		return "/dashboard"
	}
	return s.sessionCfg.DashboardRoute
}

// debugProfile is the introspection view of a profile.
type debugProfile struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Nombre string `json:"nombre"`
	Activo bool   `json:"activo"`
}

// debugResponse is the introspection payload. It is diagnostic only.
type debugResponse struct {
	HasAuthCookie bool          `json:"has_auth_cookie"`
	User          *userInfo     `json:"user"`
	Profile       *debugProfile `json:"profile"`
	Errors        []string      `json:"errors"`
}

// handleDebug reports what the service can resolve from the request cookies.
func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	resp := debugResponse{
		HasAuthCookie: hasAuthCookie(r),
		Errors:        []string{},
	}

	id, err := s.resolver.CurrentProfile(r.Context(), session.Read(r))
	if err != nil {
		resp.Errors = append(resp.Errors, err.Error())
	}
	switch {
	case id == nil && err == nil:
		resp.Errors = append(resp.Errors, "no valid session")
	case id != nil:
		resp.User = &userInfo{ID: id.UserID, Email: id.Email}
		if id.Profile == nil {
			resp.Errors = append(resp.Errors, "profile not found")
			break
		}
		resp.Profile = &debugProfile{
			UserID: id.Profile.UserID,
			Email:  id.Profile.Email,
			Role:   string(id.Profile.Role),
			Nombre: id.Profile.DisplayName,
			Activo: id.Profile.IsActive,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// hasAuthCookie reports whether any cookie looks like an auth token.
func hasAuthCookie(r *http.Request) bool {
	for _, c := range r.Cookies() {
		name := strings.ToLower(c.Name)
		if strings.Contains(name, "auth") || strings.Contains(name, "token") {
			return true
		}
	}
	return false
}
