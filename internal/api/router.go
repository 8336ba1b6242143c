package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nerrad567/lexgate-core/internal/gatekeeper"
	"github.com/nerrad567/lexgate-core/internal/identity"
)

// adminRoles administer their own organization.
var adminRoles = []identity.Role{identity.RoleOwnerAdmin, identity.RoleStaffAdmin}

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.metrics.Instrument)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Edge gatekeeper: cookie presence only, before any handler
	r.Use(gatekeeper.Middleware(gatekeeper.Config{
		PublicPrefixes: s.sessionCfg.PublicPrefixes,
		LoginRoute:     s.sessionCfg.LoginRoute,
		DashboardRoute: s.sessionCfg.DashboardRoute,
		Recorder:       s.metrics,
	}))

	r.Get("/api/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	// Session endpoints (public; they create, sync or end the session)
	r.Route("/api/auth", func(r chi.Router) {
		r.With(s.rateLimitMiddleware).Post("/login", s.handleLogin)
		r.With(s.rateLimitMiddleware).Post("/refresh", s.handleRefresh)
		r.Post("/session", s.handleSessionSync)
		r.Post("/logout", s.handleLogout)
		r.Get("/debug", s.handleDebug)
		r.Get("/idp/start", s.handleIdPStart)
	})
	r.Get("/auth/callback", s.handleIdPCallback)

	// Post-login landing
	r.Get(s.dashboardRoute(), s.handleDashboard)

	r.Route("/api/v1", func(r chi.Router) {
		// Reachable before the profile is linked to an organization
		r.With(s.requireAuth(identity.AllowUnlinked())).Post("/organizations/select", s.handleSelectOrganization)

		// Any active member
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth())

			r.Get("/auth/landing", s.handleLanding)

			r.Get("/cases", s.handleListCases)
			r.Get("/cases/{id}", s.handleGetCase)
			r.Get("/cases/{id}/documents", s.handleListCaseDocuments)
			r.Get("/cases/{id}/messages", s.handleListCaseMessages)
			r.Get("/documents/{id}", s.handleGetDocument)
			r.Get("/messages/{id}", s.handleGetMessage)
		})

		// Organization administrators
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth(identity.WithRoles(adminRoles...)))

			r.Get("/cases/{id}/assignments", s.handleGetAssignments)
			r.Put("/cases/{id}/assignments", s.handleSetAssignments)
			r.Get("/organizations/{id}/memberships", s.handleListMemberships)
			r.Post("/memberships/{id}/revoke", s.handleRevokeMembership)
			r.Get("/audit", s.handleListAuditLogs)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"mqtt":    s.mqtt.IsConnected(),
		"influx":  s.influx.IsConnected(),
	})
}
