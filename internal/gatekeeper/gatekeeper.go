// Package gatekeeper is the first middleware on every request. It decides
// from cookies alone, without touching the database, whether a request may
// proceed, must go to the login page, or should skip the login page.
//
// Presence of either session cookie counts as logged in. Expired or revoked
// tokens pass this layer; identity resolution inside the handler verifies
// them.
package gatekeeper

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/nerrad567/lexgate-core/internal/session"
)

// DefaultPublicPrefixes are the paths reachable without a session.
var DefaultPublicPrefixes = []string{"/login", "/auth/", "/api/auth/", "/api/health", "/metrics"}

// Decision labels used for metrics.
const (
	DecisionPublic            = "public"
	DecisionPass              = "pass"
	DecisionRedirectLogin     = "redirect_login"
	DecisionRedirectDashboard = "redirect_dashboard"
)

// Recorder counts gatekeeper decisions.
type Recorder interface {
	GateDecision(decision string)
}

// Config configures the gatekeeper.
type Config struct {
	PublicPrefixes []string // defaults to DefaultPublicPrefixes
	LoginRoute     string   // defaults to /login
	DashboardRoute string   // defaults to /dashboard
	Recorder       Recorder // optional
}

// Classifier decides whether a path needs a session.
type Classifier struct {
	PublicPrefixes []string
}

// IsPublic reports whether path is on the allow-list or looks like a static
// asset (contains a dot).
func (c Classifier) IsPublic(path string) bool {
	if strings.Contains(path, ".") {
		return true
	}
	for _, prefix := range c.PublicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// LoginRedirect builds the login URL that returns the caller to target.
func LoginRedirect(loginRoute, target string) string {
	return loginRoute + "?redirectTo=" + url.QueryEscape(target)
}

// Middleware returns the gatekeeper as chi-compatible middleware.
// It never fails: it redirects or passes through.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	if len(cfg.PublicPrefixes) == 0 {
		cfg.PublicPrefixes = DefaultPublicPrefixes
	}
	if cfg.LoginRoute == "" {
		cfg.LoginRoute = "/login"
	}
	if cfg.DashboardRoute == "" {
		cfg.DashboardRoute = "/dashboard"
	}
	classifier := Classifier{PublicPrefixes: cfg.PublicPrefixes}

	record := func(decision string) {
		if cfg.Recorder != nil {
			cfg.Recorder.GateDecision(decision)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			loggedIn := session.Read(r).HasSession()

			if path == cfg.LoginRoute && loggedIn {
				record(DecisionRedirectDashboard)
				http.Redirect(w, r, cfg.DashboardRoute, http.StatusFound)
				return
			}

			if classifier.IsPublic(path) {
				record(DecisionPublic)
				next.ServeHTTP(w, r)
				return
			}

			if !loggedIn {
				record(DecisionRedirectLogin)
				http.Redirect(w, r, LoginRedirect(cfg.LoginRoute, r.URL.RequestURI()), http.StatusFound)
				return
			}

			record(DecisionPass)
			next.ServeHTTP(w, r)
		})
	}
}
