package gatekeeper

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/nerrad567/lexgate-core/internal/session"
)

type countingRecorder map[string]int

func (c countingRecorder) GateDecision(d string) { c[d]++ }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func serve(t *testing.T, rec Recorder, target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	Middleware(Config{Recorder: rec})(okHandler()).ServeHTTP(w, req)
	return w
}

func TestClassifier_IsPublic(t *testing.T) {
	c := Classifier{PublicPrefixes: DefaultPublicPrefixes}

	tests := []struct {
		path string
		want bool
	}{
		{"/login", true},
		{"/login/reset", true},
		{"/auth/callback", true},
		{"/api/auth/login", true},
		{"/api/health", true},
		{"/metrics", true},
		{"/favicon.ico", true},
		{"/static/app.js", true},
		{"/dashboard", false},
		{"/api/v1/cases", false},
		{"/", false},
		{"/authz", false},
	}
	for _, tc := range tests {
		if got := c.IsPublic(tc.path); got != tc.want {
			t.Errorf("IsPublic(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestMiddleware_ProtectedWithoutSessionRedirects(t *testing.T) {
	rec := countingRecorder{}

	for _, target := range []string{"/dashboard", "/cases/C1?tab=docs&q=a%20b", "/api/v1/cases"} {
		w := serve(t, rec, target)
		if w.Code != http.StatusFound {
			t.Fatalf("%s: status = %d, want 302", target, w.Code)
		}

		loc, err := url.Parse(w.Header().Get("Location"))
		if err != nil {
			t.Fatalf("parsing Location: %v", err)
		}
		want := httptest.NewRequest(http.MethodGet, target, nil).URL.RequestURI()
		if loc.Path != "/login" || loc.Query().Get("redirectTo") != want {
			t.Errorf("%s: Location = %q, want /login?redirectTo=%s", target, loc, want)
		}
	}
	if rec[DecisionRedirectLogin] != 3 {
		t.Errorf("redirect_login count = %d, want 3", rec[DecisionRedirectLogin])
	}
}

func TestMiddleware_EitherCookieCountsAsLoggedIn(t *testing.T) {
	for _, name := range []string{session.AccessCookie, session.RefreshCookie} {
		w := serve(t, nil, "/dashboard", &http.Cookie{Name: name, Value: "expired-or-not"})
		if w.Code != http.StatusNoContent {
			t.Errorf("cookie %s: status = %d, want pass-through", name, w.Code)
		}
	}
}

func TestMiddleware_LoginWithSessionGoesToDashboard(t *testing.T) {
	rec := countingRecorder{}
	w := serve(t, rec, "/login", &http.Cookie{Name: session.RefreshCookie, Value: "r"})

	if w.Code != http.StatusFound || w.Header().Get("Location") != "/dashboard" {
		t.Errorf("status = %d, Location = %q", w.Code, w.Header().Get("Location"))
	}
	if rec[DecisionRedirectDashboard] != 1 {
		t.Error("redirect_dashboard not recorded")
	}
}

func TestMiddleware_PublicPassesWithoutSession(t *testing.T) {
	for _, target := range []string{"/login", "/api/auth/login", "/logo.png", "/auth/callback?code=x&state=y"} {
		if w := serve(t, nil, target); w.Code != http.StatusNoContent {
			t.Errorf("%s: status = %d, want pass-through", target, w.Code)
		}
	}
}
