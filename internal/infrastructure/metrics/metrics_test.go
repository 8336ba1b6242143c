package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorders(t *testing.T) {
	m := New("test")

	m.GateDecision("redirect_login")
	m.GateDecision("redirect_login")
	m.IdentityOutcome("")
	m.AuthzDecision("case", "not_found")
	m.IdPCallback("pkce_state_mismatch")
	m.AuditDropped()

	if got := testutil.ToFloat64(m.gateDecisions.WithLabelValues("redirect_login")); got != 2 {
		t.Errorf("gate redirect_login = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.identityOutcomes.WithLabelValues("ok")); got != 1 {
		t.Errorf("identity ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.authzDecisions.WithLabelValues("case", "not_found")); got != 1 {
		t.Errorf("authz case/not_found = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.auditDropped); got != 1 {
		t.Errorf("audit dropped = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.GateDecision("pass")
	m.IdentityOutcome("NO_SESSION")
	m.AuthzDecision("case", "allowed")
	m.IdPCallback("ok")
	m.AuditDropped()

	h := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	if m.Instrument(h) == nil {
		t.Error("Instrument on nil Metrics should return next")
	}
}

func TestInstrumentAndHandler(t *testing.T) {
	m := New("1.2.3")

	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Get("/api/v1/cases/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/cases/c-1", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/cases/c-2", nil))

	got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/api/v1/cases/{id}", "404"))
	if got != 2 {
		t.Errorf("requests for route pattern = %v, want 2", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body) //nolint:errcheck // test
	for _, want := range []string{`lexgate_build_info{version="1.2.3"} 1`, "lexgate_http_requests_total", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
