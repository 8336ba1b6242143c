package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nerrad567/lexgate-core/internal/audit"
	"github.com/nerrad567/lexgate-core/internal/auth"
	"github.com/nerrad567/lexgate-core/internal/authz"
	"github.com/nerrad567/lexgate-core/internal/gatekeeper"
	"github.com/nerrad567/lexgate-core/internal/identity"
	"github.com/nerrad567/lexgate-core/internal/infrastructure/config"
	"github.com/nerrad567/lexgate-core/internal/infrastructure/logging"
	"github.com/nerrad567/lexgate-core/internal/infrastructure/metrics"
	"github.com/nerrad567/lexgate-core/internal/session"
	"github.com/nerrad567/lexgate-core/internal/testutil"
)

const testSecret = "api-test-secret-that-is-at-least-32-chars"

type harness struct {
	t       *testing.T
	db      *sql.DB
	srv     *Server
	auth    *auth.Service
	audit   *audit.SQLiteRepository
	metrics *metrics.Metrics
}

// newHarness builds a server over a migrated temp database seeded with two
// tenants:
//
//	org-a: owner-a, staff-a, lawyer-a, analyst-a, client-a
//	       case-a1 (client-a named, lawyer-a assigned), case-a2
//	org-b: owner-b, lawyer-b; case-b1
func newHarness(t *testing.T, opts ...func(*Deps)) *harness {
	t.Helper()
	db := testutil.OpenDB(t)

	testutil.SeedOrganization(t, db, "org-a", "Alpha Legal")
	testutil.SeedOrganization(t, db, "org-b", "Beta Law")
	testutil.SeedMember(t, db, "owner-a", "owner-admin", "org-a", "owner")
	testutil.SeedMember(t, db, "staff-a", "staff-admin", "org-a", "member")
	testutil.SeedMember(t, db, "lawyer-a", "lawyer", "org-a", "member")
	testutil.SeedMember(t, db, "analyst-a", "analyst", "org-a", "member")
	testutil.SeedMember(t, db, "client-a", "client", "org-a", "member")
	testutil.SeedMember(t, db, "owner-b", "owner-admin", "org-b", "owner")
	testutil.SeedMember(t, db, "lawyer-b", "lawyer", "org-b", "member")

	testutil.SeedCase(t, db, "case-a1", "org-a", "Estate of Ruiz", "client-a")
	testutil.SeedCase(t, db, "case-a2", "org-a", "Lease dispute", "")
	testutil.SeedCase(t, db, "case-b1", "org-b", "Beta matter", "")
	testutil.SeedAssignment(t, db, "lawyer-a", "case-a1")
	testutil.SeedDocument(t, db, "doc-a1", "case-a1", "org-a", "Will.pdf")
	testutil.SeedDocument(t, db, "doc-a2", "case-a2", "org-a", "Lease.pdf")
	testutil.SeedDocument(t, db, "doc-b1", "case-b1", "org-b", "Beta.pdf")
	testutil.SeedMessage(t, db, "msg-a1", "case-a1", "org-a", "Hearing moved")
	testutil.SeedMessage(t, db, "msg-b1", "case-b1", "org-b", "Beta note")

	m := metrics.New("test")
	logger := logging.Discard()
	authSvc := auth.NewService(auth.NewAccountRepository(db), auth.NewTokenRepository(db),
		auth.ServiceConfig{Secret: testSecret})
	store := identity.NewSQLiteStore(db)
	resolver := identity.NewResolver(authSvc, store, identity.Config{Recorder: m, Logger: logger.Logger})
	engine := authz.NewEngine(authz.NewCaseRepository(db), authz.NewAssignmentRepository(db), store,
		authz.Config{Recorder: m, Logger: logger.Logger})
	auditRepo := audit.NewSQLiteRepository(db)

	deps := Deps{
		Session: config.SessionConfig{
			LoginRoute:     "/login",
			DashboardRoute: "/dashboard",
			PublicPrefixes: gatekeeper.DefaultPublicPrefixes,
		},
		Logger:    logger,
		Auth:      authSvc,
		Resolver:  resolver,
		Engine:    engine,
		AuditRepo: auditRepo,
		Metrics:   m,
		Version:   "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &harness{t: t, db: db, srv: srv, auth: authSvc, audit: auditRepo, metrics: m}
}

// login issues a session for an existing account and returns its cookies.
func (h *harness) login(userID string) []*http.Cookie {
	h.t.Helper()
	account, err := h.auth.Account(h.t.Context(), userID)
	if err != nil {
		h.t.Fatalf("Account(%s) error = %v", userID, err)
	}
	pair, err := h.auth.IssueSession(h.t.Context(), account, "test")
	if err != nil {
		h.t.Fatalf("IssueSession(%s) error = %v", userID, err)
	}
	return []*http.Cookie{
		{Name: session.AccessCookie, Value: pair.AccessToken},
		{Name: session.RefreshCookie, Value: pair.RefreshToken},
	}
}

// createPasswordAccount inserts an account that can log in with password.
func (h *harness) createPasswordAccount(email, password string) *auth.Account {
	h.t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		h.t.Fatalf("HashPassword() error = %v", err)
	}
	account := &auth.Account{Email: email, PasswordHash: hash, IsActive: true}
	if err := auth.NewAccountRepository(h.db).Create(h.t.Context(), account); err != nil {
		h.t.Fatalf("creating account: %v", err)
	}
	return account
}

func (h *harness) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	h.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return h.serve(req)
}

// browse follows redirects the way a browser would, carrying cookies
// between hops, and returns every request URI visited. It fails the test
// if the chain has not settled after maxHops.
func (h *harness) browse(path string, cookies ...*http.Cookie) ([]string, map[string]string) {
	h.t.Helper()
	const maxHops = 8

	jar := map[string]string{}
	for _, c := range cookies {
		jar[c.Name] = c.Value
	}
	var visited []string
	for range maxHops {
		visited = append(visited, path)
		req := httptest.NewRequest(http.MethodGet, path, nil)
		for name, value := range jar {
			req.AddCookie(&http.Cookie{Name: name, Value: value})
		}
		rec := h.serve(req)
		for _, c := range rec.Result().Cookies() {
			if c.MaxAge < 0 {
				delete(jar, c.Name)
			} else {
				jar[c.Name] = c.Value
			}
		}
		if rec.Code != http.StatusFound {
			return visited, jar
		}
		path = rec.Header().Get("Location")
	}
	h.t.Fatalf("redirects did not settle: %v", visited)
	return nil, nil
}

func (h *harness) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	return rec
}

// flushAudit writes every queued audit entry synchronously.
func (h *harness) flushAudit() {
	for {
		select {
		case entry := <-h.srv.auditCh:
			h.srv.writeAudit(entry)
		default:
			return
		}
	}
}

func (h *harness) auditEntries(filter audit.Filter) []audit.AuditLog {
	h.t.Helper()
	h.flushAudit()
	res, err := h.audit.List(h.t.Context(), filter)
	if err != nil {
		h.t.Fatalf("audit List() error = %v", err)
	}
	return res.Logs
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body = %s", rec.Code, want, rec.Body.String())
	}
}

func expectCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) Error {
	t.Helper()
	expectStatus(t, rec, status)
	e := decode[Error](t, rec)
	if e.Code != code {
		t.Fatalf("code = %q, want %q", e.Code, code)
	}
	return e
}
