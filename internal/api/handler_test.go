package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/voxdeck/voxdeck/internal/backend"
	"github.com/voxdeck/voxdeck/internal/config"
	"github.com/voxdeck/voxdeck/internal/console"
	"github.com/voxdeck/voxdeck/internal/localstore"
	"github.com/voxdeck/voxdeck/internal/notify"
	"github.com/voxdeck/voxdeck/internal/session"
)

// testFixture wires a full router against a fake platform backend.
type testFixture struct {
	router   http.Handler
	sessions *session.Store
}

// newFixture builds the router over the given backend mux. role is the
// profile role the fake /auth/me returns.
func newFixture(t *testing.T, mux *http.ServeMux, role string) *testFixture {
	t.Helper()

	mux.HandleFunc("/auth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok-1"}`))
	})
	mux.HandleFunc("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"u-1","email":"o@x.com","name":"Owner","role":"` + role + `"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	client := backend.New(srv.URL, 5*time.Second, nil)
	local := localstore.NewMemory()

	sessions := session.NewStore(client, local, nil, nil)
	store := console.New(context.Background(), client, local, nil, cfg)
	notifications := notify.NewService(client, local, nil, cfg)

	router := NewRouter(RouterDeps{
		Sessions:      sessions,
		Console:       store,
		Notifications: notifications,
	})
	return &testFixture{router: router, sessions: sessions}
}

func (f *testFixture) login(t *testing.T) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/auth/login",
		`{"email":"o@x.com","password":"secret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
}

func (f *testFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t, http.NewServeMux(), "user")

	rec := f.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("expected status=ok, got %q", body["status"])
	}
}

func TestConsoleRoutesRequireSession(t *testing.T) {
	f := newFixture(t, http.NewServeMux(), "user")

	for _, path := range []string{"/api/v1/agents", "/api/v1/billing", "/api/v1/batch", "/api/v1/notifications"} {
		rec := f.do(t, http.MethodGet, path, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, rec.Code)
		}
	}
}

func TestAuthSessionRoutesRequireSession(t *testing.T) {
	f := newFixture(t, http.NewServeMux(), "user")

	// The gated half of /auth must reach the session middleware, not
	// fall through to a 404.
	cases := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/auth/me"},
		{http.MethodPost, "/api/v1/auth/logout"},
		{http.MethodPut, "/api/v1/auth/password"},
	}
	for _, c := range cases {
		rec := f.do(t, c.method, c.path, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", c.method, c.path, rec.Code)
		}
	}
}

func TestForcedLogoutReasonSurfaces(t *testing.T) {
	f := newFixture(t, http.NewServeMux(), "user")
	f.login(t)

	f.sessions.Logout(context.Background(), session.LogoutOptions{Redirect: true, Reason: "expired"})

	rec := f.do(t, http.MethodGet, "/api/v1/agents", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after forced logout, got %d", rec.Code)
	}
	var env errorEnvelope
	decodeBody(t, rec, &env)
	if env.Error.Code != "session_expired" {
		t.Errorf("error code: %q", env.Error.Code)
	}

	// A fresh session clears the reason; a plain logout does not set one.
	f.login(t)
	f.sessions.Logout(context.Background(), session.LogoutOptions{})
	rec = f.do(t, http.MethodGet, "/api/v1/agents", "")
	decodeBody(t, rec, &env)
	if env.Error.Code != "unauthorized" {
		t.Errorf("error code after plain logout: %q", env.Error.Code)
	}
}

func TestLoginThenMe(t *testing.T) {
	f := newFixture(t, http.NewServeMux(), "user")
	f.login(t)

	rec := f.do(t, http.MethodGet, "/api/v1/auth/me", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("me: %d", rec.Code)
	}
	var snap session.Session
	decodeBody(t, rec, &snap)
	if !snap.Authenticated || snap.User == nil || snap.User.Email != "o@x.com" {
		t.Errorf("unexpected session: %+v", snap)
	}
}

func TestLoginRejectsMissingCredentials(t *testing.T) {
	f := newFixture(t, http.NewServeMux(), "user")

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"o@x.com"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestAdminRoutesRequireSuperAdmin(t *testing.T) {
	f := newFixture(t, http.NewServeMux(), "user")
	f.login(t)

	rec := f.do(t, http.MethodGet, "/api/v1/admin/users", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for plain user, got %d", rec.Code)
	}
}

func TestAdminUsersForSuperAdmin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/admin/users", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"users":[{"id":"u-2","email":"x@y.com","role":"user"}],"total_users":1}`))
	})
	f := newFixture(t, mux, "super_admin")
	f.login(t)

	rec := f.do(t, http.MethodGet, "/api/v1/admin/users", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for super admin, got %d %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Users []console.AdminUser `json:"users"`
		Total int                 `json:"total"`
	}
	decodeBody(t, rec, &body)
	if body.Total != 1 || len(body.Users) != 1 || body.Users[0].Email != "x@y.com" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestAdminUserAgentsDrillDown(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/admin/user-agents", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("email"); got != "x@y.com" {
			t.Errorf("email query: %q", got)
		}
		w.Write([]byte(`{"agents":[{"agent_id":"u-1","agent_name":"Their Bot"}],"user_email":"x@y.com","total_agents":1}`))
	})
	f := newFixture(t, mux, "Super Admin")
	f.login(t)

	rec := f.do(t, http.MethodGet, "/api/v1/admin/user-agents?email=x@y.com", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("drill-down: %d %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Scope  console.Scope   `json:"scope"`
		Agents []console.Agent `json:"agents"`
	}
	decodeBody(t, rec, &body)
	if body.Scope.Type != console.ScopeUser || body.Scope.Email != "x@y.com" {
		t.Errorf("scope: %+v", body.Scope)
	}
	if len(body.Agents) != 1 || body.Agents[0].ID != "u-1" {
		t.Errorf("agents: %+v", body.Agents)
	}
}

func TestAgentsRefreshReturnsNormalizedRoster(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/analysis/training/agent-individual-analytics", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"individual_results":[{"agent_id":"a-1","agent_name":"Bot","success_rate":"90%"}]}`))
	})
	f := newFixture(t, mux, "user")
	f.login(t)

	rec := f.do(t, http.MethodPost, "/api/v1/agents/refresh", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: %d %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Agents []console.Agent `json:"agents"`
	}
	decodeBody(t, rec, &body)
	if len(body.Agents) != 1 || body.Agents[0].SuccessRate != 90 {
		t.Errorf("unexpected agents: %+v", body.Agents)
	}
}

func TestScopeValidation(t *testing.T) {
	f := newFixture(t, http.NewServeMux(), "user")
	f.login(t)

	rec := f.do(t, http.MethodPut, "/api/v1/agents/scope", `{"type":"user"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for user scope without email, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodPut, "/api/v1/agents/scope", `{"type":"nonsense"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown scope type, got %d", rec.Code)
	}
}

func TestBatchCancelValidationMapsTo422(t *testing.T) {
	f := newFixture(t, http.NewServeMux(), "user")
	f.login(t)

	rec := f.do(t, http.MethodPost, "/api/v1/batch/cancel", `{"call_name":"  "}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", rec.Code, rec.Body.String())
	}
	var env errorEnvelope
	decodeBody(t, rec, &env)
	if env.Error.Code != "validation_error" {
		t.Errorf("error code: %q", env.Error.Code)
	}
}

func TestUpstreamErrorMapsTo502(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/agent/batch-calling-status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"message":"backend down"}`))
	})
	f := newFixture(t, mux, "user")
	f.login(t)

	rec := f.do(t, http.MethodPost, "/api/v1/batch/refresh", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var env errorEnvelope
	decodeBody(t, rec, &env)
	if env.Error.Message != "backend down" {
		t.Errorf("error message: %q", env.Error.Message)
	}
}

func TestNotificationFlowOverHTTP(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/subscription/usage", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"minutes_used":490,"minutes_limit":500,"period_end":"2026-09-01"}`))
	})
	mux.HandleFunc("/subscription/current", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"plan_code":"pro","plan_name":"Pro","status":"active"}`))
	})
	mux.HandleFunc("/subscription/payment-history", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"payments":[]}`))
	})
	mux.HandleFunc("/auth/agent/batch-calling-status", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jobs":[]}`))
	})
	mux.HandleFunc("/analysis/dashboard-analytics", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"overview":{"success_rate_value":95}}`))
	})
	mux.HandleFunc("/auth/agent/call-history", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"calls":[]}`))
	})
	f := newFixture(t, mux, "user")
	f.login(t)

	rec := f.do(t, http.MethodGet, "/api/v1/notifications", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Notifications []notify.Notification `json:"notifications"`
		Unread        int                   `json:"unread"`
	}
	decodeBody(t, rec, &body)
	if len(body.Notifications) != 1 || body.Notifications[0].ID != "usage|2026-09-01|ALERT" {
		t.Fatalf("unexpected notifications: %+v", body.Notifications)
	}
	if body.Unread != 1 {
		t.Errorf("unread: %d", body.Unread)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/notifications/usage|2026-09-01|ALERT/read", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("read: %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/notifications/usage|2026-09-01|ALERT/dismiss", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("dismiss: %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/notifications", "")
	decodeBody(t, rec, &body)
	if len(body.Notifications) != 0 {
		t.Errorf("dismissed notification resurfaced: %+v", body.Notifications)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	f := newFixture(t, http.NewServeMux(), "user")
	f.login(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/logout", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout: %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/api/v1/agents", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}
