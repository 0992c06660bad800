package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, 5*time.Second, nil)
}

func TestBearerHeaderInjection(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	})

	c.SetToken("tok-123")
	if err := c.GetJSON(context.Background(), "/auth/me", nil, nil); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("expected Bearer tok-123, got %q", gotAuth)
	}

	c.ClearToken()
	if err := c.GetJSON(context.Background(), "/auth/me", nil, nil); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("expected no Authorization header after ClearToken, got %q", gotAuth)
	}
}

func TestUnauthorizedHookFiresOnNonAuthEndpoint(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"expired"}`))
	})

	fired := 0
	c.SetUnauthorizedHook(func() { fired++ })

	err := c.GetJSON(context.Background(), "/subscription/current", nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if fired != 1 {
		t.Errorf("expected hook to fire once, fired %d times", fired)
	}
}

func TestUnauthorizedHookSkipsAuthEndpoints(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid credentials"}`))
	})

	fired := 0
	c.SetUnauthorizedHook(func() { fired++ })

	form := url.Values{}
	form.Set("username", "a@b.com")
	form.Set("password", "nope")
	if err := c.PostForm(context.Background(), "/auth/token", form, nil); err == nil {
		t.Fatal("expected error")
	}
	if fired != 0 {
		t.Errorf("hook must not fire for auth endpoints, fired %d times", fired)
	}
}

func TestErrorNormalization(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"detail array of strings", 422, `{"detail":["call_name is required"]}`, "call_name is required"},
		{"detail array of objects", 422, `{"detail":[{"msg":"field required"}]}`, "field required"},
		{"detail string", 400, `{"detail":"bad request"}`, "bad request"},
		{"message field", 400, `{"message":"no such agent"}`, "no such agent"},
		{"error envelope", 403, `{"error":{"code":"forbidden","message":"admin access required"}}`, "admin access required"},
		{"unparseable body", 500, `<html>oops</html>`, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			err := c.GetJSON(context.Background(), "/subscription/plans", nil, nil)
			be, ok := err.(*Error)
			if !ok {
				t.Fatalf("expected *Error, got %T: %v", err, err)
			}
			if be.Status != tt.status {
				t.Errorf("status: got %d, want %d", be.Status, tt.status)
			}
			if be.Message != tt.wantMsg {
				t.Errorf("message: got %q, want %q", be.Message, tt.wantMsg)
			}
		})
	}
}

func TestErrorCodeExtraction(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"code":"ACCOUNT_NOT_VERIFIED","message":"account not verified"}`))
	})

	err := c.PostForm(context.Background(), "/auth/token", url.Values{}, nil)
	be, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if be.Code != "ACCOUNT_NOT_VERIFIED" {
		t.Errorf("expected code ACCOUNT_NOT_VERIFIED, got %q", be.Code)
	}
}

func TestMultipartEncoding(t *testing.T) {
	var gotContentType, gotName, gotFile string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		gotName = r.FormValue("agent_name")
		f, hdr, err := r.FormFile("voice_file")
		if err == nil {
			defer f.Close()
			gotFile = hdr.Filename
		}
		w.Write([]byte(`{}`))
	})

	form := NewForm().
		AddField("agent_name", "support-bot").
		AddField("business_name", ""). // skipped
		AddFile(&FilePart{Field: "voice_file", Filename: "voice.mp3", Content: []byte("audio")})

	if err := c.PostMultipart(context.Background(), "/auth/agent/create-agent", form, nil); err != nil {
		t.Fatalf("PostMultipart: %v", err)
	}
	if !strings.HasPrefix(gotContentType, "multipart/form-data") {
		t.Errorf("expected multipart content type, got %q", gotContentType)
	}
	if gotName != "support-bot" {
		t.Errorf("expected agent_name field, got %q", gotName)
	}
	if gotFile != "voice.mp3" {
		t.Errorf("expected voice.mp3 attachment, got %q", gotFile)
	}
}

func TestMetricEndpointCollapsesIDs(t *testing.T) {
	tests := []struct{ path, want string }{
		{"/auth/token", "/auth/token"},
		{"/auth/agent/delete-agent/abc-123", "/auth/agent/delete-agent"},
		{"/analysis/training/agent-individual-analytics", "/analysis/training/agent-individual-analytics"},
		{"/subscription/payment-history", "/subscription/payment-history"},
	}
	for _, tt := range tests {
		if got := metricEndpoint(tt.path); got != tt.want {
			t.Errorf("metricEndpoint(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestIsAuthPath(t *testing.T) {
	for _, p := range []string{"/auth/token", "/auth/signup", "/auth/verify-otp", "/auth/resend-otp", "/auth/forgot-password", "/auth/reset-password"} {
		if !isAuthPath(p) {
			t.Errorf("expected %s to be an auth path", p)
		}
	}
	for _, p := range []string{"/auth/me", "/auth/agent/call-history", "/subscription/current"} {
		if isAuthPath(p) {
			t.Errorf("expected %s not to be an auth path", p)
		}
	}
}
