// Package backend is the single configured request pipeline to the
// platform REST API: base URL, bearer header injection, error envelope
// normalization, and the session-expiry response hook.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/voxdeck/voxdeck/internal/metrics"
)

// authPaths are the endpoints whose 401 responses mean "bad credentials",
// not "session expired"; the unauthorized hook never fires for them.
var authPaths = []string{
	"/auth/token",
	"/auth/signup",
	"/auth/verify-otp",
	"/auth/resend-otp",
	"/auth/forgot-password",
	"/auth/reset-password",
}

// Client is the shared HTTP pipeline. All mutators are safe for
// concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	metrics *metrics.Metrics

	mu             sync.Mutex
	token          string
	onUnauthorized func()
}

// New creates a client for the backend at baseURL.
func New(baseURL string, timeout time.Duration, m *metrics.Metrics) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		metrics: m,
	}
}

// SetToken installs the default Authorization header for all subsequent
// requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// ClearToken removes the default Authorization header.
func (c *Client) ClearToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}

// Token returns the currently installed bearer token, or "".
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// SetUnauthorizedHook installs fn to be called when a non-auth endpoint
// returns 401. At most one hook is attached at a time; installing over an
// existing hook replaces it.
func (c *Client) SetUnauthorizedHook(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

// ClearUnauthorizedHook uninstalls the hook.
func (c *Client) ClearUnauthorizedHook() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = nil
}

// HasUnauthorizedHook reports whether a hook is currently attached.
func (c *Client) HasUnauthorizedHook() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onUnauthorized != nil
}

func isAuthPath(path string) bool {
	for _, p := range authPaths {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}

// metricEndpoint collapses per-entity path segments so metrics stay low
// cardinality: the first three segments identify every backend endpoint.
func metricEndpoint(path string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) > 3 {
		segs = segs[:3]
	}
	return "/" + strings.Join(segs, "/")
}

// GetJSON issues a GET with optional query parameters and decodes the
// JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, "", nil, out)
}

// PostJSON issues a POST with a JSON-encoded body.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	return c.RequestJSON(ctx, http.MethodPost, path, body, out)
}

// RequestJSON issues a JSON request with an arbitrary method. Used by the
// update-password verb shim.
func (c *Client) RequestJSON(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	return c.do(ctx, method, path, nil, "application/json", rd, out)
}

// PostForm issues a POST with a URL-encoded form body.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()), out)
}

// PostMultipart issues a POST with a multipart form body.
func (c *Client) PostMultipart(ctx context.Context, path string, form *Form, out any) error {
	body, contentType, err := form.encode()
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, nil, contentType, body, out)
}

// PutMultipart issues a PUT with a multipart form body.
func (c *Client) PutMultipart(ctx context.Context, path string, form *Form, out any) error {
	body, contentType, err := form.encode()
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, path, nil, contentType, body, out)
}

// Patch issues a bodyless PATCH.
func (c *Client) Patch(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodPatch, path, nil, "", nil, out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, "", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, contentType string, body io.Reader, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return &Error{Message: fmt.Sprintf("building request: %v", err)}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	endpoint := metricEndpoint(path)
	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.IncBackendError(endpoint, "transport")
		}
		return &Error{Message: err.Error()}
	}
	defer res.Body.Close()

	if c.metrics != nil {
		c.metrics.ObserveBackendRequest(endpoint, method, res.StatusCode, time.Since(start).Seconds())
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return &Error{Status: res.StatusCode, Message: fmt.Sprintf("reading response: %v", err)}
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		if res.StatusCode == http.StatusUnauthorized && !isAuthPath(path) {
			c.mu.Lock()
			hook := c.onUnauthorized
			c.mu.Unlock()
			if hook != nil {
				hook()
			}
		}
		if c.metrics != nil {
			class := "4xx"
			if res.StatusCode >= 500 {
				class = "5xx"
			}
			c.metrics.IncBackendError(endpoint, class)
		}
		return parseError(res.StatusCode, data, http.StatusText(res.StatusCode))
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return &Error{Status: res.StatusCode, Message: fmt.Sprintf("decoding response: %v", err)}
		}
	}
	return nil
}
