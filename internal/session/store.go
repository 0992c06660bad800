// Package session owns the console session lifecycle and the credential
// used by every other backend call.
package session

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sync"

	"github.com/voxdeck/voxdeck/internal/backend"
	"github.com/voxdeck/voxdeck/internal/crypto"
	"github.com/voxdeck/voxdeck/internal/localstore"
	"github.com/voxdeck/voxdeck/internal/metrics"
)

// User is the profile returned by the backend.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Session is a point-in-time snapshot of the auth state. Token is
// non-empty iff Authenticated is true.
type Session struct {
	User          *User  `json:"user"`
	Token         string `json:"token"`
	Authenticated bool   `json:"authenticated"`
}

// Result codes for login failures the caller must branch on.
const (
	CodeAccountNotVerified = "ACCOUNT_NOT_VERIFIED"
	CodeGenericError       = "GENERIC_ERROR"
)

// LoginResult is the typed outcome of Login.
type LoginResult struct {
	Success bool
	Code    string
	Error   string
	Email   string
}

// RegisterResult is the typed outcome of Register.
type RegisterResult struct {
	Success     bool
	OTPRequired bool
	Email       string
	Error       string
}

// Result is the outcome of the pass-through auth operations.
type Result struct {
	Success bool
	Error   string
}

// RegisterInput is the signup payload forwarded to the backend.
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Company  string `json:"company,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// LogoutOptions control logout side effects. Redirect asks the console
// surface to send the user back to the login screen with Reason attached.
type LogoutOptions struct {
	Redirect bool
	Reason   string
}

var unverifiedPattern = regexp.MustCompile(`(?i)not\s*verified|verify\s*otp|account\s*not\s*verified`)

// Store is the auth store: a process-wide service object constructed once
// at startup and injected into everything that needs the session.
type Store struct {
	client  *backend.Client
	local   localstore.Store
	sealer  *crypto.Sealer
	metrics *metrics.Metrics

	mu            sync.Mutex
	user          *User
	token         string
	authenticated bool
	hookAttached  bool

	// lastLogoutReason survives a forced logout so the console surface
	// can tell the caller why the session ended. Cleared on the next
	// established session.
	lastLogoutReason string

	// onForcedLogout is the console-surface analogue of the original
	// hard navigation to /login?reason=...
	onForcedLogout func(reason string)
}

// NewStore creates the auth store. sealer may be nil (no at-rest sealing).
func NewStore(client *backend.Client, local localstore.Store, sealer *crypto.Sealer, m *metrics.Metrics) *Store {
	return &Store{client: client, local: local, sealer: sealer, metrics: m}
}

// SetForcedLogoutHandler installs the callback invoked when a session
// expires mid-use (Logout with Redirect).
func (s *Store) SetForcedLogoutHandler(fn func(reason string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onForcedLogout = fn
}

// Snapshot returns the current session state.
func (s *Store) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Session{User: s.user, Token: s.token, Authenticated: s.authenticated}
}

// IsAuthenticated reports whether a session is currently active.
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// LastLogoutReason reports why the previous session was force-closed
// ("expired" after a 401-triggered logout), or "" if it ended normally
// or a new session has since been established.
func (s *Store) LastLogoutReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastLogoutReason
}

// IsSuperAdmin reports whether the current user's role classifies as
// super-admin.
func (s *Store) IsSuperAdmin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user != nil && IsSuperAdminRole(s.user.Role)
}

// attachHook installs the 401 response hook on the shared client.
// Attaching is idempotent: at most one hook is ever installed.
func (s *Store) attachHook() {
	s.mu.Lock()
	if s.hookAttached {
		s.mu.Unlock()
		return
	}
	s.hookAttached = true
	s.mu.Unlock()

	s.client.SetUnauthorizedHook(func() {
		if !s.IsAuthenticated() {
			return
		}
		slog.Warn("session expired, forcing logout")
		if s.metrics != nil {
			s.metrics.IncSessionEvent("forced_logout")
		}
		s.Logout(context.Background(), LogoutOptions{Redirect: true, Reason: "expired"})
	})
}

// Init rehydrates the persisted session at startup, re-applies the token
// to the shared client, attaches the response hook, and validates the
// token against the profile endpoint. A stale token logs out silently.
func (s *Store) Init(ctx context.Context) error {
	var persisted Session
	if err := s.readPersisted(ctx, &persisted); err != nil {
		slog.Warn("failed to read persisted session", "error", err)
	}

	s.attachHook()

	if persisted.Token == "" {
		return nil
	}

	// The store stays unauthenticated until the profile endpoint accepts
	// the token, so a stale token cannot trip the 401 hook into a
	// redirect-flavored logout.
	s.client.SetToken(persisted.Token)

	var user User
	if err := s.client.GetJSON(ctx, "/auth/me", nil, &user); err != nil {
		slog.Info("persisted token rejected, clearing session")
		s.Logout(ctx, LogoutOptions{})
		return nil
	}

	s.establish(ctx, persisted.Token, &user)
	return nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// Login exchanges credentials for a bearer token via the form-encoded
// token endpoint, then fetches the profile. An unverified account is
// returned as a typed result so the caller can route to OTP verification.
func (s *Store) Login(ctx context.Context, email, password string) LoginResult {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	var tok tokenResponse
	if err := s.client.PostForm(ctx, "/auth/token", form, &tok); err != nil {
		if s.metrics != nil {
			s.metrics.IncSessionEvent("login_failure")
		}
		return classifyLoginError(err, email)
	}

	s.client.SetToken(tok.AccessToken)
	s.attachHook()

	var user User
	if err := s.client.GetJSON(ctx, "/auth/me", nil, &user); err != nil {
		// Keep the session invariant: no profile, no session.
		s.client.ClearToken()
		return LoginResult{Code: CodeGenericError, Error: errMessage(err, "Failed to load profile")}
	}

	s.establish(ctx, tok.AccessToken, &user)
	if s.metrics != nil {
		s.metrics.IncSessionEvent("login")
	}
	return LoginResult{Success: true}
}

func classifyLoginError(err error, email string) LoginResult {
	be, ok := err.(*backend.Error)
	if !ok {
		return LoginResult{Code: CodeGenericError, Error: err.Error()}
	}

	looksUnverified := be.Code == CodeAccountNotVerified || unverifiedPattern.MatchString(be.Message)
	badStatus := be.Status == http.StatusBadRequest ||
		be.Status == http.StatusUnauthorized ||
		be.Status == http.StatusForbidden

	if badStatus && looksUnverified {
		return LoginResult{Code: CodeAccountNotVerified, Error: "Account not verified", Email: email}
	}

	msg := be.Message
	if msg == "" {
		msg = "Invalid email or password"
	}
	return LoginResult{Code: CodeGenericError, Error: msg}
}

type signupResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
	User        *User  `json:"user"`
}

// Register submits signup data. If the backend returns a token
// immediately the session is established like login; otherwise the
// caller is told to route to OTP verification.
func (s *Store) Register(ctx context.Context, in RegisterInput) RegisterResult {
	var res signupResponse
	if err := s.client.PostJSON(ctx, "/auth/signup", in, &res); err != nil {
		return RegisterResult{Error: errMessage(err, "Registration failed")}
	}

	token := res.Token
	if token == "" {
		token = res.AccessToken
	}

	if token == "" {
		return RegisterResult{Success: true, OTPRequired: true, Email: in.Email}
	}

	s.client.SetToken(token)
	s.attachHook()
	s.establish(ctx, token, res.User)
	return RegisterResult{Success: true}
}

type verifyResponse struct {
	AccessToken string `json:"access_token"`
	Token       string `json:"token"`
	User        *User  `json:"user"`
}

// VerifyOTP completes email verification; success establishes a session
// identically to login.
func (s *Store) VerifyOTP(ctx context.Context, email, otpCode string) Result {
	body := map[string]string{"email": email, "otp_code": otpCode}

	var res verifyResponse
	if err := s.client.PostJSON(ctx, "/auth/verify-otp", body, &res); err != nil {
		return Result{Error: errMessage(err, "OTP verification failed")}
	}

	token := res.AccessToken
	if token == "" {
		token = res.Token
	}
	if token != "" {
		s.client.SetToken(token)
	}
	s.attachHook()

	user := res.User
	if user == nil {
		var fetched User
		if err := s.client.GetJSON(ctx, "/auth/me", nil, &fetched); err == nil {
			user = &fetched
		}
	}

	if token != "" {
		s.establish(ctx, token, user)
		if s.metrics != nil {
			s.metrics.IncSessionEvent("otp_verified")
		}
	}
	return Result{Success: true}
}

// ResendOTP restarts email verification.
func (s *Store) ResendOTP(ctx context.Context, email string) Result {
	body := map[string]string{"email": email}
	if err := s.client.PostJSON(ctx, "/auth/resend-otp", body, nil); err != nil {
		return Result{Error: errMessage(err, "Failed to resend OTP")}
	}
	return Result{Success: true}
}

// ForgotPassword initiates a password reset. No session side effects.
func (s *Store) ForgotPassword(ctx context.Context, email string) Result {
	body := map[string]string{"email": email}
	if err := s.client.PostJSON(ctx, "/auth/forgot-password", body, nil); err != nil {
		return Result{Error: errMessage(err, "Failed to send reset email")}
	}
	return Result{Success: true}
}

// ResetPassword completes a password reset. Does not auto-login.
func (s *Store) ResetPassword(ctx context.Context, email, otpCode, newPassword, confirm string) Result {
	body := map[string]string{
		"email":                email,
		"otp_code":             otpCode,
		"new_password":         newPassword,
		"confirm_new_password": confirm,
	}
	if err := s.client.PostJSON(ctx, "/auth/reset-password", body, nil); err != nil {
		return Result{Error: errMessage(err, "Password reset failed")}
	}
	return Result{Success: true}
}

// UpdatePassword changes the password of the authenticated user. Some
// backend deployments only accept POST here, so a 405 on PUT triggers a
// single retry with POST.
func (s *Store) UpdatePassword(ctx context.Context, current, newPassword, confirm string) Result {
	body := map[string]string{
		"current_password": current,
		"new_password":     newPassword,
		"confirm_password": confirm,
	}

	err := s.client.RequestJSON(ctx, http.MethodPut, "/auth/update-password", body, nil)
	if err != nil && backend.IsStatus(err, http.StatusMethodNotAllowed) {
		err = s.client.RequestJSON(ctx, http.MethodPost, "/auth/update-password", body, nil)
	}
	if err != nil {
		return Result{Error: errMessage(err, "Password update failed")}
	}
	return Result{Success: true}
}

// Logout clears the durable token, removes the client's default auth
// header, uninstalls the response hook, and optionally asks the console
// surface to redirect to the login screen with a reason code.
func (s *Store) Logout(ctx context.Context, opts LogoutOptions) {
	if err := s.local.Delete(ctx, localstore.KeySession); err != nil {
		slog.Warn("failed to clear persisted session", "error", err)
	}

	s.client.ClearToken()
	s.client.ClearUnauthorizedHook()

	s.mu.Lock()
	s.user = nil
	s.token = ""
	s.authenticated = false
	s.hookAttached = false
	if opts.Redirect {
		s.lastLogoutReason = opts.Reason
	} else {
		s.lastLogoutReason = ""
	}
	redirect := s.onForcedLogout
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.IncSessionEvent("logout")
	}

	if opts.Redirect && redirect != nil {
		redirect(opts.Reason)
	}
}

// establish commits a fully formed session: state, client header, and the
// durable blob all mirror the same token.
func (s *Store) establish(ctx context.Context, token string, user *User) {
	s.mu.Lock()
	s.token = token
	s.user = user
	s.authenticated = true
	s.lastLogoutReason = ""
	s.mu.Unlock()
	s.persist(ctx)
}

func (s *Store) persist(ctx context.Context) {
	snap := s.Snapshot()
	data, err := marshalSession(snap)
	if err != nil {
		slog.Warn("failed to encode session", "error", err)
		return
	}
	sealed, err := s.sealer.Seal(data)
	if err != nil {
		slog.Warn("failed to seal session", "error", err)
		return
	}
	if err := s.local.Set(ctx, localstore.KeySession, sealed); err != nil {
		slog.Warn("failed to persist session", "error", err)
	}
}

func (s *Store) readPersisted(ctx context.Context, out *Session) error {
	raw, ok, err := s.local.Get(ctx, localstore.KeySession)
	if err != nil || !ok {
		return err
	}
	opened, err := s.sealer.Open(raw)
	if err != nil {
		return err
	}
	return unmarshalSession(opened, out)
}

func errMessage(err error, fallback string) string {
	if be, ok := err.(*backend.Error); ok && be.Message != "" {
		return be.Message
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return fallback
}
