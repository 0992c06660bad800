// Package console is the application store: it caches agents, billing,
// analytics, batch calling jobs, call history, and admin data fetched
// from the platform backend, and exposes the mutators the console
// surface calls. All state lives behind one mutex; fetches run without
// the lock held and commit under it.
package console

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/voxdeck/voxdeck/internal/backend"
	"github.com/voxdeck/voxdeck/internal/config"
	"github.com/voxdeck/voxdeck/internal/localstore"
	"github.com/voxdeck/voxdeck/internal/metrics"
)

// Result is the outcome every store operation returns. Expected failure
// modes never surface as errors past the store boundary.
type Result struct {
	Success  bool   `json:"success"`
	Canceled bool   `json:"canceled,omitempty"`
	Ignored  bool   `json:"ignored,omitempty"`
	Error    string `json:"error,omitempty"`
}

func failure(msg string) Result {
	return Result{Error: msg}
}

// errMessage extracts the human-readable message from a backend error,
// falling back to the raw error text.
func errMessage(err error) string {
	var be *backend.Error
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}

// Preferences are the few UI fields mirrored to durable storage.
type Preferences struct {
	SidebarOpen   bool   `json:"sidebar_open"`
	CurrentPage   string `json:"current_page"`
	SelectedAgent string `json:"selected_agent,omitempty"`
	AgentsScope   Scope  `json:"agents_scope"`
}

// AdminUserInfo is the summary metadata cached alongside a user-scoped
// agent list.
type AdminUserInfo struct {
	UserEmail   string `json:"user_email"`
	UserName    string `json:"user_name"`
	UserID      string `json:"user_id"`
	TotalAgents int    `json:"total_agents"`
}

// AdminUser is one row of the platform-wide user list.
type AdminUser struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	AgentCount int    `json:"agent_count"`
	CreatedAt  string `json:"created_at"`
}

// Store is the aggregate client-side cache. It is safe for concurrent
// use.
type Store struct {
	client  *backend.Client
	local   localstore.Store
	metrics *metrics.Metrics
	cfg     *config.Config

	mu sync.Mutex

	// UI preferences, mirrored to durable storage on change.
	sidebarOpen   bool
	currentPage   string
	selectedAgent string

	// Agent scope and cache.
	scope         Scope
	scopeGen      uint64
	agents        []Agent
	agentsLoaded  bool
	adminUserInfo *AdminUserInfo

	// Admin user list, with its own fetch guard.
	usersAdmin      []AdminUser
	totalUsersAdmin int
	adminUsersError string
	adminGen        uint64

	// Analytics caches.
	analytics      Analytics
	agentOverview  *AgentOverview
	agentAnalytics map[string]*AgentAnalytics

	// Subscription summary shared with the dashboard.
	currentSubscription *Subscription

	billing Billing
	batch   BatchState

	callHistory        []CallRecord
	callHistoryLoading bool
}

// New creates the store and rehydrates persisted preferences.
func New(ctx context.Context, client *backend.Client, local localstore.Store, m *metrics.Metrics, cfg *config.Config) *Store {
	s := &Store{
		client:         client,
		local:          local,
		metrics:        m,
		cfg:            cfg,
		sidebarOpen:    true,
		currentPage:    "dashboard",
		scope:          Scope{Type: ScopeSelf},
		agentAnalytics: map[string]*AgentAnalytics{},
	}

	var prefs Preferences
	ok, err := localstore.ReadJSON(ctx, local, localstore.KeyPreferences, &prefs)
	if err != nil {
		slog.Warn("failed to read persisted preferences", "error", err)
	}
	if ok {
		s.sidebarOpen = prefs.SidebarOpen
		if prefs.CurrentPage != "" {
			s.currentPage = prefs.CurrentPage
		}
		s.selectedAgent = prefs.SelectedAgent
		if prefs.AgentsScope.Type != "" {
			s.scope = prefs.AgentsScope
		}
	}

	return s
}

func (s *Store) persistPreferences(ctx context.Context) {
	s.mu.Lock()
	prefs := Preferences{
		SidebarOpen:   s.sidebarOpen,
		CurrentPage:   s.currentPage,
		SelectedAgent: s.selectedAgent,
		AgentsScope:   s.scope,
	}
	s.mu.Unlock()

	if err := localstore.WriteJSON(ctx, s.local, localstore.KeyPreferences, prefs); err != nil {
		slog.Warn("failed to persist preferences", "error", err)
	}
}

// SetSidebarOpen records the sidebar state.
func (s *Store) SetSidebarOpen(ctx context.Context, open bool) {
	s.mu.Lock()
	s.sidebarOpen = open
	s.mu.Unlock()
	s.persistPreferences(ctx)
}

// SetCurrentPage records the active page.
func (s *Store) SetCurrentPage(ctx context.Context, page string) {
	s.mu.Lock()
	s.currentPage = page
	s.mu.Unlock()
	s.persistPreferences(ctx)
}

// SetSelectedAgent records the selected agent id.
func (s *Store) SetSelectedAgent(ctx context.Context, agentID string) {
	s.mu.Lock()
	s.selectedAgent = agentID
	s.mu.Unlock()
	s.persistPreferences(ctx)
}

// PreferencesSnapshot returns the current UI preferences.
func (s *Store) PreferencesSnapshot() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Preferences{
		SidebarOpen:   s.sidebarOpen,
		CurrentPage:   s.currentPage,
		SelectedAgent: s.selectedAgent,
		AgentsScope:   s.scope,
	}
}

// Agents returns a copy of the cached agent list.
func (s *Store) Agents() []Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Agent, len(s.agents))
	copy(out, s.agents)
	return out
}

// AgentsLoaded reports whether an agent fetch has completed for the
// current scope.
func (s *Store) AgentsLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentsLoaded
}

// AdminUserInfo returns the admin metadata for a user-scoped list, or
// nil under self scope.
func (s *Store) AdminUserInfo() *AdminUserInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adminUserInfo == nil {
		return nil
	}
	info := *s.adminUserInfo
	return &info
}

// GetAgentByID looks up a cached agent under either identifier field.
func (s *Store) GetAgentByID(id string) (Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.agents {
		if a.Matches(id) {
			return a, true
		}
	}
	return Agent{}, false
}

// CurrentSubscription returns the shared subscription summary.
func (s *Store) CurrentSubscription() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentSubscription == nil {
		return nil
	}
	sub := *s.currentSubscription
	return &sub
}

// AdminUsers returns the cached platform user list and total.
func (s *Store) AdminUsers() ([]AdminUser, int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AdminUser, len(s.usersAdmin))
	copy(out, s.usersAdmin)
	return out, s.totalUsersAdmin, s.adminUsersError
}

// CallHistory returns the cached call history rows.
func (s *Store) CallHistory() []CallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CallRecord, len(s.callHistory))
	copy(out, s.callHistory)
	return out
}

// CacheStats reports cache sizes for the metrics collector.
func (s *Store) CacheStats() (agents, payments, jobs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.agents), len(s.billing.Payments), len(s.batch.Jobs)
}
