package console

import (
	"context"
	"net/url"
	"strconv"
	"sync"
)

// Overview is the aggregate dashboard summary.
type Overview struct {
	TotalCalls                 int     `json:"total_calls"`
	SuccessRate                string  `json:"success_rate"`
	SuccessRateValue           float64 `json:"success_rate_value"`
	AverageCallDuration        string  `json:"average_call_duration"`
	AverageCallDurationSeconds float64 `json:"average_call_duration_seconds"`
	ActiveAgentCount           int     `json:"active_agent_count"`
}

// Analytics is the dashboard analytics snapshot.
type Analytics struct {
	UserInfo          map[string]any     `json:"user_info"`
	Overview          Overview           `json:"overview"`
	CallPatterns      []map[string]any   `json:"call_patterns"`
	WeeklyPerformance []weeklyWire       `json:"weekly_performance"`
	AgentPerformance  []map[string]any   `json:"agent_performance"`
	AgentTypes        map[string]float64 `json:"agent_types"`
	DataPeriod        string             `json:"data_period"`
	UpdatedAt         string             `json:"updated_at"`
}

// AgentOverview is the fleet-level analytics snapshot.
type AgentOverview map[string]any

// AgentAnalytics is the per-agent analytics snapshot.
type AgentAnalytics map[string]any

// AnalyticsQuery filters the dashboard analytics fetch.
type AnalyticsQuery struct {
	Range   string
	AgentID string
}

// FetchAnalytics loads the dashboard analytics snapshot, optionally
// filtered by time range and agent.
func (s *Store) FetchAnalytics(ctx context.Context, q AnalyticsQuery) Result {
	if q.Range == "" {
		q.Range = "all"
	}
	body := map[string]any{"range": q.Range}
	if q.AgentID != "" {
		body["agent_id"] = q.AgentID
	}

	var a Analytics
	if err := s.client.PostJSON(ctx, "/analysis/dashboard-analytics", body, &a); err != nil {
		return failure(errMessage(err))
	}

	s.mu.Lock()
	s.analytics = a
	s.mu.Unlock()
	return Result{Success: true}
}

// AnalyticsSnapshot returns the cached dashboard analytics.
func (s *Store) AnalyticsSnapshot() Analytics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analytics
}

// WeeklySeries returns the cached weekly performance reshaped into a
// fixed Mon..Sun series.
func (s *Store) WeeklySeries() []WeeklyPoint {
	s.mu.Lock()
	rows := s.analytics.WeeklyPerformance
	s.mu.Unlock()
	return weeklySeriesFrom(rows)
}

// AgentTypesSeries returns the cached agent type distribution as
// label/value pairs.
func (s *Store) AgentTypesSeries() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.analytics.AgentTypes))
	for k, v := range s.analytics.AgentTypes {
		out[k] = v
	}
	return out
}

// FetchAgentOverview loads the fleet-level analytics snapshot.
func (s *Store) FetchAgentOverview(ctx context.Context) Result {
	var o AgentOverview
	if err := s.client.PostJSON(ctx, "/analysis/analytics/agent-overview-analytics", map[string]any{}, &o); err != nil {
		return failure(errMessage(err))
	}

	s.mu.Lock()
	s.agentOverview = &o
	s.mu.Unlock()
	return Result{Success: true}
}

// AgentOverviewSnapshot returns the cached fleet analytics, or nil.
func (s *Store) AgentOverviewSnapshot() *AgentOverview {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentOverview
}

// FetchAgentAnalytics loads and caches analytics for one agent.
func (s *Store) FetchAgentAnalytics(ctx context.Context, agentID string) Result {
	if agentID == "" {
		return failure("missing agent id")
	}

	var a AgentAnalytics
	if err := s.client.PostJSON(ctx, "/analysis/agent-analytics", map[string]string{"agent_id": agentID}, &a); err != nil {
		return failure(errMessage(err))
	}

	s.mu.Lock()
	s.agentAnalytics[agentID] = &a
	s.mu.Unlock()
	return Result{Success: true}
}

// AgentAnalyticsFor returns the cached analytics for one agent, or nil.
func (s *Store) AgentAnalyticsFor(agentID string) *AgentAnalytics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentAnalytics[agentID]
}

// FetchSubscriptions loads the current subscription into the shared
// summary slot.
func (s *Store) FetchSubscriptions(ctx context.Context) Result {
	var sub Subscription
	if err := s.client.GetJSON(ctx, "/subscription/current", nil, &sub); err != nil {
		return failure(errMessage(err))
	}

	s.mu.Lock()
	s.currentSubscription = &sub
	s.mu.Unlock()
	return Result{Success: true}
}

// FetchCallHistory loads the most recent calls, newest first.
func (s *Store) FetchCallHistory(ctx context.Context, limit int) Result {
	if limit <= 0 {
		limit = 50
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))

	s.mu.Lock()
	s.callHistoryLoading = true
	s.mu.Unlock()

	var rows []CallRecord
	err := s.client.GetJSON(ctx, "/auth/agent/call-history", query, &rows)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.callHistoryLoading = false
	if err != nil {
		s.callHistory = nil
		return failure(errMessage(err))
	}
	s.callHistory = rows
	return Result{Success: true}
}

type adminUsersResponse struct {
	TotalUsers *int        `json:"total_users"`
	Users      []AdminUser `json:"users"`
}

// FetchAdminUsers loads the platform-wide user list. A fresh call
// supersedes any in-flight one: the older result is discarded via a
// guard generation, same pattern as the agent scope guard.
func (s *Store) FetchAdminUsers(ctx context.Context) Result {
	s.mu.Lock()
	s.adminGen++
	gen := s.adminGen
	s.adminUsersError = ""
	s.mu.Unlock()

	var resp adminUsersResponse
	err := s.client.GetJSON(ctx, "/auth/admin/users", nil, &resp)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adminGen != gen {
		return Result{Canceled: true}
	}
	if err != nil {
		s.adminUsersError = errMessage(err)
		return failure(s.adminUsersError)
	}

	s.usersAdmin = resp.Users
	s.totalUsersAdmin = len(resp.Users)
	if resp.TotalUsers != nil {
		s.totalUsersAdmin = *resp.TotalUsers
	}
	return Result{Success: true}
}

// FetchDashboardData loads the dashboard's three slices concurrently.
// The slices settle independently; a failure in one never blocks the
// others.
func (s *Store) FetchDashboardData(ctx context.Context) Result {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		s.FetchAgents(ctx)
	}()
	go func() {
		defer wg.Done()
		s.FetchAnalytics(ctx, AnalyticsQuery{})
	}()
	go func() {
		defer wg.Done()
		s.FetchSubscriptions(ctx)
	}()
	wg.Wait()
	return Result{Success: true}
}
