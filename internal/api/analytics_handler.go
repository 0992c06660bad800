package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/voxdeck/voxdeck/internal/console"
)

// analyticsHandler groups the analytics and call history HTTP handlers.
type analyticsHandler struct {
	store *console.Store
}

func newAnalyticsHandler(store *console.Store) *analyticsHandler {
	return &analyticsHandler{store: store}
}

// Dashboard handles GET /api/v1/analytics (session). Fetches the
// dashboard snapshot for the requested range.
func (h *analyticsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	q := console.AnalyticsQuery{
		Range:   r.URL.Query().Get("range"),
		AgentID: r.URL.Query().Get("agent_id"),
	}
	res := h.store.FetchAnalytics(r.Context(), q)
	writeStoreResult(w, res, func() interface{} {
		return map[string]interface{}{
			"analytics":     h.store.AnalyticsSnapshot(),
			"weekly_series": h.store.WeeklySeries(),
			"agent_types":   h.store.AgentTypesSeries(),
		}
	})
}

// RefreshAll handles POST /api/v1/dashboard/refresh (session). Analytics,
// agent overview, and the current subscription load concurrently and
// settle independently.
func (h *analyticsHandler) RefreshAll(w http.ResponseWriter, r *http.Request) {
	res := h.store.FetchDashboardData(r.Context())
	writeStoreResult(w, res, func() interface{} {
		return map[string]interface{}{
			"analytics":            h.store.AnalyticsSnapshot(),
			"agent_overview":       h.store.AgentOverviewSnapshot(),
			"current_subscription": h.store.CurrentSubscription(),
		}
	})
}

// AgentOverview handles GET /api/v1/analytics/agent-overview (session).
func (h *analyticsHandler) AgentOverview(w http.ResponseWriter, r *http.Request) {
	res := h.store.FetchAgentOverview(r.Context())
	writeStoreResult(w, res, func() interface{} {
		return h.store.AgentOverviewSnapshot()
	})
}

// AgentAnalytics handles GET /api/v1/analytics/agents/{id} (session).
func (h *analyticsHandler) AgentAnalytics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_id", "agent id is required")
		return
	}

	res := h.store.FetchAgentAnalytics(r.Context(), id)
	writeStoreResult(w, res, func() interface{} {
		return h.store.AgentAnalyticsFor(id)
	})
}

// Calls handles GET /api/v1/calls (session).
func (h *analyticsHandler) Calls(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 1 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = l
	}

	res := h.store.FetchCallHistory(r.Context(), limit)
	writeStoreResult(w, res, func() interface{} {
		return map[string]interface{}{"calls": h.store.CallHistory()}
	})
}

// Preferences handles GET /api/v1/preferences (session).
func (h *analyticsHandler) Preferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.PreferencesSnapshot())
}

type preferencesRequest struct {
	SidebarOpen   *bool   `json:"sidebar_open"`
	CurrentPage   *string `json:"current_page"`
	SelectedAgent *string `json:"selected_agent"`
}

// UpdatePreferences handles PUT /api/v1/preferences (session). Absent
// fields are left unchanged.
func (h *analyticsHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	ctx := r.Context()
	if req.SidebarOpen != nil {
		h.store.SetSidebarOpen(ctx, *req.SidebarOpen)
	}
	if req.CurrentPage != nil {
		h.store.SetCurrentPage(ctx, *req.CurrentPage)
	}
	if req.SelectedAgent != nil {
		h.store.SetSelectedAgent(ctx, *req.SelectedAgent)
	}
	writeJSON(w, http.StatusOK, h.store.PreferencesSnapshot())
}
