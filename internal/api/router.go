// Package api exposes the console stores over HTTP: public auth routes,
// session-gated console routes, and superadmin-gated drill-down routes.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/voxdeck/voxdeck/internal/console"
	"github.com/voxdeck/voxdeck/internal/metrics"
	"github.com/voxdeck/voxdeck/internal/notify"
	"github.com/voxdeck/voxdeck/internal/session"
)

// RouterDeps holds all dependencies for the console router.
type RouterDeps struct {
	Sessions      *session.Store
	Console       *console.Store
	Notifications *notify.Service
	Metrics       *metrics.Metrics
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(slogRequestLogger)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	// Handlers.
	auth := newAuthHandler(deps.Sessions)
	agents := newAgentsHandler(deps.Console)
	billing := newBillingHandler(deps.Console)
	batch := newBatchHandler(deps.Console)
	analytics := newAnalyticsHandler(deps.Console)
	notifications := newNotificationsHandler(deps.Notifications)
	admin := newAdminHandler(deps.Console)

	// Health check.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Live metrics summary.
	if deps.Metrics != nil {
		r.Get("/metrics/summary", deps.Metrics.Handler())
	}

	r.Route("/api/v1", func(vr chi.Router) {
		// Auth routes. Login-side endpoints are public; the session-side
		// ones are gated within the same group so nothing shadows them.
		vr.Route("/auth", func(ar chi.Router) {
			ar.Post("/login", auth.Login)
			ar.Post("/register", auth.Register)
			ar.Post("/verify-otp", auth.VerifyOTP)
			ar.Post("/resend-otp", auth.ResendOTP)
			ar.Post("/forgot-password", auth.ForgotPassword)
			ar.Post("/reset-password", auth.ResetPassword)

			ar.Group(func(gr chi.Router) {
				gr.Use(requireSession(deps.Sessions))
				gr.Get("/me", auth.Me)
				gr.Post("/logout", auth.Logout)
				gr.Put("/password", auth.UpdatePassword)
			})
		})

		// Session-gated console routes.
		vr.Group(func(cr chi.Router) {
			cr.Use(requireSession(deps.Sessions))

			// Agent roster and scope.
			cr.Get("/agents", agents.List)
			cr.Post("/agents", agents.Create)
			cr.Put("/agents", agents.Update)
			cr.Post("/agents/refresh", agents.Refresh)
			cr.Get("/agents/scope", agents.GetScope)
			cr.Put("/agents/scope", agents.SetScope)
			cr.Delete("/agents/{id}", agents.Delete)
			cr.Post("/agents/{id}/pause", agents.Pause)
			cr.Post("/agents/{id}/resume", agents.Resume)

			// Billing.
			cr.Get("/billing", billing.Get)
			cr.Post("/billing/bootstrap", billing.Bootstrap)
			cr.Post("/billing/refresh", billing.Refresh)
			cr.Get("/billing/payments", billing.Payments)
			cr.Post("/billing/payments/more", billing.LoadMorePayments)
			cr.Post("/billing/checkout", billing.Checkout)
			cr.Post("/billing/downgrade", billing.Downgrade)

			// Batch calling.
			cr.Get("/batch", batch.Get)
			cr.Post("/batch", batch.Create)
			cr.Post("/batch/refresh", batch.Refresh)
			cr.Post("/batch/cancel", batch.Cancel)
			cr.Post("/batch/retry", batch.Retry)

			// Analytics and call history.
			cr.Get("/analytics", analytics.Dashboard)
			cr.Get("/analytics/agent-overview", analytics.AgentOverview)
			cr.Get("/analytics/agents/{id}", analytics.AgentAnalytics)
			cr.Post("/dashboard/refresh", analytics.RefreshAll)
			cr.Get("/calls", analytics.Calls)

			// Preferences.
			cr.Get("/preferences", analytics.Preferences)
			cr.Put("/preferences", analytics.UpdatePreferences)

			// Notifications.
			cr.Get("/notifications", notifications.List)
			cr.Post("/notifications/read-all", notifications.MarkAllRead)
			cr.Post("/notifications/clear", notifications.ClearAll)
			cr.Post("/notifications/{id}/read", notifications.MarkRead)
			cr.Post("/notifications/{id}/dismiss", notifications.Dismiss)

			// Superadmin drill-down.
			cr.Route("/admin", func(sr chi.Router) {
				sr.Use(requireSuperAdmin(deps.Sessions))
				sr.Get("/users", admin.Users)
				sr.Get("/user-agents", admin.UserAgents)
			})
		})
	})

	return r
}
