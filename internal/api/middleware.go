package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/voxdeck/voxdeck/internal/metrics"
	"github.com/voxdeck/voxdeck/internal/session"
)

// slogRequestLogger is a simple structured logging middleware using slog.
func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", ww.BytesWritten(),
		)
	})
}

// metricsMiddleware records per-route counters and latency. The route
// pattern, not the raw path, keeps label cardinality bounded.
func metricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = "unmatched"
			}
			m.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(ww.Status())).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
		})
	}
}

// requireSession rejects requests while no console session is active.
// After a forced logout the rejection carries the reason code, the
// daemon analogue of redirecting to /login?reason=...
func requireSession(sessions *session.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sessions.IsAuthenticated() {
				if reason := sessions.LastLogoutReason(); reason != "" {
					writeError(w, http.StatusUnauthorized, "session_"+reason, "session ended: "+reason)
					return
				}
				writeError(w, http.StatusUnauthorized, "unauthorized", "no active session")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireSuperAdmin gates the admin drill-down routes on the session
// user's role.
func requireSuperAdmin(sessions *session.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sessions.IsSuperAdmin() {
				writeError(w, http.StatusForbidden, "forbidden", "super admin role required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
