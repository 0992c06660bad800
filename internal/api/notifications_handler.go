package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voxdeck/voxdeck/internal/notify"
)

// notificationsHandler groups the notification HTTP handlers.
type notificationsHandler struct {
	svc *notify.Service
}

func newNotificationsHandler(svc *notify.Service) *notificationsHandler {
	return &notificationsHandler{svc: svc}
}

// List handles GET /api/v1/notifications (session). Re-synthesizes from
// live signals on every call; identical signals yield identical ids, so
// bookkeeping carries across.
func (h *notificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Refresh(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to persist notification state")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": list,
		"unread":        h.svc.UnreadCount(),
	})
}

// MarkRead handles POST /api/v1/notifications/{id}/read (session).
func (h *notificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_id", "notification id is required")
		return
	}
	if err := h.svc.MarkRead(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to persist read state")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": h.svc.UnreadCount()})
}

// MarkAllRead handles POST /api/v1/notifications/read-all (session).
func (h *notificationsHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.MarkAllRead(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to persist read state")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": 0})
}

// Dismiss handles POST /api/v1/notifications/{id}/dismiss (session). A
// dismissed id never resurfaces.
func (h *notificationsHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_id", "notification id is required")
		return
	}
	if err := h.svc.Dismiss(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to persist dismissal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": h.svc.List()})
}

// ClearAll handles POST /api/v1/notifications/clear (session).
func (h *notificationsHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearAll(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to persist dismissals")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
