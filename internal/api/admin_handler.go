package api

import (
	"net/http"

	"github.com/voxdeck/voxdeck/internal/console"
)

// adminHandler groups the superadmin drill-down HTTP handlers.
type adminHandler struct {
	store *console.Store
}

func newAdminHandler(store *console.Store) *adminHandler {
	return &adminHandler{store: store}
}

// Users handles GET /api/v1/admin/users (superadmin). A result that lost
// the race to a newer fetch comes back as a conflict.
func (h *adminHandler) Users(w http.ResponseWriter, r *http.Request) {
	res := h.store.FetchAdminUsers(r.Context())
	writeStoreResult(w, res, func() interface{} {
		users, total, _ := h.store.AdminUsers()
		return map[string]interface{}{
			"users": users,
			"total": total,
		}
	})
}

// UserAgents handles GET /api/v1/admin/user-agents (superadmin). Scopes
// the roster to the requested user and loads it.
func (h *adminHandler) UserAgents(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "email is required")
		return
	}

	scope := h.store.InitScope(r.Context(), true, email)
	res := h.store.LoadAgentsForCurrentScope(r.Context())
	writeStoreResult(w, res, func() interface{} {
		return map[string]interface{}{
			"scope":           scope,
			"agents":          h.store.Agents(),
			"admin_user_info": h.store.AdminUserInfo(),
		}
	})
}
