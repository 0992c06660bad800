package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voxdeck/voxdeck/internal/console"
)

// agentsHandler groups the agent roster HTTP handlers.
type agentsHandler struct {
	store *console.Store
}

func newAgentsHandler(store *console.Store) *agentsHandler {
	return &agentsHandler{store: store}
}

// List handles GET /api/v1/agents (session). Returns the cached roster
// together with the scope it was loaded under.
func (h *agentsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agents":          h.store.Agents(),
		"loaded":          h.store.AgentsLoaded(),
		"scope":           h.store.CurrentScope(),
		"admin_user_info": h.store.AdminUserInfo(),
	})
}

// Refresh handles POST /api/v1/agents/refresh (session).
func (h *agentsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	res := h.store.LoadAgentsForCurrentScope(r.Context())
	writeStoreResult(w, res, func() interface{} {
		return map[string]interface{}{
			"agents":          h.store.Agents(),
			"admin_user_info": h.store.AdminUserInfo(),
		}
	})
}

// GetScope handles GET /api/v1/agents/scope (session).
func (h *agentsHandler) GetScope(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.CurrentScope())
}

// SetScope handles PUT /api/v1/agents/scope (session). Switching the
// scope reloads the roster under the new one.
func (h *agentsHandler) SetScope(w http.ResponseWriter, r *http.Request) {
	var scope console.Scope
	if err := readJSON(r, &scope); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if scope.Type != console.ScopeSelf && scope.Type != console.ScopeUser {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "scope type must be self or user")
		return
	}
	if scope.Type == console.ScopeUser && scope.Email == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "email is required")
		return
	}

	h.store.SetScope(r.Context(), scope)
	res := h.store.LoadAgentsForCurrentScope(r.Context())
	writeStoreResult(w, res, func() interface{} {
		return map[string]interface{}{
			"scope":           h.store.CurrentScope(),
			"agents":          h.store.Agents(),
			"admin_user_info": h.store.AdminUserInfo(),
		}
	})
}

// maxUploadSize bounds the multipart payloads (CSV targets, voice
// samples, knowledge documents).
const maxUploadSize = 25 << 20

func filePart(r *http.Request, field string) (*console.FileUpload, error) {
	f, hdr, err := r.FormFile(field)
	if err == http.ErrMissingFile {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &console.FileUpload{Filename: hdr.Filename, Content: content}, nil
}

func agentInputFromForm(r *http.Request) (console.AgentInput, error) {
	in := console.AgentInput{
		AgentName:          r.FormValue("agent_name"),
		FirstMessage:       r.FormValue("first_message"),
		Prompt:             r.FormValue("prompt"),
		Email:              r.FormValue("email"),
		LLM:                r.FormValue("llm"),
		BusinessName:       r.FormValue("business_name"),
		AgentType:          r.FormValue("agent_type"),
		SpeakingStyle:      r.FormValue("speaking_style"),
		ContactPhoneNumber: r.FormValue("contact_phone_number"),
	}

	var err error
	if in.KnowledgeFile, err = filePart(r, "file"); err != nil {
		return in, err
	}
	if in.VoiceFile, err = filePart(r, "voice_file"); err != nil {
		return in, err
	}
	return in, nil
}

// Create handles POST /api/v1/agents (session, multipart).
func (h *agentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse multipart form")
		return
	}
	in, err := agentInputFromForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to read attachment")
		return
	}

	res := h.store.CreateAgent(r.Context(), in)
	writeStoreResult(w, res, func() interface{} {
		return map[string]interface{}{"agents": h.store.Agents()}
	})
}

// Update handles PUT /api/v1/agents (session, multipart). The backend
// keys the update on email plus exact agent name.
func (h *agentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse multipart form")
		return
	}
	in, err := agentInputFromForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to read attachment")
		return
	}

	res := h.store.UpdateAgentExact(r.Context(), in)
	writeStoreResult(w, res, func() interface{} {
		return map[string]interface{}{"agents": h.store.Agents()}
	})
}

// Delete handles DELETE /api/v1/agents/{id} (session).
func (h *agentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_id", "agent id is required")
		return
	}

	res := h.store.DeleteAgent(r.Context(), id)
	writeStoreResult(w, res, func() interface{} {
		return map[string]interface{}{"agents": h.store.Agents()}
	})
}

// Pause handles POST /api/v1/agents/{id}/pause (session).
func (h *agentsHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

// Resume handles POST /api/v1/agents/{id}/resume (session).
func (h *agentsHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *agentsHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_id", "agent id is required")
		return
	}

	var res console.Result
	if active {
		res = h.store.ResumeAgent(r.Context(), id)
	} else {
		res = h.store.PauseAgent(r.Context(), id)
	}
	writeStoreResult(w, res, func() interface{} {
		agent, _ := h.store.GetAgentByID(id)
		return agent
	})
}
