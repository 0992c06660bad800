package api

import (
	"context"
	"net/http"

	"github.com/voxdeck/voxdeck/internal/console"
)

// batchHandler groups the batch calling HTTP handlers.
type batchHandler struct {
	store *console.Store
}

func newBatchHandler(store *console.Store) *batchHandler {
	return &batchHandler{store: store}
}

// Get handles GET /api/v1/batch (session).
func (h *batchHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.BatchSnapshot())
}

// Refresh handles POST /api/v1/batch/refresh (session).
func (h *batchHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	res := h.store.FetchBatchStatus(r.Context())
	writeStoreResult(w, res, func() interface{} {
		return h.store.BatchSnapshot()
	})
}

// Create handles POST /api/v1/batch (session, multipart). The targets
// CSV arrives as the csv_file part.
func (h *batchHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse multipart form")
		return
	}

	in := console.CreateBatchJobInput{
		AgentName:     r.FormValue("agent_name"),
		CallName:      r.FormValue("call_name"),
		PhoneColumn:   r.FormValue("phone_column"),
		ScheduledTime: r.FormValue("scheduled_time"),
	}
	targets, err := filePart(r, "csv_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to read csv file")
		return
	}
	in.TargetsFile = targets

	res := h.store.CreateBatchJob(r.Context(), in)
	writeStoreResult(w, res, func() interface{} {
		return h.store.BatchSnapshot()
	})
}

type batchActionRequest struct {
	CallName string `json:"call_name"`
}

// Cancel handles POST /api/v1/batch/cancel (session).
func (h *batchHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.store.CancelBatchJob)
}

// Retry handles POST /api/v1/batch/retry (session).
func (h *batchHandler) Retry(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.store.RetryBatchJob)
}

func (h *batchHandler) action(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, callName string) console.Result) {
	var req batchActionRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	res := fn(r.Context(), req.CallName)
	writeStoreResult(w, res, func() interface{} {
		return h.store.BatchSnapshot()
	})
}
