package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/voxdeck/voxdeck/internal/console"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// errorEnvelope is the standard error response shape.
type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// readJSON decodes the request body into v, enforcing a size limit.
func readJSON(r *http.Request, v interface{}) error {
	lr := io.LimitReader(r.Body, maxBodySize)
	return json.NewDecoder(lr).Decode(v)
}

// writeStoreResult maps a store outcome onto the HTTP surface. ok builds
// the success payload lazily so failed calls never touch store state.
func writeStoreResult(w http.ResponseWriter, res console.Result, ok func() interface{}) {
	switch {
	case res.Success:
		writeJSON(w, http.StatusOK, ok())
	case res.Canceled:
		writeError(w, http.StatusConflict, "stale_scope", "the scope changed while the request was in flight")
	case res.Ignored:
		writeError(w, http.StatusConflict, "scope_mismatch", "the operation does not apply to the current scope")
	case strings.HasSuffix(res.Error, "is required"):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", res.Error)
	default:
		writeError(w, http.StatusBadGateway, "upstream_error", res.Error)
	}
}
