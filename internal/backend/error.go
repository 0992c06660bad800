package backend

import (
	"encoding/json"
	"fmt"
)

// Error is the normalized form of any backend failure. Status is zero for
// transport-level errors that never produced an HTTP response.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("backend: %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is a backend Error with the given HTTP status.
func IsStatus(err error, status int) bool {
	be, ok := err.(*Error)
	return ok && be.Status == status
}

// errorBody covers every error shape the backend is known to produce:
// a structured detail array, a plain detail string, a message field, or
// a nested {"error":{"code","message"}} envelope.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type detailItem struct {
	Msg     string `json:"msg"`
	Message string `json:"message"`
}

// parseError normalizes a non-2xx response body into *Error. The message
// precedence follows the original console: first element of a structured
// detail array, then a detail string, then a message field, then fallback.
func parseError(status int, body []byte, fallback string) *Error {
	e := &Error{Status: status, Message: fallback}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return e
	}

	if eb.Code != "" {
		e.Code = eb.Code
	}
	if eb.Error != nil {
		if eb.Error.Code != "" {
			e.Code = eb.Error.Code
		}
		if eb.Error.Message != "" {
			e.Message = eb.Error.Message
		}
	}

	if msg := detailMessage(eb.Detail); msg != "" {
		e.Message = msg
		return e
	}
	if eb.Message != "" {
		e.Message = eb.Message
	}
	return e
}

func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		if len(items) == 0 {
			return ""
		}
		var s string
		if err := json.Unmarshal(items[0], &s); err == nil {
			return s
		}
		var it detailItem
		if err := json.Unmarshal(items[0], &it); err == nil {
			if it.Msg != "" {
				return it.Msg
			}
			return it.Message
		}
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}
