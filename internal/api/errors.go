package api

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// errorCodes maps the statuses the status API emits to stable codes.
var errorCodes = map[int]string{
	http.StatusBadRequest:          "bad_request",
	http.StatusNotFound:            "not_found",
	http.StatusMethodNotAllowed:    "method_not_allowed",
	http.StatusInternalServerError: "internal_error",
	http.StatusServiceUnavailable:  "unavailable",
}

func errorCode(status int) string {
	if code, ok := errorCodes[status]; ok {
		return code
	}
	return "error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	//nolint:errcheck // client may already be gone
	json.NewEncoder(w).Encode(v)
}

// writeError replies with an ErrorResponse, tagging it with the request ID
// when one is present.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, ErrorResponse{
		Status:    status,
		Code:      errorCode(status),
		Message:   message,
		RequestID: requestIDFrom(r),
	})
}
