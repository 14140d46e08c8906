package web

// errors.go writes JSON responses. Errors are logged with the request id and
// returned to clients as {"error": "...", "request_id": "..."}.

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/erpserver/internal/logging"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	requestID := middleware.GetReqID(r.Context())
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request error",
			"path", r.URL.Path,
			"status", status,
			"error", message,
		)
	}
	writeJSONStatus(w, r, status, ErrorResponse{Error: message, RequestID: requestID})
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	writeJSONStatus(w, r, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode error", "error", err)
	}
}
