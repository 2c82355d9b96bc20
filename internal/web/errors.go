package web

// errors.go provides unified error response handling for the API.
//
// Every error is logged with full technical detail server-side, keyed by
// the chi request ID, and returned to the client as a sanitized JSON body.

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// ErrorResponse is the JSON structure for API error responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// respondError logs the error with request context and writes a JSON error
// body with the given status.
func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondErrorDetails(w, r, status, message, nil)
}

// respondErrorDetails is respondError with a structured details payload,
// used for validation results the client needs field by field.
func respondErrorDetails(w http.ResponseWriter, r *http.Request, status int, message string, details any) {
	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", message,
		"request_id", middleware.GetReqID(r.Context()),
	)

	respondJSON(w, status, ErrorResponse{Error: message, Details: details})
}

// respondJSON encodes v as JSON and writes it with the given status.
// Encoding errors are logged since headers are already sent.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
