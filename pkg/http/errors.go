package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mvollmer/gatehouse/internal/models"
)

// ErrorResponse is the wire shape of every error this service returns.
type ErrorResponse struct {
	Error   string `json:"error"`             // Machine-readable error code
	Message string `json:"message"`           // Human-readable message
	Details string `json:"details,omitempty"` // Optional additional context
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteErrorWithDetails(w, statusCode, errorCode, message, "")
}

// WriteErrorWithDetails writes a JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, errorCode, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{
		Error:   errorCode,
		Message: message,
		Details: details,
	}

	// Encoding errors are not exposed to the client
	_ = json.NewEncoder(w).Encode(resp)
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}

// WriteAuthFailure maps the credential error taxonomy onto transport
// responses. A frozen account answers 429; every other credential
// failure collapses to the same generic 401 so callers cannot learn
// which accounts exist, are locked out, or hold which password.
func WriteAuthFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrAccountFrozen):
		WriteTooManyRequests(w, "Account temporarily locked")
	case models.IsCredentialFailure(err):
		WriteUnauthorized(w, "Authentication failed")
	default:
		WriteInternalError(w, "Authentication unavailable")
	}
}
