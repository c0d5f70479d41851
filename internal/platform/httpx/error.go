package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Error represents the canonical JSON error envelope returned by the API.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

// NewError constructs a new Error with the provided parameters.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    sanitize(code, 80),
		Message: sanitize(message, 512),
		Status:  status,
	}
}

// WithDetails attaches additional JSON-serialisable metadata.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	copyDetails := make(map[string]any, len(details))
	for k, v := range details {
		copyDetails[k] = v
	}
	e.Details = copyDetails
	return e
}

// Error implements the error interface so handlers can pass Errors around.
func (e Error) Error() string {
	return e.Code + ": " + e.Message
}

// WriteError writes the structured error envelope to the response writer.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	payload := map[string]any{
		"success":    false,
		"error_code": err.Code,
		"message":    err.Message,
	}
	if len(err.Details) > 0 {
		payload["details"] = err.Details
	}
	if requestID := sanitize(middleware.GetReqID(ctx), 80); requestID != "" {
		payload["request_id"] = requestID
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteData writes a success envelope wrapping the provided data payload.
func WriteData(w http.ResponseWriter, status int, data any) {
	writeSuccess(w, status, data, "")
}

// WriteMessage writes a success envelope carrying data plus a human message.
func WriteMessage(w http.ResponseWriter, status int, data any, message string) {
	writeSuccess(w, status, data, message)
}

func writeSuccess(w http.ResponseWriter, status int, data any, message string) {
	if status == 0 {
		status = http.StatusOK
	}
	payload := map[string]any{"success": true}
	if data != nil {
		payload["data"] = data
	}
	if message = sanitize(message, 512); message != "" {
		payload["message"] = message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func sanitize(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
