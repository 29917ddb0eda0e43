package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/erazemk/najdbe/internal/catalog"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("Failed to encode response", "error", err)
		}
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// jsonError writes a JSON error response with an error code and message.
func jsonError(w http.ResponseWriter, status int, code, message string) {
	jsonResponse(w, status, errorBody{Error: code, Message: message})
}

// writeError classifies err and writes the matching status. Internal errors
// are logged and their details withheld.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := catalog.Code(err)
	status := statusOf(code)
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		jsonError(w, status, code, "internal error")
		return
	}
	jsonError(w, status, code, err.Error())
}

func statusOf(code string) int {
	switch code {
	case catalog.CodeValidation:
		return http.StatusBadRequest
	case catalog.CodeNotFound:
		return http.StatusNotFound
	case catalog.CodeConflict:
		return http.StatusConflict
	case catalog.CodeForbidden:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}
