package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// SuccessEnvelope always carries results, null included.
type SuccessEnvelope struct {
	Message string `json:"message"`
	Error   bool   `json:"error"`
	Code    int    `json:"code"`
	Results any    `json:"results"`
}

type ErrorEnvelope struct {
	Message string            `json:"message"`
	Error   bool              `json:"error"`
	Code    int               `json:"code"`
	Errors  map[string]string `json:"errors,omitempty"`
	Results any               `json:"results,omitempty"`
}

func Success(w http.ResponseWriter, r *http.Request, status int, message string, results any) {
	JSON(w, r, status, SuccessEnvelope{Message: message, Error: false, Code: status, Results: results})
}

func Error(w http.ResponseWriter, r *http.Request, status int, message string, fields map[string]string) {
	JSON(w, r, status, ErrorEnvelope{Message: message, Error: true, Code: status, Errors: fields})
}

// ErrorWithResults is used where a failure still has a body worth returning,
// such as readiness check details.
func ErrorWithResults(w http.ResponseWriter, r *http.Request, status int, message string, results any) {
	JSON(w, r, status, ErrorEnvelope{Message: message, Error: true, Code: status, Results: results})
}

func JSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.WarnContext(r.Context(), "response encode failed", "path", r.URL.Path, "error", err)
	}
}
