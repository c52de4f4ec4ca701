package apitest

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// envelope mirrors the backend's response wrapper.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// jsonResponse writes a bare JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("error encoding response", "error", err)
		}
	}
}

// dataResponse writes a successful enveloped response.
func dataResponse(w http.ResponseWriter, status int, data any, message string) {
	jsonResponse(w, status, envelope{Success: true, Data: data, Message: message})
}

// jsonError writes an enveloped error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, envelope{Success: false, Error: message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}
