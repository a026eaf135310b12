package api

import (
	"encoding/json"
	"net/http"

	"github.com/homebus/homebus/internal/middleware"
)

// sendJSON sends a JSON response
func sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// sendError sends a standardized error response
func sendError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	middleware.SendError(w, r, status, code, message, details)
}
