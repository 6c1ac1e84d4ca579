package api

import (
	"encoding/json"
	"net/http"
)

// sendJSON sends a JSON response
func sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// sendListResponse wraps a list in the standard envelope
func sendListResponse(w http.ResponseWriter, data any, total int) {
	sendJSON(w, http.StatusOK, map[string]any{
		"data":  data,
		"total": total,
	})
}

// decodeJSON decodes request body with error handling
func decodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var input T
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendError(w, r, http.StatusBadRequest, "INVALID_BODY", "Invalid JSON body", nil)
		return input, false
	}
	return input, true
}
