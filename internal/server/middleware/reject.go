package middleware

import (
	"encoding/json"
	"net/http"
)

// rejectJSON ends the request with a JSON error body, matching the shape the
// handlers use for their own errors.
func rejectJSON(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
