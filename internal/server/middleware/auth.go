package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth guards the API with a single shared key. Clients may present it either
// as "Authorization: Bearer <key>" or in the X-API-Key header. An empty key
// disables the guard, which is the default for local runs.
func Auth(apiKey string) func(http.Handler) http.Handler {
	if apiKey == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	want := []byte(apiKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := credential(r)
			switch {
			case got == "":
				rejectJSON(w, http.StatusUnauthorized, "authentication required")
			case subtle.ConstantTimeCompare([]byte(got), want) != 1:
				rejectJSON(w, http.StatusUnauthorized, "bad credentials")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// credential pulls the presented key out of the request, preferring the
// Bearer scheme over X-API-Key.
func credential(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if scheme, token, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
