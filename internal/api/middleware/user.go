package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/eldtechnologies/batepapo/internal/validation"
)

type contextKey string

// UserContextKey holds the sanitized name from the User header.
const UserContextKey contextKey = "user"

// UserHeader names the participant making the request.
const UserHeader = "User"

// User copies the sanitized User header into the request context. It never
// rejects a request; handlers decide whether the name is required.
func User(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := validation.Sanitize(r.Header.Get(UserHeader))
		ctx := context.WithValue(r.Context(), UserContextKey, name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserFromContext returns the requesting participant, or "" if none was given.
func GetUserFromContext(ctx context.Context) string {
	name, _ := ctx.Value(UserContextKey).(string)
	return name
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
