package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth protects management endpoints with the configured token. The
// comparison is constant time. An empty token disables the endpoints
// entirely rather than leaving them open.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				http.Error(w, "management endpoints disabled", http.StatusForbidden)
				return
			}

			presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
