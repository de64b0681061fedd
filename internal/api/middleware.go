package api

import (
	"net/http"

	"github.com/1040440-eng/chatfamily/internal/apperr"
	"github.com/1040440-eng/chatfamily/internal/auth"
)

// RequireAuth returns middleware that validates the bearer token and injects
// the user ID into the request context.
func RequireAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, apperr.New(apperr.Unauthorized, "missing or invalid authorization"))
				return
			}
			userID, err := auth.VerifyToken(token, jwtSecret)
			if err != nil {
				writeError(w, apperr.New(apperr.Unauthorized, "invalid or expired token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), userID)))
		})
	}
}
