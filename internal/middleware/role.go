package middleware

import (
	"fmt"
	"net/http"

	"github.com/helphive/helphive/internal/auth"
	"github.com/helphive/helphive/internal/model"
)

// RequireRole returns middleware that enforces a role requirement.
// Must be applied after Auth middleware. The check is a pure function
// of the already-verified claims, not a second credential check.
func RequireRole(required string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := auth.ClaimsFromContext(r.Context())
			if claims == nil {
				writeRoleError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}

			if claims.Role != required {
				writeRoleError(w, http.StatusForbidden, "FORBIDDEN",
					fmt.Sprintf("Insufficient permissions. Required role: %s", required))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin is a convenience middleware for the admin role.
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireRole(model.RoleAdmin)
}

// writeRoleError writes a role-related error response.
func writeRoleError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(fmt.Sprintf(`{"error":{"code":"%s","message":"%s"}}`, code, message)))
}
