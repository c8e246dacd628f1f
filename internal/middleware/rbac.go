package middleware

import (
	"net/http"
	"slices"
)

// RequireRole rejects callers whose token does not carry one of roles
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := GetUserRole(r)
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated")
				return
			}
			if !slices.Contains(roles, role) {
				respondWithError(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
