package middleware

import (
	"net/http"

	leaseAuth "github.com/leasehub/leaseAuth"
	"github.com/leasehub/leaseAuth/account"
)

// RequireRole admits principals holding one of roles: 401 when anonymous,
// 403 otherwise.
func RequireRole(roles ...account.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := leaseAuth.PrincipalFromContext(r.Context())
			if p == nil {
				WriteError(w, http.StatusUnauthorized, "Unauthenticated", "authentication required")
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			WriteError(w, http.StatusForbidden, "Access denied", "role not permitted")
		})
	}
}
