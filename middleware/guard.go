package middleware

import (
	"context"
	"net/http"

	leaseAuth "github.com/leasehub/leaseAuth"
)

// Gate is the subset of *leaseAuth.Engine the middleware needs.
type Gate interface {
	Authenticate(ctx context.Context, authorizationHeader string) (context.Context, error)
}

// Option configures [Authenticate].
type Option func(*guardOptions)

type guardOptions struct {
	proxies *ProxyTrust
}

// WithTrustedProxies makes the guard read the client IP through trust
// instead of the bare peer address.
func WithTrustedProxies(trust *ProxyTrust) Option {
	return func(o *guardOptions) { o.proxies = trust }
}

// Authenticate runs the gate. A rejected token ends the request with 401;
// a request without a bearer header continues anonymous.
func Authenticate(gate Gate, opts ...Option) func(http.Handler) http.Handler {
	var o guardOptions
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gate == nil {
				WriteError(w, http.StatusUnauthorized, "Unauthenticated", "authentication unavailable")
				return
			}

			ctx := leaseAuth.WithClientIP(r.Context(), o.proxies.ClientIP(r))
			ctx, err := gate.Authenticate(ctx, r.Header.Get("Authorization"))
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "Unauthenticated", publicDetail(err))
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthenticated rejects anonymous requests with 401.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if leaseAuth.PrincipalFromContext(r.Context()) == nil {
			WriteError(w, http.StatusUnauthorized, "Unauthenticated", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
