// Package middleware adapts the leaseAuth gate to net/http.
//
// [Authenticate] runs the gate on every request and binds the principal to
// the request context; requests without a bearer header pass through
// anonymous. [RequireAuthenticated] and [RequireRole] guard individual
// routes. Failures are answered with the JSON error envelope written by
// [WriteError]: 401 for unauthenticated, 403 for access denied.
package middleware
