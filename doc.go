// Package leaseAuth is the authentication and session-lifecycle core of the
// rental-listing backend: HS256 access tokens, one rotating refresh record per
// user, a TTL-bounded logout blacklist, and the request gate that binds a
// Principal to the request context.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// leaseAuth is the public surface. It exposes [Engine], [Builder], [Config] and
// value types. Flow orchestration, the login throttle and event dispatch live
// under internal/ and are never exported. Storage backends live in
// sub-packages (blacklist, refresh, postgres) and are injected by the
// composition root.
//
// # What this package must NOT do
//
//   - Hold package-level mutable state. Everything is constructed by Builder.
//   - Log or emit raw token values.
//   - Import a sub-package that re-imports leaseAuth (policy, middleware,
//     retention, notify).
//
// # Failure contract
//
// Authenticate fails closed: a parse error, a directory miss, a blacklist hit,
// a backend error or a lookup timeout all yield [ErrUnauthenticated].
package leaseAuth
