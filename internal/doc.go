// Package internal holds the leaseAuth implementation pieces that are not
// part of the public API.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and JSON sink)
//   - config: leaseauthd configuration loading
//   - flows: pure-function orchestrators behind every Engine operation
//   - httpapi: the /api/v1/auth HTTP surface
//   - obs: zap logger setup and the metrics/health server
//   - rate: Redis-backed login throttle
package internal
