// Package rate implements the Redis-backed failed-login throttle used by the
// login flow.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key shapes:
//   - <prefix>:al:<email>: failed logins per identifier
//   - <prefix>:ali:<ip>: failed logins per client IP (optional)
//
// A successful login clears both counters.
package rate
