// Package jwt issues and verifies leaseAuth access tokens.
//
// Tokens are HS256-signed and carry exactly the claims the gate needs:
// email, role, status (verification state), iat and exp. Parsing never
// trusts the header algorithm, and expiry failures are reported as
// [ErrTokenExpired] so callers can tell them apart from signature failures
// in logs. Both deny.
//
// # What this package must NOT do
//
//   - Touch Redis, the user directory or any other backend.
//   - Apply leeway to exp: a token whose exp equals the current second is expired.
package jwt
