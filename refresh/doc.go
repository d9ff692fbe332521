// Package refresh owns the long-lived refresh credential: its generation and
// the single-row-per-user store it lives in.
//
// # Token format
//
// A refresh value is a random UUIDv4 string. It is opaque to clients and has
// no cryptographic relation to the access token it is exchanged for.
//
// # Rotation
//
// Every user has at most one record. [Store.Rotate] overwrites it in place,
// so the previous value stops matching immediately. Presenting a value never
// rotates it; only login does.
//
// # What this package must NOT do
//
//   - Mint access tokens (the engine does that after a successful lookup).
//   - Delete a record by user when asked to delete a specific value: a
//     concurrent login may have written a fresher one.
package refresh
