// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunLogin, RunAuthenticate, RunRefresh, RunLogout,
// RunRevokeUser) accepts a typed dependency struct and returns a Result that
// carries a FailureKind. The root package maps kinds onto its public sentinel
// errors, metrics and events.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the user directory, JWT manager,
// refresh store, blacklist and login throttle. They do NOT own any of these
// resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import leaseAuth (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency interfaces.
package flows
