// Package retention purges ACTIVE accounts older than a retention window.
//
// Each purge runs in one transaction: the refresh credentials are revoked
// through the engine and the user row is deleted, so either both happen or
// neither does. Scheduling is the caller's concern; SweepOnce does one pass.
package retention
