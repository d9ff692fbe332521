// Package audit implements async dispatching of authentication events.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, no-op, and
//     the Kafka publisher in notify/kafka).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: structured record with id, timestamp, type, user, email, IP, metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; that responsibility belongs to the Engine and the retention sweeper.
// Dispatching never sits on the authentication decision path.
package audit
