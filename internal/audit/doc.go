// Package audit implements async event dispatching for session and identity operations.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: audit record with a ULID, timestamp, type, user, branch and metadata.
//   - [IDGenerator]: monotonic ULID source for event IDs.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; the Engine does.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import branchauth or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
