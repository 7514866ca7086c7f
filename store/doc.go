// Package store provides the durable local key/value store used for session state and cached
// reference data.
//
// # Initialization
//
// A [Store] is constructed around an [Opener] and creates its [Backend] lazily, at most once,
// on first use. Concurrent first calls all block on the same initialization and observe the
// same outcome. If the backend cannot be created, every operation fails with an error matching
// [ErrStorageUnavailable].
//
// # Architecture boundaries
//
// Values are opaque strings. Serialization of structured data is the caller's concern.
//
// # What this package must NOT do
//
//   - Import branchauth, session, or request (no upward imports).
//   - Retry failed backend creation.
package store
