// Package session owns the "current session" lifecycle: the signed session token, the cached
// authenticated user record, and the selected branch, all kept in the local key/value store.
//
// # Failure model
//
// Token and schema failures are folded into absence at this layer. [Manager.VerifySession]
// reports an invalid token as a [Verification] with Valid=false, and [Manager.GetCurrentUser]
// reports a corrupt record as a nil user together with [ErrSchemaInvalid]. Only storage
// failures surface as errors that callers should treat as exceptional.
//
// # Architecture boundaries
//
// This package reads and writes the store and calls the jwt codec. It does NOT talk to the
// network, resolve request identity, or hold the in-memory auth state.
//
// # What this package must NOT do
//
//   - Import branchauth, identity, request, or authstate (no upward imports).
//   - Clear the selected branch when a session is deleted. That gap is deliberate and
//     documented; see DeleteSession.
package session
