// Package branchauth is the session and identity pipeline of a multi-branch back-office
// client. It signs and verifies a local session token, persists the authenticated user and the
// selected branch, derives the identity triple every business request must carry, and drives
// the authentication state machine.
//
// Engine methods are safe to call from multiple goroutines after construction through
// [Builder.Build].
//
// # Architecture boundaries
//
// branchauth is the public surface. It exposes [Engine], [Builder], [Config] and value types
// (State, MetricsSnapshot, AuditEvent). The pipeline stages live in sub-packages:
//
//	store     persistent key/value store with one-time initialization
//	jwt       session token codec
//	session   session token, current user and selected branch records
//	identity  identity triple resolution
//	request   authenticated request composition and HTTP transport
//	authstate authentication state machine
//	refcache  reference list cache
//	pin       local PIN unlock gate
//
// # What this package must NOT do
//
//   - Retry failed remote calls.
//   - Tell callers why a token was invalid. Invalid is invalid.
//   - Interpret business payloads passed through Request.
package branchauth
