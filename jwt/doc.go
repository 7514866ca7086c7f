// Package jwt issues and verifies the signed, time-limited session token that binds a user id
// and role to an absolute expiry.
//
// # Failure model
//
// [Codec.Decrypt] never returns an error. Every verification failure (missing token,
// malformed token, bad signature, expired token, unusable claims) produces a [Result] whose
// OK method reports false. The [Reason] is kept for logging only; callers must not branch on it.
//
// # What this package must NOT do
//
//   - Touch storage. Persisting tokens is the session package's concern.
//   - Accept any signing algorithm other than the single configured HMAC method.
package jwt
