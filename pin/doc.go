// Package pin implements the local PIN unlock gate.
//
// A PIN never replaces the session. It only gates re-entry into an app that already holds an
// authenticated session. The PIN is stored as an Argon2id PHC string under the "pinHash" key:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// # What this package must NOT do
//
//   - Store or log the plaintext PIN.
//   - Authenticate against the remote collaborator.
package pin
