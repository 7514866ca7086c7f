// Package request dispatches authenticated business requests to the remote collaborator.
//
// # Architecture boundaries
//
// Every outbound business call goes through Composer. It resolves the identity triple first and
// dispatches nothing when that fails. The envelope is flat JSON:
//
//	{"user_id": ..., "token": ..., "branch": ..., "action": ..., <extra fields>}
//
// Identity keys always win over colliding extra fields. Failures reach callers as
// ErrRequestFailed tagged with the action name. The underlying cause is logged only.
//
// # What this package must NOT do
//
//   - retry failed calls
//   - impose timeouts beyond those of the injected http.Client
//   - interpret business payloads
package request
