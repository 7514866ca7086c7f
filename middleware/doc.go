// Package middleware adapts a branchauth engine to net/http handlers.
//
//   - [RequireAuthenticated] admits requests only while the engine holds an unlocked,
//     verified session.
//   - [RequireBranch] additionally requires a selected branch.
//   - [RequestContext] carries X-Request-ID into audit metadata.
//
// Decisions are delegated to the engine; this package only maps them to status codes.
package middleware
