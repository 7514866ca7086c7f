package middleware

import (
	"context"
	"net/http"

	"github.com/MrEthical07/branchauth"
	"github.com/MrEthical07/branchauth/request"
)

// BranchSource reports the branches of the current user.
type BranchSource interface {
	Branches(ctx context.Context) (branchauth.Branches, error)
}

// RequireBranch rejects requests with 409 while no branch is selected. Place it after
// [RequireAuthenticated].
func RequireBranch(src BranchSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if src == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			b, err := src.Branches(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if b.Selected == "" {
				http.Error(w, "no branch selected", http.StatusConflict)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestContext copies X-Request-ID into the request context and tags audit events with
// source "http".
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := branchauth.WithSource(r.Context(), "http")
		if id := r.Header.Get(request.HeaderRequestID); id != "" {
			ctx = branchauth.WithRequestID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
