package middleware

import (
	"context"
	"net/http"

	"github.com/MrEthical07/branchauth"
	"github.com/MrEthical07/branchauth/session"
)

// SessionSource is the part of [branchauth.Engine] the guards need.
type SessionSource interface {
	State() branchauth.State
	VerifySession(ctx context.Context) (session.Verification, error)
}

type verificationContextKey struct{}

// VerificationFromContext returns the session verification stored by [RequireAuthenticated].
func VerificationFromContext(ctx context.Context) (session.Verification, bool) {
	v, ok := ctx.Value(verificationContextKey{}).(session.Verification)
	return v, ok
}

// RequireAuthenticated lets a request through only when the engine is Authenticated, not
// PIN-locked, and the local session token verifies. Locked sessions get 423, everything else
// 401.
func RequireAuthenticated(src SessionSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if src == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			st := src.State()
			if !st.IsAuthenticated() {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if st.Locked {
				http.Error(w, "locked", http.StatusLocked)
				return
			}

			v, err := src.VerifySession(r.Context())
			if err != nil || !v.Valid {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), verificationContextKey{}, v)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
