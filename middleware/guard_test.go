package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/branchauth"
	"github.com/MrEthical07/branchauth/request"
	"github.com/MrEthical07/branchauth/session"
)

type fakeEngine struct {
	state    branchauth.State
	verify   session.Verification
	err      error
	branches branchauth.Branches
}

func (f *fakeEngine) State() branchauth.State { return f.state }

func (f *fakeEngine) VerifySession(context.Context) (session.Verification, error) {
	return f.verify, f.err
}

func (f *fakeEngine) Branches(context.Context) (branchauth.Branches, error) {
	return f.branches, f.err
}

func serve(h http.Handler) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec
}

func TestRequireAuthenticated(t *testing.T) {
	valid := session.Verification{Valid: true, UserID: "17"}
	tests := []struct {
		name   string
		engine *fakeEngine
		want   int
	}{
		{"unauthenticated", &fakeEngine{state: branchauth.State{Status: branchauth.StatusUnauthenticated}, verify: valid}, http.StatusUnauthorized},
		{"locked", &fakeEngine{state: branchauth.State{Status: branchauth.StatusAuthenticated, Locked: true}, verify: valid}, http.StatusLocked},
		{"expired token", &fakeEngine{state: branchauth.State{Status: branchauth.StatusAuthenticated}}, http.StatusUnauthorized},
		{"storage error", &fakeEngine{state: branchauth.State{Status: branchauth.StatusAuthenticated}, verify: valid, err: errors.New("down")}, http.StatusUnauthorized},
		{"ok", &fakeEngine{state: branchauth.State{Status: branchauth.StatusAuthenticated}, verify: valid}, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequireAuthenticated(tt.engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				v, _ := VerificationFromContext(r.Context())
				seen = v.UserID
				w.WriteHeader(http.StatusNoContent)
			}))
			rec := serve(h)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusNoContent && seen != "17" {
				t.Fatalf("verification not in context, got %q", seen)
			}
		})
	}
}

func TestRequireAuthenticatedNilSource(t *testing.T) {
	rec := serve(RequireAuthenticated(nil)(http.NotFoundHandler()))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRequireBranch(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	if rec := serve(RequireBranch(&fakeEngine{})(ok)); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 without a branch, got %d", rec.Code)
	}
	if rec := serve(RequireBranch(&fakeEngine{err: branchauth.ErrInvalidSession})(ok)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a user, got %d", rec.Code)
	}
	if rec := serve(RequireBranch(&fakeEngine{branches: branchauth.Branches{Selected: "3"}})(ok)); rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
}

func TestRequestContextCopiesRequestID(t *testing.T) {
	var got string
	h := RequestContext(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = request.RequestIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "abc-1" {
		t.Fatalf("request id = %q", got)
	}
}
