package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MrEthical07/branchauth"
	"github.com/MrEthical07/branchauth/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRemote(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			_, _ = io.WriteString(w, `{"success":true,"message":"ok","data":{"token":"tok","user":{"id":3,"name":"Bo","email":"bo@example.com","level":"staff","access":[],"branches":[{"id":1,"branch":"North"},{"id":2,"branch":"South"}]}}}`)
		case "/api/auth/check":
			_, _ = io.WriteString(w, `{"data":true}`)
		case "/api/orders":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			_, _ = fmt.Fprintf(w, `{"data":{"branch":%q,"action":%q}}`, body["branch"], body["action"])
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	remote := newRemote(t)

	cfg := branchauth.DefaultConfig()
	cfg.Session.Secret = strings.Repeat("s", 32)
	cfg.Remote.BaseURL = remote.URL + "/api"
	cfg.Store.Backend = branchauth.BackendMemory
	cfg.PIN.Memory = 8 * 1024
	cfg.PIN.Time = 1

	engine, err := branchauth.New().
		WithConfig(cfg).
		WithBackend(store.NewMemoryBackend()).
		WithHTTPClient(remote.Client()).
		WithMetricsEnabled(true).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return newRouter(engine, zap.NewNop())
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterFlow(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"unauthenticated"`)

	rec = do(t, h, http.MethodPost, "/actions/get_orders", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/login", `{"email":"bo@example.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "tok", "remote token must not leave the process")

	rec = do(t, h, http.MethodPost, "/actions/get_orders?endpoint=orders", `{}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "no branch selected yet")

	rec = do(t, h, http.MethodPost, "/branch", `{"id":"9"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPost, "/branch", `{"id":"2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"selected":"2"`)

	rec = do(t, h, http.MethodPost, "/actions/get_orders?endpoint=orders", `{"date":"2026-10-18"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"branch":"2","action":"get_orders"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "branchauth_login_success_total 1")
	assert.Contains(t, rec.Body.String(), "branchauth_branch_rejected_total 1")

	rec = do(t, h, http.MethodPost, "/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodGet, "/branches", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestActionRefusesAbsoluteEndpoint(t *testing.T) {
	var hits atomic.Int32
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, `{"data":true}`)
	}))
	t.Cleanup(foreign.Close)

	h := newTestRouter(t)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/login", `{"email":"bo@example.com","password":"pw"}`).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/branch", `{"id":"1"}`).Code)

	for _, endpoint := range []string{foreign.URL + "/collect", "//" + strings.TrimPrefix(foreign.URL, "http://") + "/collect"} {
		rec := do(t, h, http.MethodPost, "/actions/get_orders?endpoint="+url.QueryEscape(endpoint), "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, endpoint)
	}
	assert.Zero(t, hits.Load(), "session token sent to a foreign host")
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		branchauth.ErrInvalidCredentials:                          http.StatusUnauthorized,
		branchauth.ErrBranchNotAssigned:                           http.StatusForbidden,
		branchauth.ErrPINAttemptsExhausted:                        http.StatusUnauthorized,
		fmt.Errorf("%w: x", branchauth.ErrIdentityUnresolved):     http.StatusConflict,
		fmt.Errorf("%w: get_orders", branchauth.ErrRequestFailed): http.StatusBadGateway,
		branchauth.ErrStorageUnavailable:                          http.StatusServiceUnavailable,
		io.EOF:                                                    http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}

func TestParseFields(t *testing.T) {
	got, err := parseFields([]string{"date=2026-10-18", "qty=3", "paid=true", "note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"date": "2026-10-18", "qty": float64(3), "paid": true, "note": "a=b"}, got)

	_, err = parseFields([]string{"novalue"})
	assert.Error(t, err)
}
