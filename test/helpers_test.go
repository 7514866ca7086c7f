//go:build integration
// +build integration

package test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MrEthical07/branchauth"
	"github.com/MrEthical07/branchauth/store"
)

const loginBody = `{"success":true,"message":"ok","data":{"token":"remote-tok","user":{"id":"u-7","name":"Kim","email":"kim@example.com","level":"manager","access":["orders"],"branches":[{"id":"b1","branch":"Old Town"},{"id":"b2","branch":"Pier"}]}}}`

type remote struct {
	srv      *httptest.Server
	requests atomic.Int64
	branches sync.Map
}

func newRemote(t *testing.T) *remote {
	t.Helper()
	r := &remote{}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/api/auth/login":
			_, _ = io.WriteString(w, loginBody)
		case "/api/auth/check":
			_, _ = io.WriteString(w, `{"data":{"valid":true}}`)
		default:
			r.requests.Add(1)
			var body map[string]any
			_ = json.NewDecoder(req.Body).Decode(&body)
			if b, ok := body["branch"].(string); ok {
				r.branches.Store(b, true)
			}
			_, _ = io.WriteString(w, `{"data":{"ok":true}}`)
		}
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func newEngine(t *testing.T, rem *remote, opener store.Opener) *branchauth.Engine {
	t.Helper()
	cfg := branchauth.DefaultConfig()
	cfg.Session.Secret = strings.Repeat("i", 32)
	cfg.Remote.BaseURL = rem.srv.URL + "/api"
	cfg.PIN.Memory = 8 * 1024
	cfg.PIN.Time = 1

	e, err := branchauth.New().
		WithConfig(cfg).
		WithOpener(opener).
		WithHTTPClient(rem.srv.Client()).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return e
}
