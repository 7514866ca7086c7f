package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/branchauth"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	snapshot branchauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() branchauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                        { return f.dropped }

func TestCollectDisabledMetricsOnlyAuditDropped(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: branchauth.MetricsSnapshot{
			Counters:   map[branchauth.MetricID]uint64{},
			Histograms: map[branchauth.MetricID][]uint64{},
		},
	})

	if n := testutil.CollectAndCount(exp); n != 1 {
		t.Fatalf("expected only the audit drop counter, got %d metrics", n)
	}
}

func TestCollectCountersAndHistogram(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: branchauth.MetricsSnapshot{
			Counters: map[branchauth.MetricID]uint64{
				branchauth.MetricLoginSuccess:       7,
				branchauth.MetricIdentityUnresolved: 2,
			},
			Histograms: map[branchauth.MetricID][]uint64{
				branchauth.MetricRequestLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	expected := `
# HELP branchauth_login_success_total Logins accepted by the remote.
# TYPE branchauth_login_success_total counter
branchauth_login_success_total 7
# HELP branchauth_audit_dropped_total Dropped audit events due to dispatcher backpressure.
# TYPE branchauth_audit_dropped_total counter
branchauth_audit_dropped_total 2
# HELP branchauth_request_latency_seconds Remote request latency.
# TYPE branchauth_request_latency_seconds histogram
branchauth_request_latency_seconds_bucket{le="0.025"} 1
branchauth_request_latency_seconds_bucket{le="0.05"} 3
branchauth_request_latency_seconds_bucket{le="0.1"} 6
branchauth_request_latency_seconds_bucket{le="0.25"} 10
branchauth_request_latency_seconds_bucket{le="0.5"} 15
branchauth_request_latency_seconds_bucket{le="1"} 21
branchauth_request_latency_seconds_bucket{le="2.5"} 28
branchauth_request_latency_seconds_bucket{le="+Inf"} 36
branchauth_request_latency_seconds_sum 0
branchauth_request_latency_seconds_count 36
`
	err := testutil.CollectAndCompare(exp, strings.NewReader(expected),
		"branchauth_login_success_total",
		"branchauth_audit_dropped_total",
		"branchauth_request_latency_seconds",
	)
	if err != nil {
		t.Fatalf("unexpected collection: %v", err)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: branchauth.MetricsSnapshot{
			Counters:   map[branchauth.MetricID]uint64{branchauth.MetricLogout: 1},
			Histograms: map[branchauth.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected text exposition, got %q", got)
	}
	if !strings.Contains(rec.Body.String(), "branchauth_logout_total 1") {
		t.Fatalf("missing logout counter:\n%s", rec.Body.String())
	}
}
