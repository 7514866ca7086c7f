package internaldefs

import (
	"github.com/MrEthical07/branchauth"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   branchauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   branchauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: branchauth.MetricLoginSuccess, Name: "branchauth_login_success_total", Help: "Logins accepted by the remote."},
	{ID: branchauth.MetricLoginFailure, Name: "branchauth_login_failure_total", Help: "Rejected or failed logins."},
	{ID: branchauth.MetricLogout, Name: "branchauth_logout_total", Help: "Logouts."},
	{ID: branchauth.MetricCheckTokenAuthenticated, Name: "branchauth_check_token_authenticated_total", Help: "Token checks ending authenticated."},
	{ID: branchauth.MetricCheckTokenUnauthenticated, Name: "branchauth_check_token_unauthenticated_total", Help: "Token checks ending unauthenticated."},
	{ID: branchauth.MetricBranchSelected, Name: "branchauth_branch_selected_total", Help: "Accepted branch selections."},
	{ID: branchauth.MetricBranchRejected, Name: "branchauth_branch_rejected_total", Help: "Branch selections for a branch the user does not belong to."},
	{ID: branchauth.MetricRequestSuccess, Name: "branchauth_request_success_total", Help: "Dispatched requests that succeeded."},
	{ID: branchauth.MetricRequestFailure, Name: "branchauth_request_failure_total", Help: "Dispatched requests that failed."},
	{ID: branchauth.MetricIdentityUnresolved, Name: "branchauth_identity_unresolved_total", Help: "Requests blocked before dispatch for a missing user or branch."},
	{ID: branchauth.MetricRefDataLoad, Name: "branchauth_refdata_load_total", Help: "Reference data loads."},
	{ID: branchauth.MetricRefDataFailure, Name: "branchauth_refdata_failure_total", Help: "Reference data loads that failed."},
	{ID: branchauth.MetricPINUnlockSuccess, Name: "branchauth_pin_unlock_success_total", Help: "Successful PIN unlocks."},
	{ID: branchauth.MetricPINUnlockFailure, Name: "branchauth_pin_unlock_failure_total", Help: "Rejected PIN unlocks."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: branchauth.MetricRequestLatency, Name: "branchauth_request_latency_seconds", Help: "Remote request latency."},
}

// AuditDroppedName is the counter name for audit events dropped under backpressure.
const AuditDroppedName = "branchauth_audit_dropped_total"

// AuditDroppedHelp is the help text for AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// UpperBounds are the finite bucket bounds in seconds. The eighth bucket is +Inf.
var UpperBounds = []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that flatten buckets
// into separate instruments.
var HistogramBoundSuffix = []string{
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed eight-bucket array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals. The last element is the
// sample count.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
