package branchauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/MrEthical07/branchauth/store"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func buildAuditTestEngine(t *testing.T, audit AuditConfig, sink AuditSink) *Engine {
	t.Helper()
	cfg := validTestConfig()
	cfg.Audit = audit

	e, err := New().WithConfig(cfg).WithBackend(store.NewMemoryBackend()).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	return e
}

func TestAuditDisabledEmitsNothing(t *testing.T) {
	sink := &countingSink{}
	e := buildAuditTestEngine(t, AuditConfig{Enabled: false, BufferSize: 8}, sink)

	if err := e.SelectBranch(context.Background(), "1"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
	e.emitAudit(context.Background(), AuditEventLogout, true, "u", "", "", nil, nil)
	_ = e.Close()

	if got := sink.count.Load(); got != 0 {
		t.Fatalf("expected no events, got %d", got)
	}
	if e.AuditDropped() != 0 {
		t.Fatal("disabled audit must not count drops")
	}
}

func TestAuditDropIfFullCountsDrops(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	e := buildAuditTestEngine(t, AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 16; i++ {
		e.emitAudit(context.Background(), AuditEventLogout, true, fmt.Sprint(i), "", "", nil, nil)
	}
	if e.AuditDropped() == 0 {
		t.Fatal("expected dropped events with a blocked sink")
	}
	close(sink.gate)
	_ = e.Close()
}

func TestAuditJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	e := buildAuditTestEngine(t, AuditConfig{Enabled: true, BufferSize: 8}, NewJSONWriterSink(&buf))

	ctx := WithRequestID(context.Background(), "req-1")
	e.emitAudit(ctx, AuditEventBranchRejected, false, "17", "9", "", ErrBranchNotAssigned, nil)
	e.emitAudit(ctx, AuditEventPINSet, true, "17", "", "", nil, nil)
	_ = e.Close()

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	var first AuditEvent
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatalf("line not json: %v", err)
	}
	if first.EventType != AuditEventBranchRejected || first.Error != "branch_not_assigned" || first.BranchID != "9" {
		t.Fatalf("unexpected event %+v", first)
	}
	if first.Metadata["request_id"] != "req-1" {
		t.Fatalf("expected request id metadata, got %v", first.Metadata)
	}
}

func TestAuditIDsAreOrdered(t *testing.T) {
	sink := NewChannelSink(64)
	e := buildAuditTestEngine(t, AuditConfig{Enabled: true, BufferSize: 64}, sink)

	for i := 0; i < 32; i++ {
		e.emitAudit(context.Background(), AuditEventLogout, true, "", "", "", nil, nil)
	}
	_ = e.Close()

	var ids []string
	for len(ids) < 32 {
		ids = append(ids, (<-sink.Events()).ID)
	}
	if !sort.StringsAreSorted(ids) {
		t.Fatalf("audit ids are not monotonic: %v", ids)
	}
	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestAuditErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want AuditErrorCode
	}{
		{nil, ""},
		{ErrInvalidCredentials, auditErrInvalidCredentials},
		{fmt.Errorf("open: %w", ErrStorageUnavailable), auditErrStorage},
		{fmt.Errorf("%w: no branch selected", ErrIdentityUnresolved), auditErrIdentity},
		{ErrInvalidSession, auditErrInvalidSession},
		{fmt.Errorf("%w: get_orders", ErrRequestFailed), auditErrRequestFailed},
		{ErrSchemaInvalid, auditErrSchema},
		{ErrBranchNotAssigned, auditErrBranchNotAssigned},
		{errors.Join(ErrPINInvalid, errors.New("short")), auditErrPINInvalid},
		{ErrPINNotSet, auditErrPINNotSet},
		{errors.Join(ErrPINAttemptsExhausted, nil), auditErrPINExhausted},
		{ErrNotAuthenticated, auditErrNotAuthenticated},
		{errors.New("boom"), auditErrInternal},
	}
	for _, tt := range tests {
		if got := auditErrorCode(tt.err); got != tt.want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
