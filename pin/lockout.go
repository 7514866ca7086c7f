package pin

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// KeyPINFailures is the store key holding the failed-unlock counter.
const KeyPINFailures = "pinFailures"

// LockoutConfig bounds failed unlock attempts.
type LockoutConfig struct {
	Threshold int           // 0 disables the lockout
	Window    time.Duration // failures older than Window are forgotten; 0 = never
}

type failureRecord struct {
	Count int       `json:"count"`
	First time.Time `json:"first"`
}

// Lockout counts failed unlock attempts in a KV so the count survives restarts.
type Lockout struct {
	kv  KV
	cfg LockoutConfig
	now func() time.Time

	mu sync.Mutex
}

// NewLockout returns a Lockout over kv.
func NewLockout(kv KV, cfg LockoutConfig) *Lockout {
	return &Lockout{kv: kv, cfg: cfg, now: time.Now}
}

// RecordFailure increments the failure counter and reports whether the threshold is reached.
func (l *Lockout) RecordFailure(ctx context.Context) (bool, error) {
	if l == nil || l.cfg.Threshold <= 0 {
		return false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.load(ctx)
	if err != nil {
		return false, err
	}
	now := l.now().UTC()
	if rec.Count == 0 || (l.cfg.Window > 0 && now.Sub(rec.First) > l.cfg.Window) {
		rec = failureRecord{First: now}
	}
	rec.Count++

	raw, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	if err := l.kv.Set(ctx, KeyPINFailures, string(raw)); err != nil {
		return false, err
	}
	return rec.Count >= l.cfg.Threshold, nil
}

// Reset clears the failure counter.
func (l *Lockout) Reset(ctx context.Context) error {
	if l == nil || l.cfg.Threshold <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.kv.Delete(ctx, KeyPINFailures)
}

// Failures returns the number of failures inside the current window.
func (l *Lockout) Failures(ctx context.Context) (int, error) {
	if l == nil || l.cfg.Threshold <= 0 {
		return 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.load(ctx)
	if err != nil {
		return 0, err
	}
	if l.cfg.Window > 0 && l.now().UTC().Sub(rec.First) > l.cfg.Window {
		return 0, nil
	}
	return rec.Count, nil
}

// load returns the stored record. An unreadable record counts as the threshold minus one, so
// tampering cannot buy a fresh set of attempts.
func (l *Lockout) load(ctx context.Context) (failureRecord, error) {
	raw, ok, err := l.kv.Get(ctx, KeyPINFailures)
	if err != nil || !ok {
		return failureRecord{}, err
	}
	var rec failureRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.Count < 0 {
		return failureRecord{Count: l.cfg.Threshold - 1, First: l.now().UTC()}, nil
	}
	return rec, nil
}
