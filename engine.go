package branchauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/branchauth/authstate"
	"github.com/MrEthical07/branchauth/identity"
	"github.com/MrEthical07/branchauth/internal/audit"
	"github.com/MrEthical07/branchauth/refcache"
	"github.com/MrEthical07/branchauth/request"
	"github.com/MrEthical07/branchauth/session"
	"github.com/MrEthical07/branchauth/store"
	"go.uber.org/zap"
)

// State is a snapshot of the authentication state.
type State = authstate.State

// Auth statuses.
const (
	StatusUnauthenticated = authstate.Unauthenticated
	StatusChecking        = authstate.Checking
	StatusAuthenticated   = authstate.Authenticated
)

// Branches is the branch list of the current user and the selected branch, if any.
type Branches struct {
	Available []session.Branch `json:"available"`
	Selected  string           `json:"selected,omitempty"`
}

// Engine is the assembled session and identity pipeline. Construct it with [Builder].
type Engine struct {
	config   Config
	log      *zap.Logger
	store    *store.Store
	sessions *session.Manager
	resolver *identity.Resolver
	composer *request.Composer
	machine  *authstate.Machine
	refs     *refcache.Cache
	audit    *audit.Dispatcher
	metrics  *Metrics
	closed   atomic.Bool
}

func (e *Engine) ready() error {
	if e == nil || e.machine == nil || e.closed.Load() {
		return ErrEngineNotReady
	}
	return nil
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// Close flushes the audit dispatcher and closes the store. Further calls return
// ErrEngineNotReady.
func (e *Engine) Close() error {
	if e == nil || !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	if e.audit != nil {
		e.audit.Close()
	}
	return e.store.Close()
}

// AuditDropped returns the number of audit events dropped for backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// State returns the current authentication state.
func (e *Engine) State() State {
	if e.ready() != nil {
		return State{Status: StatusUnauthenticated}
	}
	return e.machine.State()
}

// CheckToken re-validates the persisted session against storage and the remote. It never
// fails; any doubt ends Unauthenticated.
func (e *Engine) CheckToken(ctx context.Context) State {
	if e.ready() != nil {
		return State{Status: StatusUnauthenticated}
	}
	return e.machine.CheckToken(ctx)
}

// Login authenticates email/password against the remote and persists the session. A stored
// branch the user no longer belongs to is cleared; a user with exactly one branch gets it
// selected when AutoSelectSingleBranch is on.
func (e *Engine) Login(ctx context.Context, email, password string) (State, error) {
	if err := e.ready(); err != nil {
		return State{Status: StatusUnauthenticated}, err
	}

	st, err := e.machine.Login(ctx, email, password)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditEventLoginFailure, false, "", "", "", err, nil)
		return st, err
	}
	e.metricInc(MetricLoginSuccess)

	userID := string(st.User.User.ID)
	branch, err := e.reconcileBranch(ctx, st.User)
	if err != nil {
		e.log.Warn("branch reconciliation failed", zap.String("user_id", userID), zap.Error(err))
	}
	e.emitAudit(ctx, AuditEventLoginSuccess, true, userID, branch, "", nil, nil)
	return st, nil
}

func (e *Engine) reconcileBranch(ctx context.Context, user *session.CurrentUser) (string, error) {
	branch, ok, err := e.sessions.GetUserSelectedBranch(ctx)
	switch {
	case errors.Is(err, ErrSchemaInvalid):
		ok = false
	case err != nil:
		return "", err
	}

	if ok && !user.HasBranch(branch) {
		if err := e.sessions.ClearUserSelectedBranch(ctx); err != nil {
			return "", err
		}
		ok = false
	}
	if ok {
		return branch, nil
	}

	if e.config.Session.AutoSelectSingleBranch && len(user.User.Branches) == 1 {
		only := string(user.User.Branches[0].ID)
		if err := e.sessions.SetUserSelectedBranch(ctx, only); err != nil {
			return "", err
		}
		return only, nil
	}
	return "", nil
}

// Logout deletes the session token, the stored user and the PIN. The selected branch is kept
// so the next login on this device lands on the same branch.
func (e *Engine) Logout(ctx context.Context) (State, error) {
	if err := e.ready(); err != nil {
		return State{Status: StatusUnauthenticated}, err
	}

	var userID string
	if prev := e.machine.State(); prev.User != nil {
		userID = string(prev.User.User.ID)
	}

	st, err := e.machine.Logout(ctx)
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, AuditEventLogout, err == nil, userID, "", "", err, nil)
	return st, err
}

// VerifySession checks the local session token.
func (e *Engine) VerifySession(ctx context.Context) (session.Verification, error) {
	if err := e.ready(); err != nil {
		return session.Verification{}, err
	}
	return e.sessions.VerifySession(ctx)
}

// CurrentUser returns the persisted user, or nil when there is none.
func (e *Engine) CurrentUser(ctx context.Context) (*session.CurrentUser, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.sessions.GetCurrentUser(ctx)
}

// Branches lists the current user's branches and the selected one.
func (e *Engine) Branches(ctx context.Context) (Branches, error) {
	user, err := e.requireUser(ctx)
	if err != nil {
		return Branches{}, err
	}
	selected, _, err := e.sessions.GetUserSelectedBranch(ctx)
	if err != nil && !errors.Is(err, ErrSchemaInvalid) {
		return Branches{}, err
	}
	return Branches{Available: user.User.Branches, Selected: selected}, nil
}

// SelectBranch persists branchID as the selected branch. It fails with ErrBranchNotAssigned
// when the current user does not belong to branchID, and with ErrInvalidSession when there is
// no current user.
func (e *Engine) SelectBranch(ctx context.Context, branchID string) error {
	user, err := e.requireUser(ctx)
	if err != nil {
		return err
	}
	userID := string(user.User.ID)

	if !user.HasBranch(branchID) {
		e.metricInc(MetricBranchRejected)
		err := fmt.Errorf("%w: %s", ErrBranchNotAssigned, branchID)
		e.emitAudit(ctx, AuditEventBranchRejected, false, userID, branchID, "", err, nil)
		return err
	}

	previous, _, _ := e.sessions.GetUserSelectedBranch(ctx)
	if err := e.sessions.SetUserSelectedBranch(ctx, branchID); err != nil {
		return err
	}
	e.metricInc(MetricBranchSelected)
	e.emitAudit(ctx, AuditEventBranchSelected, true, userID, branchID, "", nil, func() map[string]string {
		if previous == "" {
			return nil
		}
		return map[string]string{auditMetadataPreviousBranch: previous}
	})
	return nil
}

func (e *Engine) requireUser(ctx context.Context) (*session.CurrentUser, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	user, err := e.sessions.GetCurrentUser(ctx)
	if err != nil {
		if errors.Is(err, ErrSchemaInvalid) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
		}
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidSession
	}
	return user, nil
}

// Request sends an authenticated business request and returns the "data" member of the reply.
// See [request.Composer.Request] for the envelope and error contract.
func (e *Engine) Request(ctx context.Context, endpoint, action string, extra map[string]any) (json.RawMessage, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := e.composer.Request(ctx, endpoint, action, extra)
	switch {
	case errors.Is(err, ErrIdentityUnresolved):
		e.metricInc(MetricIdentityUnresolved)
		e.emitAudit(ctx, AuditEventIdentityBlocked, false, "", "", action, err, nil)
		return nil, err
	case err != nil:
		e.metrics.Observe(MetricRequestLatency, time.Since(start))
		e.emitAudit(ctx, AuditEventRequestFailure, false, "", "", action, err, func() map[string]string {
			return map[string]string{auditMetadataEndpoint: endpoint}
		})
		return nil, err
	}
	e.metrics.Observe(MetricRequestLatency, time.Since(start))
	return data, nil
}

func (e *Engine) observeRequest(_ string, err error) {
	if err != nil {
		e.metricInc(MetricRequestFailure)
		return
	}
	e.metricInc(MetricRequestSuccess)
}

// Do is [Engine.Request] with the response data decoded into T.
func Do[T any](ctx context.Context, e *Engine, endpoint, action string, extra map[string]any) (T, error) {
	var out T
	data, err := e.Request(ctx, endpoint, action, extra)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		e.log.Warn("response undecodable", zap.String("action", action), zap.Error(err))
		return out, fmt.Errorf("%w: %s", ErrRequestFailed, action)
	}
	return out, nil
}

// ReferenceData returns the reference list of kind, from cache when fresh. With refresh set it
// always refetches. A failed fetch falls back to a cached copy when there is one.
func (e *Engine) ReferenceData(ctx context.Context, kind string, refresh bool) ([]json.RawMessage, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	e.metricInc(MetricRefDataLoad)
	var (
		items []json.RawMessage
		err   error
	)
	if refresh {
		items, err = e.refs.Refresh(ctx, kind)
	} else {
		items, err = e.refs.Load(ctx, kind)
	}
	if err != nil {
		e.metricInc(MetricRefDataFailure)
		e.emitAudit(ctx, AuditEventRefDataStale, false, "", "", refcache.Action(kind), err, func() map[string]string {
			return map[string]string{auditMetadataKind: kind}
		})
		return nil, err
	}
	return items, nil
}

// RefreshReferenceData refetches every kind listed in Config.RefData.Kinds. Failures of
// individual kinds are joined.
func (e *Engine) RefreshReferenceData(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}
	var errs []error
	for _, kind := range e.refs.Kinds() {
		if _, err := e.ReferenceData(ctx, kind, true); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
		}
	}
	return errors.Join(errs...)
}

// InvalidateReferenceData drops the cached list of kind.
func (e *Engine) InvalidateReferenceData(ctx context.Context, kind string) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.refs.Invalidate(ctx, kind)
}

// SetPIN stores a local unlock PIN for the authenticated user.
func (e *Engine) SetPIN(ctx context.Context, p string) (State, error) {
	if err := e.ready(); err != nil {
		return State{Status: StatusUnauthenticated}, err
	}
	st, err := e.machine.SetPIN(ctx, p)
	e.emitAudit(ctx, AuditEventPINSet, err == nil, userIDOf(st), "", "", err, nil)
	return st, err
}

// UnlockWithPIN clears the lock of a restored session when p matches the stored PIN. Once
// Config.PIN.MaxAttempts failures accumulate the session ends and ErrPINAttemptsExhausted is
// returned.
func (e *Engine) UnlockWithPIN(ctx context.Context, p string) (State, error) {
	if err := e.ready(); err != nil {
		return State{Status: StatusUnauthenticated}, err
	}
	userID := userIDOf(e.machine.State())
	st, err := e.machine.UnlockWithPIN(ctx, p)
	if err != nil {
		e.metricInc(MetricPINUnlockFailure)
		event := AuditEventPINUnlockFailure
		if errors.Is(err, ErrPINAttemptsExhausted) {
			event = AuditEventPINLockedOut
		}
		e.emitAudit(ctx, event, false, userID, "", "", err, nil)
		return st, err
	}
	e.metricInc(MetricPINUnlockSuccess)
	e.emitAudit(ctx, AuditEventPINUnlockSuccess, true, userIDOf(st), "", "", nil, nil)
	return st, nil
}

// ClearPIN removes the stored PIN.
func (e *Engine) ClearPIN(ctx context.Context) (State, error) {
	if err := e.ready(); err != nil {
		return State{Status: StatusUnauthenticated}, err
	}
	st, err := e.machine.ClearPIN(ctx)
	e.emitAudit(ctx, AuditEventPINCleared, err == nil, userIDOf(st), "", "", err, nil)
	return st, err
}

func userIDOf(st State) string {
	if st.User == nil {
		return ""
	}
	return string(st.User.User.ID)
}
