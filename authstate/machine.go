package authstate

import (
	"context"
	"errors"
	"sync"

	"github.com/MrEthical07/branchauth/pin"
	"github.com/MrEthical07/branchauth/session"
	"go.uber.org/zap"
)

var (
	// ErrPINInvalid is returned by UnlockWithPIN for a wrong or malformed PIN.
	ErrPINInvalid = errors.New("pin invalid")
	// ErrPINNotSet is returned by UnlockWithPIN when no PIN is stored.
	ErrPINNotSet = pin.ErrNotSet
	// ErrNotAuthenticated is returned by PIN operations that require a session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrPINAttemptsExhausted is returned by the failed unlock that reaches the attempt limit.
	// The session has been ended by then.
	ErrPINAttemptsExhausted = errors.New("pin attempts exhausted")
)

// Sessions is the part of the session manager the machine drives.
type Sessions interface {
	CreateSession(ctx context.Context, userID, userRole string) (string, error)
	DeleteSession(ctx context.Context) error
	GetCurrentUser(ctx context.Context) (*session.CurrentUser, error)
	SaveCurrentUser(ctx context.Context, resp session.AuthResponse) error
	ClearCurrentUser(ctx context.Context) error
}

// Authenticator is the remote login and liveness collaborator.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (session.AuthResponse, error)
	CheckLiveness(ctx context.Context, user session.CurrentUser) error
}

// PINStore persists the local PIN.
type PINStore interface {
	Set(ctx context.Context, p string) error
	Verify(ctx context.Context, p string) (bool, error)
	IsSet(ctx context.Context) (bool, error)
	Clear(ctx context.Context) error
}

// PINAttempts counts failed unlocks.
type PINAttempts interface {
	RecordFailure(ctx context.Context) (bool, error)
	Reset(ctx context.Context) error
}

// Navigator is told where the UI should go after a transition.
type Navigator interface {
	ToEntry()
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func()

// ToEntry calls f.
func (f NavigatorFunc) ToEntry() { f() }

// Options configures a Machine. Sessions and Authenticator are required.
type Options struct {
	Sessions      Sessions
	Authenticator Authenticator
	PINs          PINStore
	// Attempts, if set, ends the session once too many unlocks fail.
	Attempts  PINAttempts
	Navigator Navigator
	Logger    *zap.Logger
	// OnTransition, if set, is called after every completed transition with the transition's
	// context and the new snapshot.
	OnTransition func(ctx context.Context, event string, st State)
}

// Machine is the auth state machine. All methods are safe for concurrent use; transitions are
// serialized so that a snapshot always reflects one completed transition.
type Machine struct {
	sessions Sessions
	auth     Authenticator
	pins     PINStore
	attempts PINAttempts
	nav      Navigator
	log      *zap.Logger
	notify   func(context.Context, string, State)

	transition sync.Mutex

	mu    sync.RWMutex
	state State
}

// New returns a Machine in the Unauthenticated state.
func New(opts Options) (*Machine, error) {
	if opts.Sessions == nil {
		return nil, errors.New("authstate: sessions are required")
	}
	if opts.Authenticator == nil {
		return nil, errors.New("authstate: authenticator is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Machine{
		sessions: opts.Sessions,
		auth:     opts.Authenticator,
		pins:     opts.PINs,
		attempts: opts.Attempts,
		nav:      opts.Navigator,
		log:      log.Named("authstate"),
		notify:   opts.OnTransition,
	}, nil
}

// State returns a snapshot of the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Machine) set(ctx context.Context, event string, st State) State {
	m.mu.Lock()
	m.state = st
	m.mu.Unlock()
	if m.notify != nil {
		m.notify(ctx, event, st)
	}
	return st
}

// CheckToken re-validates the persisted session. It ends Authenticated only when the stored
// CurrentUser parses and the remote liveness check succeeds. It never returns an error.
func (m *Machine) CheckToken(ctx context.Context) State {
	m.transition.Lock()
	defer m.transition.Unlock()

	prev := m.State()
	m.set(ctx, "check_started", State{Status: Checking, IsPinSet: prev.IsPinSet})

	pinSet := m.pinSet(ctx)
	user, err := m.sessions.GetCurrentUser(ctx)
	switch {
	case err != nil:
		m.log.Info("stored user unusable", zap.Error(err))
		return m.set(ctx, "check_failed", State{Status: Unauthenticated, IsPinSet: pinSet})
	case user == nil:
		return m.set(ctx, "check_failed", State{Status: Unauthenticated, IsPinSet: pinSet})
	}

	if err := m.auth.CheckLiveness(ctx, *user); err != nil {
		m.log.Info("token liveness check failed", zap.Error(err))
		return m.set(ctx, "check_failed", State{Status: Unauthenticated, IsPinSet: pinSet})
	}

	return m.set(ctx, "check_passed", State{
		Status:   Authenticated,
		IsPinSet: pinSet,
		Locked:   pinSet,
		User:     user,
	})
}

// Login authenticates against the remote, persists the returned CurrentUser and creates the
// local session token. On any failure nothing stays persisted and the state is Unauthenticated.
func (m *Machine) Login(ctx context.Context, email, password string) (State, error) {
	m.transition.Lock()
	defer m.transition.Unlock()

	pinSet := m.State().IsPinSet
	failed := State{Status: Unauthenticated, IsPinSet: pinSet}

	resp, err := m.auth.Authenticate(ctx, email, password)
	if err != nil {
		return m.set(ctx, "login_failed", failed), err
	}

	if err := m.sessions.SaveCurrentUser(ctx, resp); err != nil {
		return m.set(ctx, "login_failed", failed), err
	}
	user := resp.Data
	if _, err := m.sessions.CreateSession(ctx, string(user.User.ID), user.User.Level); err != nil {
		if cerr := m.sessions.ClearCurrentUser(ctx); cerr != nil {
			m.log.Warn("rollback of current user failed", zap.Error(cerr))
		}
		return m.set(ctx, "login_failed", failed), err
	}

	if m.attempts != nil {
		if err := m.attempts.Reset(ctx); err != nil {
			m.log.Warn("pin attempt counter reset failed", zap.Error(err))
		}
	}
	return m.set(ctx, "login", State{Status: Authenticated, IsPinSet: pinSet, User: user}), nil
}

// Logout deletes the session token, clears the stored user and the PIN, and navigates to the
// entry point. The state becomes Unauthenticated even if a store step fails; the first error
// is returned.
func (m *Machine) Logout(ctx context.Context) (State, error) {
	m.transition.Lock()
	defer m.transition.Unlock()
	return m.endSession(ctx, "logout")
}

func (m *Machine) endSession(ctx context.Context, event string) (State, error) {
	err := m.sessions.DeleteSession(ctx)
	if cerr := m.sessions.ClearCurrentUser(ctx); err == nil {
		err = cerr
	}
	if m.pins != nil {
		if perr := m.pins.Clear(ctx); err == nil {
			err = perr
		}
	}
	if m.attempts != nil {
		if aerr := m.attempts.Reset(ctx); err == nil {
			err = aerr
		}
	}
	if err != nil {
		m.log.Warn("session end left residue in storage", zap.String("event", event), zap.Error(err))
	}

	st := m.set(ctx, event, State{Status: Unauthenticated})
	if m.nav != nil {
		m.nav.ToEntry()
	}
	return st, err
}

// SetPIN stores a new PIN. It requires an authenticated, unlocked session.
func (m *Machine) SetPIN(ctx context.Context, p string) (State, error) {
	m.transition.Lock()
	defer m.transition.Unlock()

	st := m.State()
	if m.pins == nil {
		return st, errors.New("authstate: no pin store configured")
	}
	if !st.IsAuthenticated() || st.Locked {
		return st, ErrNotAuthenticated
	}
	if err := m.pins.Set(ctx, p); err != nil {
		if errors.Is(err, pin.ErrMalformed) {
			return st, errors.Join(ErrPINInvalid, err)
		}
		return st, err
	}
	if m.attempts != nil {
		if err := m.attempts.Reset(ctx); err != nil {
			m.log.Warn("pin attempt counter reset failed", zap.Error(err))
		}
	}
	st.IsPinSet = true
	return m.set(ctx, "pin_set", st), nil
}

// UnlockWithPIN clears the Locked flag of an authenticated state when p matches. When the
// failed attempt that reaches the configured limit is recorded, the session is ended as by
// Logout and ErrPINAttemptsExhausted is returned.
func (m *Machine) UnlockWithPIN(ctx context.Context, p string) (State, error) {
	m.transition.Lock()
	defer m.transition.Unlock()

	st := m.State()
	if m.pins == nil {
		return st, ErrPINNotSet
	}
	if !st.IsAuthenticated() {
		return st, ErrNotAuthenticated
	}
	ok, err := m.pins.Verify(ctx, p)
	if err != nil {
		return st, err
	}
	if !ok {
		if m.attempts == nil {
			return st, ErrPINInvalid
		}
		exhausted, aerr := m.attempts.RecordFailure(ctx)
		if aerr != nil {
			return st, errors.Join(ErrPINInvalid, aerr)
		}
		if !exhausted {
			return st, ErrPINInvalid
		}
		m.log.Warn("pin attempts exhausted, ending session")
		out, eerr := m.endSession(ctx, "pin_locked_out")
		return out, errors.Join(ErrPINAttemptsExhausted, eerr)
	}
	if m.attempts != nil {
		if err := m.attempts.Reset(ctx); err != nil {
			m.log.Warn("pin attempt counter reset failed", zap.Error(err))
		}
	}
	st.Locked = false
	return m.set(ctx, "pin_unlocked", st), nil
}

// ClearPIN removes the stored PIN.
func (m *Machine) ClearPIN(ctx context.Context) (State, error) {
	m.transition.Lock()
	defer m.transition.Unlock()

	st := m.State()
	if m.pins == nil {
		return st, nil
	}
	if st.Locked {
		return st, ErrNotAuthenticated
	}
	if err := m.pins.Clear(ctx); err != nil {
		return st, err
	}
	st.IsPinSet = false
	return m.set(ctx, "pin_cleared", st), nil
}

func (m *Machine) pinSet(ctx context.Context) bool {
	if m.pins == nil {
		return false
	}
	set, err := m.pins.IsSet(ctx)
	if err != nil {
		m.log.Warn("pin lookup failed", zap.Error(err))
		return false
	}
	return set
}
