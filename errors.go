package branchauth

import (
	"errors"

	"github.com/MrEthical07/branchauth/authstate"
	"github.com/MrEthical07/branchauth/identity"
	"github.com/MrEthical07/branchauth/request"
	"github.com/MrEthical07/branchauth/session"
	"github.com/MrEthical07/branchauth/store"
)

var (
	// ErrStorageUnavailable is returned when the backing store failed to initialize or an
	// operation on it failed.
	ErrStorageUnavailable = store.ErrStorageUnavailable
	// ErrInvalidSession is returned by operations that need a live session and found none.
	ErrInvalidSession = session.ErrInvalidSession
	// ErrSchemaInvalid marks a persisted record that no longer matches its shape.
	ErrSchemaInvalid = session.ErrSchemaInvalid
	// ErrIdentityUnresolved is returned when the current user or selected branch is missing.
	ErrIdentityUnresolved = identity.ErrIdentityUnresolved
	// ErrRequestFailed is returned for transport and remote failures.
	ErrRequestFailed = request.ErrRequestFailed
	// ErrInvalidCredentials is returned when the remote rejects a login.
	ErrInvalidCredentials = request.ErrInvalidCredentials
	// ErrPINInvalid is returned for a wrong or malformed PIN.
	ErrPINInvalid = authstate.ErrPINInvalid
	// ErrPINNotSet is returned when unlocking without a stored PIN.
	ErrPINNotSet = authstate.ErrPINNotSet
	// ErrPINAttemptsExhausted is returned by the failed unlock that ends the session.
	ErrPINAttemptsExhausted = authstate.ErrPINAttemptsExhausted
	// ErrNotAuthenticated is returned by PIN operations outside an unlocked session.
	ErrNotAuthenticated = authstate.ErrNotAuthenticated

	// ErrBranchNotAssigned is returned when selecting a branch the user does not belong to.
	ErrBranchNotAssigned = errors.New("branch not assigned to user")
	// ErrEngineNotReady is returned by methods called on a nil or closed Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
