// Package authstate holds the process-wide authentication state and its transitions.
//
// States are Unauthenticated, Checking and Authenticated. Whether a PIN is set is an orthogonal
// flag, not a state. The machine fails closed: any doubt during CheckToken lands in
// Unauthenticated.
package authstate

import "github.com/MrEthical07/branchauth/session"

// Status is the machine's position.
type Status uint8

const (
	Unauthenticated Status = iota
	Checking
	Authenticated
)

func (s Status) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Checking:
		return "checking"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State is a snapshot of the auth state. It is never persisted.
type State struct {
	Status   Status               `json:"status"`
	IsPinSet bool                 `json:"isPinSet"`
	Locked   bool                 `json:"locked"`
	User     *session.CurrentUser `json:"user,omitempty"`
}

// IsAuthenticated reports whether the snapshot is Authenticated.
func (s State) IsAuthenticated() bool {
	return s.Status == Authenticated
}
