// Package identity derives the identity triple (user id, token, selected branch) that every
// business request must carry.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/branchauth/session"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrIdentityUnresolved is returned when the current user or the selected branch is missing,
// corrupt, or unreadable. No authenticated request may be sent in that case.
var ErrIdentityUnresolved = errors.New("identity unresolved")

// Identity is the triple attached to every business request.
type Identity struct {
	UserID string
	Token  string
	Branch string
}

// Source is the part of the session manager the resolver reads from.
type Source interface {
	GetCurrentUser(ctx context.Context) (*session.CurrentUser, error)
	GetUserSelectedBranch(ctx context.Context) (string, bool, error)
}

// Resolver combines the current user with the separately stored selected branch.
type Resolver struct {
	source Source
	log    *zap.Logger
}

// NewResolver returns a Resolver reading from source.
func NewResolver(source Source, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{source: source, log: log.Named("identity")}
}

// GetUserSession resolves the current user and the selected branch concurrently and waits
// for both. It fails with an error matching ErrIdentityUnresolved if either is absent; storage
// failures additionally keep their own error in the chain.
func (r *Resolver) GetUserSession(ctx context.Context) (Identity, error) {
	var (
		user      *session.CurrentUser
		userErr   error
		branch    string
		hasBranch bool
		branchErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		user, userErr = r.source.GetCurrentUser(ctx)
		return nil
	})
	g.Go(func() error {
		branch, hasBranch, branchErr = r.source.GetUserSelectedBranch(ctx)
		return nil
	})
	_ = g.Wait()

	if err := errors.Join(userErr, branchErr); err != nil {
		r.log.Warn("identity resolution failed", zap.Error(err))
		return Identity{}, fmt.Errorf("%w: %w", ErrIdentityUnresolved, err)
	}
	if user == nil {
		return Identity{}, fmt.Errorf("%w: no current user", ErrIdentityUnresolved)
	}
	if !hasBranch {
		return Identity{}, fmt.Errorf("%w: no branch selected", ErrIdentityUnresolved)
	}

	return Identity{
		UserID: string(user.User.ID),
		Token:  user.Token,
		Branch: branch,
	}, nil
}
