package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/branchauth/jwt"
	"go.uber.org/zap"
)

// Fixed storage keys.
const (
	KeySession       = "session"
	KeyCurrentUser   = "currentUser"
	KeyCurrentBranch = "currentBranch"
)

// DefaultTTL is the fixed session validity window.
const DefaultTTL = time.Hour

// ErrSchemaInvalid is returned alongside a nil value when a persisted record no longer matches
// its expected shape. Callers treat it exactly like absence.
var ErrSchemaInvalid = errors.New("persisted record does not match schema")

// ErrInvalidSession is the error form of an invalid or missing token, for callers that need an
// error rather than a [Verification].
var ErrInvalidSession = errors.New("invalid session")

// KV is the subset of the store used by the Manager.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// TokenCodec signs and verifies session tokens.
type TokenCodec interface {
	Encrypt(p jwt.Payload) (string, error)
	Decrypt(token string) jwt.Result
}

// Options configures a Manager.
type Options struct {
	Store  KV
	Codec  TokenCodec
	TTL    time.Duration
	Logger *zap.Logger
	Now    func() time.Time
}

// Verification is the outcome of [Manager.VerifySession]. Callers branch on Valid only.
type Verification struct {
	UserID    string
	UserRole  string
	ExpiresAt time.Time
	Valid     bool
	Reason    jwt.Reason
}

// Manager owns the session token, the current user record, and the selected branch.
type Manager struct {
	store KV
	codec TokenCodec
	ttl   time.Duration
	log   *zap.Logger
	now   func() time.Time
}

// NewManager validates opts and returns a Manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("session manager requires a store")
	}
	if opts.Codec == nil {
		return nil, errors.New("session manager requires a codec")
	}
	if opts.TTL < 0 {
		return nil, errors.New("session ttl must not be negative")
	}
	if opts.TTL == 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Manager{
		store: opts.Store,
		codec: opts.Codec,
		ttl:   opts.TTL,
		log:   opts.Logger.Named("session"),
		now:   opts.Now,
	}, nil
}

// CreateSession issues a token for userID valid for the manager's fixed TTL and stores it,
// overwriting any previous session unconditionally. It returns the token.
func (m *Manager) CreateSession(ctx context.Context, userID, userRole string) (string, error) {
	expiresAt := m.now().Add(m.ttl)

	token, err := m.codec.Encrypt(jwt.Payload{
		UserID:    userID,
		UserRole:  userRole,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return "", fmt.Errorf("encrypt session: %w", err)
	}

	raw, err := json.Marshal(tokenRecord{
		Value:   token,
		Path:    "/",
		Expires: expiresAt.UTC().Truncate(time.Second),
	})
	if err != nil {
		return "", fmt.Errorf("encode session record: %w", err)
	}
	if err := m.store.Set(ctx, KeySession, string(raw)); err != nil {
		return "", err
	}

	m.log.Debug("session created", zap.String("user_id", userID), zap.Time("expires_at", expiresAt))
	return token, nil
}

// VerifySession reads and verifies the stored token. A missing, unreadable, expired, or forged
// token yields Valid=false and a nil error; an invalid token is also removed from the store.
// Only storage failures return an error.
func (m *Manager) VerifySession(ctx context.Context) (Verification, error) {
	raw, ok, err := m.store.Get(ctx, KeySession)
	if err != nil {
		return Verification{}, err
	}
	if !ok {
		return Verification{Reason: jwt.ReasonMissing}, nil
	}

	var rec tokenRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		m.log.Warn("session record unreadable", zap.Error(err))
		return m.reject(ctx, jwt.ReasonMalformed), nil
	}
	if !rec.Expires.IsZero() && !m.now().Before(rec.Expires) {
		return m.reject(ctx, jwt.ReasonExpired), nil
	}

	res := m.codec.Decrypt(rec.Value)
	payload, valid := res.Payload()
	if !valid {
		m.log.Info("session token rejected", zap.String("reason", string(res.Reason())), zap.NamedError("cause", res.Cause()))
		return m.reject(ctx, res.Reason()), nil
	}

	return Verification{
		UserID:    payload.UserID,
		UserRole:  payload.UserRole,
		ExpiresAt: payload.ExpiresAt,
		Valid:     true,
	}, nil
}

func (m *Manager) reject(ctx context.Context, reason jwt.Reason) Verification {
	if err := m.store.Delete(ctx, KeySession); err != nil {
		m.log.Warn("invalid session could not be removed", zap.Error(err))
	}
	return Verification{Reason: reason}
}

// DeleteSession removes the stored token. It leaves the current user record and the selected
// branch untouched: logout only guarantees that the token is gone.
func (m *Manager) DeleteSession(ctx context.Context) error {
	return m.store.Delete(ctx, KeySession)
}

// GetCurrentUser returns the cached user record. It returns (nil, nil) when no record is
// stored and (nil, ErrSchemaInvalid) when the stored record cannot be decoded or fails
// validation.
func (m *Manager) GetCurrentUser(ctx context.Context) (*CurrentUser, error) {
	raw, ok, err := m.store.Get(ctx, KeyCurrentUser)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var resp AuthResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		m.log.Warn("current user record unreadable", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}
	if err := resp.Validate(); err != nil {
		m.log.Warn("current user record failed validation", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}

	return resp.Data, nil
}

// SaveCurrentUser validates resp and persists it under KeyCurrentUser.
func (m *Manager) SaveCurrentUser(ctx context.Context, resp AuthResponse) error {
	if err := resp.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode current user: %w", err)
	}
	return m.store.Set(ctx, KeyCurrentUser, string(raw))
}

// ClearCurrentUser removes the cached user record.
func (m *Manager) ClearCurrentUser(ctx context.Context) error {
	return m.store.Delete(ctx, KeyCurrentUser)
}

// GetUserSelectedBranch returns the stored branch id. ok is false when no branch is selected
// or the record is corrupt; a corrupt record also returns ErrSchemaInvalid.
func (m *Manager) GetUserSelectedBranch(ctx context.Context) (string, bool, error) {
	raw, ok, err := m.store.Get(ctx, KeyCurrentBranch)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}

	var rec struct {
		Branch ID `json:"branch"`
	}
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		m.log.Warn("selected branch record unreadable", zap.Error(err))
		return "", false, fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}
	branch := strings.TrimSpace(string(rec.Branch))
	if branch == "" {
		return "", false, fmt.Errorf("%w: empty branch", ErrSchemaInvalid)
	}
	return branch, true, nil
}

// SetUserSelectedBranch stores branchID as the selected branch.
func (m *Manager) SetUserSelectedBranch(ctx context.Context, branchID string) error {
	branchID = strings.TrimSpace(branchID)
	if branchID == "" {
		return errors.New("branch id is empty")
	}
	raw, err := json.Marshal(selectedBranch{Branch: branchID})
	if err != nil {
		return fmt.Errorf("encode selected branch: %w", err)
	}
	return m.store.Set(ctx, KeyCurrentBranch, string(raw))
}

// ClearUserSelectedBranch removes the selected branch.
func (m *Manager) ClearUserSelectedBranch(ctx context.Context) error {
	return m.store.Delete(ctx, KeyCurrentBranch)
}
