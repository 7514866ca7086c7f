package pin

import (
	"context"
	"errors"
	"fmt"
)

// KeyPINHash is the store key holding the PHC-encoded PIN.
const KeyPINHash = "pinHash"

// ErrNotSet is returned when unlocking without a stored PIN.
var ErrNotSet = errors.New("pin not set")

// KV is the subset of store.Store used for the PIN hash.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Store keeps the PIN hash in a KV.
type Store struct {
	kv     KV
	hasher *Hasher
}

// NewStore returns a Store hashing with hasher.
func NewStore(kv KV, hasher *Hasher) *Store {
	return &Store{kv: kv, hasher: hasher}
}

// Set hashes p and stores it, replacing any previous PIN.
func (s *Store) Set(ctx context.Context, p string) error {
	encoded, err := s.hasher.Hash(p)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, KeyPINHash, encoded)
}

// Verify reports whether p matches the stored PIN. It returns ErrNotSet when no PIN is stored.
// A stored value that cannot be parsed is treated as no PIN.
func (s *Store) Verify(ctx context.Context, p string) (bool, error) {
	encoded, ok, err := s.kv.Get(ctx, KeyPINHash)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrNotSet
	}
	match, err := s.hasher.Verify(p, encoded)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrNotSet, err)
	}
	return match, nil
}

// IsSet reports whether a PIN hash is stored.
func (s *Store) IsSet(ctx context.Context) (bool, error) {
	encoded, ok, err := s.kv.Get(ctx, KeyPINHash)
	if err != nil || !ok {
		return false, err
	}
	_, err = parsePHC(encoded)
	return err == nil, nil
}

// Clear removes the stored PIN.
func (s *Store) Clear(ctx context.Context) error {
	return s.kv.Delete(ctx, KeyPINHash)
}
