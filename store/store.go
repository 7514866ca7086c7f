package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrStorageUnavailable is returned when the backing store could not be created or a backend
// operation failed.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Backend is the raw key/value storage a [Store] delegates to.
//
// Get reports ok=false for a missing key. Delete of a missing key is not an error.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Opener creates a Backend. It is invoked at most once per [Store].
type Opener func(ctx context.Context) (Backend, error)

// Store is a lazily-initialized key/value store. The zero value is not usable; construct with
// [New].
//
// Store is safe for concurrent use.
type Store struct {
	open Opener

	once    sync.Once
	backend Backend
	initErr error
	opens   atomic.Int64
	closed  atomic.Bool
}

// New returns a Store that will create its backend with open on first use.
func New(open Opener) *Store {
	return &Store{open: open}
}

// NewWithBackend returns a Store around an already-open backend.
func NewWithBackend(b Backend) *Store {
	return New(func(context.Context) (Backend, error) { return b, nil })
}

// Init creates the backend if it has not been created yet. It is idempotent; every caller,
// concurrent or not, observes the result of the single creation attempt.
func (s *Store) Init(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("%w: nil store", ErrStorageUnavailable)
	}
	s.once.Do(func() {
		s.opens.Add(1)
		if s.open == nil {
			s.initErr = fmt.Errorf("%w: no opener configured", ErrStorageUnavailable)
			return
		}
		b, err := s.open(ctx)
		if err != nil {
			s.initErr = fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
			return
		}
		if b == nil {
			s.initErr = fmt.Errorf("%w: opener returned nil backend", ErrStorageUnavailable)
			return
		}
		s.backend = b
	})
	if s.initErr != nil {
		return s.initErr
	}
	if s.closed.Load() {
		return fmt.Errorf("%w: store closed", ErrStorageUnavailable)
	}
	return nil
}

// Opens reports how many times the opener was invoked. It is 0 before first use and 1 after.
func (s *Store) Opens() int64 {
	return s.opens.Load()
}

// Get returns the value stored under key. ok is false when the key is absent.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := s.Init(ctx); err != nil {
		return "", false, err
	}
	v, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return "", false, wrapBackendErr(err)
	}
	return v, ok, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.Init(ctx); err != nil {
		return err
	}
	if err := s.backend.Set(ctx, key, value); err != nil {
		return wrapBackendErr(err)
	}
	return nil
}

// Delete removes key. Deleting a missing key succeeds.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.Init(ctx); err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, key); err != nil {
		return wrapBackendErr(err)
	}
	return nil
}

// Close releases the backend if it was created. Later operations fail with
// ErrStorageUnavailable. A Store closed before first use never opens a backend; a Close racing
// the first Init waits for it and closes what it opened.
func (s *Store) Close() error {
	if s == nil || !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.once.Do(func() {
		s.initErr = fmt.Errorf("%w: store closed", ErrStorageUnavailable)
	})
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

func wrapBackendErr(err error) error {
	if errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
