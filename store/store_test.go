package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestInitConcurrentCreatesBackendOnce(t *testing.T) {
	var created atomic.Int32
	release := make(chan struct{})

	s := New(func(context.Context) (Backend, error) {
		created.Add(1)
		<-release
		return NewMemoryBackend(), nil
	})

	const callers = 64
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Init(context.Background())
		}()
	}

	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("init failed: %v", err)
		}
	}
	if got := created.Load(); got != 1 {
		t.Fatalf("expected one backend creation, got %d", got)
	}
	if got := s.Opens(); got != 1 {
		t.Fatalf("expected Opens()=1, got %d", got)
	}

	if err := s.Set(context.Background(), "k", "v"); err != nil {
		t.Fatalf("set after concurrent init: %v", err)
	}
}

func TestOpenerFailureSurfacesOnEveryOperation(t *testing.T) {
	var calls atomic.Int32
	s := New(func(context.Context) (Backend, error) {
		calls.Add(1)
		return nil, errors.New("disk full")
	})
	ctx := context.Background()

	if err := s.Init(ctx); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable from Init, got %v", err)
	}
	if _, _, err := s.Get(ctx, "k"); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable from Get, got %v", err)
	}
	if err := s.Set(ctx, "k", "v"); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable from Set, got %v", err)
	}
	if err := s.Delete(ctx, "k"); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable from Delete, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("failed opener must not be retried, got %d calls", got)
	}
}

func TestNilBackendIsUnavailable(t *testing.T) {
	s := New(func(context.Context) (Backend, error) { return nil, nil })
	if err := s.Init(context.Background()); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	s := NewWithBackend(NewMemoryBackend())
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected absent key, got ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "currentBranch", `{"branch":"7"}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := s.Get(ctx, "currentBranch")
	if err != nil || !ok || v != `{"branch":"7"}` {
		t.Fatalf("unexpected get result %q ok=%v err=%v", v, ok, err)
	}
	if err := s.Delete(ctx, "currentBranch"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "currentBranch"); err != nil {
		t.Fatalf("second delete must succeed: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "currentBranch"); ok {
		t.Fatal("expected key to be gone")
	}
}

type failingBackend struct{ *MemoryBackend }

func (failingBackend) Set(context.Context, string, string) error {
	return errors.New("write refused")
}

func TestBackendErrorsAreWrapped(t *testing.T) {
	s := NewWithBackend(failingBackend{NewMemoryBackend()})
	if err := s.Set(context.Background(), "k", "v"); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected wrapped ErrStorageUnavailable, got %v", err)
	}
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	s := NewWithBackend(NewMemoryBackend())
	ctx := context.Background()
	if err := s.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, _, err := s.Get(ctx, "k"); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable after close, got %v", err)
	}
}

type closeTrackingBackend struct {
	*MemoryBackend
	closed atomic.Bool
}

func (b *closeTrackingBackend) Close() error {
	b.closed.Store(true)
	return nil
}

func TestCloseBeforeFirstUseNeverOpens(t *testing.T) {
	var calls atomic.Int32
	s := New(func(context.Context) (Backend, error) {
		calls.Add(1)
		return NewMemoryBackend(), nil
	})
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Set(context.Background(), "k", "v"); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable after close, got %v", err)
	}
	if calls.Load() != 0 || s.Opens() != 0 {
		t.Fatalf("closed store opened a backend: calls=%d opens=%d", calls.Load(), s.Opens())
	}
}

func TestCloseDuringFirstInitClosesOpenedBackend(t *testing.T) {
	backend := &closeTrackingBackend{MemoryBackend: NewMemoryBackend()}
	entered := make(chan struct{})
	release := make(chan struct{})
	s := New(func(context.Context) (Backend, error) {
		close(entered)
		<-release
		return backend, nil
	})

	initDone := make(chan error, 1)
	go func() { initDone <- s.Init(context.Background()) }()
	<-entered

	closeDone := make(chan error, 1)
	go func() { closeDone <- s.Close() }()

	select {
	case <-closeDone:
		t.Fatal("Close returned before the in-flight open finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	if err := <-closeDone; err != nil {
		t.Fatalf("close: %v", err)
	}
	<-initDone
	if !backend.closed.Load() {
		t.Fatal("backend opened during Close was not closed")
	}
	if _, _, err := s.Get(context.Background(), "k"); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable after close, got %v", err)
	}
}
