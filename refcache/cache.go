// Package refcache caches the reference lists (suppliers, categories, branches) that business
// screens fetch through the authenticated request pipeline.
//
// Each kind is stored under "ref:<kind>" together with the time it was fetched. Load serves a
// fresh entry directly, refetches a stale one, and falls back to the stale copy when the refetch
// fails.
package refcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"
)

// KeyPrefix prefixes every cache key.
const KeyPrefix = "ref:"

// DefaultTTL is used when Options.TTL is zero.
const DefaultTTL = 15 * time.Minute

var kindPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// ErrInvalidKind is returned for kinds that are not lower_snake_case identifiers.
var ErrInvalidKind = errors.New("invalid reference kind")

// KV is the subset of store.Store the cache uses.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Fetcher performs an authenticated request. request.Composer satisfies it.
type Fetcher interface {
	Request(ctx context.Context, endpoint, action string, extra map[string]any) (json.RawMessage, error)
}

// Options configures a Cache.
type Options struct {
	Store    KV
	Fetcher  Fetcher
	Endpoint string
	// Kinds lists the kinds refreshed together. Each must be a valid kind.
	Kinds  []string
	TTL    time.Duration
	Logger *zap.Logger
	Now    func() time.Time
}

// Cache is a TTL cache of reference lists.
type Cache struct {
	kv       KV
	fetcher  Fetcher
	endpoint string
	kinds    []string
	ttl      time.Duration
	log      *zap.Logger
	now      func() time.Time
}

type entry struct {
	FetchedAt time.Time         `json:"fetched_at"`
	Items     []json.RawMessage `json:"items"`
}

// New validates opts and returns a Cache.
func New(opts Options) (*Cache, error) {
	if opts.Store == nil {
		return nil, errors.New("refcache: store is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("refcache: fetcher is required")
	}
	if opts.Endpoint == "" {
		return nil, errors.New("refcache: endpoint is required")
	}
	if opts.TTL < 0 {
		return nil, errors.New("refcache: ttl must be >= 0")
	}
	for _, kind := range opts.Kinds {
		if !kindPattern.MatchString(kind) {
			return nil, fmt.Errorf("refcache: %w: %q", ErrInvalidKind, kind)
		}
	}
	c := &Cache{
		kv:       opts.Store,
		fetcher:  opts.Fetcher,
		endpoint: opts.Endpoint,
		kinds:    append([]string(nil), opts.Kinds...),
		ttl:      opts.TTL,
		log:      opts.Logger,
		now:      opts.Now,
	}
	if c.ttl == 0 {
		c.ttl = DefaultTTL
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	c.log = c.log.Named("refcache")
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Kinds returns the kinds refreshed together.
func (c *Cache) Kinds() []string {
	return append([]string(nil), c.kinds...)
}

// Action returns the request action used to fetch kind.
func Action(kind string) string {
	return "get_" + kind
}

// Get returns the cached list for kind regardless of age. fresh reports whether it is younger
// than the TTL. A missing or unreadable entry yields (nil, false, nil).
func (c *Cache) Get(ctx context.Context, kind string) (items []json.RawMessage, fresh bool, err error) {
	e, ok, err := c.read(ctx, kind)
	if err != nil || !ok {
		return nil, false, err
	}
	return e.Items, c.now().Sub(e.FetchedAt) < c.ttl, nil
}

// Put stores items for kind with the current time.
func (c *Cache) Put(ctx context.Context, kind string, items []json.RawMessage) error {
	if !kindPattern.MatchString(kind) {
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	raw, err := json.Marshal(entry{FetchedAt: c.now().UTC(), Items: items})
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, KeyPrefix+kind, string(raw))
}

// Invalidate drops the cached list for kind.
func (c *Cache) Invalidate(ctx context.Context, kind string) error {
	if !kindPattern.MatchString(kind) {
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	return c.kv.Delete(ctx, KeyPrefix+kind)
}

// Load returns a fresh list for kind, fetching it when the cached one is missing or stale.
// If the fetch fails and a stale copy exists, the stale copy is returned with a nil error.
func (c *Cache) Load(ctx context.Context, kind string) ([]json.RawMessage, error) {
	cached, ok, err := c.read(ctx, kind)
	if err != nil {
		return nil, err
	}
	if ok && c.now().Sub(cached.FetchedAt) < c.ttl {
		return cached.Items, nil
	}
	return c.refresh(ctx, kind, cached, ok)
}

// Refresh fetches kind unconditionally and stores it. On fetch failure a cached copy, if any,
// is returned.
func (c *Cache) Refresh(ctx context.Context, kind string) ([]json.RawMessage, error) {
	cached, ok, err := c.read(ctx, kind)
	if err != nil {
		return nil, err
	}
	return c.refresh(ctx, kind, cached, ok)
}

func (c *Cache) refresh(ctx context.Context, kind string, cached entry, haveCached bool) ([]json.RawMessage, error) {
	items, err := c.fetch(ctx, kind)
	if err != nil {
		if haveCached {
			c.log.Warn("serving stale reference data", zap.String("kind", kind), zap.Error(err))
			return cached.Items, nil
		}
		return nil, err
	}
	if err := c.Put(ctx, kind, items); err != nil {
		c.log.Warn("reference data not cached", zap.String("kind", kind), zap.Error(err))
	}
	return items, nil
}

func (c *Cache) fetch(ctx context.Context, kind string) ([]json.RawMessage, error) {
	data, err := c.fetcher.Request(ctx, c.endpoint, Action(kind), nil)
	if err != nil {
		return nil, err
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode %s list: %w", kind, err)
	}
	return items, nil
}

func (c *Cache) read(ctx context.Context, kind string) (entry, bool, error) {
	if !kindPattern.MatchString(kind) {
		return entry{}, false, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	raw, ok, err := c.kv.Get(ctx, KeyPrefix+kind)
	if err != nil || !ok {
		return entry{}, false, err
	}
	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil || e.Items == nil {
		c.log.Info("dropping unreadable cache entry", zap.String("kind", kind))
		return entry{}, false, nil
	}
	return e, true, nil
}
