package querycache

import (
	"context"

	"github.com/callboard/go-query-cache/internal/syncengine"
)

// FetchFn is the function signature the cache expects when fetching from
// the source of truth. The cache never inspects how the request is built
// or authenticated; it only sees the value or the error.
type FetchFn[T any] func(ctx context.Context) (T, error)

// UnsubscribeFn detaches a listener registered with Subscribe. Calling it
// more than once is safe.
type UnsubscribeFn func()

var (
	// ErrFetcherRequired is returned when a fetch-capable operation is
	// invoked without a fetch function.
	ErrFetcherRequired = syncengine.ErrFetcherRequired

	// ErrUnknownKey is returned by Refetch for keys the cache has never
	// seen, so it holds no fetch function to replay.
	ErrUnknownKey = syncengine.ErrUnknownKey
)

// Cache is a keyed, subscriber-aware read-through cache: fetches are
// deduplicated per key, results are shared across consumers, entries go
// stale on a per-key clock, and invalidation after a write transparently
// refreshes whoever is still listening.
//
// Construct instances with New and pass them down explicitly (or through
// pkg/di); the package deliberately ships no global cache.
type Cache struct {
	engine *syncengine.Engine
}

// New creates a Cache from the given configuration.
func New(cfg Config) (*Cache, error) {
	engine, err := syncengine.New(cfg.toInternal())
	if err != nil {
		return nil, err
	}
	return &Cache{engine: engine}, nil
}

// Resolve returns the value for key, fetching it if the entry is missing
// or stale. Concurrent resolves for one key share a single fetch. Use the
// package-level Resolve for a typed variant.
func (c *Cache) Resolve(ctx context.Context, key string, fetch func(context.Context) (any, error), opts Options) (any, error) {
	return c.engine.Resolve(ctx, key, syncengine.FetchFunc(fetch), opts.toInternal())
}

// Refetch forces a fresh fetch for a known key regardless of freshness,
// superseding any fetch already in flight.
func (c *Cache) Refetch(ctx context.Context, key string) (any, error) {
	return c.engine.Refetch(ctx, key)
}

// Subscribe registers onChange for every update of key and returns the
// matching unsubscribe function. The current entry is delivered
// synchronously on registration.
func (c *Cache) Subscribe(key string, fetch func(context.Context) (any, error), opts Options, onChange func(Entry)) (UnsubscribeFn, error) {
	unsub, err := c.engine.Subscribe(key, syncengine.FetchFunc(fetch), opts.toInternal(), func(s syncengine.Snapshot) {
		onChange(entryFromSnapshot(s))
	})
	if err != nil {
		return nil, err
	}
	return UnsubscribeFn(unsub), nil
}

// Invalidate marks the given keys stale right away. Keys with live
// subscribers refetch in the background; the rest refetch on next access.
// Typically called after a successful mutation.
func (c *Cache) Invalidate(keys ...string) {
	c.engine.Invalidate(keys...)
}

// InvalidateAll resets every entry to idle while keeping subscriber
// registrations alive. Intended for logout and tenant switches where the
// consumers stay mounted.
func (c *Cache) InvalidateAll() {
	c.engine.InvalidateAll()
}

// Clear wipes the cache completely, subscriptions included.
func (c *Cache) Clear() {
	c.engine.Clear()
}

// Snapshot returns the current entry for key, if one exists.
func (c *Cache) Snapshot(key string) (Entry, bool) {
	s, ok := c.engine.Snapshot(key)
	if !ok {
		return Entry{}, false
	}
	return entryFromSnapshot(s), true
}

// Keys lists the keys currently held by the cache.
func (c *Cache) Keys() []string {
	return c.engine.Keys()
}

// Close releases the cache's timers and goroutines. The cache must not be
// used afterwards.
func (c *Cache) Close() {
	c.engine.Close()
}

// Resolve is the type-safe wrapper around Cache.Resolve.
func Resolve[T any](ctx context.Context, c *Cache, key string, fetch FetchFn[T], opts Options) (T, error) {
	res, err := c.Resolve(ctx, key, wrapFetch(fetch), opts)
	var zero T
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	return res.(T), nil
}

// Subscribe is the type-safe wrapper around Cache.Subscribe.
func Subscribe[T any](c *Cache, key string, fetch FetchFn[T], opts Options, onChange func(Entry)) (UnsubscribeFn, error) {
	return c.Subscribe(key, wrapFetch(fetch), opts, onChange)
}

// Data extracts the entry's value as T. The second return is false when
// the entry holds no data or the value is of a different type.
func Data[T any](e Entry) (T, bool) {
	var zero T
	if !e.HasData {
		return zero, false
	}
	v, ok := e.Data.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

func wrapFetch[T any](fetch FetchFn[T]) func(context.Context) (any, error) {
	if fetch == nil {
		return nil
	}
	return func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}
}
