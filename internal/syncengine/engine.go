package syncengine

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrFetcherRequired is returned when an operation that may trigger a
	// network fetch is called without a fetch function.
	ErrFetcherRequired = errors.New("syncengine: fetch function is required")

	// ErrUnknownKey is returned by Refetch for a key that has never been
	// resolved or subscribed to, so no fetch function is on record.
	ErrUnknownKey = errors.New("syncengine: unknown cache key")
)

// FetchFunc loads the value for a key from the source of truth. The engine
// treats it as opaque: it does not know how the request is built or
// authenticated, only whether it returned a value or an error.
type FetchFunc func(ctx context.Context) (any, error)

// ListenerFunc receives a Snapshot every time the entry it is registered
// on changes. Listeners are invoked synchronously with the change, outside
// the engine lock, in no particular order.
type ListenerFunc func(Snapshot)

// call is one in-flight fetch. Every resolver attached to the same call
// waits on done and reads the shared outcome, which is what makes N
// concurrent resolves for one key cost a single fetch.
type call struct {
	done chan struct{}
	data any
	err  error
}

// entry is the per-key record: last known value, error slot, freshness
// stamps, the in-flight call, registered listeners and timers. All fields
// are guarded by the engine mutex.
type entry struct {
	key       string
	data      any
	hasData   bool
	err       error
	fetchedAt time.Time
	staleAt   time.Time

	inFlight *call
	fetch    FetchFunc
	opts     Options

	listeners map[uint64]ListenerFunc
	stopTick  chan struct{}
	evict     *time.Timer
}

// Engine is the process-wide cache store plus the coordination logic on
// top of it: fetch deduplication, subscriber notification, scheduled
// refetching, invalidation and eviction. Construct instances explicitly
// with New; there is no package-level singleton.
type Engine struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*entry
	nextSub uint64

	// now is swapped in tests to steer freshness decisions.
	now func() time.Time
}

// New creates an Engine from the given configuration.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:     cfg,
		entries: make(map[string]*entry),
		now:     time.Now,
	}, nil
}

// Resolve is the read-through entry point. Fresh data is returned without
// touching the fetcher; a missing or stale entry triggers exactly one
// fetch, and callers arriving while that fetch runs attach to it. With
// Options.Disabled set, Resolve returns the current state and issues
// nothing.
func (g *Engine) Resolve(ctx context.Context, key string, fetch FetchFunc, opts Options) (any, error) {
	g.mu.Lock()
	ent := g.ensureLocked(key)
	if fetch != nil {
		ent.fetch = fetch
	}
	// Zero-value options inherit whatever the entry already carries, so a
	// plain resolve does not strip the interval a subscriber configured.
	if opts != (Options{}) {
		ent.opts = opts
	}

	if opts.Disabled {
		data, err := ent.data, ent.err
		g.mu.Unlock()
		return data, err
	}
	if ent.fetch == nil {
		g.mu.Unlock()
		return nil, ErrFetcherRequired
	}
	if g.freshLocked(ent) {
		data := ent.data
		g.mu.Unlock()
		return data, nil
	}
	if c := ent.inFlight; c != nil {
		g.mu.Unlock()
		return wait(ctx, c)
	}

	c, notify := g.startFetchLocked(ctx, ent)
	g.mu.Unlock()
	notify()
	return wait(ctx, c)
}

// Refetch bypasses the freshness check and forces a new fetch for a key
// the engine already knows. A fetch that is still running is superseded:
// its eventual result is discarded in favour of the forced one.
func (g *Engine) Refetch(ctx context.Context, key string) (any, error) {
	g.mu.Lock()
	ent, ok := g.entries[key]
	if !ok || ent.fetch == nil {
		g.mu.Unlock()
		return nil, ErrUnknownKey
	}
	if ent.opts.Disabled {
		data, err := ent.data, ent.err
		g.mu.Unlock()
		return data, err
	}

	c, notify := g.startFetchLocked(ctx, ent)
	g.mu.Unlock()
	notify()
	return wait(ctx, c)
}

// Subscribe registers a listener for a key and returns its unsubscribe
// function. The listener is handed the current snapshot synchronously; if
// the entry is missing or stale a fetch is kicked off first so the
// snapshot already reports it. The refetch ticker is armed on the 0→1
// subscriber transition and the pending eviction, if any, is cancelled.
func (g *Engine) Subscribe(key string, fetch FetchFunc, opts Options, fn ListenerFunc) (func(), error) {
	if fn == nil {
		return nil, errors.New("syncengine: listener is required")
	}
	if fetch == nil {
		return nil, ErrFetcherRequired
	}

	g.mu.Lock()
	ent := g.ensureLocked(key)
	ent.fetch = fetch
	if opts != (Options{}) {
		ent.opts = opts
	}

	id := g.nextSub
	g.nextSub++
	ent.listeners[id] = fn

	if len(ent.listeners) == 1 {
		g.cancelEvictionLocked(ent)
		g.startSchedulerLocked(ent)
	}

	started := false
	var notify func()
	if !opts.Disabled && !g.freshLocked(ent) && ent.inFlight == nil {
		_, notify = g.startFetchLocked(context.Background(), ent)
		started = true
	}
	snap := ent.snapshotLocked()
	g.mu.Unlock()

	// When a fetch was started every listener learns about the loading
	// transition, the new one included. Otherwise only the new listener
	// needs its first-paint snapshot.
	if started {
		notify()
	} else {
		fn(snap)
	}

	return func() { g.unsubscribe(key, id) }, nil
}

func (g *Engine) unsubscribe(key string, id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ent, ok := g.entries[key]
	if !ok {
		return
	}
	if _, ok := ent.listeners[id]; !ok {
		return
	}
	delete(ent.listeners, id)
	if len(ent.listeners) == 0 {
		g.stopSchedulerLocked(ent)
		g.armEvictionLocked(ent)
	}
}

// Invalidate marks each key stale immediately. Keys with live subscribers
// are refetched in the background right away; for the rest the refetch is
// deferred until the next resolve or subscribe sees the stale stamp.
// Unknown keys are ignored.
func (g *Engine) Invalidate(keys ...string) {
	var notifies []func()

	g.mu.Lock()
	for _, key := range keys {
		ent, ok := g.entries[key]
		if !ok {
			continue
		}
		ent.staleAt = g.now()
		g.cfg.Logger.Debug().Str("key", key).Msg("cache entry invalidated")

		if len(ent.listeners) > 0 && ent.inFlight == nil && ent.fetch != nil && !ent.opts.Disabled {
			_, notify := g.startFetchLocked(context.Background(), ent)
			notifies = append(notifies, notify)
		}
	}
	g.mu.Unlock()

	for _, notify := range notifies {
		notify()
	}
}

// InvalidateAll resets every entry back to idle: data and error slots are
// dropped, tickers stop, and in-flight results are discarded on arrival.
// Listener registrations survive so long-lived bindings keep working after
// a logout or tenant switch; each one is notified with the reset state.
func (g *Engine) InvalidateAll() {
	var notifies []func()

	g.mu.Lock()
	for _, ent := range g.entries {
		ent.data = nil
		ent.hasData = false
		ent.err = nil
		ent.fetchedAt = time.Time{}
		ent.staleAt = time.Time{}
		ent.inFlight = nil
		g.stopSchedulerLocked(ent)
		if len(ent.listeners) > 0 {
			notifies = append(notifies, g.notificationLocked(ent))
		}
	}
	g.mu.Unlock()

	for _, notify := range notifies {
		notify()
	}
}

// Clear wipes the store completely, timers, listener registrations and
// all. Outstanding unsubscribe functions become no-ops.
func (g *Engine) Clear() {
	g.mu.Lock()
	for _, ent := range g.entries {
		ent.inFlight = nil
		g.stopSchedulerLocked(ent)
		g.cancelEvictionLocked(ent)
	}
	g.entries = make(map[string]*entry)
	g.mu.Unlock()
}

// Close releases every timer and goroutine held by the engine. The engine
// must not be used afterwards.
func (g *Engine) Close() {
	g.Clear()
}

// Snapshot returns the current view of a key, if the engine holds one.
func (g *Engine) Snapshot(key string) (Snapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ent, ok := g.entries[key]
	if !ok {
		return Snapshot{}, false
	}
	return ent.snapshotLocked(), true
}

// Keys returns the keys currently held in the store.
func (g *Engine) Keys() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	keys := make([]string, 0, len(g.entries))
	for key := range g.entries {
		keys = append(keys, key)
	}
	return keys
}

func (g *Engine) ensureLocked(key string) *entry {
	ent, ok := g.entries[key]
	if !ok {
		ent = &entry{
			key:       key,
			listeners: make(map[uint64]ListenerFunc),
		}
		g.entries[key] = ent
	}
	return ent
}

func (g *Engine) freshLocked(ent *entry) bool {
	return ent.hasData && g.now().Before(ent.staleAt)
}

func (g *Engine) cacheTime(opts Options) time.Duration {
	if opts.CacheTime > 0 {
		return opts.CacheTime
	}
	return g.cfg.DefaultCacheTime
}

// startFetchLocked installs a new in-flight call on the entry, replacing
// any previous one, and launches the fetch goroutine. The previous call,
// if it was still running, is thereby superseded: when it completes, its
// call pointer no longer matches the entry and its result is dropped.
// The returned notify func must be invoked after releasing the lock.
func (g *Engine) startFetchLocked(ctx context.Context, ent *entry) (*call, func()) {
	c := &call{done: make(chan struct{})}
	ent.inFlight = c
	fetch := ent.fetch

	g.cfg.Logger.Debug().Str("key", ent.key).Msg("fetch started")
	go g.runFetch(ctx, ent.key, c, fetch)

	return c, g.notificationLocked(ent)
}

func (g *Engine) runFetch(ctx context.Context, key string, c *call, fetch FetchFunc) {
	data, err := fetch(ctx)
	c.data, c.err = data, err

	var notify func()

	g.mu.Lock()
	ent, ok := g.entries[key]
	switch {
	case !ok || ent.inFlight != c:
		// Superseded by a forced refetch, or the store was cleared while
		// the request ran. Applying the result would let slow responses
		// overwrite newer data, so it is dropped.
		g.cfg.Logger.Debug().Str("key", key).Msg("discarding superseded fetch result")
	case err != nil:
		ent.inFlight = nil
		ent.err = err
		g.cfg.Logger.Error().Err(err).Str("key", key).Msg("fetch failed")
		notify = g.notificationLocked(ent)
	default:
		ent.inFlight = nil
		ent.data = data
		ent.hasData = true
		ent.err = nil
		ent.fetchedAt = g.now()
		ent.staleAt = ent.fetchedAt.Add(g.cacheTime(ent.opts))
		g.cfg.Logger.Debug().Str("key", key).Time("stale_at", ent.staleAt).Msg("fetch succeeded")
		notify = g.notificationLocked(ent)
	}
	g.mu.Unlock()

	close(c.done)
	if notify != nil {
		notify()
	}
}

// notificationLocked captures the entry's listeners and current snapshot
// and returns a func that delivers them. Listeners always run outside the
// engine lock so they are free to call back into the engine.
func (g *Engine) notificationLocked(ent *entry) func() {
	if len(ent.listeners) == 0 {
		return func() {}
	}
	snap := ent.snapshotLocked()
	fns := make([]ListenerFunc, 0, len(ent.listeners))
	for _, fn := range ent.listeners {
		fns = append(fns, fn)
	}
	return func() {
		for _, fn := range fns {
			fn(snap)
		}
	}
}

func (g *Engine) armEvictionLocked(ent *entry) {
	g.cancelEvictionLocked(ent)
	key := ent.key
	ent.evict = time.AfterFunc(g.cfg.GracePeriod, func() {
		g.mu.Lock()
		defer g.mu.Unlock()

		current, ok := g.entries[key]
		if !ok || current != ent || len(current.listeners) > 0 {
			return
		}
		g.stopSchedulerLocked(current)
		delete(g.entries, key)
		g.cfg.Logger.Debug().Str("key", key).Msg("cache entry evicted")
	})
}

func (g *Engine) cancelEvictionLocked(ent *entry) {
	if ent.evict != nil {
		ent.evict.Stop()
		ent.evict = nil
	}
}

func wait(ctx context.Context, c *call) (any, error) {
	select {
	case <-c.done:
		return c.data, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
