package testsupport

import (
	"context"
	"sync"
)

// FetchResult is one scripted outcome for a ScriptedFetcher.
type FetchResult struct {
	Value any
	Err   error
}

// ScriptedFetcher hands out queued results in order, repeating the last
// one once the script runs out. It counts invocations so tests can assert
// deduplication and freshness behaviour.
type ScriptedFetcher struct {
	mu      sync.Mutex
	results []FetchResult
	calls   int
}

// NewScriptedFetcher creates a fetcher that plays back the given results.
// At least one result must be provided.
func NewScriptedFetcher(results ...FetchResult) *ScriptedFetcher {
	if len(results) == 0 {
		panic("testsupport: scripted fetcher needs at least one result")
	}
	return &ScriptedFetcher{results: results}
}

// Fetch returns the next scripted result.
func (f *ScriptedFetcher) Fetch(ctx context.Context) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.calls
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	f.calls++
	res := f.results[idx]
	return res.Value, res.Err
}

// Calls reports how many times Fetch has been invoked.
func (f *ScriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// GateFetcher blocks every Fetch call until Release is invoked, which lets
// tests pile up concurrent callers before any result is produced.
type GateFetcher struct {
	mu      sync.Mutex
	value   any
	err     error
	calls   int
	release chan struct{}
	once    sync.Once
}

// NewGateFetcher creates a blocked fetcher that will eventually return the
// given value and error.
func NewGateFetcher(value any, err error) *GateFetcher {
	return &GateFetcher{value: value, err: err, release: make(chan struct{})}
}

// Fetch blocks until Release, then returns the configured outcome. The
// context cancelling unblocks the call with the context's error.
func (f *GateFetcher) Fetch(ctx context.Context) (any, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}

// Release unblocks all current and future Fetch calls. Safe to call more
// than once.
func (f *GateFetcher) Release() {
	f.once.Do(func() { close(f.release) })
}

// Calls reports how many times Fetch has been invoked.
func (f *GateFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Recorder is a concurrency-safe collector for values pushed at it from
// listener callbacks.
type Recorder[T any] struct {
	mu    sync.Mutex
	items []T
}

// NewRecorder creates an empty Recorder.
func NewRecorder[T any]() *Recorder[T] {
	return &Recorder[T]{}
}

// Append stores one value.
func (r *Recorder[T]) Append(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, v)
}

// Items returns a copy of everything recorded so far.
func (r *Recorder[T]) Items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

// Len reports how many values have been recorded.
func (r *Recorder[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Last returns the most recent value, if any.
func (r *Recorder[T]) Last() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if len(r.items) == 0 {
		return zero, false
	}
	return r.items[len(r.items)-1], true
}
