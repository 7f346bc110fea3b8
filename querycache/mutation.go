package querycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Invalidator is the slice of the cache API a mutation needs after a
// successful write. *Cache satisfies it.
type Invalidator interface {
	Invalidate(keys ...string)
}

// MutationFn performs the write against the remote API.
type MutationFn[I, R any] func(ctx context.Context, input I) (R, error)

// MutationConfig wires a write operation to the cache entries it makes
// stale.
type MutationConfig[I, R any] struct {
	// Run performs the write. Required.
	Run MutationFn[I, R]

	// OnSuccess is invoked with the mutation result after a successful
	// write, before the dependent keys are invalidated.
	OnSuccess func(ctx context.Context, result R)

	// OnError is invoked when the write fails. The cache is left
	// untouched on failure.
	OnError func(ctx context.Context, err error)

	// InvalidateKeys lists the cache keys made stale by a successful
	// write.
	InvalidateKeys []string

	// Invalidator receives the invalidation. Required when
	// InvalidateKeys is non-empty.
	Invalidator Invalidator

	// Logger defaults to a no-op logger.
	Logger zerolog.Logger
}

// Mutation wraps a write operation with loading/error bookkeeping and
// cache invalidation. Concurrent Mutate calls are deliberately not
// deduplicated: a duplicate write is a caller bug, not something to paper
// over silently the way duplicate reads are.
type Mutation[I, R any] struct {
	cfg      MutationConfig[I, R]
	inFlight atomic.Int64

	mu       sync.Mutex
	lastErr  error
	lastData R
	settled  bool
}

// MutationState is a point-in-time view of a mutation for UI bindings:
// whether any call is running, and the outcome of the most recently
// settled one.
type MutationState[R any] struct {
	Loading bool
	Err     error
	Data    R
	Settled bool
}

// NewMutation validates the configuration and builds a Mutation.
func NewMutation[I, R any](cfg MutationConfig[I, R]) (*Mutation[I, R], error) {
	if cfg.Run == nil {
		return nil, errors.New("querycache: mutation Run function is required")
	}
	if len(cfg.InvalidateKeys) > 0 && cfg.Invalidator == nil {
		return nil, errors.New("querycache: mutation with InvalidateKeys needs an Invalidator")
	}
	return &Mutation[I, R]{cfg: cfg}, nil
}

// Mutate executes the write. On success it runs OnSuccess and invalidates
// the configured keys; on failure it surfaces the error and leaves the
// cache alone. Each call carries its own result and error, independent of
// concurrent calls.
func (m *Mutation[I, R]) Mutate(ctx context.Context, input I) (R, error) {
	m.inFlight.Add(1)
	defer m.inFlight.Add(-1)

	result, err := m.cfg.Run(ctx, input)

	m.mu.Lock()
	m.settled = true
	m.lastErr = err
	if err == nil {
		m.lastData = result
	}
	m.mu.Unlock()

	if err != nil {
		m.cfg.Logger.Error().Err(err).Msg("mutation failed")
		if m.cfg.OnError != nil {
			m.cfg.OnError(ctx, err)
		}
		return result, err
	}

	if m.cfg.OnSuccess != nil {
		m.cfg.OnSuccess(ctx, result)
	}
	if len(m.cfg.InvalidateKeys) > 0 {
		m.cfg.Logger.Debug().Strs("keys", m.cfg.InvalidateKeys).Msg("invalidating after mutation")
		m.cfg.Invalidator.Invalidate(m.cfg.InvalidateKeys...)
	}
	return result, nil
}

// InFlight reports how many Mutate calls are currently running.
func (m *Mutation[I, R]) InFlight() int {
	return int(m.inFlight.Load())
}

// State returns the mutation's current loading flag and last settled
// outcome.
func (m *Mutation[I, R]) State() MutationState[R] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MutationState[R]{
		Loading: m.inFlight.Load() > 0,
		Err:     m.lastErr,
		Data:    m.lastData,
		Settled: m.settled,
	}
}
