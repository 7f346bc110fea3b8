package syncengine

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog"
)

// Config holds the engine-level settings shared by every cache entry.
// Per-entry behaviour (freshness window, refetch interval) is supplied
// through Options at call sites.
type Config struct {
	// DefaultCacheTime is the freshness window applied to entries whose
	// Options do not override it. Must be greater than 0.
	DefaultCacheTime time.Duration

	// GracePeriod is how long an entry with zero subscribers is retained
	// before eviction. The data stays available as a first paint for the
	// next subscriber during this window. Must be greater than 0.
	GracePeriod time.Duration

	// Logger receives fetch lifecycle, invalidation and discard events.
	// A zero value is replaced with a no-op logger.
	Logger zerolog.Logger
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		DefaultCacheTime: 5 * time.Minute,
		GracePeriod:      5 * time.Minute,
		Logger:           zerolog.Nop(),
	}
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.DefaultCacheTime, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.GracePeriod, validation.Required, validation.Min(time.Millisecond)),
	)
}

// Options control how a single key is fetched and kept fresh. The zero
// value means: engine default freshness window, no periodic refetch,
// fetching enabled.
type Options struct {
	// CacheTime is the freshness window for this key. Zero falls back to
	// the engine's DefaultCacheTime.
	CacheTime time.Duration

	// RefetchInterval re-triggers a fetch at this interval while at least
	// one subscriber is registered. Zero disables periodic refetching.
	RefetchInterval time.Duration

	// Disabled gates fetching entirely: resolves and subscribes become
	// bookkeeping-only operations and the entry stays idle.
	Disabled bool
}

// Validate checks if the option values are valid.
func (o Options) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.CacheTime, validation.Min(time.Duration(0))),
		validation.Field(&o.RefetchInterval, validation.Min(time.Duration(0))),
	)
}
