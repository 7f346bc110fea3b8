package querycache

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/callboard/go-query-cache/internal/syncengine"
)

// Config exposes cache configuration options for consumers of the
// querycache package.
type Config struct {
	// CacheTime is the default freshness window applied to keys that do
	// not override it through Options.
	CacheTime time.Duration

	// GracePeriod is how long an entry without subscribers is retained
	// before eviction.
	GracePeriod time.Duration

	// Logger receives fetch lifecycle and invalidation events. Defaults
	// to a no-op logger.
	Logger zerolog.Logger
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return configFromInternal(syncengine.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

func (c Config) toInternal() syncengine.Config {
	return syncengine.Config{
		DefaultCacheTime: c.CacheTime,
		GracePeriod:      c.GracePeriod,
		Logger:           c.Logger,
	}
}

func configFromInternal(cfg syncengine.Config) Config {
	return Config{
		CacheTime:   cfg.DefaultCacheTime,
		GracePeriod: cfg.GracePeriod,
		Logger:      cfg.Logger,
	}
}

// Options control fetching for one key. The zero value means: default
// freshness window, no periodic refetch, fetching enabled.
type Options struct {
	// CacheTime overrides the cache-wide freshness window for this key.
	CacheTime time.Duration

	// RefetchInterval re-fetches the key at this interval while at least
	// one subscriber is registered. Zero disables the scheduler.
	RefetchInterval time.Duration

	// Disabled suppresses fetching entirely; resolves and subscribes see
	// the entry as idle until re-enabled.
	Disabled bool
}

// Validate checks whether the option values are valid.
func (o Options) Validate() error {
	return o.toInternal().Validate()
}

func (o Options) toInternal() syncengine.Options {
	return syncengine.Options{
		CacheTime:       o.CacheTime,
		RefetchInterval: o.RefetchInterval,
		Disabled:        o.Disabled,
	}
}
