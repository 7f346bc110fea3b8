package di

import (
	"github.com/callboard/go-query-cache/pricing"
	"github.com/callboard/go-query-cache/querycache"
)

// Container provides dependency injection for the data sync components.
// It owns a single explicitly constructed cache instance plus the default
// key serializer, and offers factory helpers for the pieces that hang off
// them. Tests build their own containers to get fully isolated caches.
type Container struct {
	cache         *querycache.Cache
	keySerializer querycache.KeySerializer
	config        querycache.Config
}

// NewContainer creates a new DI container with the provided cache
// configuration.
func NewContainer(config querycache.Config) (*Container, error) {
	cache, err := querycache.New(config)
	if err != nil {
		return nil, err
	}

	return &Container{
		cache:         cache,
		keySerializer: querycache.NewDefaultKeySerializer(),
		config:        config,
	}, nil
}

// NewContainerWithDefaults creates a new DI container using default
// configuration. This is a convenience constructor for typical use cases
// where custom configuration is not required.
func NewContainerWithDefaults() (*Container, error) {
	return NewContainer(querycache.DefaultConfig())
}

// Cache returns the singleton cache instance.
func (c *Container) Cache() *querycache.Cache {
	return c.cache
}

// KeySerializer returns the singleton key serializer instance.
func (c *Container) KeySerializer() querycache.KeySerializer {
	return c.keySerializer
}

// Config returns a copy of the cache configuration used by this container.
func (c *Container) Config() querycache.Config {
	return c.config
}

// Close tears down the container's cache.
func (c *Container) Close() {
	c.cache.Close()
}

// NewPricingStore builds a pricing store that logs through the
// container's logger.
func (c *Container) NewPricingStore(fetch pricing.FetchFn) (*pricing.Store, error) {
	cfg := pricing.DefaultConfig()
	cfg.Logger = c.config.Logger
	return pricing.NewStore(fetch, cfg)
}

// NewMutation creates a mutation whose invalidations run against the
// container's cache unless the config supplies its own invalidator.
//
// Since Go methods cannot have type parameters, this is provided as a
// package-level function. Example: NewMutation[CreatePlanInput, Plan](container, cfg)
func NewMutation[I, R any](container *Container, cfg querycache.MutationConfig[I, R]) (*querycache.Mutation[I, R], error) {
	if cfg.Invalidator == nil {
		cfg.Invalidator = container.cache
	}
	return querycache.NewMutation(cfg)
}
