// Package pricing holds the typed store for the pricing catalog: a small,
// infrequently-changing dataset that warrants a richer read API (lookup by
// code, grouping, active filtering) and optimistic local edits instead of
// the generic cache's opaque entries. It honours the same TTL contract as
// the generic cache but implements it locally.
package pricing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// fetchKey is the singleflight key: the catalog is fetched whole, so one
// key covers every caller.
const fetchKey = "pricing-catalog"

// Config holds the store settings.
type Config struct {
	// TTL is the freshness window for the catalog. Pricing changes
	// rarely, so the default is deliberately longer than the generic
	// cache's.
	TTL time.Duration

	// Logger defaults to a no-op logger.
	Logger zerolog.Logger
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TTL:    15 * time.Minute,
		Logger: zerolog.Nop(),
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Millisecond)),
	)
}

// Store caches the pricing catalog in memory with TTL-based re-validation
// and offers synchronous mutation helpers for optimistic edits: Update,
// Add and Remove change the local collection immediately, without waiting
// on any network confirmation.
type Store struct {
	fetch FetchFn
	ttl   time.Duration
	log   zerolog.Logger
	group singleflight.Group

	mu          sync.RWMutex
	items       map[string]Item
	lastFetched time.Time

	// now is swapped in tests.
	now func() time.Time
}

// NewStore builds a Store around the given catalog fetcher.
func NewStore(fetch FetchFn, cfg Config) (*Store, error) {
	if fetch == nil {
		return nil, errors.New("pricing: fetch function is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		fetch: fetch,
		ttl:   cfg.TTL,
		log:   cfg.Logger,
		items: make(map[string]Item),
		now:   time.Now,
	}, nil
}

// Fetch returns the catalog, hitting the network only when the local copy
// is older than the TTL or force is set. Concurrent fetches collapse into
// a single network call.
func (s *Store) Fetch(ctx context.Context, force bool) ([]Item, error) {
	if !force && s.fresh() {
		return s.Items(), nil
	}

	_, err, _ := s.group.Do(fetchKey, func() (any, error) {
		items, err := s.fetch(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("pricing fetch failed")
			return nil, err
		}

		s.mu.Lock()
		s.items = make(map[string]Item, len(items))
		for _, item := range items {
			s.items[item.ID] = item
		}
		s.lastFetched = s.now()
		s.mu.Unlock()

		s.log.Debug().Int("items", len(items)).Msg("pricing catalog refreshed")
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return s.Items(), nil
}

// Refresh forces a network fetch regardless of freshness.
func (s *Store) Refresh(ctx context.Context) ([]Item, error) {
	return s.Fetch(ctx, true)
}

// Items returns the catalog sorted by code.
func (s *Store) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Item, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// GetByID looks up one item by its ID.
func (s *Store) GetByID(id string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	return item, ok
}

// GetByCode looks up one item by its pricing code.
func (s *Store) GetByCode(code string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if item.Code == code {
			return item, true
		}
	}
	return Item{}, false
}

// GetActive returns the active items, sorted by code.
func (s *Store) GetActive() []Item {
	all := s.Items()
	out := all[:0:0]
	for _, item := range all {
		if item.Active {
			out = append(out, item)
		}
	}
	return out
}

// ByCategory groups the catalog by category, each group sorted by code.
func (s *Store) ByCategory() map[string][]Item {
	out := make(map[string][]Item)
	for _, item := range s.Items() {
		out[item.Category] = append(out[item.Category], item)
	}
	return out
}

// Update applies a patch to the local copy of an item right away. The
// caller is expected to run the corresponding remote write separately;
// a later Fetch reconciles with the server state.
func (s *Store) Update(id string, patch Patch) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return Item{}, false
	}
	patch.apply(&item)
	item.UpdatedAt = s.now()
	s.items[id] = item
	return item, true
}

// Add inserts an item into the local collection, minting an ID when the
// item carries none.
func (s *Store) Add(item Item) Item {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
	return item
}

// Remove deletes an item from the local collection.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	return true
}

// ClearCache resets the freshness stamp so the next Fetch hits the
// network. The current items stay available for first paint meanwhile.
func (s *Store) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFetched = time.Time{}
}

// LastFetched reports when the catalog was last loaded from the network.
func (s *Store) LastFetched() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFetched
}

func (s *Store) fresh() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.lastFetched.IsZero() && s.now().Before(s.lastFetched.Add(s.ttl))
}
