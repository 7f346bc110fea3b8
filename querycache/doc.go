// Package querycache provides a keyed, subscriber-based read-through cache
// with push invalidation and dedicated mutation support.
//
// # Overview
//
// The package is built around four cooperating pieces:
//
//   - Cache: the read-through store. Each logical query lives under an
//     opaque string key with its own freshness window, error slot and
//     subscriber set.
//   - Subscriptions: consumers register a listener per key and are
//     notified synchronously on every entry change.
//   - Invalidation: after a write elsewhere, Invalidate marks keys stale
//     and transparently refreshes them for live subscribers.
//   - Mutation: a thin executor for writes that ties a successful call to
//     the cache keys it makes stale.
//
// # Basic usage
//
// Resolve reads through the cache, fetching only when the entry is missing
// or stale:
//
//	c, err := querycache.New(querycache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	usage, err := querycache.Resolve(ctx, c, "customer-usage",
//		func(ctx context.Context) (Usage, error) {
//			return client.FetchUsage(ctx)
//		}, querycache.Options{CacheTime: 5 * time.Minute})
//
// Any number of concurrent resolves for one key share a single underlying
// fetch, and a fresh entry is served without touching the network at all.
//
// # Subscriptions and periodic refresh
//
// UI bindings subscribe instead of polling:
//
//	unsub, err := querycache.Subscribe(c, "customer-usage", fetchUsage,
//		querycache.Options{CacheTime: 5 * time.Minute, RefetchInterval: time.Minute},
//		func(e querycache.Entry) {
//			render(e)
//		})
//	defer unsub()
//
// The listener receives the current entry immediately and again on every
// change. While at least one subscriber is registered and RefetchInterval
// is positive, the key is re-fetched on that interval; the timer is
// disarmed when the last subscriber leaves.
//
// A failed refresh never drops data: the entry keeps its last good value
// alongside the error, so consumers can render stale data with an error
// indicator instead of a blank state.
//
// # Mutations
//
// Writes go through a Mutation, which invalidates the dependent keys on
// success:
//
//	m, err := querycache.NewMutation(querycache.MutationConfig[PlanChange, Plan]{
//		Run:            client.ChangePlan,
//		InvalidateKeys: []string{"plans", "customer-usage"},
//		Invalidator:    c,
//	})
//
// # Key construction
//
// Keys are caller-defined. For queries parameterized by filters, the
// KeySerializer builds deterministic keys from a query name plus argument
// values, so distinct filter sets coexist as distinct entries:
//
//	serializer := querycache.NewDefaultKeySerializer()
//	key := serializer.SerializeKey("invoices", filters)
//
// # Scope
//
// The cache is in-memory and transport-agnostic. It does not persist
// across restarts, synchronize across processes, queue offline writes, or
// normalize entities; fetch functions are opaque and may talk to whatever
// backend they like.
package querycache
