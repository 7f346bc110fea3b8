package syncengine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callboard/go-query-cache/pkg/testsupport"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()

	g, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(g.Close)
	return g
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	cfg := DefaultConfig()
	cfg.GracePeriod = 0
	_, err = New(cfg)
	require.Error(t, err)
}

func TestResolve_Dedup(t *testing.T) {
	g := newTestEngine(t, DefaultConfig())
	fetcher := testsupport.NewGateFetcher("usage-v1", nil)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]any, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = g.Resolve(context.Background(), "customer-usage", fetcher.Fetch, Options{})
		}(i)
	}

	// Give every worker a chance to reach the coordinator before any
	// result exists. Late arrivals are served from the fresh entry, so
	// the single-call assertion holds either way.
	time.Sleep(20 * time.Millisecond)
	fetcher.Release()
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "usage-v1", results[i])
	}
	assert.Equal(t, 1, fetcher.Calls())
}

func TestResolve_FreshHitServedFromCache(t *testing.T) {
	g := newTestEngine(t, DefaultConfig())
	fetcher := testsupport.NewScriptedFetcher(
		testsupport.FetchResult{Value: "v1"},
		testsupport.FetchResult{Value: "v2"},
	)

	got, err := g.Resolve(context.Background(), "plans", fetcher.Fetch, Options{})
	require.NoError(t, err)
	assert.Equal(t, "v1", got)

	got, err = g.Resolve(context.Background(), "plans", fetcher.Fetch, Options{})
	require.NoError(t, err)
	assert.Equal(t, "v1", got, "fresh entry must be served without refetching")
	assert.Equal(t, 1, fetcher.Calls())
}

func TestResolve_StaleEntryRefetches(t *testing.T) {
	g := newTestEngine(t, DefaultConfig())
	fetcher := testsupport.NewScriptedFetcher(
		testsupport.FetchResult{Value: "v1"},
		testsupport.FetchResult{Value: "v2"},
	)

	base := time.Now()
	g.now = func() time.Time { return base }

	got, err := g.Resolve(context.Background(), "plans", fetcher.Fetch, Options{CacheTime: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, "v1", got)

	g.now = func() time.Time { return base.Add(2 * time.Minute) }

	got, err = g.Resolve(context.Background(), "plans", fetcher.Fetch, Options{CacheTime: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, "v2", got)
	assert.Equal(t, 2, fetcher.Calls())
}

func TestResolve_StaleWhileError(t *testing.T) {
	g := newTestEngine(t, DefaultConfig())
	fetchErr := errors.New("upstream exploded")
	fetcher := testsupport.NewScriptedFetcher(
		testsupport.FetchResult{Value: "v1"},
		testsupport.FetchResult{Err: fetchErr},
	)

	base := time.Now()
	g.now = func() time.Time { return base }

	_, err := g.Resolve(context.Background(), "plans", fetcher.Fetch, Options{CacheTime: time.Minute})
	require.NoError(t, err)

	g.now = func() time.Time { return base.Add(2 * time.Minute) }

	_, err = g.Resolve(context.Background(), "plans", fetcher.Fetch, Options{CacheTime: time.Minute})
	require.ErrorIs(t, err, fetchErr)

	snap, ok := g.Snapshot("plans")
	require.True(t, ok)
	assert.True(t, snap.HasData, "failed refresh must not drop the last good value")
	assert.Equal(t, "v1", snap.Data)
	assert.ErrorIs(t, snap.Err, fetchErr)
	assert.Equal(t, StatusError, snap.Status)
}

func TestResolve_ErrorClearedOnNextSuccess(t *testing.T) {
	g := newTestEngine(t, DefaultConfig())
	fetcher := testsupport.NewScriptedFetcher(
		testsupport.FetchResult{Err: errors.New("boom")},
		testsupport.FetchResult{Value: "v1"},
	)

	_, err := g.Resolve(context.Background(), "plans", fetcher.Fetch, Options{})
	require.Error(t, err)

	got, err := g.Resolve(context.Background(), "plans", fetcher.Fetch, Options{})
	require.NoError(t, err)
	assert.Equal(t, "v1", got)

	snap, ok := g.Snapshot("plans")
	require.True(t, ok)
	assert.NoError(t, snap.Err)
	assert.Equal(t, StatusSuccess, snap.Status)
}

func TestResolve_Disabled(t *testing.T) {
	g := newTestEngine(t, DefaultConfig())
	fetcher := testsupport.NewScriptedFetcher(testsupport.FetchResult{Value: "v1"})

	got, err := g.Resolve(context.Background(), "plans", fetcher.Fetch, Options{Disabled: true})
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, fetcher.Calls())

	snap, ok := g.Snapshot("plans")
	require.True(t, ok)
	assert.Equal(t, StatusIdle, snap.Status)
}

func TestResolve_MissingFetcher(t *testing.T) {
	g := newTestEngine(t, DefaultConfig())

	_, err := g.Resolve(context.Background(), "plans", nil, Options{})
	require.ErrorIs(t, err, ErrFetcherRequired)
}

func TestRefetch_SupersedesInFlightFetch(t *testing.T) {
	g := newTestEngine(t, DefaultConfig())

	// First call hangs until released and reports the old value; the
	// second returns immediately with the new one.
	slow := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	fetch := func(ctx context.Context) (any, error) {
		mu.Lock()
		n := calls
		calls++
		mu.Unlock()
		if n == 0 {
			<-slow
			return "outdated", nil
		}
		return "current", nil
	}

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = g.Resolve(context.Background(), "plans", fetch, Options{})
	}()

	require.Eventually(t, func() bool {
		snap, ok := g.Snapshot("plans")
		return ok && snap.InFlight
	}, time.Second, time.Millisecond)

	got, err := g.Refetch(context.Background(), "plans")
	require.NoError(t, err)
	assert.Equal(t, "current", got)

	// Let the superseded fetch finish; its result must be discarded.
	close(slow)
	<-firstDone

	require.Eventually(t, func() bool {
		snap, ok := g.Snapshot("plans")
		return ok && !snap.InFlight
	}, time.Second, time.Millisecond)

	snap, ok := g.Snapshot("plans")
	require.True(t, ok)
	assert.Equal(t, "current", snap.Data, "slow first fetch must not overwrite the forced refetch")
}

func TestRefetch_UnknownKey(t *testing.T) {
	g := newTestEngine(t, DefaultConfig())

	_, err := g.Refetch(context.Background(), "never-seen")
	require.ErrorIs(t, err, ErrUnknownKey)
}

func TestRefetch_BypassesFreshness(t *testing.T) {
	g := newTestEngine(t, DefaultConfig())
	fetcher := testsupport.NewScriptedFetcher(
		testsupport.FetchResult{Value: "v1"},
		testsupport.FetchResult{Value: "v2"},
	)

	_, err := g.Resolve(context.Background(), "plans", fetcher.Fetch, Options{CacheTime: time.Hour})
	require.NoError(t, err)

	got, err := g.Refetch(context.Background(), "plans")
	require.NoError(t, err)
	assert.Equal(t, "v2", got)
	assert.Equal(t, 2, fetcher.Calls())
}

func TestSubscribe_NotifiesOnFetchCompletion(t *testing.T) {
	g := newTestEngine(t, DefaultConfig())
	fetcher := testsupport.NewScriptedFetcher(testsupport.FetchResult{Value: "v1"})
	rec := testsupport.NewRecorder[Snapshot]()

	unsub, err := g.Subscribe("plans", fetcher.Fetch, Options{}, rec.Append)
	require.NoError(t, err)
	defer unsub()

	require.Eventually(t, func() bool {
		last, ok := rec.Last()
		return ok && last.Status == StatusSuccess
	}, time.Second, time.Millisecond)

	first := rec.Items()[0]
	assert.Equal(t, StatusLoading, first.Status, "new subscriber sees the loading transition")

	last, _ := rec.Last()
	assert.Equal(t, "v1", last.Data)
	assert.Equal(t, 1, last.Subscribers)
}

func TestSubscribe_FreshEntryServedWithoutFetch(t *testing.T) {
	g := newTestEngine(t, DefaultConfig())
	fetcher := testsupport.NewScriptedFetcher(testsupport.FetchResult{Value: "v1"})

	_, err := g.Resolve(context.Background(), "plans", fetcher.Fetch, Options{})
	require.NoError(t, err)

	rec := testsupport.NewRecorder[Snapshot]()
	unsub, err := g.Subscribe("plans", fetcher.Fetch, Options{}, rec.Append)
	require.NoError(t, err)
	defer unsub()

	require.Equal(t, 1, rec.Len(), "first paint is delivered synchronously")
	snap, _ := rec.Last()
	assert.Equal(t, "v1", snap.Data)
	assert.Equal(t, 1, fetcher.Calls())
}

func TestSubscribe_ListenerErrorsSurfaceViaNotification(t *testing.T) {
	g := newTestEngine(t, DefaultConfig())
	fetchErr := errors.New("network down")
	fetcher := testsupport.NewScriptedFetcher(testsupport.FetchResult{Err: fetchErr})
	rec := testsupport.NewRecorder[Snapshot]()

	unsub, err := g.Subscribe("plans", fetcher.Fetch, Options{}, rec.Append)
	require.NoError(t, err)
	defer unsub()

	require.Eventually(t, func() bool {
		last, ok := rec.Last()
		return ok && last.Status == StatusError
	}, time.Second, time.Millisecond)

	last, _ := rec.Last()
	assert.ErrorIs(t, last.Err, fetchErr)
	assert.False(t, last.HasData)
}

func TestInvalidate_WithActiveSubscriber(t *testing.T) {
	g := newTestEngine(t, DefaultConfig())
	fetcher := testsupport.NewScriptedFetcher(
		testsupport.FetchResult{Value: "v1"},
		testsupport.FetchResult{Value: "v2"},
	)
	rec := testsupport.NewRecorder[Snapshot]()

	unsub, err := g.Subscribe("plans", fetcher.Fetch, Options{}, rec.Append)
	require.NoError(t, err)
	defer unsub()

	require.Eventually(t, func() bool {
		last, ok := rec.Last()
		return ok && last.Status == StatusSuccess
	}, time.Second, time.Millisecond)

	g.Invalidate("plans")

	require.Eventually(t, func() bool {
		last, ok := rec.Last()
		return ok && last.Status == StatusSuccess && last.Data == "v2"
	}, time.Second, time.Millisecond)
	assert.Equal(t, 2, fetcher.Calls(), "invalidation triggers exactly one refetch")
}

func TestInvalidate_WithoutSubscriberDefersRefetch(t *testing.T) {
	g := newTestEngine(t, DefaultConfig())
	fetcher := testsupport.NewScriptedFetcher(
		testsupport.FetchResult{Value: "v1"},
		testsupport.FetchResult{Value: "v2"},
	)

	_, err := g.Resolve(context.Background(), "plans", fetcher.Fetch, Options{CacheTime: time.Hour})
	require.NoError(t, err)

	g.Invalidate("plans")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, fetcher.Calls(), "no subscriber, so the refetch is deferred")

	got, err := g.Resolve(context.Background(), "plans", fetcher.Fetch, Options{CacheTime: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, "v2", got)
	assert.Equal(t, 2, fetcher.Calls())
}

func TestInvalidate_UnknownKeyIsNoOp(t *testing.T) {
	g := newTestEngine(t, DefaultConfig())
	g.Invalidate("missing")
	assert.Empty(t, g.Keys())
}

func TestInvalidateAll_ResetsEntriesAndKeepsSubscribers(t *testing.T) {
	g := newTestEngine(t, DefaultConfig())
	fetcher := testsupport.NewScriptedFetcher(testsupport.FetchResult{Value: "v1"})
	rec := testsupport.NewRecorder[Snapshot]()

	unsub, err := g.Subscribe("plans", fetcher.Fetch, Options{}, rec.Append)
	require.NoError(t, err)
	defer unsub()

	require.Eventually(t, func() bool {
		last, ok := rec.Last()
		return ok && last.Status == StatusSuccess
	}, time.Second, time.Millisecond)

	g.InvalidateAll()

	last, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, StatusIdle, last.Status)
	assert.False(t, last.HasData)
	assert.Equal(t, 1, last.Subscribers, "registrations survive the reset")
}

func TestClear_DropsEverything(t *testing.T) {
	g := newTestEngine(t, DefaultConfig())
	fetcher := testsupport.NewScriptedFetcher(testsupport.FetchResult{Value: "v1"})
	rec := testsupport.NewRecorder[Snapshot]()

	unsub, err := g.Subscribe("plans", fetcher.Fetch, Options{}, rec.Append)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		last, ok := rec.Last()
		return ok && last.Status == StatusSuccess
	}, time.Second, time.Millisecond)

	g.Clear()
	assert.Empty(t, g.Keys())

	// Unsubscribing after a clear must not panic or resurrect state.
	unsub()
	assert.Empty(t, g.Keys())
}

func TestEviction_AfterGracePeriodWithZeroSubscribers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GracePeriod = 20 * time.Millisecond
	g := newTestEngine(t, cfg)

	fetcher := testsupport.NewScriptedFetcher(testsupport.FetchResult{Value: "v1"})
	rec := testsupport.NewRecorder[Snapshot]()

	unsub, err := g.Subscribe("plans", fetcher.Fetch, Options{}, rec.Append)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		last, ok := rec.Last()
		return ok && last.Status == StatusSuccess
	}, time.Second, time.Millisecond)

	unsub()

	require.Eventually(t, func() bool {
		_, ok := g.Snapshot("plans")
		return !ok
	}, time.Second, time.Millisecond, "entry is evicted once the grace period lapses")
}

func TestEviction_CancelledByResubscribe(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GracePeriod = 50 * time.Millisecond
	g := newTestEngine(t, cfg)

	fetcher := testsupport.NewScriptedFetcher(testsupport.FetchResult{Value: "v1"})
	rec := testsupport.NewRecorder[Snapshot]()

	unsub, err := g.Subscribe("plans", fetcher.Fetch, Options{}, rec.Append)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		last, ok := rec.Last()
		return ok && last.Status == StatusSuccess
	}, time.Second, time.Millisecond)

	unsub()

	unsub2, err := g.Subscribe("plans", fetcher.Fetch, Options{}, rec.Append)
	require.NoError(t, err)
	defer unsub2()

	time.Sleep(100 * time.Millisecond)
	snap, ok := g.Snapshot("plans")
	require.True(t, ok, "resubscribing inside the grace period keeps the entry")
	assert.Equal(t, "v1", snap.Data)
	assert.Equal(t, 1, fetcher.Calls(), "retained data serves the first paint without refetching")
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	g := newTestEngine(t, DefaultConfig())
	fetcher := testsupport.NewScriptedFetcher(testsupport.FetchResult{Value: "v1"})
	rec := testsupport.NewRecorder[Snapshot]()

	unsub, err := g.Subscribe("plans", fetcher.Fetch, Options{}, rec.Append)
	require.NoError(t, err)

	unsub()
	unsub()

	snap, ok := g.Snapshot("plans")
	if ok {
		assert.Zero(t, snap.Subscribers)
	}
}
