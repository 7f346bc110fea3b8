package syncengine

import (
	"context"
	"time"
)

// The refetch scheduler is one goroutine per key, alive exactly while the
// key has subscribers and a positive RefetchInterval. It is armed on the
// 0→1 subscriber transition and torn down on 1→0, never in between, so a
// burst of mounts and unmounts does not thrash the ticker.

func (g *Engine) startSchedulerLocked(ent *entry) {
	if ent.opts.RefetchInterval <= 0 || ent.opts.Disabled || ent.stopTick != nil {
		return
	}

	stop := make(chan struct{})
	ent.stopTick = stop
	key := ent.key
	interval := ent.opts.RefetchInterval

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				g.scheduledRefresh(key)
			}
		}
	}()
}

func (g *Engine) stopSchedulerLocked(ent *entry) {
	if ent.stopTick != nil {
		close(ent.stopTick)
		ent.stopTick = nil
	}
}

// scheduledRefresh is the ticker callback. It forces a fetch regardless of
// freshness, because the interval contract promises periodic updates even
// inside the cache window, but it attaches to nothing: a fetch already in
// flight is left to finish on its own.
func (g *Engine) scheduledRefresh(key string) {
	g.mu.Lock()
	ent, ok := g.entries[key]
	if !ok || len(ent.listeners) == 0 || ent.fetch == nil || ent.opts.Disabled || ent.inFlight != nil {
		g.mu.Unlock()
		return
	}
	_, notify := g.startFetchLocked(context.Background(), ent)
	g.mu.Unlock()
	notify()
}
