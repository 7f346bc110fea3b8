package querycache

import (
	"time"

	"github.com/callboard/go-query-cache/internal/syncengine"
)

// Status describes the lifecycle state of a cache entry.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Entry is the view of one cache entry handed to subscribers and returned
// by Snapshot. Data is shared across all consumers of the key and must be
// treated as immutable; changes go through a mutation plus invalidation,
// never through in-place edits.
type Entry struct {
	Key         string
	Data        any
	HasData     bool
	Err         error
	Status      Status
	FetchedAt   time.Time
	StaleAt     time.Time
	InFlight    bool
	Subscribers int
}

// Stale reports whether the entry's data has outlived its freshness
// window at the given instant.
func (e Entry) Stale(now time.Time) bool {
	if !e.HasData {
		return true
	}
	return !now.Before(e.StaleAt)
}

func entryFromSnapshot(s syncengine.Snapshot) Entry {
	return Entry{
		Key:         s.Key,
		Data:        s.Data,
		HasData:     s.HasData,
		Err:         s.Err,
		Status:      Status(s.Status),
		FetchedAt:   s.FetchedAt,
		StaleAt:     s.StaleAt,
		InFlight:    s.InFlight,
		Subscribers: s.Subscribers,
	}
}
