package syncengine

import "time"

// Status describes the lifecycle state of a cache entry, derived from the
// presence of data, the last error, and whether a fetch is running.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Snapshot is an immutable view of one cache entry at a point in time.
// Listeners receive a Snapshot on every entry change; the Data value is
// shared and must not be mutated by consumers.
type Snapshot struct {
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

// Stale reports whether the snapshot's data has outlived its freshness
// window at the given instant. Entries without data are always stale.
func (s Snapshot) Stale(now time.Time) bool {
	if !s.HasData {
		return true
	}
	return !now.Before(s.StaleAt)
}

func (e *entry) snapshotLocked() Snapshot {
	return Snapshot{
		Key:         e.key,
		Data:        e.data,
		HasData:     e.hasData,
		Err:         e.err,
		Status:      e.statusLocked(),
		FetchedAt:   e.fetchedAt,
		StaleAt:     e.staleAt,
		InFlight:    e.inFlight != nil,
		Subscribers: len(e.listeners),
	}
}

func (e *entry) statusLocked() Status {
	switch {
	case e.err != nil:
		return StatusError
	case e.hasData:
		return StatusSuccess
	case e.inFlight != nil:
		return StatusLoading
	default:
		return StatusIdle
	}
}
