// internal/tags/store.go
package tags

import (
	"sync"
	"sync/atomic"
	"time"
)

// Store owns the one live snapshot of a line.
// Readers see either the old or the new snapshot, never a partial one.
// Update is the single write entry point.
type Store struct {
	snap atomic.Pointer[Snapshot]
	idle atomic.Int64 // time.Duration

	mu sync.Mutex // serializes Update (load, merge, swap)
}

// NewStore creates an empty store with the given idle threshold.
func NewStore(idle time.Duration) *Store {
	s := &Store{}
	s.snap.Store(&Snapshot{})
	s.idle.Store(int64(idle))
	return s
}

// Load returns the current snapshot.
func (s *Store) Load() Snapshot {
	return *s.snap.Load()
}

// Idle returns the idle threshold.
func (s *Store) Idle() time.Duration {
	return time.Duration(s.idle.Load())
}

// SetIdle changes the idle threshold for subsequent merges.
func (s *Store) SetIdle(d time.Duration) {
	s.idle.Store(int64(d))
}

// Update merges fresh into the current snapshot and publishes the result.
func (s *Store) Update(fresh []Record, now time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := Merge(*s.snap.Load(), fresh, now, s.Idle())
	s.snap.Store(&next)
	return next
}
