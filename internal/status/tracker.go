// internal/status/tracker.go
package status

import (
	"errors"
	"sync"

	"github.com/tamzrod/rfid-monitor/internal/protocol"
)

// Tracker owns the status snapshot of one line.
// Observe runs after every poll cycle, Tick once per second.
// Both report whether the snapshot changed so callers write only on change.
type Tracker struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewTracker starts in HealthUnknown.
func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{Health: HealthUnknown}}
}

// Snapshot returns the current status.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// Observe folds one cycle outcome into the status.
// A cycle that only missed the buffer acknowledge is Stale, any other
// failure is Error. Recovery resets the error code and seconds in error.
func (t *Tracker) Observe(err error, tagCount int, pollCount uint64) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.snap
	s := prev

	if tagCount > 0xFFFF {
		tagCount = 0xFFFF
	}
	s.TagCount = uint16(tagCount)
	s.PollCount = uint32(pollCount)

	switch {
	case err == nil:
		s.Health = HealthOK
		s.LastErrorCode = 0
		s.SecondsInError = 0
	case errors.Is(err, protocol.ErrAckMismatch):
		s.Health = HealthStale
		s.LastErrorCode = protocol.Code(err)
	default:
		s.Health = HealthError
		s.LastErrorCode = protocol.Code(err)
	}

	// NOTE: seconds_in_error increments on the 1Hz tick only.

	t.snap = s
	return s, s != prev
}

// Tick advances seconds in error while the line is not OK.
// It saturates instead of wrapping.
func (t *Tracker) Tick() (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.snap.Health == HealthOK || t.snap.Health == HealthDisabled {
		return t.snap, false
	}
	if t.snap.SecondsInError >= MaxSecondsInError {
		return t.snap, false
	}
	t.snap.SecondsInError++
	return t.snap, true
}

// Disable marks a line that is not being polled.
func (t *Tracker) Disable() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Health = HealthDisabled
	t.snap.SecondsInError = 0
	return t.snap
}
