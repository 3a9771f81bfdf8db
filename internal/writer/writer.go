// internal/writer/writer.go
package writer

import (
	"github.com/tamzrod/rfid-monitor/internal/poller"
	"github.com/tamzrod/rfid-monitor/internal/status"
)

// endpointClient is the exact contract the writer uses.
// IMPORTANT: There must be NO other version of this interface anywhere.
type endpointClient interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

// statusMirror folds poll results into the line's status tracker and
// delivers changed snapshots. Without a status plan it only tracks.
type statusMirror struct {
	plan    Plan
	tracker *status.Tracker
	sw      StatusWriter
}

// New builds the writer of one line. The tracker is shared with readers
// of the live status (HTTP API).
func New(plan Plan, tracker *status.Tracker, clients map[string]endpointClient) Writer {
	w := &statusMirror{plan: plan, tracker: tracker}
	if sw, enabled := NewDeviceStatusWriter(plan, clients); enabled {
		w.sw = sw
	}
	return w
}

// Assert writes the current snapshot unconditionally (identity re-assert on start).
func (w *statusMirror) Assert() error {
	if w.sw == nil {
		return nil
	}
	return w.sw.WriteStatus(w.tracker.Snapshot())
}

func (w *statusMirror) Write(res poller.PollResult) error {
	s, changed := w.tracker.Observe(res.Err, len(res.Snapshot.Tags), res.Cycle)
	if !changed || w.sw == nil {
		return nil
	}
	return w.sw.WriteStatus(s)
}

// Tick advances seconds in error; call at 1 Hz.
func (w *statusMirror) Tick() error {
	s, changed := w.tracker.Tick()
	if !changed || w.sw == nil {
		return nil
	}
	return w.sw.WriteStatus(s)
}
