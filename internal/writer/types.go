// internal/writer/types.go
package writer

import "github.com/tamzrod/rfid-monitor/internal/poller"

// StatusPlan locates one line's status block inside the status memory.
type StatusPlan struct {
	Endpoint   string
	UnitID     uint16
	BaseSlot   uint16
	DeviceName string
}

// Plan is the fully-built write plan for one line.
// Status is nil when the line did not opt in.
type Plan struct {
	LineID string
	Status *StatusPlan
}

// Writer mirrors poll outcomes into status memory.
type Writer interface {
	Assert() error
	Write(res poller.PollResult) error
	Tick() error
}
