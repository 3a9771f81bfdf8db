// internal/events/event.go
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/tamzrod/rfid-monitor/internal/status"
	"github.com/tamzrod/rfid-monitor/internal/tags"
)

// Type names an outbound event.
type Type string

const (
	TagsUpdated    Type = "tags.updated"
	LineStatus     Type = "line.status"
	LineConnection Type = "line.connection"
	CommandError   Type = "command.error"
	Fault          Type = "fault"
)

// Event is one outbound notification. Only the fields relevant to Type are set.
type Event struct {
	ID   uuid.UUID `json:"id"`
	Type Type      `json:"type"`
	Line string    `json:"line"`
	At   time.Time `json:"at"`

	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`

	Snapshot *tags.Snapshot   `json:"snapshot,omitempty"`
	Status   *status.Snapshot `json:"status,omitempty"`
}

// New stamps a fresh id and time.
func New(t Type, line string) Event {
	return Event{
		ID:   uuid.New(),
		Type: t,
		Line: line,
		At:   time.Now(),
	}
}

// Sink receives events. Publish must not block the caller for long;
// the polling loop publishes from its result consumer.
type Sink interface {
	Publish(e Event)
}

// Multi fans one publish out to several sinks, in order.
type Multi []Sink

func (m Multi) Publish(e Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(e)
		}
	}
}
