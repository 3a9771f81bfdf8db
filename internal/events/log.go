// internal/events/log.go
package events

import "github.com/rs/zerolog"

// LogSink writes events to the structured log.
// Faults and command errors log at warn, connection changes at info,
// everything else at debug.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) LogSink {
	return LogSink{log: log}
}

func (s LogSink) Publish(e Event) {
	var ev *zerolog.Event
	switch e.Type {
	case Fault, CommandError:
		ev = s.log.Warn()
	case LineConnection:
		ev = s.log.Info()
	default:
		ev = s.log.Debug()
	}

	ev = ev.Str("event", string(e.Type)).Str("line", e.Line)
	if e.Text != "" {
		ev = ev.Str("text", e.Text)
	}
	if e.Error != "" {
		ev = ev.Str("error", e.Error)
	}
	if e.Snapshot != nil {
		ev = ev.Int("tags", len(e.Snapshot.Tags))
	}
	if e.Status != nil {
		ev = ev.Uint16("health", e.Status.Health)
	}
	ev.Msg("event")
}
