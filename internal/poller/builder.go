// internal/poller/builder.go
package poller

import (
	"time"

	"github.com/rs/zerolog"

	cfg "github.com/tamzrod/rfid-monitor/internal/config"
	"github.com/tamzrod/rfid-monitor/internal/tags"
)

// Build constructs a Poller for one normalized line config.
// The poller owns a fresh snapshot store seeded with the line's idle threshold.
// No IO happens here; the first physical read is the first cycle.
func Build(l cfg.LineConfig, reader TagReader, log zerolog.Logger) (*Poller, error) {
	store := tags.NewStore(time.Duration(l.Poll.TagIdleS) * time.Second)

	return New(
		Config{
			LineID:         l.ID,
			Interval:       time.Duration(l.Poll.IntervalMs) * time.Millisecond,
			RequestTimeout: time.Duration(l.Poll.RequestTimeoutMs) * time.Millisecond,
		},
		reader,
		store,
		log.With().Str("component", "poller").Logger(),
	)
}
