// internal/poller/types.go
package poller

import (
	"context"
	"time"

	"github.com/tamzrod/rfid-monitor/internal/tags"
)

// TagReader performs one physical buffer-read cycle over a line.
// anchor.Reader satisfies it.
type TagReader interface {
	ReadAllTags(ctx context.Context) ([]tags.Record, error)
}

// PollResult is produced by one poll cycle.
type PollResult struct {
	LineID string
	Cycle  uint64 // sequence number of the physical cycle
	At     time.Time
	Took   time.Duration

	// Fresh is the batch read in this cycle, before reconciliation.
	Fresh []tags.Record
	// Snapshot is the published snapshot after this cycle.
	// On a failed cycle it is the unchanged previous snapshot.
	Snapshot tags.Snapshot
	// Merged reports whether Fresh was reconciled into Snapshot.
	Merged bool

	Err error // non-nil means the cycle failed or was degraded
}
