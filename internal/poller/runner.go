// internal/poller/runner.go
package poller

import (
	"context"
	"time"
)

// MinPause is the shortest sleep between two cycles.
const MinPause = 10 * time.Millisecond

// pace returns the sleep before the next cycle so that cycle starts are
// interval apart regardless of how long the read took.
func pace(interval, elapsed time.Duration) time.Duration {
	if d := interval - elapsed; d > MinPause {
		return d
	}
	return MinPause
}

// Run is the line's polling task. It runs a cycle every interval and on
// every Request, and emits each PollResult on out when out is non-nil.
// One goroutine per line. No overlap. No retries inside a cycle.
func (p *Poller) Run(ctx context.Context, out chan<- PollResult) {
	p.log.Info().Dur("interval", p.Interval()).Msg("poller started")
	defer p.log.Info().Msg("poller stopped")

	var lastStart time.Time
	timer := time.NewTimer(MinPause)
	defer timer.Stop()

	arm := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		interval := p.Interval()
		if interval <= 0 {
			return // on demand only: timer stays stopped
		}
		elapsed := time.Duration(0)
		if !lastStart.IsZero() {
			elapsed = time.Since(lastStart)
		}
		timer.Reset(pace(interval, elapsed))
	}

	if p.Interval() <= 0 {
		arm()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.reset:
			arm()
			continue
		case <-p.trigger:
		case <-timer.C:
		}

		lastStart = time.Now()
		res := p.PollOnce(ctx)
		arm()

		if out == nil {
			continue
		}
		select {
		case out <- res:
		case <-ctx.Done():
			return
		}
	}
}
