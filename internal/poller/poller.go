// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tamzrod/rfid-monitor/internal/protocol"
	"github.com/tamzrod/rfid-monitor/internal/tags"
)

// DefaultRequestTimeout bounds how long an on-demand caller waits for a cycle.
const DefaultRequestTimeout = 3000 * time.Millisecond

// Config is the minimal runtime config the poller needs.
type Config struct {
	LineID string

	// Interval between cycle starts. 0 = on demand only.
	Interval time.Duration

	RequestTimeout time.Duration
}

// Poller drives tag buffer reads for one line.
// At most one physical cycle is in flight; callers arriving during a
// cycle share its result.
type Poller struct {
	cfg    Config
	reader TagReader
	store  *tags.Store
	log    zerolog.Logger

	interval atomic.Int64 // time.Duration
	cycles   atomic.Uint64

	group singleflight.Group

	mu      sync.Mutex
	pending map[uuid.UUID]chan PollResult

	trigger chan struct{}
	reset   chan struct{}

	now func() time.Time
}

// New creates a poller. The store is the line's single live snapshot.
func New(cfg Config, reader TagReader, store *tags.Store, log zerolog.Logger) (*Poller, error) {
	if cfg.LineID == "" {
		return nil, errors.New("poller: line id required")
	}
	if cfg.Interval < 0 {
		return nil, errors.New("poller: interval must be >= 0")
	}
	if reader == nil {
		return nil, errors.New("poller: tag reader required")
	}
	if store == nil {
		return nil, errors.New("poller: tag store required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	p := &Poller{
		cfg:     cfg,
		reader:  reader,
		store:   store,
		log:     log,
		pending: make(map[uuid.UUID]chan PollResult),
		trigger: make(chan struct{}, 1),
		reset:   make(chan struct{}, 1),
		now:     time.Now,
	}
	p.interval.Store(int64(cfg.Interval))
	return p, nil
}

// LineID returns the line this poller serves.
func (p *Poller) LineID() string { return p.cfg.LineID }

// Store returns the snapshot store the poller publishes into.
func (p *Poller) Store() *tags.Store { return p.store }

// Interval returns the current polling interval. 0 = on demand only.
func (p *Poller) Interval() time.Duration { return time.Duration(p.interval.Load()) }

// SetInterval changes the interval. A running loop re-paces immediately.
func (p *Poller) SetInterval(d time.Duration) error {
	if d < 0 {
		return errors.New("poller: interval must be >= 0")
	}
	p.interval.Store(int64(d))
	select {
	case p.reset <- struct{}{}:
	default:
	}
	p.log.Info().Dur("interval", d).Msg("poll interval changed")
	return nil
}

// TagIdle returns the reconciliation idle threshold.
func (p *Poller) TagIdle() time.Duration { return p.store.Idle() }

// SetTagIdle changes the reconciliation idle threshold.
func (p *Poller) SetTagIdle(d time.Duration) error {
	if d < 0 {
		return errors.New("poller: tag idle must be >= 0")
	}
	p.store.SetIdle(d)
	p.log.Info().Dur("tag_idle", d).Msg("tag idle threshold changed")
	return nil
}

// PollCount returns the number of completed physical cycles.
func (p *Poller) PollCount() uint64 { return p.cycles.Load() }

// PollOnce performs one read-and-merge cycle, or joins the one in flight.
// Failures never touch the published snapshot.
func (p *Poller) PollOnce(ctx context.Context) PollResult {
	v, _, _ := p.group.Do("cycle", func() (any, error) {
		return p.cycle(ctx), nil
	})
	return v.(PollResult)
}

func (p *Poller) cycle(ctx context.Context) PollResult {
	start := p.now()
	fresh, err := p.reader.ReadAllTags(ctx)

	res := PollResult{
		LineID: p.cfg.LineID,
		Cycle:  p.cycles.Add(1),
		At:     start,
		Fresh:  fresh,
		Err:    err,
	}

	// An unacknowledged buffer still delivered trustworthy records.
	if err == nil || errors.Is(err, protocol.ErrAckMismatch) {
		res.Snapshot = p.store.Update(fresh, p.now())
		res.Merged = true
	} else {
		res.Snapshot = p.store.Load()
	}
	res.Took = p.now().Sub(start)

	if err != nil {
		p.log.Warn().Err(err).Uint64("cycle", res.Cycle).Str("reason", protocol.Reason(err)).Msg("poll cycle failed")
	} else {
		p.log.Debug().Uint64("cycle", res.Cycle).Int("fresh", len(fresh)).Int("tags", len(res.Snapshot.Tags)).Dur("took", res.Took).Msg("poll cycle")
	}

	p.deliver(res)
	return res
}

// deliver answers every request registered before the cycle finished.
func (p *Poller) deliver(res PollResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, ch := range p.pending {
		ch <- res
		delete(p.pending, id)
	}
	// requests served by this cycle MUST NOT cause another one
	select {
	case <-p.trigger:
	default:
	}
}

// Request asks the running loop for a cycle and waits for its result.
// A request made while a cycle is in flight gets that cycle's result.
// No result within the request timeout is protocol.ErrTimeout.
// Cycle failures are reported in PollResult.Err, not as the error.
func (p *Poller) Request(ctx context.Context) (PollResult, error) {
	id := uuid.New()
	ch := make(chan PollResult, 1)

	p.mu.Lock()
	p.pending[id] = ch
	select {
	case p.trigger <- struct{}{}:
	default:
	}
	p.mu.Unlock()

	timer := time.NewTimer(p.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res, nil
	case <-timer.C:
		p.drop(id)
		p.log.Warn().Str("request", id.String()).Msg("on-demand poll timed out")
		return PollResult{LineID: p.cfg.LineID}, protocol.ErrTimeout
	case <-ctx.Done():
		p.drop(id)
		return PollResult{LineID: p.cfg.LineID}, ctx.Err()
	}
}

func (p *Poller) drop(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, id)
}

func (p *Poller) pendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
