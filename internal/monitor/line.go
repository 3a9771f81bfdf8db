// internal/monitor/line.go
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/rfid-monitor/internal/anchor"
	cfg "github.com/tamzrod/rfid-monitor/internal/config"
	"github.com/tamzrod/rfid-monitor/internal/console"
	"github.com/tamzrod/rfid-monitor/internal/events"
	"github.com/tamzrod/rfid-monitor/internal/poller"
	"github.com/tamzrod/rfid-monitor/internal/protocol"
	"github.com/tamzrod/rfid-monitor/internal/status"
	"github.com/tamzrod/rfid-monitor/internal/tags"
	"github.com/tamzrod/rfid-monitor/internal/transport"
	"github.com/tamzrod/rfid-monitor/internal/writer"
)

// serialLine is the transport view a Line needs. *transport.Line satisfies it.
type serialLine interface {
	anchor.Line
	console.RawLine
	Close() error
}

// Line is the full pipeline of one serial line:
// transport -> anchor reader -> poller -> tag store, plus status and console.
type Line struct {
	id      string
	serial  serialLine
	reader  *anchor.Reader
	poller  *poller.Poller
	tracker *status.Tracker
	writer  writer.Writer
	shell   *console.Shell
	sink    events.Sink
	log     zerolog.Logger

	// online is the last announced connection state; Run goroutine only.
	online bool
}

// BuildLine wires one normalized line config. No IO happens here.
func BuildLine(l cfg.LineConfig, w writer.Writer, tracker *status.Tracker, sink events.Sink, log zerolog.Logger) (*Line, error) {
	log = log.With().Str("line", l.ID).Logger()

	serial, err := transport.NewLine(serialConfig(l.Serial), nil, log)
	if err != nil {
		return nil, fmt.Errorf("line %s: %w", l.ID, err)
	}
	return newLine(l, serial, w, tracker, sink, log)
}

func newLine(l cfg.LineConfig, serial serialLine, w writer.Writer, tracker *status.Tracker, sink events.Sink, log zerolog.Logger) (*Line, error) {
	if tracker == nil {
		tracker = status.NewTracker()
	}
	if w == nil {
		w = writer.New(writer.Plan{LineID: l.ID}, tracker, nil)
	}
	if sink == nil {
		sink = events.Multi{}
	}

	reg := anchor.NewRegistry(addresses(l.Devices)...)
	reader := anchor.NewReader(anchorConfig(l.Protocol), serial, reg, log.With().Str("component", "anchor").Logger())

	p, err := poller.Build(l, reader, log)
	if err != nil {
		return nil, fmt.Errorf("line %s: %w", l.ID, err)
	}

	return &Line{
		id:      l.ID,
		serial:  serial,
		reader:  reader,
		poller:  p,
		tracker: tracker,
		writer:  w,
		shell:   console.NewShell(l.ID, reader, serial, p.Store(), log.With().Str("component", "console").Logger()),
		sink:    sink,
		log:     log,
	}, nil
}

func (l *Line) ID() string                   { return l.id }
func (l *Line) Connected() bool              { return l.serial.Connected() }
func (l *Line) PollCount() uint64            { return l.poller.PollCount() }
func (l *Line) Status() status.Snapshot      { return l.tracker.Snapshot() }
func (l *Line) Devices() []anchor.Descriptor { return l.reader.Registry().Devices() }
func (l *Line) Shell() *console.Shell        { return l.shell }

// History returns the current snapshot without touching the line.
func (l *Line) History() tags.Snapshot { return l.poller.Store().Load() }

func (l *Line) Interval() time.Duration { return l.poller.Interval() }

// SetInterval changes the polling interval at runtime; pacing restarts at once.
func (l *Line) SetInterval(d time.Duration) error { return l.poller.SetInterval(d) }

func (l *Line) TagIdle() time.Duration { return l.poller.TagIdle() }

// SetTagIdle changes how long a missing tag stays in the snapshot.
func (l *Line) SetTagIdle(d time.Duration) error { return l.poller.SetTagIdle(d) }

// PollNow asks for a cycle and returns the batch it read.
// An unacknowledged buffer still returns its records with the error.
func (l *Line) PollNow(ctx context.Context) ([]tags.Record, error) {
	res, err := l.poller.Request(ctx)
	if err != nil {
		return nil, err
	}
	if res.Err != nil && !res.Merged {
		return nil, res.Err
	}
	return res.Fresh, res.Err
}

// PollAndMerge asks for a cycle and returns the reconciled snapshot.
func (l *Line) PollAndMerge(ctx context.Context) (tags.Snapshot, error) {
	res, err := l.poller.Request(ctx)
	if err != nil {
		return tags.Snapshot{}, err
	}
	return res.Snapshot, res.Err
}

// Console runs one console command and returns its output lines.
func (l *Line) Console(ctx context.Context, args []string) ([]string, error) {
	var b console.Buffer
	err := l.shell.Exec(ctx, args, &b)
	if err != nil {
		l.commandFailed(args, err)
	}
	return b.Lines(), err
}

func (l *Line) commandFailed(args []string, err error) {
	e := events.New(events.CommandError, l.id)
	e.Text = fmt.Sprint(args)
	e.Error = err.Error()
	l.sink.Publish(e)
}

// Run opens the line, reads device info, then polls until ctx is done.
// Poll results feed the status tracker, the status mirror and the event sink.
// A line without configured devices is not polled; its status is Disabled
// and it only serves the console.
func (l *Line) Run(ctx context.Context) {
	defer func() {
		if err := l.serial.Close(); err != nil {
			l.log.Warn().Err(err).Msg("serial close failed")
		}
	}()

	err := l.serial.Open()
	l.online = err == nil
	if err != nil {
		// the reader reopens before every cycle
		l.log.Error().Err(err).Msg("serial open failed")
		l.connection("connection error", err)
	} else {
		l.connection("connected", nil)
	}

	polled := len(l.reader.Registry().Addresses()) > 0
	if !polled {
		l.tracker.Disable()
		l.log.Info().Msg("no devices configured, polling disabled")
	}

	if err := l.writer.Assert(); err != nil {
		l.log.Warn().Err(err).Msg("status write failed on start")
	}

	if !polled {
		<-ctx.Done()
		return
	}

	l.readInfo(ctx, l.reader.Registry().Devices())

	out := make(chan poller.PollResult)
	go l.poller.Run(ctx, out)

	secTicker := time.NewTicker(time.Second)
	defer secTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case res := <-out:
			l.handle(ctx, res)

		case <-secTicker.C:
			if err := l.writer.Tick(); err != nil {
				l.log.Warn().Err(err).Msg("status seconds tick write failed")
			}
		}
	}
}

// readInfo runs the info script for devs and reports the ones that failed.
func (l *Line) readInfo(ctx context.Context, devs []anchor.Descriptor) {
	for _, d := range devs {
		if ctx.Err() != nil {
			return
		}
		if _, err := l.reader.ReadInfo(d.Address); err != nil {
			l.log.Warn().Err(err).Uint8("address", d.Address).Msg("device info not read")
			l.fault(fmt.Sprintf("address %d", d.Address), err)
		}
	}
}

// unread returns the devices whose info is missing or stale.
func (l *Line) unread() []anchor.Descriptor {
	var out []anchor.Descriptor
	for _, d := range l.reader.Registry().Devices() {
		if d.State == anchor.StateUninitialized || d.State == anchor.StateFault {
			out = append(out, d)
		}
	}
	return out
}

func (l *Line) handle(ctx context.Context, res poller.PollResult) {
	before := l.tracker.Snapshot()
	if err := l.writer.Write(res); err != nil {
		l.log.Warn().Err(err).Msg("status write failed")
	}
	after := l.tracker.Snapshot()

	// the reader drops and reopens the line inside a cycle
	if up := l.serial.Connected(); up != l.online {
		l.online = up
		if up {
			l.log.Info().Msg("serial line reconnected")
			l.connection("connected", nil)
			l.readInfo(ctx, l.unread())
		} else {
			l.connection("disconnected", res.Err)
		}
	}

	if res.Merged {
		e := events.New(events.TagsUpdated, l.id)
		snap := res.Snapshot
		e.Snapshot = &snap
		l.sink.Publish(e)
	}
	if res.Err != nil {
		l.fault(protocol.Reason(res.Err), res.Err)
	}
	if after != before {
		e := events.New(events.LineStatus, l.id)
		e.Text = status.HealthText(after.Health)
		e.Status = &after
		l.sink.Publish(e)
	}
}

func (l *Line) connection(text string, err error) {
	e := events.New(events.LineConnection, l.id)
	e.Text = text
	if err != nil {
		e.Error = err.Error()
	}
	l.sink.Publish(e)
}

func (l *Line) fault(text string, err error) {
	e := events.New(events.Fault, l.id)
	e.Text = text
	if err != nil {
		e.Error = err.Error()
	}
	l.sink.Publish(e)
}

// IsNoData reports whether err means an on-demand caller got no answer in time.
func IsNoData(err error) bool {
	return errors.Is(err, protocol.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
