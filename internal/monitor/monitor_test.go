// internal/monitor/monitor_test.go
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	cfg "github.com/tamzrod/rfid-monitor/internal/config"
	"github.com/tamzrod/rfid-monitor/internal/events"
	"github.com/tamzrod/rfid-monitor/internal/protocol"
	"github.com/tamzrod/rfid-monitor/internal/status"
)

// quietSerial is a line where no device ever answers.
type quietSerial struct {
	mu     sync.Mutex
	open   bool
	frames int

	// failNext frames fail with an io error and drop the line.
	failNext int
}

func (q *quietSerial) Name() string { return "/dev/ttyQUIET" }

func (q *quietSerial) Exchange(frame []byte) ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.open {
		return nil, protocol.ErrIO
	}
	q.frames++
	if q.failNext > 0 {
		q.failNext--
		q.open = false
		return nil, fmt.Errorf("%w: read /dev/ttyQUIET: device reset", protocol.ErrIO)
	}
	return nil, nil
}

func (q *quietSerial) dropNext() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failNext = 1
}

func (q *quietSerial) Send(adu []byte) ([]byte, error) { return nil, protocol.ErrEmpty }

func (q *quietSerial) Connected() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.open
}

func (q *quietSerial) Open() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.open = true
	return nil
}

func (q *quietSerial) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.open = false
	return nil
}

func testLineConfig(id string, intervalMs int) cfg.LineConfig {
	c := cfg.Config{Monitor: cfg.MonitorConfig{Lines: []cfg.LineConfig{{
		ID:      id,
		Serial:  cfg.SerialConfig{Port: "/dev/ttyQUIET"},
		Devices: []cfg.DeviceConfig{{Address: 3}},
		Poll:    cfg.PollConfig{IntervalMs: intervalMs},
	}}}}
	cfg.Normalize(&c)
	return c.Monitor.Lines[0]
}

func waitFor(t *testing.T, ch <-chan events.Event, typ events.Type) events.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("no %s event", typ)
			return events.Event{}
		}
	}
}

func TestLineRunPublishesEvents(t *testing.T) {
	hub := events.NewHub()
	_, ch := hub.Subscribe(64)

	serial := &quietSerial{}
	l, err := newLine(testLineConfig("l1", 0), serial, nil, nil, hub, zerolog.Nop())
	assert.NilError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	// the configured device never answers its name probe
	fault := waitFor(t, ch, events.Fault)
	assert.Equal(t, fault.Line, "l1")
	assert.Equal(t, fault.Text, "address 3")

	recs, err := l.PollNow(ctx)
	assert.NilError(t, err)
	assert.Assert(t, is.Len(recs, 0))

	upd := waitFor(t, ch, events.TagsUpdated)
	assert.Assert(t, upd.Snapshot != nil)

	st := waitFor(t, ch, events.LineStatus)
	assert.Equal(t, st.Status.Health, status.HealthOK)
	assert.Equal(t, l.Status().PollCount, uint32(1))
	assert.Equal(t, l.PollCount(), uint64(1))

	cancel()
	<-done
	assert.Assert(t, !serial.Connected())
}

func TestLineAnnouncesConnectionChanges(t *testing.T) {
	hub := events.NewHub()
	_, ch := hub.Subscribe(64)

	serial := &quietSerial{}
	l, err := newLine(testLineConfig("l1", 0), serial, nil, nil, hub, zerolog.Nop())
	assert.NilError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	up := waitFor(t, ch, events.LineConnection)
	assert.Equal(t, up.Line, "l1")
	assert.Equal(t, up.Text, "connected")
	assert.Equal(t, waitFor(t, ch, events.Fault).Text, "address 3")

	// the line drops in the middle of a cycle
	serial.dropNext()
	_, err = l.PollNow(ctx)
	assert.Check(t, errors.Is(err, protocol.ErrIO))

	down := waitFor(t, ch, events.LineConnection)
	assert.Equal(t, down.Text, "disconnected")
	assert.Assert(t, is.Contains(down.Error, "device reset"))

	// the next cycle reopens it and re-reads the device info
	_, err = l.PollNow(ctx)
	assert.NilError(t, err)

	up = waitFor(t, ch, events.LineConnection)
	assert.Equal(t, up.Text, "connected")
	refresh := waitFor(t, ch, events.Fault)
	assert.Equal(t, refresh.Text, "address 3")
	assert.Assert(t, is.Contains(refresh.Error, "device absent"))
}

func TestLineWithoutDevicesIsDisabled(t *testing.T) {
	hub := events.NewHub()
	_, ch := hub.Subscribe(16)

	c := testLineConfig("l1", 10)
	c.Devices = nil

	serial := &quietSerial{}
	l, err := newLine(c, serial, nil, nil, hub, zerolog.Nop())
	assert.NilError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	assert.Equal(t, waitFor(t, ch, events.LineConnection).Text, "connected")

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, l.Status().Health, status.HealthDisabled)
	assert.Equal(t, l.PollCount(), uint64(0))
	serial.mu.Lock()
	defer serial.mu.Unlock()
	assert.Equal(t, serial.frames, 0, "nothing is polled")
}

func TestLineConsoleFailurePublishesCommandError(t *testing.T) {
	hub := events.NewHub()
	_, ch := hub.Subscribe(8)

	l, err := newLine(testLineConfig("l1", 0), &quietSerial{}, nil, nil, hub, zerolog.Nop())
	assert.NilError(t, err)

	lines, err := l.Console(context.Background(), []string{"BOGUS"})
	assert.Assert(t, err != nil)
	assert.DeepEqual(t, lines, []string{"unknown command: BOGUS"})

	e := waitFor(t, ch, events.CommandError)
	assert.Equal(t, e.Text, "[BOGUS]")

	lines, err = l.Console(context.Background(), []string{"SEND", "0x03"})
	assert.NilError(t, err)
	assert.DeepEqual(t, lines, []string{"no data"})
}

func TestLineRuntimeInterval(t *testing.T) {
	l, err := newLine(testLineConfig("l1", 1000), &quietSerial{}, nil, nil, nil, zerolog.Nop())
	assert.NilError(t, err)

	assert.Equal(t, l.Interval(), time.Second)
	assert.NilError(t, l.SetInterval(250*time.Millisecond))
	assert.Equal(t, l.Interval(), 250*time.Millisecond)
	assert.Assert(t, l.SetInterval(-time.Second) != nil)

	devs := l.Devices()
	assert.Assert(t, is.Len(devs, 1))
	assert.Equal(t, devs[0].Address, byte(3))
	assert.Assert(t, is.Len(l.History().Tags, 0))
}

func TestPollNowTimesOutWithoutRunLoop(t *testing.T) {
	c := testLineConfig("l1", 0)
	c.Poll.RequestTimeoutMs = 20

	l, err := newLine(c, &quietSerial{}, nil, nil, nil, zerolog.Nop())
	assert.NilError(t, err)

	_, err = l.PollNow(context.Background())
	assert.Assert(t, IsNoData(err))
}

func TestServiceNew(t *testing.T) {
	c := &cfg.Config{Monitor: cfg.MonitorConfig{Lines: []cfg.LineConfig{
		{ID: "a", Serial: cfg.SerialConfig{Port: "/dev/ttyA"}, Devices: []cfg.DeviceConfig{{Address: 1}}},
		{ID: "b", Serial: cfg.SerialConfig{Port: "/dev/ttyB"}, Devices: []cfg.DeviceConfig{{Address: 2}}},
	}}}
	cfg.Normalize(c)

	s, err := New(c, events.Multi{}, zerolog.Nop())
	assert.NilError(t, err)

	assert.Assert(t, is.Len(s.Lines(), 2))
	b, ok := s.Line("b")
	assert.Assert(t, ok)
	assert.Equal(t, b.ID(), "b")
	_, ok = s.Line("c")
	assert.Assert(t, !ok)

	shells := s.Shells()
	assert.Equal(t, shells[0].LineID(), "a")
	assert.Equal(t, shells[1].LineID(), "b")

	_, err = New(nil, nil, zerolog.Nop())
	assert.Assert(t, err != nil)
}
