// internal/anchor/reader_test.go
package anchor

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/tamzrod/rfid-monitor/internal/protocol"
	"github.com/tamzrod/rfid-monitor/internal/tags"
)

// ---- fake anchors on a fake line ----

type fakeDevice struct {
	info     map[string]string
	inputs   map[uint16][]byte
	holding  map[uint16][]byte
	segments [][]byte // tag payload per buffer read
	repeat   bool     // resend the first segment forever
	badAck   bool
	badCRC   bool
}

type fakeLine struct {
	devices   map[byte]*fakeDevice
	sent      [][]byte
	connected bool
	opens     int

	// afterSend runs after every recorded frame.
	afterSend func(sent int)
}

func newFakeLine(devices map[byte]*fakeDevice) *fakeLine {
	return &fakeLine{devices: devices, connected: true}
}

func (l *fakeLine) Connected() bool { return l.connected }

func (l *fakeLine) Open() error {
	l.opens++
	l.connected = true
	return nil
}

func (l *fakeLine) Send(adu []byte) ([]byte, error) {
	resp, err := l.Exchange(adu)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, protocol.ErrEmpty
	}
	return resp, nil
}

func (l *fakeLine) Exchange(frame []byte) ([]byte, error) {
	if !l.connected {
		return nil, protocol.ErrIO
	}
	l.sent = append(l.sent, append([]byte(nil), frame...))
	if l.afterSend != nil {
		l.afterSend(len(l.sent))
	}
	if !protocol.Verify(frame) {
		return nil, nil
	}

	addr := frame[0]
	dev := l.devices[addr]
	if dev == nil {
		return nil, nil
	}
	body := frame[:len(frame)-protocol.CRCSize]

	switch frame[1] {
	case protocol.FuncInfo:
		name := string(body[6:])
		ans, ok := dev.info[name]
		if !ok {
			return nil, nil
		}
		data := []byte{protocol.InfoOperation, byte(len(ans) + 2), 0xFE, byte(len(ans))}
		return protocol.Build(addr, protocol.FuncInfo, append(data, ans...)...), nil

	case protocol.FuncReadInput, protocol.FuncReadHolding:
		regs := dev.inputs
		if frame[1] == protocol.FuncReadHolding {
			regs = dev.holding
		}
		v, ok := regs[binary.BigEndian.Uint16(body[2:4])]
		if !ok {
			return nil, nil
		}
		return protocol.Build(addr, frame[1], append([]byte{byte(len(v))}, v...)...), nil

	case protocol.FuncBuffer:
		sub := body[2]
		if sub == protocol.SubAck {
			if dev.badAck {
				return protocol.Build(addr, protocol.FuncBuffer, 0x15, 0x00, 0x16), nil
			}
			return append([]byte(nil), frame...), nil
		}
		if len(dev.segments) == 0 {
			return nil, nil
		}
		seg := dev.segments[0]
		if !dev.repeat {
			dev.segments = dev.segments[1:]
		}
		data := append([]byte{sub, 0x00, 0x16, byte(len(seg))}, seg...)
		out := protocol.Build(addr, protocol.FuncBuffer, data...)
		if dev.badCRC {
			out[len(out)-1] ^= 0xFF
		}
		return out, nil
	}
	return nil, nil
}

// subs returns the buffer sub-functions sent, in order.
func (l *fakeLine) subs() []byte {
	var out []byte
	for _, f := range l.sent {
		if f[1] == protocol.FuncBuffer {
			out = append(out, f[2])
		}
	}
	return out
}

func tagBytes(n int, firstID int, battery byte) []byte {
	out := make([]byte, 0, 4*n)
	for i := 0; i < n; i++ {
		id := firstID + i
		out = append(out, byte(id>>8), byte(id), 0x00, battery)
	}
	return out
}

func newTestReader(line Line, addrs ...byte) *Reader {
	return NewReader(DefaultConfig(), line, NewRegistry(addrs...), zerolog.Nop())
}

// ---- tag buffer ----

func TestReadTagsDecodesRecord(t *testing.T) {
	line := newFakeLine(map[byte]*fakeDevice{
		3: {segments: [][]byte{{0x00, 0x2A, 0x00, 0x32, 0x01, 0x00, 0x80, 0xFF}}},
	})
	r := newTestReader(line, 3)

	recs, err := r.ReadTags(context.Background(), 3)
	assert.NilError(t, err)
	assert.Equal(t, len(recs), 2)

	assert.Equal(t, recs[0].ID, 42)
	assert.Equal(t, uint8(recs[0].Flags), uint8(0x00))
	assert.Equal(t, recs[0].Battery, float32(5.0))

	assert.Equal(t, recs[1].ID, 256)
	assert.Check(t, recs[1].Flags.Charging())
	assert.Equal(t, recs[1].Battery, float32(-1))
}

func TestReadTagsSegmentedSingleAck(t *testing.T) {
	// 62 records = 248 data bytes, frame length 254 > 253: more follows
	first := tagBytes(62, 1, 0x25)
	second := []byte{0x00, 0x2A, 0x00, 0x32}

	line := newFakeLine(map[byte]*fakeDevice{
		5: {segments: [][]byte{first, second}},
	})
	r := newTestReader(line, 5)

	recs, err := r.ReadTags(context.Background(), 5)
	assert.NilError(t, err)
	assert.Equal(t, len(recs), 63)
	assert.Equal(t, recs[0].ID, 1)
	assert.Equal(t, recs[61].ID, 62)
	assert.Equal(t, recs[62].ID, 42)
	assert.Check(t, is.DeepEqual(line.subs(), []byte{protocol.SubRead, protocol.SubContinue, protocol.SubAck}))
}

func TestReadTagsThresholdBoundary(t *testing.T) {
	// 61 records + 3 spare bytes: frame length 253, not a continuation
	seg := append(tagBytes(61, 1, 0x25), 0x00, 0x07, 0x00)
	line := newFakeLine(map[byte]*fakeDevice{
		5: {segments: [][]byte{seg, tagBytes(1, 500, 0x30)}},
	})
	r := newTestReader(line, 5)

	recs, err := r.ReadTags(context.Background(), 5)
	assert.NilError(t, err)
	assert.Equal(t, len(recs), 61, "trailing partial record dropped")
	assert.Check(t, is.DeepEqual(line.subs(), []byte{protocol.SubRead, protocol.SubAck}))
}

func TestReadTagsQuietDevice(t *testing.T) {
	line := newFakeLine(map[byte]*fakeDevice{})
	r := newTestReader(line, 9)

	recs, err := r.ReadTags(context.Background(), 9)
	assert.NilError(t, err)
	assert.Equal(t, len(recs), 0)
	assert.Check(t, is.DeepEqual(line.subs(), []byte{protocol.SubRead}), "no ack without a read")
}

func TestReadTagsEmptyQueueStillAcked(t *testing.T) {
	line := newFakeLine(map[byte]*fakeDevice{4: {segments: [][]byte{{}}}})
	r := newTestReader(line, 4)

	recs, err := r.ReadTags(context.Background(), 4)
	assert.NilError(t, err)
	assert.Equal(t, len(recs), 0)
	assert.Check(t, is.DeepEqual(line.subs(), []byte{protocol.SubRead, protocol.SubAck}))
}

func TestReadTagsCRCMismatchAborts(t *testing.T) {
	line := newFakeLine(map[byte]*fakeDevice{
		2: {segments: [][]byte{tagBytes(2, 1, 0x30)}, badCRC: true},
	})
	r := newTestReader(line, 2)

	recs, err := r.ReadTags(context.Background(), 2)
	assert.Check(t, errors.Is(err, protocol.ErrCRCMismatch))
	assert.Check(t, recs == nil)
	assert.Check(t, is.DeepEqual(line.subs(), []byte{protocol.SubRead}))
}

func TestReadTagsAckMismatch(t *testing.T) {
	line := newFakeLine(map[byte]*fakeDevice{
		2: {segments: [][]byte{tagBytes(2, 1, 0x30)}, badAck: true},
	})
	r := newTestReader(line, 2)

	recs, err := r.ReadTags(context.Background(), 2)
	assert.Check(t, errors.Is(err, protocol.ErrAckMismatch))
	assert.Equal(t, len(recs), 2)
	assert.Equal(t, protocol.Reason(err), "ack mismatch")
}

func TestReadTagsSegmentLimit(t *testing.T) {
	// every answer announces more data
	line := newFakeLine(map[byte]*fakeDevice{
		5: {segments: [][]byte{tagBytes(62, 1, 0x25)}, repeat: true},
	})
	r := newTestReader(line, 5)

	recs, err := r.ReadTags(context.Background(), 5)
	assert.Check(t, errors.Is(err, protocol.ErrSegmentLimit))
	assert.Check(t, recs == nil)
	assert.Equal(t, protocol.Reason(err), "segment limit")
	assert.Check(t, is.DeepEqual(line.subs(), []byte{
		protocol.SubRead, protocol.SubContinue, protocol.SubContinue, protocol.SubContinue,
	}), "capped at DefaultMaxSegments, never acknowledged")
}

func TestReadTagsStopsOnContextCancel(t *testing.T) {
	line := newFakeLine(map[byte]*fakeDevice{
		5: {segments: [][]byte{tagBytes(62, 1, 0x25)}, repeat: true},
	})
	cfg := DefaultConfig()
	cfg.MaxSegments = 1000
	r := NewReader(cfg, line, NewRegistry(5), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	line.afterSend = func(sent int) {
		if sent == 2 {
			cancel()
		}
	}

	recs, err := r.ReadTags(ctx, 5)
	assert.Check(t, errors.Is(err, context.Canceled))
	assert.Check(t, recs == nil)
	assert.Check(t, is.DeepEqual(line.subs(), []byte{protocol.SubRead, protocol.SubContinue}))
}

func TestReadAllTagsSegmentLimitAbortsCycle(t *testing.T) {
	line := newFakeLine(map[byte]*fakeDevice{
		1: {segments: [][]byte{tagBytes(62, 1, 0x25)}, repeat: true},
		2: {segments: [][]byte{tagBytes(1, 20, 0x30)}},
	})
	r := newTestReader(line, 1, 2)

	done := make(chan struct{})
	var (
		recs []tags.Record
		err  error
	)
	go func() {
		defer close(done)
		recs, err = r.ReadAllTags(context.Background())
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ReadAllTags did not return")
	}

	assert.Check(t, errors.Is(err, protocol.ErrSegmentLimit))
	assert.Check(t, recs == nil)
	for _, f := range line.sent {
		assert.Check(t, f[0] != 2, "cycle must stop at the failing device")
	}
}

func TestReadAllTagsMarksAckFault(t *testing.T) {
	line := newFakeLine(map[byte]*fakeDevice{
		1: {segments: [][]byte{tagBytes(1, 10, 0x30)}, badAck: true},
		2: {segments: [][]byte{tagBytes(1, 20, 0x30)}},
	})
	r := newTestReader(line, 1, 2)

	recs, err := r.ReadAllTags(context.Background())
	assert.Check(t, errors.Is(err, protocol.ErrAckMismatch))
	assert.Equal(t, len(recs), 2)

	d1, _ := r.Registry().Find(1)
	d2, _ := r.Registry().Find(2)
	assert.Equal(t, d1.State, StateFault)
	assert.Equal(t, d2.State, StateUninitialized)
}

func TestReadAllTagsReopensLine(t *testing.T) {
	line := newFakeLine(map[byte]*fakeDevice{1: {segments: [][]byte{tagBytes(1, 10, 0x30)}}})
	line.connected = false
	r := newTestReader(line, 1)

	recs, err := r.ReadAllTags(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, line.opens, 1)
	assert.Equal(t, len(recs), 1)
}

func TestSendRawWaitsForBufferSequence(t *testing.T) {
	line := newFakeLine(map[byte]*fakeDevice{})
	line.connected = false
	r := newTestReader(line)

	frame := protocol.Append([]byte{0x07, 0x03, 0x00, 0x0A})

	// a buffer read and its ack hold ops for the whole sequence
	r.ops.Lock()
	done := make(chan error, 1)
	go func() {
		_, err := r.SendRaw(frame)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("raw frame sent while a sequence held the line")
	case <-time.After(30 * time.Millisecond):
	}
	r.ops.Unlock()

	select {
	case err := <-done:
		assert.NilError(t, err)
	case <-time.After(time.Second):
		t.Fatal("SendRaw did not return")
	}
	assert.Equal(t, line.opens, 1, "disconnected line reopened first")
	assert.Assert(t, is.Len(line.sent, 1))
	assert.DeepEqual(t, line.sent[0], frame)
}

// ---- info + discovery ----

func TestScanFindsOnlyAnsweringAddress(t *testing.T) {
	line := newFakeLine(map[byte]*fakeDevice{
		7: {info: map[string]string{CmdDeviceName: "ANCHOR-7"}},
	})
	r := newTestReader(line)

	probes, markers := 0, 0
	found, err := r.Scan(context.Background(), 1, 254, ScanOptions{
		OnProbe:    func(byte, string, bool) { probes++ },
		OnProgress: func(byte, int) { markers++ },
	})
	assert.NilError(t, err)
	assert.Check(t, is.DeepEqual(found, []Found{{Address: 7, Name: "ANCHOR-7"}}))
	assert.Equal(t, probes, 254)
	assert.Equal(t, markers, 12)
}

func TestScanRejectsBadRange(t *testing.T) {
	r := newTestReader(newFakeLine(nil))
	_, err := r.Scan(context.Background(), 0, 10, ScanOptions{})
	assert.ErrorContains(t, err, "invalid scan range")
}

func TestScanStopsOnCancel(t *testing.T) {
	r := newTestReader(newFakeLine(nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Scan(ctx, 1, 10, ScanOptions{})
	assert.Check(t, errors.Is(err, context.Canceled))
}

func TestProbeNameAbsent(t *testing.T) {
	r := newTestReader(newFakeLine(nil))
	_, err := r.ProbeName(12)
	assert.Check(t, errors.Is(err, protocol.ErrDeviceAbsent))
	assert.Equal(t, protocol.Reason(err), "device absent")
}

func TestReadInfoAssemblesDescriptor(t *testing.T) {
	line := newFakeLine(map[byte]*fakeDevice{
		1: {
			info: map[string]string{
				CmdDeviceName: "ANQ-01",
				CmdUID:        "3F00AA",
				CmdSerial:     "SN123",
				CmdAppVersion: "2.1.0",
			},
			inputs: map[uint16][]byte{
				RegTagAnqVpl:        {0x01, 0x02},
				RegSettingsCRC:      {0xBE, 0xEF},
				RegStartedYearMonth: {0x24, 0x03},
				RegStartedDayHour:   {0x15, 0x12},
				RegStartedMinSec:    {0x30, 0x45},
				RegUptimeStarted:    {0x00, 0x00, 0x01, 0x00},
			},
			holding: map[uint16][]byte{RegRTLSMode: {0x00, 0x02}},
		},
	})
	r := newTestReader(line, 1)
	now := time.Date(2024, 3, 20, 8, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	d, err := r.ReadInfo(1)
	assert.NilError(t, err)
	assert.Equal(t, d.Name, "ANQ-01")
	assert.Equal(t, d.UID, "3F00AA")
	assert.Equal(t, d.Serial, "SN123")
	assert.Equal(t, d.AppVersion, "2.1.0")
	assert.Equal(t, d.Hardware, "", "unanswered query stays empty")
	assert.Equal(t, d.TagAnqVpl, "0x0102")
	assert.Equal(t, d.SettingsCRC, "0xBEEF")
	assert.Equal(t, d.SrvAnqVpl, "")
	assert.Equal(t, d.RTLSMode, 3)
	assert.Assert(t, d.UptimeStarted != nil)
	assert.Equal(t, *d.UptimeStarted, int32(256))
	assert.Check(t, d.UptimeTotal == nil)
	assert.Assert(t, d.Started != nil)
	assert.Equal(t, d.Started.Format("2006-01-02 15:04:05"), "2024-03-15 12:30:45")
	assert.Equal(t, d.State, StateReady)

	stored, ok := r.Registry().Find(1)
	assert.Assert(t, ok)
	assert.Equal(t, stored.LastPoll, now)
	assert.Equal(t, stored.Name, "ANQ-01")
	assert.Equal(t, stored.State, StateReady)
}

func TestReadInfoAbsentMarksFault(t *testing.T) {
	r := newTestReader(newFakeLine(nil), 4)

	_, err := r.ReadInfo(4)
	assert.Check(t, errors.Is(err, protocol.ErrDeviceAbsent))

	d, ok := r.Registry().Find(4)
	assert.Assert(t, ok)
	assert.Equal(t, d.State, StateFault)
}

func TestRegistryKeepsDuplicates(t *testing.T) {
	reg := NewRegistry(1, 2)
	reg.Register(1)
	assert.Equal(t, reg.Len(), 3)
	assert.Check(t, is.DeepEqual(reg.Addresses(), []byte{1, 2, 1}))

	devs := reg.Devices()
	devs[0].Name = "changed"
	d, _ := reg.Find(1)
	assert.Equal(t, d.Name, "", "Devices returns copies")
}

func TestStartedTimeRejectsInvalid(t *testing.T) {
	_, ok := startedTime([6]int{24, 13, 1, 0, 0, 0})
	assert.Check(t, !ok)
	_, ok = startedTime([6]int{24, 2, 30, 0, 0, 0})
	assert.Check(t, !ok)
	_, ok = bcd(0x1A)
	assert.Check(t, !ok)
}
