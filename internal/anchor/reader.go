// internal/anchor/reader.go
package anchor

import (
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"

	"github.com/tamzrod/rfid-monitor/internal/protocol"
)

// Line is the half-duplex link the reader talks through.
// transport.Line satisfies it.
type Line interface {
	// Exchange returns (nil, nil) when the device stayed quiet.
	Exchange(frame []byte) ([]byte, error)
	// Send is the modbus.Transporter side: quiet is protocol.ErrEmpty.
	Send(adu []byte) ([]byte, error)

	Connected() bool
	Open() error
}

// Config holds the buffer protocol constants of one line.
type Config struct {
	BufferID uint16

	// ContinueThreshold: a buffer response longer than this (CRC excluded)
	// means more data follows.
	ContinueThreshold int

	// MaxSegments caps the buffer reads of one drain. A device still
	// announcing more data after that many segments fails the read.
	MaxSegments int

	// BatteryFault is the voltage recorded for the 0xFF battery byte.
	BatteryFault float32
}

// DefaultMaxSegments: a 256 byte device queue fits in two segments of
// 249 data bytes; the rest is margin.
const DefaultMaxSegments = 4

// DefaultConfig matches the observed anchor firmware.
func DefaultConfig() Config {
	return Config{
		BufferID:          protocol.TagBufferID,
		ContinueThreshold: 253,
		MaxSegments:       DefaultMaxSegments,
		BatteryFault:      -1,
	}
}

// Reader runs info queries and buffer reads for the devices of one line.
// Every frame goes through the line's exchange lock; multi-frame
// sequences (buffer read + ack, info script) also hold ops.
type Reader struct {
	cfg  Config
	line Line
	reg  *Registry
	log  zerolog.Logger

	ops sync.Mutex

	now func() time.Time
}

func NewReader(cfg Config, line Line, reg *Registry, log zerolog.Logger) *Reader {
	if cfg.BufferID == 0 {
		cfg.BufferID = protocol.TagBufferID
	}
	if cfg.ContinueThreshold <= 0 {
		cfg.ContinueThreshold = 253
	}
	if cfg.MaxSegments <= 0 {
		cfg.MaxSegments = DefaultMaxSegments
	}
	if reg == nil {
		reg = NewRegistry()
	}
	return &Reader{
		cfg:  cfg,
		line: line,
		reg:  reg,
		log:  log,
		now:  time.Now,
	}
}

// Registry returns the device list the reader maintains.
func (r *Reader) Registry() *Registry { return r.reg }

// Config returns the reader protocol constants.
func (r *Reader) Config() Config { return r.cfg }

// client returns a goburrow client speaking RTU framing to one address over the shared line.
func (r *Reader) client(address byte) modbus.Client {
	return modbus.NewClient2(protocol.Packager{Address: address}, r.line)
}

// ensureOpen reopens a line that a previous failure marked disconnected.
func (r *Reader) ensureOpen() error {
	if r.line.Connected() {
		return nil
	}
	return r.line.Open()
}

// SendRaw sends one caller-built frame and returns the raw answer,
// nil when the device stayed quiet. It waits for any buffer read or info
// sequence in progress, so a raw frame never lands between a read and its ack.
func (r *Reader) SendRaw(frame []byte) ([]byte, error) {
	r.ops.Lock()
	defer r.ops.Unlock()

	if err := r.ensureOpen(); err != nil {
		return nil, err
	}
	return r.line.Exchange(frame)
}

// request sends one frame and validates the answer.
// A quiet line is protocol.ErrEmpty.
func (r *Reader) request(frame []byte) (protocol.Frame, error) {
	raw, err := r.line.Exchange(frame)
	if err != nil {
		return protocol.Frame{}, err
	}
	return protocol.ParseResponse(raw)
}
