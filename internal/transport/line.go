// internal/transport/line.go
package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/rfid-monitor/internal/protocol"
)

// Config is the serial link setup. Immutable once the line is opened.
type Config struct {
	Port        string
	Driver      string
	BaudRate    int
	DataBits    int
	Parity      string
	StopBits    int
	FlowControl string

	// ReadTimeout is the quiet gap that ends a response.
	ReadTimeout time.Duration
	// ResponseTimeout bounds the wait for the first response byte.
	ResponseTimeout time.Duration
	// BufferSize caps one response.
	BufferSize int
}

// Line is one half-duplex serial line shared by every device on it.
// Exchange holds the line lock from write until the response is consumed.
type Line struct {
	cfg  Config
	open Opener
	log  zerolog.Logger

	xmu sync.Mutex // one exchange in flight

	mu      sync.RWMutex
	port    Port
	lastErr error
}

// NewLine creates a closed line. A nil opener selects the driver from cfg.
func NewLine(cfg Config, open Opener, log zerolog.Logger) (*Line, error) {
	if cfg.Port == "" {
		return nil, errors.New("transport: port required")
	}
	if open == nil {
		o, err := OpenerFor(cfg.Driver)
		if err != nil {
			return nil, err
		}
		open = o
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 512
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 50 * time.Millisecond
	}
	if cfg.ResponseTimeout < cfg.ReadTimeout {
		cfg.ResponseTimeout = cfg.ReadTimeout
	}
	return &Line{
		cfg:  cfg,
		open: open,
		log:  log.With().Str("port", cfg.Port).Logger(),
	}, nil
}

// Name returns the configured port name.
func (l *Line) Name() string { return l.cfg.Port }

// Config returns a copy of the line settings.
func (l *Line) Config() Config { return l.cfg }

// Open acquires the port, closing any prior handle first.
// Failures are recorded and returned, never retried here.
func (l *Line) Open() error {
	l.xmu.Lock()
	defer l.xmu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port != nil {
		_ = l.port.Close()
		l.port = nil
	}

	p, err := l.open(l.cfg)
	if err != nil {
		l.lastErr = fmt.Errorf("%w: open %s: %v", protocol.ErrIO, l.cfg.Port, err)
		return l.lastErr
	}
	l.port = p
	l.lastErr = nil
	l.log.Info().Int("baud", l.cfg.BaudRate).Str("parity", l.cfg.Parity).Msg("serial line opened")
	return nil
}

// Close releases the port. Safe when already closed.
// An exchange in progress is ended by its own read timeout.
func (l *Line) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	l.log.Info().Msg("serial line closed")
	return err
}

// Connected reports whether a port handle is held.
func (l *Line) Connected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.port != nil
}

// LastError returns the most recent open/io failure, nil after a successful open.
func (l *Line) LastError() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastErr
}

// Exchange writes one frame and reads the response under the line lock.
// It returns (nil, nil) when nothing arrived within the response window.
func (l *Line) Exchange(frame []byte) ([]byte, error) {
	l.xmu.Lock()
	defer l.xmu.Unlock()

	if err := l.write(frame); err != nil {
		return nil, err
	}
	return l.read()
}

// Write sends one frame under the line lock without reading.
func (l *Line) Write(frame []byte) error {
	l.xmu.Lock()
	defer l.xmu.Unlock()
	return l.write(frame)
}

// Read reads one response under the line lock.
func (l *Line) Read() ([]byte, error) {
	l.xmu.Lock()
	defer l.xmu.Unlock()
	return l.read()
}

// Send implements modbus.Transporter: an empty window is protocol.ErrEmpty.
func (l *Line) Send(adu []byte) ([]byte, error) {
	resp, err := l.Exchange(adu)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, protocol.ErrEmpty
	}
	return resp, nil
}

func (l *Line) current() Port {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.port
}

func (l *Line) write(frame []byte) error {
	p := l.current()
	if p == nil {
		return fmt.Errorf("%w: line %s not open", protocol.ErrIO, l.cfg.Port)
	}

	l.log.Debug().Hex("tx", frame).Msg("TX")

	for len(frame) > 0 {
		n, err := p.Write(frame)
		if err != nil {
			return l.fail("write", err)
		}
		frame = frame[n:]
	}
	return nil
}

// read accumulates bytes until the buffer is full or the line goes quiet.
// Before the first byte it keeps polling until ResponseTimeout.
func (l *Line) read() ([]byte, error) {
	p := l.current()
	if p == nil {
		return nil, fmt.Errorf("%w: line %s not open", protocol.ErrIO, l.cfg.Port)
	}

	buf := make([]byte, 0, l.cfg.BufferSize)
	chunk := make([]byte, l.cfg.BufferSize)
	deadline := time.Now().Add(l.cfg.ResponseTimeout)

	for len(buf) < l.cfg.BufferSize {
		n, err := p.Read(chunk[:l.cfg.BufferSize-len(buf)])
		if err != nil {
			return nil, l.fail("read", err)
		}
		if n == 0 {
			if len(buf) > 0 || !time.Now().Before(deadline) {
				break
			}
			continue
		}
		buf = append(buf, chunk[:n]...)
	}

	if len(buf) == 0 {
		l.log.Debug().Msg("RX: no data")
		return nil, nil
	}
	l.log.Debug().Hex("rx", buf).Msg("RX")
	return buf, nil
}

// fail records an io error and drops the handle so the next cycle reopens.
func (l *Line) fail(op string, err error) error {
	wrapped := fmt.Errorf("%w: %s %s: %v", protocol.ErrIO, op, l.cfg.Port, err)

	l.mu.Lock()
	if l.port != nil {
		_ = l.port.Close()
		l.port = nil
	}
	l.lastErr = wrapped
	l.mu.Unlock()

	l.log.Warn().Err(err).Str("op", op).Msg("serial line failed, marked disconnected")
	return wrapped
}
