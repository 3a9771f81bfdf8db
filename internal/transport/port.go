// internal/transport/port.go
package transport

import (
	"errors"
	"fmt"
	"io"
	"time"

	tarm "github.com/tarm/serial"
	bugst "go.bug.st/serial"
)

// Port is the physical handle the Line drives.
// Read MUST return (0, nil) or (0, io.EOF) when the read timeout elapses with no data.
type Port interface {
	io.ReadWriteCloser
}

// Opener acquires a Port for the given settings.
type Opener func(cfg Config) (Port, error)

// Driver names accepted in configuration.
const (
	DriverBugst = "bugst"
	DriverTarm  = "tarm"
)

// OpenerFor returns the opener for a driver name.
func OpenerFor(driver string) (Opener, error) {
	switch driver {
	case "", DriverBugst:
		return openBugst, nil
	case DriverTarm:
		return openTarm, nil
	default:
		return nil, fmt.Errorf("transport: unknown driver %q", driver)
	}
}

// Ports lists the serial ports visible to the host.
func Ports() ([]string, error) {
	return bugst.GetPortsList()
}

// ---- go.bug.st/serial ----

func bugstParity(s string) (bugst.Parity, error) {
	switch s {
	case "", "none":
		return bugst.NoParity, nil
	case "odd":
		return bugst.OddParity, nil
	case "even":
		return bugst.EvenParity, nil
	case "mark":
		return bugst.MarkParity, nil
	case "space":
		return bugst.SpaceParity, nil
	default:
		return bugst.NoParity, fmt.Errorf("invalid parity %q: use none, odd, even, mark, or space", s)
	}
}

func bugstStopBits(n int) (bugst.StopBits, error) {
	switch n {
	case 0, 1:
		return bugst.OneStopBit, nil
	case 2:
		return bugst.TwoStopBits, nil
	default:
		return bugst.OneStopBit, fmt.Errorf("invalid stop bits %d: use 1 or 2", n)
	}
}

func openBugst(cfg Config) (Port, error) {
	parity, err := bugstParity(cfg.Parity)
	if err != nil {
		return nil, err
	}
	stop, err := bugstStopBits(cfg.StopBits)
	if err != nil {
		return nil, err
	}

	p, err := bugst.Open(cfg.Port, &bugst.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   parity,
		StopBits: stop,
	})
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

// ---- github.com/tarm/serial ----

func tarmParity(s string) (tarm.Parity, error) {
	switch s {
	case "", "none":
		return tarm.ParityNone, nil
	case "odd":
		return tarm.ParityOdd, nil
	case "even":
		return tarm.ParityEven, nil
	case "mark":
		return tarm.ParityMark, nil
	case "space":
		return tarm.ParitySpace, nil
	default:
		return tarm.ParityNone, fmt.Errorf("invalid parity %q: use none, odd, even, mark, or space", s)
	}
}

// tarmPort maps the driver's io.EOF-on-timeout to the Port contract.
type tarmPort struct {
	*tarm.Port
}

func (p tarmPort) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

func openTarm(cfg Config) (Port, error) {
	parity, err := tarmParity(cfg.Parity)
	if err != nil {
		return nil, err
	}
	stop := tarm.Stop1
	if cfg.StopBits == 2 {
		stop = tarm.Stop2
	}

	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = 50 * time.Millisecond
	}

	p, err := tarm.OpenPort(&tarm.Config{
		Name:        cfg.Port,
		Baud:        cfg.BaudRate,
		Size:        byte(cfg.DataBits),
		Parity:      parity,
		StopBits:    stop,
		ReadTimeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	return tarmPort{p}, nil
}
