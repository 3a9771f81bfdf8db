// internal/anchor/info.go
package anchor

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/tamzrod/rfid-monitor/internal/protocol"
)

// ScanProgressEvery is how many probed addresses separate two progress markers.
const ScanProgressEvery = 20

// Found is one device answering a discovery sweep.
type Found struct {
	Address byte   `json:"address"`
	Name    string `json:"name"`
}

// ScanOptions receives discovery feedback. Both callbacks are optional.
type ScanOptions struct {
	// OnProbe runs after every probed address.
	OnProbe func(address byte, name string, found bool)
	// OnProgress runs after every ScanProgressEvery probed addresses.
	OnProgress func(address byte, probed int)
}

// ProbeName asks address for its device name.
// No valid answer within the read window is protocol.ErrDeviceAbsent;
// only transport failures come back as protocol.ErrIO.
func (r *Reader) ProbeName(address byte) (string, error) {
	r.ops.Lock()
	defer r.ops.Unlock()
	return r.probeName(address)
}

func (r *Reader) probeName(address byte) (string, error) {
	name, err := r.queryString(address, CmdDeviceName)
	if err == nil {
		return name, nil
	}
	if errors.Is(err, protocol.ErrIO) {
		return "", err
	}
	return "", fmt.Errorf("%w: address %d: %v", protocol.ErrDeviceAbsent, address, err)
}

// queryString runs one named info query and decodes its ASCII answer.
func (r *Reader) queryString(address byte, command string) (string, error) {
	f, err := r.request(protocol.BuildInfoRequest(address, protocol.FuncInfo, protocol.InfoOperation, command))
	if err != nil {
		return "", err
	}
	if f.Address() != address {
		return "", fmt.Errorf("answer from address %d", f.Address())
	}
	if f.Function()&0x80 != 0 {
		return "", fmt.Errorf("exception 0x%02X to %s", f.Function(), command)
	}
	s, ok := f.InfoString()
	if !ok {
		return "", fmt.Errorf("%w: %s answer too short", protocol.ErrTruncated, command)
	}
	return s, nil
}

// ReadInfo runs the scripted info sequence against address and publishes
// the descriptor into the registry when the address is registered.
// Failed field queries leave the field empty; only a failed name probe
// fails the call.
func (r *Reader) ReadInfo(address byte) (Descriptor, error) {
	r.ops.Lock()
	defer r.ops.Unlock()

	if err := r.ensureOpen(); err != nil {
		return Descriptor{}, err
	}

	r.reg.setState(address, StateInitializing)

	name, err := r.probeName(address)
	if err != nil {
		r.reg.setState(address, StateFault)
		return Descriptor{}, err
	}

	log := r.log.With().Uint8("address", address).Logger()
	d := Descriptor{Address: address, Name: name}

	for _, f := range infoFields {
		v, err := r.queryString(address, f.command)
		if err != nil {
			log.Debug().Err(err).Str("command", f.command).Msg("info query failed")
			continue
		}
		f.set(&d, v)
	}

	c := r.client(address)

	for _, f := range hexFields {
		b, err := c.ReadInputRegisters(f.register, 1)
		if err != nil {
			log.Debug().Err(err).Uint16("register", f.register).Msg("register read failed")
			continue
		}
		f.set(&d, protocol.HexString(b))
	}

	d.UptimeStarted = r.readInt32(address, RegUptimeStarted)
	d.UptimeTotal = r.readInt32(address, RegUptimeTotal)

	if b, err := c.ReadHoldingRegisters(RegRTLSMode, 1); err == nil && len(b) >= 2 {
		d.RTLSMode = int(binary.BigEndian.Uint16(b)) + 1
	} else if err != nil {
		log.Debug().Err(err).Msg("rtls mode read failed")
	}

	if t, ok := r.readStarted(address); ok {
		d.Started = &t
	}

	d.LastPoll = r.now()
	d.State = StateReady

	r.reg.update(address, func(p *Descriptor) { *p = d })

	log.Info().Str("name", d.Name).Str("uid", d.UID).Msg("device info read")
	return d, nil
}

func (r *Reader) readInt32(address byte, register uint16) *int32 {
	b, err := r.client(address).ReadInputRegisters(register, 2)
	if err != nil || len(b) < 4 {
		return nil
	}
	v := int32(binary.BigEndian.Uint32(b))
	return &v
}

// readStarted decodes the start timestamp from three BCD registers.
func (r *Reader) readStarted(address byte) (time.Time, bool) {
	c := r.client(address)

	var parts [6]int
	for i, reg := range []uint16{RegStartedYearMonth, RegStartedDayHour, RegStartedMinSec} {
		b, err := c.ReadInputRegisters(reg, 1)
		if err != nil || len(b) < 2 {
			return time.Time{}, false
		}
		hi, ok1 := bcd(b[0])
		lo, ok2 := bcd(b[1])
		if !ok1 || !ok2 {
			return time.Time{}, false
		}
		parts[2*i], parts[2*i+1] = hi, lo
	}
	return startedTime(parts)
}

// startedTime builds a timestamp from YY, MM, DD, hh, mm, ss and rejects
// values time.Date would silently normalize.
func startedTime(p [6]int) (time.Time, bool) {
	t := time.Date(2000+p[0], time.Month(p[1]), p[2], p[3], p[4], p[5], 0, time.Local)
	if t.Year() != 2000+p[0] || int(t.Month()) != p[1] || t.Day() != p[2] ||
		t.Hour() != p[3] || t.Minute() != p[4] || t.Second() != p[5] {
		return time.Time{}, false
	}
	return t, true
}

func bcd(b byte) (int, bool) {
	hi, lo := int(b>>4), int(b&0x0F)
	if hi > 9 || lo > 9 {
		return 0, false
	}
	return hi*10 + lo, true
}

// Scan probes every address in [from, to] for a device name.
// Quiet or garbled addresses are skipped; a transport failure or ctx
// cancellation stops the sweep and returns what was found so far.
func (r *Reader) Scan(ctx context.Context, from, to int, opt ScanOptions) ([]Found, error) {
	if from < 1 || to > 255 || from > to {
		return nil, fmt.Errorf("anchor: invalid scan range %d..%d", from, to)
	}
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}

	var found []Found
	probed := 0

	for a := from; a <= to; a++ {
		if err := ctx.Err(); err != nil {
			return found, err
		}

		addr := byte(a)
		name, err := r.ProbeName(addr)
		if err != nil && !errors.Is(err, protocol.ErrDeviceAbsent) {
			return found, err
		}
		ok := err == nil
		if ok {
			found = append(found, Found{Address: addr, Name: name})
			r.log.Info().Uint8("address", addr).Str("name", name).Msg("device found")
		}

		if opt.OnProbe != nil {
			opt.OnProbe(addr, name, ok)
		}
		probed++
		if probed%ScanProgressEvery == 0 && opt.OnProgress != nil {
			opt.OnProgress(addr, probed)
		}
	}
	return found, nil
}
