// internal/anchor/buffer.go
package anchor

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/tamzrod/rfid-monitor/internal/protocol"
	"github.com/tamzrod/rfid-monitor/internal/tags"
)

const (
	// tagOffset is where tag records start inside a buffer response.
	tagOffset = 6
	// tagRecordSize: id hi, id lo, flags, battery.
	tagRecordSize = 4

	batteryFaultRaw byte = 0xFF
)

// ReadTags drains the tag queue of one device and acknowledges it.
//
// The device signals "more follows" by answering with a frame longer than
// ContinueThreshold; the loop then switches to the continue sub-function.
// A device that never answers the first read yields no tags, no error and
// no acknowledge. A CRC mismatch aborts the read. A missing or wrong
// acknowledge echo returns the decoded tags together with
// protocol.ErrAckMismatch. A device still announcing more data after
// Config.MaxSegments segments fails with protocol.ErrSegmentLimit and is
// not acknowledged; so is a read interrupted by ctx.
func (r *Reader) ReadTags(ctx context.Context, address byte) ([]tags.Record, error) {
	r.ops.Lock()
	defer r.ops.Unlock()

	var out []tags.Record

	sub := protocol.SubRead
	segments := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := r.line.Exchange(protocol.BuildBufferOp(address, sub, r.cfg.BufferID, protocol.ReadAll))
		if err != nil {
			return nil, err
		}

		f, err := protocol.ParseResponse(raw)
		switch {
		case errors.Is(err, protocol.ErrCRCMismatch):
			return nil, fmt.Errorf("anchor %d: buffer read aborted: %w", address, err)
		case err != nil:
			// quiet or truncated
			if segments == 0 {
				return nil, nil
			}
		default:
			if f.Address() != address || f.Function() != protocol.FuncBuffer {
				return nil, fmt.Errorf("anchor %d: unexpected buffer answer % X", address, f.Raw)
			}
			out = append(out, r.decodeTags(f)...)
			segments++
		}

		if err != nil || f.Len() <= r.cfg.ContinueThreshold {
			break
		}
		if segments >= r.cfg.MaxSegments {
			return nil, fmt.Errorf("%w: anchor %d: still more data after %d segments", protocol.ErrSegmentLimit, address, segments)
		}
		sub = protocol.SubContinue
	}

	if err := r.ack(address); err != nil {
		return out, err
	}
	return out, nil
}

// decodeTags splits the data of one buffer segment into tag records.
// A trailing partial record is dropped.
func (r *Reader) decodeTags(f protocol.Frame) []tags.Record {
	if f.Len() <= tagOffset {
		return nil
	}
	data := f.Raw[tagOffset:]
	out := make([]tags.Record, 0, len(data)/tagRecordSize)

	for i := 0; i+tagRecordSize <= len(data); i += tagRecordSize {
		rec := tags.Record{
			ID:    int(data[i])<<8 | int(data[i+1]),
			Flags: tags.Flags(data[i+2]),
		}
		if data[i+3] == batteryFaultRaw {
			rec.Battery = r.cfg.BatteryFault
		} else {
			rec.Battery = float32(data[i+3]) / 10
		}
		out = append(out, rec)
	}
	return out
}

// ack clears the device queue. The device MUST echo the request verbatim.
func (r *Reader) ack(address byte) error {
	req := protocol.BuildBufferOp(address, protocol.SubAck, r.cfg.BufferID)

	raw, err := r.line.Exchange(req)
	if err != nil {
		return err
	}
	f, err := protocol.ParseResponse(raw)
	if err != nil {
		return fmt.Errorf("%w: anchor %d: %v", protocol.ErrAckMismatch, address, err)
	}
	if !bytes.Equal(f.Raw, req[:len(req)-protocol.CRCSize]) {
		return fmt.Errorf("%w: anchor %d: echo % X", protocol.ErrAckMismatch, address, f.Raw)
	}
	return nil
}

// ReadAllTags runs one buffer-read cycle over every registered device.
//
// A disconnected line is reopened first. Transport failures and CRC
// mismatches abort the whole cycle. An acknowledge mismatch marks that
// device Fault, keeps its tags and lets the cycle continue; the mismatch
// is returned alongside the tags.
func (r *Reader) ReadAllTags(ctx context.Context) ([]tags.Record, error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}

	var (
		out  []tags.Record
		errs []error
	)

	for _, addr := range r.reg.Addresses() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		recs, err := r.ReadTags(ctx, addr)
		out = append(out, recs...)

		switch {
		case err == nil:
			r.reg.update(addr, func(d *Descriptor) {
				if d.State == StateFault {
					d.State = StateReady
				}
			})
		case errors.Is(err, protocol.ErrAckMismatch):
			r.reg.setState(addr, StateFault)
			r.log.Error().Err(err).Uint8("address", addr).Msg("tag buffer not acknowledged")
			errs = append(errs, err)
		default:
			return nil, err
		}
	}

	return out, errors.Join(errs...)
}
