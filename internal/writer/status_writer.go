// internal/writer/status_writer.go
package writer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/rfid-monitor/internal/status"
)

// StatusWriter is the delivery-only contract for line status.
// It receives a snapshot and writes it verbatim.
// No logic, no interpretation.
type StatusWriter interface {
	WriteStatus(s status.Snapshot) error
}

// deviceStatusWriter writes one line's block into status memory.
type deviceStatusWriter struct {
	plan *StatusPlan
	cli  endpointClient

	needFull bool
	last     status.Snapshot
}

// NewDeviceStatusWriter builds a status writer if status is enabled for the line.
// If plan.Status is nil, status is disabled.
func NewDeviceStatusWriter(plan Plan, clients map[string]endpointClient) (*deviceStatusWriter, bool) {
	if plan.Status == nil {
		return nil, false
	}

	sp := plan.Status

	return &deviceStatusWriter{
		plan:     sp,
		cli:      clients[sp.Endpoint],
		needFull: true, // full re-assert on first successful write
		last:     status.Snapshot{Health: status.HealthUnknown},
	}, true
}

// WriteStatus delivers a line status snapshot into status memory.
// On any write failure, the next successful call will re-assert the full block.
func (sw *deviceStatusWriter) WriteStatus(s status.Snapshot) error {
	if sw == nil || sw.plan == nil {
		return errors.New("status writer: disabled")
	}
	if sw.cli == nil {
		return fmt.Errorf("status writer: missing client for endpoint %s", sw.plan.Endpoint)
	}
	if sw.plan.UnitID > 255 {
		return fmt.Errorf("status writer: unit id %d out of range", sw.plan.UnitID)
	}

	baseAddr := sw.baseAddr()
	unitID := uint8(sw.plan.UnitID)

	// ------------------------------------------------------------
	// Full block write (identity re-assert)
	// ------------------------------------------------------------
	if sw.needFull {
		if err := sw.cli.WriteRegisters(unitID, baseAddr, status.Encode(s, sw.plan.DeviceName)); err != nil {
			sw.needFull = true
			return fmt.Errorf("status writer: full block write failed: %w", err)
		}

		sw.needFull = false
		sw.last = s
		return nil
	}

	var errs []string

	write := func(slot int, regs []uint16, what string) bool {
		if err := sw.cli.WriteRegisters(unitID, baseAddr+uint16(slot), regs); err != nil {
			errs = append(errs, fmt.Sprintf("slot%d %s write failed: %v", slot, what, err))
			return false
		}
		return true
	}

	// Slot 0: health_code
	if sw.last.Health != s.Health && write(status.SlotHealthCode, []uint16{s.Health}, "health") {
		sw.last.Health = s.Health
	}

	// Slot 1: last_error_code
	if sw.last.LastErrorCode != s.LastErrorCode && write(status.SlotLastErrorCode, []uint16{s.LastErrorCode}, "last_error") {
		sw.last.LastErrorCode = s.LastErrorCode
	}

	// Slot 2: seconds_in_error
	if sw.last.SecondsInError != s.SecondsInError && write(status.SlotSecondsInError, []uint16{s.SecondsInError}, "seconds") {
		sw.last.SecondsInError = s.SecondsInError
	}

	// Slot 3: tag_count
	if sw.last.TagCount != s.TagCount && write(status.SlotTagCount, []uint16{s.TagCount}, "tag_count") {
		sw.last.TagCount = s.TagCount
	}

	// Slots 4..5: poll_count, written together
	if sw.last.PollCount != s.PollCount &&
		write(status.SlotPollCountHi, []uint16{uint16(s.PollCount >> 16), uint16(s.PollCount)}, "poll_count") {
		sw.last.PollCount = s.PollCount
	}

	if len(errs) > 0 {
		// Any partial failure: re-assert the full block on next success.
		sw.needFull = true
		return errors.New("status writer: " + strings.Join(errs, " | "))
	}

	return nil
}

func (sw *deviceStatusWriter) baseAddr() uint16 {
	// Each line owns a fixed SlotsPerDevice block.
	return sw.plan.BaseSlot * status.SlotsPerDevice
}
