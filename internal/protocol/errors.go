// internal/protocol/errors.go
package protocol

import (
	"errors"

	"github.com/goburrow/modbus"
)

// Error taxonomy shared by transport, reader and poller.
// Callers classify with errors.Is; wrapping keeps the context.
var (
	// ErrIO is a port open/write/read failure.
	ErrIO = errors.New("io error")

	// ErrCRCMismatch rejects an inbound frame whose trailing CRC is wrong.
	ErrCRCMismatch = errors.New("crc mismatch")

	// ErrTruncated is a response shorter than the minimum frame.
	ErrTruncated = errors.New("truncated frame")

	// ErrEmpty means the transport returned nothing within the read window.
	ErrEmpty = errors.New("empty response")

	// ErrAckMismatch means the device did not echo the buffer acknowledge.
	ErrAckMismatch = errors.New("ack mismatch")

	// ErrDeviceAbsent means no valid answer from the probed address.
	ErrDeviceAbsent = errors.New("device absent")

	// ErrSegmentLimit means a buffer read kept announcing more data past the segment cap.
	ErrSegmentLimit = errors.New("segment limit exceeded")

	// ErrTimeout is returned to on-demand callers that got no correlated result.
	ErrTimeout = errors.New("timeout")
)

// Reason maps an error to the user-visible failure reason.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCRCMismatch):
		return "checksum error"
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrEmpty), errors.Is(err, ErrTruncated):
		return "timeout"
	case errors.Is(err, ErrDeviceAbsent):
		return "device absent"
	case errors.Is(err, ErrAckMismatch):
		return "ack mismatch"
	case errors.Is(err, ErrSegmentLimit):
		return "segment limit"
	case errors.Is(err, ErrIO):
		return "io error"
	}
	var me *modbus.ModbusError
	if errors.As(err, &me) {
		return "modbus exception"
	}
	return "error"
}

// Status block error codes. 0 means no error.
const (
	CodeNone        uint16 = 0
	CodeGeneric     uint16 = 1
	CodeIO          uint16 = 2
	CodeCRC         uint16 = 3
	CodeTimeout     uint16 = 4
	CodeAck         uint16 = 5
	CodeAbsent      uint16 = 6
	CodeSegments    uint16 = 7
	CodeExceptionHi uint16 = 0x100 // | modbus exception code
)

// Code extracts a best-effort uint16 code from an error.
func Code(err error) uint16 {
	switch {
	case err == nil:
		return CodeNone
	case errors.Is(err, ErrCRCMismatch):
		return CodeCRC
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrEmpty), errors.Is(err, ErrTruncated):
		return CodeTimeout
	case errors.Is(err, ErrAckMismatch):
		return CodeAck
	case errors.Is(err, ErrDeviceAbsent):
		return CodeAbsent
	case errors.Is(err, ErrSegmentLimit):
		return CodeSegments
	case errors.Is(err, ErrIO):
		return CodeIO
	}
	var me *modbus.ModbusError
	if errors.As(err, &me) {
		return CodeExceptionHi | uint16(me.ExceptionCode)
	}
	return CodeGeneric
}
