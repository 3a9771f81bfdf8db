// internal/protocol/crc.go
package protocol

import "github.com/sigurn/crc16"

// Modbus RTU CRC16: poly 0xA001 (reflected 0x8005), init 0xFFFF, emitted low byte first.
// This is a wire-compatibility requirement and MUST NOT be configurable.
var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// CRCSize is the number of trailing CRC bytes on every frame.
const CRCSize = 2

// Compute returns the Modbus CRC16 of b.
func Compute(b []byte) uint16 {
	return crc16.Checksum(b, crcTable)
}

// Append returns a new slice: b followed by crc_lo, crc_hi.
// The input slice is never modified.
func Append(b []byte) []byte {
	crc := Compute(b)
	out := make([]byte, len(b), len(b)+CRCSize)
	copy(out, b)
	return append(out, byte(crc), byte(crc>>8))
}

// Verify reports whether the trailing two bytes of b are the CRC of the rest.
func Verify(b []byte) bool {
	if len(b) < CRCSize+1 {
		return false
	}
	n := len(b) - CRCSize
	crc := Compute(b[:n])
	return b[n] == byte(crc) && b[n+1] == byte(crc>>8)
}
