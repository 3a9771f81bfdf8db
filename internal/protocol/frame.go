// internal/protocol/frame.go
package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// ---- function codes ----

const (
	FuncReadHolding byte = 0x03 // standard holding-register read
	FuncReadInput   byte = 0x04 // standard input-register read
	FuncBuffer      byte = 0x42 // vendor buffer operation
	FuncInfo        byte = 0x43 // vendor named info query
)

// ---- buffer sub-functions (FuncBuffer) ----

const (
	SubAck      byte = 0x06
	SubRead     byte = 0x07
	SubContinue byte = 0x08
)

const (
	// TagBufferID is the onboard tag queue.
	TagBufferID uint16 = 0x0016

	// ReadAll asks the device for as much as available; it truncates to MaxBufferData.
	ReadAll byte = 0xFF

	// MaxBufferData is the largest DATA field the device returns per segment.
	MaxBufferData = 0xF9

	// InfoOperation is the operation byte used by named info queries.
	InfoOperation byte = 0x01

	infoArgMarker byte = 0xFE
)

// MinFrame is address + function + CRC.
const MinFrame = 2 + CRCSize

// Frame is one CRC-validated frame with the CRC stripped.
// Offsets used by the decoding helpers are relative to the address byte.
type Frame struct {
	Raw []byte
}

func (f Frame) Address() byte  { return f.Raw[0] }
func (f Frame) Function() byte { return f.Raw[1] }

// Len returns the frame length without CRC.
func (f Frame) Len() int { return len(f.Raw) }

// Build returns [address, function, data...] with CRC appended.
func Build(address, function byte, data ...byte) []byte {
	b := make([]byte, 0, 2+len(data)+CRCSize)
	b = append(b, address, function)
	b = append(b, data...)
	return Append(b)
}

// BuildInfoRequest builds a named info query:
// [addr][cmd][op][len(args)][args...] where args = 0xFE, len(name), name.
func BuildInfoRequest(address, command, operation byte, name string) []byte {
	args := make([]byte, 0, 2+len(name))
	args = append(args, infoArgMarker, byte(len(name)))
	args = append(args, name...)

	data := make([]byte, 0, 2+len(args))
	data = append(data, operation, byte(len(args)))
	data = append(data, args...)
	return Build(address, command, data...)
}

// BuildRegisterRead builds a function 0x03 read of count registers at start.
func BuildRegisterRead(address byte, start, count uint16) []byte {
	return buildRead(address, FuncReadHolding, start, count)
}

// BuildInputRead builds a function 0x04 read of count registers at start.
func BuildInputRead(address byte, start, count uint16) []byte {
	return buildRead(address, FuncReadInput, start, count)
}

func buildRead(address, function byte, start, count uint16) []byte {
	var d [4]byte
	binary.BigEndian.PutUint16(d[0:2], start)
	binary.BigEndian.PutUint16(d[2:4], count)
	return Build(address, function, d[:]...)
}

// BuildBufferOp builds a function 0x42 buffer operation:
// [addr][0x42][sub][id_hi][id_lo][extra...].
func BuildBufferOp(address, sub byte, bufferID uint16, extra ...byte) []byte {
	data := make([]byte, 3, 3+len(extra))
	data[0] = sub
	binary.BigEndian.PutUint16(data[1:3], bufferID)
	data = append(data, extra...)
	return Build(address, FuncBuffer, data...)
}

// ParseResponse validates raw bytes from the transport.
// Empty input is ErrEmpty, anything shorter than MinFrame is ErrTruncated,
// a wrong CRC is ErrCRCMismatch.
func ParseResponse(raw []byte) (Frame, error) {
	if len(raw) == 0 {
		return Frame{}, ErrEmpty
	}
	if len(raw) < MinFrame {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrTruncated, len(raw))
	}
	if !Verify(raw) {
		return Frame{}, fmt.Errorf("%w: % X", ErrCRCMismatch, raw)
	}
	out := make([]byte, len(raw)-CRCSize)
	copy(out, raw)
	return Frame{Raw: out}, nil
}

// ---- decoding helpers ----

// ASCII returns the ASCII field at [offset, offset+length), clipped to the frame.
func (f Frame) ASCII(offset, length int) string {
	if offset < 0 || offset >= len(f.Raw) || length <= 0 {
		return ""
	}
	end := offset + length
	if end > len(f.Raw) {
		end = len(f.Raw)
	}
	return strings.TrimRight(string(f.Raw[offset:end]), "\x00")
}

// InfoString decodes a named info answer: ASCII at offset 6, length frame[3]-2.
func (f Frame) InfoString() (string, bool) {
	if len(f.Raw) <= 6 {
		return "", false
	}
	return f.ASCII(6, int(f.Raw[3])-2), true
}

// HexTail renders the bytes from offset onwards as "0x" + upper-case hex.
func (f Frame) HexTail(offset int) (string, bool) {
	if offset < 0 || offset >= len(f.Raw) {
		return "", false
	}
	return HexString(f.Raw[offset:]), true
}

// HexString renders b as "0x" + upper-case hex digits.
func HexString(b []byte) string {
	return "0x" + strings.ToUpper(hex.EncodeToString(b))
}

// Uint32Tail reads a big-endian 32-bit integer from offset.
func (f Frame) Uint32Tail(offset int) (uint32, bool) {
	if offset < 0 || offset+4 > len(f.Raw) {
		return 0, false
	}
	return binary.BigEndian.Uint32(f.Raw[offset : offset+4]), true
}

// Register returns the first register value of a function 0x03/0x04 response.
func (f Frame) Register() (uint16, bool) {
	if len(f.Raw) < 5 {
		return 0, false
	}
	return binary.BigEndian.Uint16(f.Raw[3:5]), true
}

// Registers returns all register values of a function 0x03/0x04 response.
func (f Frame) Registers() []uint16 {
	if len(f.Raw) < 3 {
		return nil
	}
	n := int(f.Raw[2])
	data := f.Raw[3:]
	if n < len(data) {
		data = data[:n]
	}
	out := make([]uint16, len(data)/2)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(data[2*i:])
	}
	return out
}

// BufferOp decodes the header of a function 0x42 frame.
func (f Frame) BufferOp() (sub byte, bufferID uint16, ok bool) {
	if len(f.Raw) < 5 || f.Function() != FuncBuffer {
		return 0, 0, false
	}
	return f.Raw[2], binary.BigEndian.Uint16(f.Raw[3:5]), true
}
