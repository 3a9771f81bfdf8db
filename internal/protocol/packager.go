// internal/protocol/packager.go
package protocol

import (
	"fmt"

	"github.com/goburrow/modbus"
)

// Packager adapts the frame codec to goburrow/modbus so standard register
// functions can run through modbus.NewClient2 over the shared line.
type Packager struct {
	Address byte
}

var _ modbus.Packager = Packager{}

// Encode builds an RTU ADU for one PDU.
func (p Packager) Encode(pdu *modbus.ProtocolDataUnit) ([]byte, error) {
	if pdu == nil {
		return nil, fmt.Errorf("protocol: nil pdu")
	}
	return Build(p.Address, pdu.FunctionCode, pdu.Data...), nil
}

// Verify checks the response belongs to the request's address.
func (p Packager) Verify(aduRequest, aduResponse []byte) error {
	if len(aduResponse) < MinFrame {
		return fmt.Errorf("%w: %d bytes", ErrTruncated, len(aduResponse))
	}
	if len(aduRequest) > 0 && aduResponse[0] != aduRequest[0] {
		return fmt.Errorf("protocol: response address %d does not match request %d",
			aduResponse[0], aduRequest[0])
	}
	return nil
}

// Decode validates CRC and strips the RTU envelope.
func (p Packager) Decode(adu []byte) (*modbus.ProtocolDataUnit, error) {
	f, err := ParseResponse(adu)
	if err != nil {
		return nil, err
	}
	return &modbus.ProtocolDataUnit{
		FunctionCode: f.Function(),
		Data:         f.Raw[2:],
	}, nil
}
