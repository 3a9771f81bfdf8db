// internal/monitor/build.go
package monitor

import (
	"time"

	"github.com/tamzrod/rfid-monitor/internal/anchor"
	cfg "github.com/tamzrod/rfid-monitor/internal/config"
	"github.com/tamzrod/rfid-monitor/internal/transport"
)

// serialConfig maps a normalized line serial section to the transport.
func serialConfig(s cfg.SerialConfig) transport.Config {
	return transport.Config{
		Port:            s.Port,
		Driver:          s.Driver,
		BaudRate:        s.BaudRate,
		DataBits:        s.DataBits,
		Parity:          s.Parity,
		StopBits:        s.StopBits,
		FlowControl:     s.FlowControl,
		ReadTimeout:     time.Duration(s.ReadTimeoutMs) * time.Millisecond,
		ResponseTimeout: time.Duration(s.ResponseTimeoutMs) * time.Millisecond,
		BufferSize:      s.BufferSize,
	}
}

// anchorConfig maps the buffer protocol section to the reader constants.
func anchorConfig(p cfg.ProtocolConfig) anchor.Config {
	c := anchor.Config{
		BufferID:          p.BufferID,
		ContinueThreshold: p.ContinueThreshold,
		MaxSegments:       p.MaxSegments,
		BatteryFault:      cfg.DefaultBatteryFault,
	}
	if p.BatteryFault != nil {
		c.BatteryFault = *p.BatteryFault
	}
	return c
}

func addresses(devs []cfg.DeviceConfig) []byte {
	out := make([]byte, 0, len(devs))
	for _, d := range devs {
		out = append(out, byte(d.Address))
	}
	return out
}
