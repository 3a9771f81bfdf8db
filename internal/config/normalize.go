// internal/config/normalize.go
package config

import "strings"

// Defaults applied by Normalize.
const (
	DefaultDriver            = "bugst"
	DefaultBaudRate          = 38400
	DefaultDataBits          = 8
	DefaultParity            = "even"
	DefaultStopBits          = 1
	DefaultReadTimeoutMs     = 50
	DefaultResponseTimeoutMs = 500
	DefaultBufferSize        = 512

	DefaultTagIdleS         = 3600
	DefaultRequestTimeoutMs = 3000

	DefaultContinueThreshold = 253
	DefaultMaxSegments       = 4

	DefaultStatusTimeoutMs = 1000
	DefaultNATSSubject     = "rfid"

	DeviceNameMaxChars = 16
)

const DefaultBufferID uint16 = 0x16

const DefaultBatteryFault float32 = -1

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	m := &cfg.Monitor

	if m.Log.Level == "" {
		m.Log.Level = "info"
	}
	if m.Log.Format == "" {
		m.Log.Format = "console"
	}
	m.Log.Level = strings.ToLower(m.Log.Level)
	m.Log.Format = strings.ToLower(m.Log.Format)

	if m.NATS != nil && m.NATS.Subject == "" {
		m.NATS.Subject = DefaultNATSSubject
	}
	if m.StatusMemory != nil && m.StatusMemory.TimeoutMs == 0 {
		m.StatusMemory.TimeoutMs = DefaultStatusTimeoutMs
	}

	for li := range m.Lines {
		l := &m.Lines[li]

		// ------------------------------------------------------------
		// SERIAL
		// ------------------------------------------------------------

		s := &l.Serial
		if s.Driver == "" {
			s.Driver = DefaultDriver
		}
		s.Driver = strings.ToLower(s.Driver)
		if s.BaudRate == 0 {
			s.BaudRate = DefaultBaudRate
		}
		if s.DataBits == 0 {
			s.DataBits = DefaultDataBits
		}
		if s.Parity == "" {
			s.Parity = DefaultParity
		}
		s.Parity = strings.ToLower(s.Parity)
		if s.StopBits == 0 {
			s.StopBits = DefaultStopBits
		}
		if s.FlowControl == "" {
			s.FlowControl = "none"
		}
		if s.ReadTimeoutMs == 0 {
			s.ReadTimeoutMs = DefaultReadTimeoutMs
		}
		if s.ResponseTimeoutMs == 0 {
			s.ResponseTimeoutMs = DefaultResponseTimeoutMs
		}
		if s.BufferSize == 0 {
			s.BufferSize = DefaultBufferSize
		}

		// ------------------------------------------------------------
		// POLL (interval 0 is meaningful: on demand only)
		// ------------------------------------------------------------

		if l.Poll.TagIdleS == 0 {
			l.Poll.TagIdleS = DefaultTagIdleS
		}
		if l.Poll.RequestTimeoutMs == 0 {
			l.Poll.RequestTimeoutMs = DefaultRequestTimeoutMs
		}

		// ------------------------------------------------------------
		// BUFFER PROTOCOL
		// ------------------------------------------------------------

		if l.Protocol.BufferID == 0 {
			l.Protocol.BufferID = DefaultBufferID
		}
		if l.Protocol.ContinueThreshold == 0 {
			l.Protocol.ContinueThreshold = DefaultContinueThreshold
		}
		if l.Protocol.MaxSegments == 0 {
			l.Protocol.MaxSegments = DefaultMaxSegments
		}
		if l.Protocol.BatteryFault == nil {
			v := DefaultBatteryFault
			l.Protocol.BatteryFault = &v
		}

		// ------------------------------------------------------------
		// LINE STATUS BLOCK (OPT-IN)
		// ------------------------------------------------------------

		if l.Status == nil {
			continue
		}
		if l.Status.DeviceName == "" {
			l.Status.DeviceName = l.ID
		}
		// ASCII already validated; truncate to max 16 characters
		if len(l.Status.DeviceName) > DeviceNameMaxChars {
			l.Status.DeviceName = l.Status.DeviceName[:DeviceNameMaxChars]
		}
	}
}
