// internal/config/validate.go
package config

import (
	"fmt"
	"strings"
)

var (
	knownDrivers  = []string{"", "bugst", "tarm"}
	knownParities = []string{"", "none", "odd", "even", "mark", "space"}
	knownLevels   = []string{"", "trace", "debug", "info", "warn", "error"}
	knownFormats  = []string{"", "console", "json"}
)

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	m := cfg.Monitor

	// ------------------------------------------------------------
	// AMBIENT
	// ------------------------------------------------------------

	if !oneOf(m.Log.Level, knownLevels) {
		return fmt.Errorf("log.level %q is not supported", m.Log.Level)
	}
	if !oneOf(m.Log.Format, knownFormats) {
		return fmt.Errorf("log.format %q is not supported", m.Log.Format)
	}
	if m.HTTP != nil && m.HTTP.Listen == "" {
		return fmt.Errorf("http: listen address required")
	}
	if m.Console != nil && m.Console.Listen == "" {
		return fmt.Errorf("console: listen address required")
	}
	if m.NATS != nil && m.NATS.URL == "" {
		return fmt.Errorf("nats: url required")
	}
	if m.StatusMemory != nil {
		if m.StatusMemory.Endpoint == "" {
			return fmt.Errorf("status_memory: endpoint required")
		}
		if m.StatusMemory.TimeoutMs < 0 {
			return fmt.Errorf("status_memory: timeout_ms must be >= 0")
		}
	}

	// ------------------------------------------------------------
	// LINES
	// ------------------------------------------------------------

	if len(m.Lines) == 0 {
		return fmt.Errorf("at least one line is required")
	}

	lineIDs := make(map[string]struct{})
	ports := make(map[string]string)

	for _, l := range m.Lines {
		if l.ID == "" {
			return fmt.Errorf("line: id required")
		}
		if _, dup := lineIDs[l.ID]; dup {
			return fmt.Errorf("line %q: duplicate id", l.ID)
		}
		lineIDs[l.ID] = struct{}{}

		if err := validateSerial(l.ID, l.Serial); err != nil {
			return err
		}
		if prev, used := ports[l.Serial.Port]; used {
			return fmt.Errorf("line %q: serial port %s already used by line %q", l.ID, l.Serial.Port, prev)
		}
		ports[l.Serial.Port] = l.ID

		addrs := make(map[int]struct{})
		for _, d := range l.Devices {
			if d.Address < 1 || d.Address > 247 {
				return fmt.Errorf("line %q: device address %d out of range 1..247", l.ID, d.Address)
			}
			if _, dup := addrs[d.Address]; dup {
				return fmt.Errorf("line %q: device address %d listed twice", l.ID, d.Address)
			}
			addrs[d.Address] = struct{}{}
		}

		if l.Poll.IntervalMs < 0 {
			return fmt.Errorf("line %q: poll.interval_ms must be >= 0", l.ID)
		}
		if l.Poll.TagIdleS < 0 {
			return fmt.Errorf("line %q: poll.tag_idle_s must be >= 0", l.ID)
		}
		if l.Poll.RequestTimeoutMs < 0 {
			return fmt.Errorf("line %q: poll.request_timeout_ms must be >= 0", l.ID)
		}

		if l.Protocol.ContinueThreshold < 0 {
			return fmt.Errorf("line %q: protocol.continue_threshold must be >= 0", l.ID)
		}
		if l.Protocol.MaxSegments < 0 {
			return fmt.Errorf("line %q: protocol.max_segments must be >= 0", l.ID)
		}
		if bf := l.Protocol.BatteryFault; bf != nil && *bf == 0 {
			return fmt.Errorf("line %q: protocol.battery_fault must not be 0 (reserved for unknown)", l.ID)
		}
	}

	// ------------------------------------------------------------
	// LINE STATUS BLOCK VALIDATION (OPT-IN)
	// ------------------------------------------------------------

	// key = unit_id | slot
	statusOwner := make(map[string]string)

	for _, l := range m.Lines {
		if l.Status == nil {
			continue
		}

		// status requires a status memory
		if m.StatusMemory == nil {
			return fmt.Errorf(
				"line %q: status is set but no status_memory is defined",
				l.ID,
			)
		}

		// device_name sanity (ASCII only)
		for i := 0; i < len(l.Status.DeviceName); i++ {
			if l.Status.DeviceName[i] > 0x7F {
				return fmt.Errorf(
					"line %q: device_name must contain ASCII characters only",
					l.ID,
				)
			}
		}

		key := fmt.Sprintf("%d|%d", l.Status.UnitID, l.Status.Slot)

		if prev, exists := statusOwner[key]; exists {
			return fmt.Errorf(
				"status slot collision: unit_id=%d slot=%d used by lines %q and %q",
				l.Status.UnitID,
				l.Status.Slot,
				prev,
				l.ID,
			)
		}

		statusOwner[key] = l.ID
	}

	return nil
}

func validateSerial(lineID string, s SerialConfig) error {
	if s.Port == "" {
		return fmt.Errorf("line %q: serial.port required", lineID)
	}
	if !oneOf(s.Driver, knownDrivers) {
		return fmt.Errorf("line %q: serial.driver %q is not supported", lineID, s.Driver)
	}
	if !oneOf(s.Parity, knownParities) {
		return fmt.Errorf("line %q: serial.parity %q is not supported", lineID, s.Parity)
	}
	if s.BaudRate < 0 {
		return fmt.Errorf("line %q: serial.baud_rate must be > 0", lineID)
	}
	if s.DataBits != 0 && (s.DataBits < 5 || s.DataBits > 8) {
		return fmt.Errorf("line %q: serial.data_bits %d out of range 5..8", lineID, s.DataBits)
	}
	if s.StopBits != 0 && s.StopBits != 1 && s.StopBits != 2 {
		return fmt.Errorf("line %q: serial.stop_bits must be 1 or 2", lineID)
	}
	if s.FlowControl != "" && !strings.EqualFold(s.FlowControl, "none") {
		return fmt.Errorf("line %q: serial.flow_control %q is not supported", lineID, s.FlowControl)
	}
	if s.ReadTimeoutMs < 0 || s.ResponseTimeoutMs < 0 {
		return fmt.Errorf("line %q: serial timeouts must be >= 0", lineID)
	}
	if s.BufferSize < 0 {
		return fmt.Errorf("line %q: serial.buffer_size must be >= 0", lineID)
	}
	return nil
}
