// internal/config/validate_test.go
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// helper to build a line quickly
func line(id string, port string, addrs ...int) LineConfig {
	l := LineConfig{
		ID:     id,
		Serial: SerialConfig{Port: port},
		Poll:   PollConfig{IntervalMs: 1000},
	}
	for _, a := range addrs {
		l.Devices = append(l.Devices, DeviceConfig{Address: a})
	}
	return l
}

func withStatus(l LineConfig, unitID uint8, slot uint16, name string) LineConfig {
	l.Status = &StatusConfig{UnitID: unitID, Slot: slot, DeviceName: name}
	return l
}

func monitor(lines ...LineConfig) *Config {
	return &Config{Monitor: MonitorConfig{Lines: lines}}
}

// ---- tests ----

func TestValidate_Minimal(t *testing.T) {
	cfg := monitor(line("l1", "/dev/ttyUSB0", 1, 2))

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_NoLines(t *testing.T) {
	if err := Validate(monitor()); err == nil {
		t.Fatalf("expected error for empty lines, got nil")
	}
}

func TestValidate_DuplicateLineID(t *testing.T) {
	cfg := monitor(
		line("l1", "/dev/ttyUSB0", 1),
		line("l1", "/dev/ttyUSB1", 1),
	)

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected duplicate id error, got nil")
	}
}

func TestValidate_SharedPortRejected(t *testing.T) {
	cfg := monitor(
		line("l1", "/dev/ttyUSB0", 1),
		line("l2", "/dev/ttyUSB0", 2),
	)

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected shared port error, got nil")
	}
}

func TestValidate_AddressRange(t *testing.T) {
	for _, a := range []int{0, 248, 255} {
		if err := Validate(monitor(line("l1", "p", a))); err == nil {
			t.Fatalf("address %d: expected range error, got nil", a)
		}
	}
	if err := Validate(monitor(line("l1", "p", 1, 247))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_DuplicateAddress(t *testing.T) {
	if err := Validate(monitor(line("l1", "p", 3, 3))); err == nil {
		t.Fatalf("expected duplicate address error, got nil")
	}
}

func TestValidate_SerialSettings(t *testing.T) {
	tests := []struct {
		name string
		mut  func(s *SerialConfig)
	}{
		{"unknown driver", func(s *SerialConfig) { s.Driver = "usb9" }},
		{"unknown parity", func(s *SerialConfig) { s.Parity = "weird" }},
		{"data bits", func(s *SerialConfig) { s.DataBits = 9 }},
		{"stop bits", func(s *SerialConfig) { s.StopBits = 3 }},
		{"flow control", func(s *SerialConfig) { s.FlowControl = "rtscts" }},
		{"negative timeout", func(s *SerialConfig) { s.ReadTimeoutMs = -1 }},
	}
	for _, tt := range tests {
		l := line("l1", "p", 1)
		tt.mut(&l.Serial)
		if err := Validate(monitor(l)); err == nil {
			t.Fatalf("%s: expected error, got nil", tt.name)
		}
	}
}

func TestValidate_IntervalZeroAllowed(t *testing.T) {
	l := line("l1", "p", 1)
	l.Poll.IntervalMs = 0

	if err := Validate(monitor(l)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_BatteryFaultZeroRejected(t *testing.T) {
	l := line("l1", "p", 1)
	zero := float32(0)
	l.Protocol.BatteryFault = &zero

	if err := Validate(monitor(l)); err == nil {
		t.Fatalf("expected battery_fault error, got nil")
	}
}

func TestValidate_NegativeMaxSegmentsRejected(t *testing.T) {
	l := line("l1", "p", 1)
	l.Protocol.MaxSegments = -1

	if err := Validate(monitor(l)); err == nil {
		t.Fatalf("expected max_segments error, got nil")
	}
}

func TestValidate_StatusRequiresMemory(t *testing.T) {
	cfg := monitor(withStatus(line("l1", "p", 1), 1, 0, "L1"))

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected status_memory error, got nil")
	}
}

func TestValidate_StatusSlotCollision(t *testing.T) {
	cfg := monitor(
		withStatus(line("l1", "p1", 1), 1, 0, "L1"),
		withStatus(line("l2", "p2", 1), 1, 0, "L2"),
	)
	cfg.Monitor.StatusMemory = &StatusMemoryConfig{Endpoint: "127.0.0.1:502"}

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected slot collision error, got nil")
	}
}

func TestValidate_StatusSlotsDifferentUnit(t *testing.T) {
	cfg := monitor(
		withStatus(line("l1", "p1", 1), 1, 0, "L1"),
		withStatus(line("l2", "p2", 1), 2, 0, "L2"),
	)
	cfg.Monitor.StatusMemory = &StatusMemoryConfig{Endpoint: "127.0.0.1:502"}

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_DeviceNameASCII(t *testing.T) {
	cfg := monitor(withStatus(line("l1", "p", 1), 1, 0, "Линия"))
	cfg.Monitor.StatusMemory = &StatusMemoryConfig{Endpoint: "127.0.0.1:502"}

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected ascii error, got nil")
	}
}

func TestValidate_DoesNotMutate(t *testing.T) {
	cfg := monitor(line("l1", "p", 1))

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Monitor.Lines[0].Serial.BaudRate != 0 || cfg.Monitor.Lines[0].Protocol.BatteryFault != nil {
		t.Fatalf("Validate mutated configuration")
	}
}

func TestNormalize_Defaults(t *testing.T) {
	cfg := monitor(withStatus(line("line-with-a-long-name", "p", 1), 1, 0, ""))
	cfg.Monitor.StatusMemory = &StatusMemoryConfig{Endpoint: "127.0.0.1:502"}
	cfg.Monitor.NATS = &NATSConfig{URL: "nats://127.0.0.1:4222"}

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Normalize(cfg)

	l := cfg.Monitor.Lines[0]
	if l.Serial.Driver != "bugst" || l.Serial.BaudRate != 38400 || l.Serial.Parity != "even" ||
		l.Serial.DataBits != 8 || l.Serial.StopBits != 1 {
		t.Fatalf("serial defaults not applied: %+v", l.Serial)
	}
	if l.Poll.IntervalMs != 1000 {
		t.Fatalf("interval changed: %d", l.Poll.IntervalMs)
	}
	if l.Poll.TagIdleS != 3600 || l.Poll.RequestTimeoutMs != 3000 {
		t.Fatalf("poll defaults not applied: %+v", l.Poll)
	}
	if l.Protocol.BufferID != 0x16 || l.Protocol.ContinueThreshold != 253 || l.Protocol.MaxSegments != 4 ||
		*l.Protocol.BatteryFault != -1 {
		t.Fatalf("protocol defaults not applied: %+v", l.Protocol)
	}
	if l.Status.DeviceName != "line-with-a-long" {
		t.Fatalf("device name not defaulted/truncated: %q", l.Status.DeviceName)
	}
	if cfg.Monitor.Log.Level != "info" || cfg.Monitor.NATS.Subject != "rfid" {
		t.Fatalf("ambient defaults not applied: %+v", cfg.Monitor)
	}
	if cfg.Monitor.StatusMemory.TimeoutMs != 1000 {
		t.Fatalf("status memory timeout not defaulted")
	}
}

func TestNormalize_KeepsOnDemandInterval(t *testing.T) {
	l := line("l1", "p", 1)
	l.Poll.IntervalMs = 0
	cfg := monitor(l)

	Normalize(cfg)

	if cfg.Monitor.Lines[0].Poll.IntervalMs != 0 {
		t.Fatalf("interval 0 must stay 0")
	}
}

func TestLoad_File(t *testing.T) {
	doc := `
monitor:
  log: { level: debug }
  http: { listen: ":8000" }
  lines:
    - id: line1
      serial: { port: /dev/ttyUSB0, parity: none, baud_rate: 115200 }
      devices:
        - { address: 1 }
        - { address: 2 }
      poll: { interval_ms: 500 }
      protocol: { battery_fault: -2 }
`
	path := filepath.Join(t.TempDir(), "monitor.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate err=%v", err)
	}

	l := cfg.Monitor.Lines[0]
	if l.ID != "line1" || l.Serial.BaudRate != 115200 || len(l.Devices) != 2 || l.Devices[1].Address != 2 {
		t.Fatalf("unexpected line: %+v", l)
	}
	if l.Protocol.BatteryFault == nil || *l.Protocol.BatteryFault != -2 {
		t.Fatalf("battery_fault not decoded")
	}
	if cfg.Monitor.HTTP == nil || cfg.Monitor.HTTP.Listen != ":8000" {
		t.Fatalf("http not decoded")
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	_, err := Parse([]byte("monitor:\n  lines: []\n  bogus: 1\n"))
	if err == nil || !strings.Contains(err.Error(), "bogus") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestLoad_Empty(t *testing.T) {
	if _, err := Parse(nil); err == nil {
		t.Fatalf("expected empty document error")
	}
}
