// internal/config/config.go
package config

type Config struct {
	Monitor MonitorConfig `yaml:"monitor"`
}

type MonitorConfig struct {
	Log     LogConfig     `yaml:"log"`
	HTTP    *ListenConfig `yaml:"http"`    // optional
	Console *ListenConfig `yaml:"console"` // optional
	NATS    *NATSConfig   `yaml:"nats"`    // optional

	// Modbus TCP memory receiving line status blocks (optional)
	StatusMemory *StatusMemoryConfig `yaml:"status_memory"`

	Lines []LineConfig `yaml:"lines"`
}

// ---- AMBIENT ----

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // console | json
}

type ListenConfig struct {
	Listen string `yaml:"listen"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type StatusMemoryConfig struct {
	Endpoint  string `yaml:"endpoint"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- LINE ----

type LineConfig struct {
	ID       string         `yaml:"id"`
	Serial   SerialConfig   `yaml:"serial"`
	Devices  []DeviceConfig `yaml:"devices"`
	Poll     PollConfig     `yaml:"poll"`
	Protocol ProtocolConfig `yaml:"protocol"`

	// Line status block (optional, opt-in)
	Status *StatusConfig `yaml:"status"`
}

// ---- SERIAL ----

type SerialConfig struct {
	Port        string `yaml:"port"`
	Driver      string `yaml:"driver"` // bugst | tarm
	BaudRate    int    `yaml:"baud_rate"`
	DataBits    int    `yaml:"data_bits"`
	Parity      string `yaml:"parity"` // none | odd | even | mark | space
	StopBits    int    `yaml:"stop_bits"`
	FlowControl string `yaml:"flow_control"`

	ReadTimeoutMs     int `yaml:"read_timeout_ms"`
	ResponseTimeoutMs int `yaml:"response_timeout_ms"`
	BufferSize        int `yaml:"buffer_size"`
}

// ---- DEVICES ----

type DeviceConfig struct {
	Address int `yaml:"address"`
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs       int `yaml:"interval_ms"` // 0 = on demand only
	TagIdleS         int `yaml:"tag_idle_s"`
	RequestTimeoutMs int `yaml:"request_timeout_ms"`
}

// ---- BUFFER PROTOCOL ----

type ProtocolConfig struct {
	BufferID          uint16   `yaml:"buffer_id"`
	ContinueThreshold int      `yaml:"continue_threshold"`
	MaxSegments       int      `yaml:"max_segments"`
	BatteryFault      *float32 `yaml:"battery_fault"`
}

// ---- STATUS ----

type StatusConfig struct {
	UnitID     uint8  `yaml:"unit_id"`
	Slot       uint16 `yaml:"slot"`
	DeviceName string `yaml:"device_name"`
}
