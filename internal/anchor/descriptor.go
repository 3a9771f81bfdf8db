// internal/anchor/descriptor.go
package anchor

import (
	"fmt"
	"strconv"
	"time"
)

// State is the lifecycle of one registered device.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFault
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFault:
		return "fault"
	default:
		return "uninitialized"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Descriptor is the info snapshot of one anchor.
// Fields whose query failed stay empty.
type Descriptor struct {
	Address byte   `json:"address"`
	Name    string `json:"name"`
	UID     string `json:"uid"`

	Hardware    string `json:"hardware"`
	Serial      string `json:"serial"`
	AppName     string `json:"app_name"`
	AppType     string `json:"app_type"`
	AppVersion  string `json:"app_version"`
	GitHash     string `json:"git_hash"`
	GitTick     string `json:"git_tick"`
	GitStamp    string `json:"git_stamp"`
	GitTag      string `json:"git_tag"`
	BootVersion string `json:"boot_version"`

	// register-mapped info
	TagAnqVpl     string `json:"tag_anq_vpl"`
	SrvAnqVpl     string `json:"srv_anq_vpl"`
	ModbusVersion string `json:"modbus_version"`
	SettingsCRC   string `json:"settings_crc"`

	Started       *time.Time `json:"started,omitempty"`
	UptimeStarted *int32     `json:"uptime_started,omitempty"` // operating time since start
	UptimeTotal   *int32     `json:"uptime_total,omitempty"`
	RTLSMode      int        `json:"rtls_mode"`

	LastPoll time.Time `json:"last_poll"`
	State    State     `json:"state"`
}

// Field is one labelled row of a descriptor dump.
type Field struct {
	Label string
	Value string
}

// Fields renders the descriptor as ordered label/value rows (console DEV).
func (d Descriptor) Fields() []Field {
	optInt := func(v *int32) string {
		if v == nil {
			return "-"
		}
		return strconv.Itoa(int(*v))
	}
	started := "-"
	if d.Started != nil {
		started = d.Started.Format("2006-01-02 15:04:05")
	}

	return []Field{
		{"ID", d.UID},
		{"Address", strconv.Itoa(int(d.Address))},
		{"Name", d.Name},
		{"HW", d.Hardware},
		{"Serial", d.Serial},
		{"App name", d.AppName},
		{"App type", d.AppType},
		{"App version", d.AppVersion},
		{"App Git Hash", d.GitHash},
		{"App Git Tick", d.GitTick},
		{"App Git Stamp", d.GitStamp},
		{"App Git Tag", d.GitTag},
		{"Boot version", d.BootVersion},
		{"Tag ANQ VPL", d.TagAnqVpl},
		{"Srv ANQ VPL", d.SrvAnqVpl},
		{"Modbus version", d.ModbusVersion},
		{"Settings CRC-16", d.SettingsCRC},
		{"Started", started},
		{"Operating time since start", optInt(d.UptimeStarted)},
		{"Operating time total", optInt(d.UptimeTotal)},
		{"State", d.State.String()},
		{"RTLS answer mode", strconv.Itoa(d.RTLSMode)},
	}
}

// String is the one-line listing used by console DEV without arguments.
func (d Descriptor) String() string {
	name := d.Name
	if name == "" {
		name = "?"
	}
	return fmt.Sprintf("%3d %-16s %s", d.Address, name, d.State)
}
