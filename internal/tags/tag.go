// internal/tags/tag.go
package tags

import (
	"fmt"
	"strconv"
	"time"
)

// Flags is the telemetry bitset reported with each tag.
type Flags uint8

// FlagCharging is set while the tag battery is charging, clear while discharging.
const FlagCharging Flags = 0x80

func (f Flags) Charging() bool { return f&FlagCharging != 0 }

// Status of a tag in the snapshot.
type Status int

const (
	StatusNone Status = iota
	StatusNew
	StatusReady
	StatusFault
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusReady:
		return "ready"
	case StatusFault:
		return "fault"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "none"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	for c := StatusNone; c <= StatusUnavailable; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("tags: unknown status %q", b)
}

// Battery sentinels.
const (
	BatteryUnknown float32 = 0
	BatteryFault   float32 = -1
)

// Record is one tag as read from an anchor and carried across polls.
type Record struct {
	ID       int       `json:"id"`
	Flags    Flags     `json:"flags"`
	Battery  float32   `json:"battery"`
	Modified time.Time `json:"modified"`
	Status   Status    `json:"status"`
}

// BatteryKnown reports whether the reader has a voltage for this tag.
func (r Record) BatteryKnown() bool { return r.Battery != BatteryUnknown }

// BatteryFaulted reports the fault sentinel.
func (r Record) BatteryFaulted() bool { return r.Battery < 0 }

// BatteryText renders the battery column of console tables.
func (r Record) BatteryText() string {
	switch {
	case r.BatteryFaulted():
		return "fault"
	case !r.BatteryKnown():
		return "???"
	default:
		return strconv.FormatFloat(float64(r.Battery), 'f', 1, 32) + " V"
	}
}

// String formats one table row: id, battery, flags as binary.
func (r Record) String() string {
	state := "idle"
	if r.Flags.Charging() {
		state = "charging"
	}
	return fmt.Sprintf("%7d %9s %08b %s", r.ID, r.BatteryText(), uint8(r.Flags), state)
}
