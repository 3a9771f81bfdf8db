// internal/status/constants.go
package status

// Line Status Block layout constants.
// These values define the protocol and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of logical slots per status block.
const SlotsPerDevice = 20

// ---- SLOT INDICES ----

// SlotHealthCode holds the line health state.
const SlotHealthCode = 0

// SlotLastErrorCode holds the last error code (protocol.Code).
const SlotLastErrorCode = 1

// SlotSecondsInError holds the duration (in seconds) the line has been in error.
const SlotSecondsInError = 2

// SlotTagCount holds the number of tags in the current snapshot.
const SlotTagCount = 3

// SlotPollCountHi and SlotPollCountLo hold the completed cycle counter (32 bit, big-endian words).
const SlotPollCountHi = 4
const SlotPollCountLo = 5

// ---- RESERVED RANGE ----

// Slots 6..10 are reserved for future use.
const SlotReservedStart = 6
const SlotReservedEnd = 10

// ---- DEVICE NAME ----

// SlotDeviceNameStart is the first slot used for the device name.
// Device name is always placed at the END of the status block.
const SlotDeviceNameStart = 11

// SlotDeviceNameSlots is the number of slots reserved for the device name.
const SlotDeviceNameSlots = 8

// SlotDeviceNameEnd is the last slot used for the device name (inclusive).
const SlotDeviceNameEnd = SlotDeviceNameStart + SlotDeviceNameSlots - 1

// ---- LIMITS ----

// DeviceNameMaxChars is the maximum number of ASCII characters stored for device name.
const DeviceNameMaxChars = 16

// MaxSecondsInError is where seconds_in_error saturates.
const MaxSecondsInError = 65535

// ---- HEALTH CODES ----

// HealthUnknown represents an unknown or boot state.
const HealthUnknown uint16 = 0

// HealthOK represents a healthy line.
const HealthOK uint16 = 1

// HealthError represents a line error state.
const HealthError uint16 = 2

// HealthStale represents a line whose last cycle was degraded (e.g. unacknowledged buffer).
const HealthStale uint16 = 3

// HealthDisabled represents a line that is not polled.
const HealthDisabled uint16 = 4

// HealthText names a health code for logs and the HTTP API.
func HealthText(h uint16) string {
	switch h {
	case HealthOK:
		return "ok"
	case HealthError:
		return "error"
	case HealthStale:
		return "stale"
	case HealthDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}
