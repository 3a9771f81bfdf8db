// internal/anchor/commands.go
package anchor

// Named info queries (function 0x43, operation 0x01).
const (
	CmdUID        = "GetUID"
	CmdDeviceName = "GetDeviceName"
	CmdHardware   = "Hw"
	CmdSerial     = "GetSN"
	CmdBootVer    = "GetBootSWVer"
	CmdAppName    = "Wh"
	CmdAppType    = "GetSWType"
	CmdAppVersion = "Ver"
	CmdGitHash    = "GetGitHash"
	CmdGitTick    = "GetGitTick"
	CmdGitStamp   = "GetGitStamp"
	CmdGitTag     = "GetGitTag"
)

// Input registers (function 0x04).
const (
	RegTagAnqVpl     uint16 = 0x0007
	RegSrvAnqVpl     uint16 = 0x0008
	RegModbusVersion uint16 = 0x0009
	RegSettingsCRC   uint16 = 0x000A

	// start timestamp, BCD: YYMM, DDhh, mmss
	RegStartedYearMonth uint16 = 0x000B
	RegStartedDayHour   uint16 = 0x000C
	RegStartedMinSec    uint16 = 0x000D

	// operating time counters, 2 registers each
	RegUptimeStarted uint16 = 0x000E
	RegUptimeTotal   uint16 = 0x0010
)

// Holding registers (function 0x03).
const (
	RegRTLSMode uint16 = 0x003A
)

// infoField binds one named query to the descriptor field it fills.
type infoField struct {
	command string
	set     func(d *Descriptor, v string)
}

// infoFields is the scripted query order after the name probe.
var infoFields = []infoField{
	{CmdUID, func(d *Descriptor, v string) { d.UID = v }},
	{CmdHardware, func(d *Descriptor, v string) { d.Hardware = v }},
	{CmdSerial, func(d *Descriptor, v string) { d.Serial = v }},
	{CmdAppName, func(d *Descriptor, v string) { d.AppName = v }},
	{CmdAppType, func(d *Descriptor, v string) { d.AppType = v }},
	{CmdAppVersion, func(d *Descriptor, v string) { d.AppVersion = v }},
	{CmdGitHash, func(d *Descriptor, v string) { d.GitHash = v }},
	{CmdGitTick, func(d *Descriptor, v string) { d.GitTick = v }},
	{CmdGitStamp, func(d *Descriptor, v string) { d.GitStamp = v }},
	{CmdGitTag, func(d *Descriptor, v string) { d.GitTag = v }},
	{CmdBootVer, func(d *Descriptor, v string) { d.BootVersion = v }},
}

type hexField struct {
	register uint16
	set      func(d *Descriptor, v string)
}

var hexFields = []hexField{
	{RegTagAnqVpl, func(d *Descriptor, v string) { d.TagAnqVpl = v }},
	{RegSrvAnqVpl, func(d *Descriptor, v string) { d.SrvAnqVpl = v }},
	{RegModbusVersion, func(d *Descriptor, v string) { d.ModbusVersion = v }},
	{RegSettingsCRC, func(d *Descriptor, v string) { d.SettingsCRC = v }},
}
