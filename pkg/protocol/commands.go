package protocol

import "fmt"

// Command is the command id at offset 3 of a frame.
type Command byte

// Known command ids. Several ids are used both for reads and writes.
const (
	CmdRuntimeInfo        Command = 0x03
	CmdDeviceInfo         Command = 0x04
	CmdEPSMode            Command = 0x05
	CmdACInput            Command = 0x06
	CmdGenerator          Command = 0x07
	CmdWiFiSSID           Command = 0x08
	CmdBuzzer             Command = 0x09
	CmdSystemData         Command = 0x0D // also sets charge mode
	CmdOutputControl      Command = 0x0E
	CmdAdaptiveMode       Command = 0x11
	CmdTimerInfo          Command = 0x13
	CmdBMSData            Command = 0x14
	CmdPowerMode          Command = 0x15
	CmdACPower            Command = 0x16
	CmdTotalPower         Command = 0x17
	CmdConfigData         Command = 0x1A
	CmdEventLog           Command = 0x1C
	CmdCTPollingRateWrite Command = 0x20
	CmdMeterIP            Command = 0x21
	CmdCTPollingRate      Command = 0x22
	CmdNetworkInfo        Command = 0x24
	CmdReboot             Command = 0x25
	CmdLocalAPIStatus     Command = 0x28
)

// CmdChargeMode shares its id with the system data read.
const CmdChargeMode = CmdSystemData

var commandNames = map[Command]string{
	CmdRuntimeInfo:        "runtime_info",
	CmdDeviceInfo:         "device_info",
	CmdEPSMode:            "eps_mode",
	CmdACInput:            "ac_input",
	CmdGenerator:          "generator",
	CmdWiFiSSID:           "wifi_ssid",
	CmdBuzzer:             "buzzer",
	CmdSystemData:         "system_data",
	CmdOutputControl:      "output_control",
	CmdAdaptiveMode:       "adaptive_mode",
	CmdTimerInfo:          "timer_info",
	CmdBMSData:            "bms_data",
	CmdPowerMode:          "power_mode",
	CmdACPower:            "ac_power",
	CmdTotalPower:         "total_power",
	CmdConfigData:         "config_data",
	CmdEventLog:           "event_log",
	CmdCTPollingRateWrite: "ct_polling_rate_write",
	CmdMeterIP:            "meter_ip",
	CmdCTPollingRate:      "ct_polling_rate",
	CmdNetworkInfo:        "network_info",
	CmdReboot:             "reboot",
	CmdLocalAPIStatus:     "local_api_status",
}

var commandsByName = func() map[string]Command {
	m := make(map[string]Command, len(commandNames))
	for c, n := range commandNames {
		m[n] = c
	}
	return m
}()

// Name returns the symbolic name, or "" for unknown ids.
func (c Command) Name() string {
	return commandNames[c]
}

// Hex formats the id the way history entries record it, e.g. "0x03".
func (c Command) Hex() string {
	return fmt.Sprintf("0x%02X", byte(c))
}

func (c Command) String() string {
	if n, ok := commandNames[c]; ok {
		return n
	}
	return c.Hex()
}

// Known reports whether the id is in the command table.
func (c Command) Known() bool {
	_, ok := commandNames[c]
	return ok
}

// CommandByName resolves a symbolic name.
func CommandByName(name string) (Command, bool) {
	c, ok := commandsByName[name]
	return c, ok
}
