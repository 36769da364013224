package protocol

import (
	"fmt"
	"strings"
	"time"

	"marstek-ble-bridge/pkg/state"
)

type decoderFunc func(p []byte, w *state.Writer) bool

var decoders = map[Command]decoderFunc{
	CmdRuntimeInfo:    decodeRuntimeInfo,
	CmdDeviceInfo:     decodeDeviceInfo,
	CmdWiFiSSID:       decodeWiFiSSID,
	CmdSystemData:     layoutDecoder(systemDataV1),
	CmdTimerInfo:      layoutDecoder(timerInfoV1),
	CmdBMSData:        layoutDecoder(bmsV1),
	CmdConfigData:     layoutDecoder(configDataV1),
	CmdEventLog:       decodeEventLog,
	CmdMeterIP:        decodeMeterIP,
	CmdCTPollingRate:  layoutDecoder(ctPollingRateV1),
	CmdNetworkInfo:    decodeNetworkInfo,
	CmdLocalAPIStatus: decodeLocalAPIStatus,
}

// HasDecoder reports whether notifications for cmd update the state record.
func HasDecoder(cmd Command) bool {
	_, ok := decoders[cmd]
	return ok
}

// DecodePayload decodes a notification payload into rec. It returns false,
// leaving rec unchanged, for unknown commands and for payloads that are too
// short or malformed.
func DecodePayload(cmd Command, payload []byte, rec *state.Record, ts time.Time) bool {
	dec, ok := decoders[cmd]
	if !ok || rec == nil {
		return false
	}
	return rec.Update(byte(cmd), ts, payload, func(w *state.Writer) bool {
		return dec(payload, w)
	})
}

func layoutDecoder(l Layout) decoderFunc {
	return func(p []byte, w *state.Writer) bool {
		if len(p) < l.MinLen {
			return false
		}
		l.apply(p, w)
		return true
	}
}

var workModeLabels = map[int64]string{
	0: "Auto",
	1: "Standby",
	2: "Charging",
	3: "Sell Electricity",
	4: "UPS/EPS",
	5: "Force Charge",
	6: "Grid Export",
	7: "Schedule/TOU",
}

// WorkModeLabel names a runtime work mode id.
func WorkModeLabel(mode int64) string {
	if l, ok := workModeLabels[mode]; ok {
		return l
	}
	return fmt.Sprintf("Unknown (%d)", mode)
}

func decodeRuntimeInfo(p []byte, w *state.Writer) bool {
	switch ClassifyRuntime(len(p)) {
	case RuntimeShort:
		runtimeShortV1.apply(p, w)
	case RuntimeLong:
		runtimeLongV1.apply(p, w)
	case RuntimeExtended:
		runtimeLongV1.apply(p, w)
		runtimeExtendedV1.apply(p, w)
		decodeRuntimeStrings(p, w)
	default:
		return false
	}
	return true
}

func decodeRuntimeStrings(p []byte, w *state.Writer) {
	if mode, ok := w.Get(state.FieldWorkMode).Int(); ok {
		w.SetString(state.FieldWorkModeLabel, WorkModeLabel(mode))
	}
	w.SetString(state.FieldRuntimeFirmware, fmt.Sprintf("v%d.%d", p[0x4C], p[0x4D]))
	w.SetInt(state.FieldBuildCode, int64(p[0x4E])<<8|int64(p[0x4F]))
	if build := formatBuild(cString(p[0x51 : 0x51+12])); build != "" {
		w.SetString(state.FieldFirmwareBuild, build)
	}
}

// formatBuild renders an all-digit build stamp as "YYYY-MM-DD HH:MM".
func formatBuild(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return s
	}
	s = (s + "000000000000")[:12]
	return fmt.Sprintf("%s-%s-%s %s:%s", s[0:4], s[4:6], s[6:8], s[8:10], s[10:12])
}

func decodeLocalAPIStatus(p []byte, w *state.Writer) bool {
	if len(p) < localAPIV1.MinLen {
		return false
	}
	localAPIV1.apply(p, w)
	enabled := p[0] == 1
	w.SetBool(state.FieldLocalAPIEnabled, enabled)
	port, _ := w.Get(state.FieldLocalAPIPort).Int()
	label := "disabled"
	if enabled {
		label = "enabled"
	}
	w.SetString(state.FieldLocalAPIStatus, fmt.Sprintf("%s/%d", label, port))
	return true
}
