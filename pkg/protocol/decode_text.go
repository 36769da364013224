package protocol

import (
	"bytes"
	"strings"

	"marstek-ble-bridge/pkg/state"
)

// MeterIPNotSet is stored when the device reports no meter address.
const MeterIPNotSet = "(not set)"

// MeterIPQuery is the payload that reads the configured meter address.
var MeterIPQuery = []byte{0x0B}

// ascii keeps printable 7-bit characters, matching a lenient ASCII decode.
func ascii(p []byte) string {
	var sb strings.Builder
	sb.Grow(len(p))
	for _, b := range p {
		if b < 0x80 {
			sb.WriteByte(b)
		}
	}
	return sb.String()
}

// cString decodes up to the first NUL.
func cString(p []byte) string {
	if i := bytes.IndexByte(p, 0); i >= 0 {
		p = p[:i]
	}
	return ascii(p)
}

type pair struct {
	key, value string
}

// splitPairs parses "k<sep>v,k<sep>v" lists in wire order. Entries without
// sep are skipped; callers applying them in order let the last duplicate win.
func splitPairs(text string, sep string) []pair {
	var out []pair
	for _, part := range strings.Split(text, ",") {
		k, v, ok := strings.Cut(part, sep)
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out = append(out, pair{key: k, value: strings.TrimSpace(v)})
	}
	return out
}

var deviceInfoKeys = map[string]state.FieldID{
	"type":    state.FieldDeviceType,
	"id":      state.FieldDeviceID,
	"mac":     state.FieldMACAddress,
	"dev_ver": state.FieldFirmwareVersion,
	"fc_ver":  state.FieldFirmwareVersion,
	"sn":      state.FieldSerialNumber,
	"hw_ver":  state.FieldHardwareVersion,
}

func decodeDeviceInfo(p []byte, w *state.Writer) bool {
	text := ascii(bytes.TrimRight(p, "\x00"))
	for _, kv := range splitPairs(text, "=") {
		if id, ok := deviceInfoKeys[kv.key]; ok {
			w.SetString(id, kv.value)
		}
	}
	return w.Written() > 0
}

func decodeWiFiSSID(p []byte, w *state.Writer) bool {
	w.SetString(state.FieldWiFiSSID, strings.TrimSpace(cString(p)))
	return true
}

func allBytes(p []byte, v byte) bool {
	for _, b := range p {
		if b != v {
			return false
		}
	}
	return true
}

func decodeMeterIP(p []byte, w *state.Writer) bool {
	if len(p) > 16 {
		p = p[:16]
	}
	ip := ""
	if !allBytes(p, 0xFF) && !allBytes(p, 0x00) {
		ip = strings.TrimSpace(cString(p))
	}
	if ip == "" {
		w.SetString(state.FieldMeterIP, MeterIPNotSet)
		w.SetBool(state.FieldMeterIPConfigured, false)
		return true
	}
	w.SetString(state.FieldMeterIP, ip)
	w.SetBool(state.FieldMeterIPConfigured, true)
	return true
}

var networkKeys = map[string]state.FieldID{
	"ip":      state.FieldNetworkIP,
	"gate":    state.FieldNetworkGateway,
	"gateway": state.FieldNetworkGateway,
	"mask":    state.FieldNetworkMask,
	"dns":     state.FieldNetworkDNS,
}

func decodeNetworkInfo(p []byte, w *state.Writer) bool {
	raw := strings.TrimSpace(cString(p))
	w.SetString(state.FieldNetworkInfo, raw)
	for _, kv := range splitPairs(raw, ":") {
		if id, ok := networkKeys[strings.ToLower(kv.key)]; ok {
			w.SetString(id, kv.value)
		}
	}
	return true
}
