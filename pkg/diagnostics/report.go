package diagnostics

import (
	"strings"
	"time"

	"marstek-ble-bridge/pkg/driver"
	"marstek-ble-bridge/pkg/protocol"
	"marstek-ble-bridge/pkg/recovery"
	"marstek-ble-bridge/pkg/scheduler"
	"marstek-ble-bridge/pkg/state"
)

// Redacted replaces sensitive values in reports
const Redacted = "**REDACTED**"

// sensitiveFields are hidden from reports
var sensitiveFields = map[string]bool{
	state.FieldWiFiSSID.String():       true,
	state.FieldMeterIP.String():        true,
	state.FieldNetworkInfo.String():    true,
	state.FieldNetworkIP.String():      true,
	state.FieldNetworkGateway.String(): true,
	state.FieldNetworkMask.String():    true,
	state.FieldNetworkDNS.String():     true,
	state.FieldMACAddress.String():     true,
	state.FieldDeviceID.String():       true,
}

// sensitiveCommands carry the same data in their raw payloads
var sensitiveCommands = map[string]bool{
	protocol.CmdDeviceInfo.Hex():  true,
	protocol.CmdWiFiSSID.Hex():    true,
	protocol.CmdMeterIP.Hex():     true,
	protocol.CmdNetworkInfo.Hex(): true,
}

// Device health states
const (
	StateOperational = "operational"
	StateWarning     = "warning"
	StateError       = "error"
	StateOffline     = "offline"
)

// Report is the full diagnostics document of one device
type Report struct {
	Device       string                        `json:"device"`
	GeneratedAt  time.Time                     `json:"generated_at"`
	Health       string                        `json:"health"`
	Online       bool                          `json:"online"`
	Driver       driver.Diagnostics            `json:"driver"`
	Scheduler    scheduler.Status              `json:"scheduler"`
	Breaker      *recovery.CircuitBreakerStats `json:"circuit_breaker,omitempty"`
	Fields       map[string]any                `json:"fields"`
	Derived      map[string]any                `json:"derived"`
	Metadata     map[string]state.Metadata     `json:"field_metadata"`
	DecodeCounts map[string]state.DecodeCount  `json:"decode_counts"`
}

// DriverSource provides connection diagnostics and device state
type DriverSource interface {
	Diagnostics() driver.Diagnostics
	Snapshot() state.Snapshot
}

// SchedulerSource provides poll scheduler counters
type SchedulerSource interface {
	Status() scheduler.Status
}

// BreakerSource provides circuit breaker counters
type BreakerSource interface {
	Stats() recovery.CircuitBreakerStats
}

// HealthSource reports device availability
type HealthSource interface {
	IsOnline() bool
}

// Sources bundles everything a report is built from. Breaker and Health may be nil.
type Sources struct {
	Driver    DriverSource
	Scheduler SchedulerSource
	Breaker   BreakerSource
	Health    HealthSource
}

// Build collects a redacted report
func Build(src Sources, now time.Time) Report {
	diag := src.Driver.Diagnostics()
	snap := src.Driver.Snapshot()
	status := src.Scheduler.Status()

	r := Report{
		Device:       diag.Device,
		GeneratedAt:  now,
		Online:       diag.Connected,
		Driver:       RedactDiagnostics(diag),
		Scheduler:    status,
		Fields:       RedactFields(snap.Map()),
		Derived:      snap.DerivedMap(),
		Metadata:     make(map[string]state.Metadata),
		DecodeCounts: make(map[string]state.DecodeCount),
	}
	if src.Health != nil {
		r.Online = src.Health.IsOnline()
	}
	if src.Breaker != nil {
		stats := src.Breaker.Stats()
		r.Breaker = &stats
	}
	for _, id := range state.Fields() {
		if md, ok := snap.Metadata(id); ok {
			if sensitiveFields[id.String()] {
				md.PayloadHex = Redacted
			}
			r.Metadata[id.String()] = md
		}
	}
	for cmd, c := range snap.DecodeCounts() {
		r.DecodeCounts[protocol.Command(cmd).Hex()] = c
	}
	r.Health = Classify(r.Online, diag, status)
	return r
}

// Classify derives the health label from availability and counters
func Classify(online bool, diag driver.Diagnostics, status scheduler.Status) string {
	switch {
	case !online:
		return StateOffline
	case status.Stale || status.ConsecutiveFailures >= 3:
		return StateError
	case status.ConsecutiveFailures > 0 || (diag.TotalSent > 0 && diag.SuccessRate < 80):
		return StateWarning
	default:
		return StateOperational
	}
}

// RedactFields returns a copy with sensitive values replaced
func RedactFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if sensitiveFields[k] {
			out[k] = Redacted
			continue
		}
		out[k] = v
	}
	return out
}

// RedactDiagnostics hides raw payloads of commands that carry sensitive data
func RedactDiagnostics(d driver.Diagnostics) driver.Diagnostics {
	cmds := make([]driver.CommandEntry, len(d.CommandHistory))
	for i, e := range d.CommandHistory {
		if sensitiveCommands[e.Command] {
			e.Frame = redactHex(e.Frame)
			e.Payload = redactHex(e.Payload)
		}
		cmds[i] = e
	}
	d.CommandHistory = cmds

	notes := make([]driver.NotificationEntry, len(d.NotificationHistory))
	for i, e := range d.NotificationHistory {
		if sensitiveCommands[e.Command] {
			e.Frame = redactHex(e.Frame)
			e.Payload = redactHex(e.Payload)
		}
		notes[i] = e
	}
	d.NotificationHistory = notes

	stats := make(map[string]driver.CommandStats, len(d.Commands))
	for k, s := range d.Commands {
		if sensitiveCommands[k] {
			s.LastNotificationHex = redactHex(s.LastNotificationHex)
		}
		stats[k] = s
	}
	d.Commands = stats
	return d
}

func redactHex(s string) string {
	if strings.TrimSpace(s) == "" {
		return s
	}
	return Redacted
}
