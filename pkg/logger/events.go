package logger

import (
	"github.com/sirupsen/logrus"

	"marstek-ble-bridge/pkg/events"
)

// EventSink logs driver and scheduler events with structured fields.
// Routine traffic goes to debug/trace; failures to warn.
func EventSink() events.Sink {
	return events.SinkFunc(logEvent)
}

func logEvent(e events.Event) {
	fields := logrus.Fields{"event": e.Type.String()}
	if e.Device != "" {
		fields["device"] = e.Device
	}
	if e.Command != "" {
		fields["command"] = e.Command
	}
	if e.Attempt > 0 {
		fields["attempt"] = e.Attempt
	}
	if e.Duration > 0 {
		fields["duration"] = e.Duration.String()
	}
	if e.Trigger != "" {
		fields["trigger"] = e.Trigger
	}
	if len(e.Tiers) > 0 {
		fields["tiers"] = e.Tiers
	}
	if e.Err != nil {
		fields["error"] = e.Err.Error()
	}
	entry := std.WithFields(fields)

	switch e.Type {
	case events.Connected:
		entry.Infof("🔗 Connected %s", e.Detail)
	case events.Disconnected:
		if e.Expected {
			entry.Debugf("🔌 Disconnected (expected)")
		} else {
			entry.Warnf("⚠️ Unexpected disconnect %s", e.Detail)
		}
	case events.InactivityDisconnect:
		entry.Debugf("💤 Idle, releasing connection")
	case events.ConnectFailed, events.CommandFailed, events.PollFailed:
		entry.Warnf("⚠️ %s %s", e.Type, e.Detail)
	case events.CommandAttemptFailed, events.FrameRejected:
		entry.Debugf("🔧 %s %s", e.Type, e.Detail)
	case events.WatchdogFired:
		entry.Warnf("🐕 Watchdog forcing poll: %s", e.Detail)
	case events.IntervalChanged:
		entry.Infof("📅 %s", e.Detail)
	case events.NotificationReceived, events.CommandSent:
		entry.Tracef("🔍 %s %s", e.Type, e.Detail)
	default:
		entry.Debugf("🔧 %s %s", e.Type, e.Detail)
	}
}
