package metrics

import (
	"errors"

	"marstek-ble-bridge/pkg/events"
	"marstek-ble-bridge/pkg/protocol"
)

// EventSink feeds driver and scheduler events into a collector.
func EventSink(mc MetricsCollector) events.Sink {
	return events.SinkFunc(func(e events.Event) {
		switch e.Type {
		case events.Connected:
			mc.SetConnected(true)
		case events.Disconnected, events.InactivityDisconnect:
			mc.SetConnected(false)
		case events.CommandSucceeded:
			mc.IncrementCommandSuccess(e.Command)
			mc.ObserveCommandDuration(e.Command, e.Duration)
		case events.CommandAttemptFailed:
			mc.ObserveCommandDuration(e.Command, e.Duration)
		case events.CommandFailed:
			mc.IncrementCommandFailures(e.Command)
		case events.FrameRejected:
			kind := "unknown"
			var fe *protocol.FrameError
			if errors.As(e.Err, &fe) {
				kind = fe.Kind()
			}
			mc.IncrementFrameErrors(kind)
		case events.PollCompleted:
			mc.IncrementPollCycles(e.Trigger, true)
			mc.ObservePollDuration(e.Duration)
		case events.PollFailed:
			mc.IncrementPollCycles(e.Trigger, false)
			mc.ObservePollDuration(e.Duration)
		case events.WatchdogFired:
			mc.IncrementWatchdogFires()
		}
	})
}
