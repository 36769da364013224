// Package events carries structured observability events from the driver and
// the scheduler to whatever sinks the application wires in.
package events

import (
	"sync"
	"time"
)

// Type identifies an event.
type Type int

const (
	Connecting Type = iota
	Connected
	ConnectFailed
	Disconnected
	InactivityDisconnect
	CommandSent
	CommandSucceeded
	CommandAttemptFailed
	CommandFailed
	NotificationReceived
	FrameRejected
	PollStarted
	PollCompleted
	PollFailed
	WatchdogFired
	WatchdogSkipped
	IntervalChanged
)

var typeNames = map[Type]string{
	Connecting:           "connecting",
	Connected:            "connected",
	ConnectFailed:        "connect_failed",
	Disconnected:         "disconnected",
	InactivityDisconnect: "inactivity_disconnect",
	CommandSent:          "command_sent",
	CommandSucceeded:     "command_succeeded",
	CommandAttemptFailed: "command_attempt_failed",
	CommandFailed:        "command_failed",
	NotificationReceived: "notification_received",
	FrameRejected:        "frame_rejected",
	PollStarted:          "poll_started",
	PollCompleted:        "poll_completed",
	PollFailed:           "poll_failed",
	WatchdogFired:        "watchdog_fired",
	WatchdogSkipped:      "watchdog_skipped",
	IntervalChanged:      "interval_changed",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return "unknown"
}

// Event is one observation. Fields not relevant to the type are zero.
type Event struct {
	Type     Type
	Time     time.Time
	Device   string
	Command  string
	Attempt  int
	Duration time.Duration
	Parsed   bool
	Expected bool
	Trigger  string
	Tiers    []string
	Detail   string
	Err      error
}

// Sink receives events. Implementations must not block.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

type fanout []Sink

func (f fanout) Emit(e Event) {
	for _, s := range f {
		s.Emit(e)
	}
}

// Fanout delivers every event to all non-nil sinks in order.
func Fanout(sinks ...Sink) Sink {
	out := make(fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return Discard
	}
	return out
}

// Recorder keeps events in memory. Used by tests and the diagnostic CLI mode.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit appends e.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many events of type t were recorded.
func (r *Recorder) Count(t Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// Reset clears recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
