package events

import "testing"

func TestFanoutSkipsNilSinks(t *testing.T) {
	a := &Recorder{}
	b := &Recorder{}
	sink := Fanout(a, nil, b)

	sink.Emit(Event{Type: Connected})
	sink.Emit(Event{Type: CommandSent, Command: "bms_data"})

	if a.Count(Connected) != 1 || b.Count(Connected) != 1 {
		t.Errorf("Expected both sinks to see the connect event")
	}
	if len(b.Events()) != 2 {
		t.Errorf("Expected 2 events, got %d", len(b.Events()))
	}
}

func TestFanoutEmpty(t *testing.T) {
	sink := Fanout()
	sink.Emit(Event{Type: PollStarted})
}

func TestTypeString(t *testing.T) {
	if WatchdogFired.String() != "watchdog_fired" {
		t.Errorf("Expected watchdog_fired, got %s", WatchdogFired)
	}
	if Type(999).String() != "unknown" {
		t.Errorf("Expected unknown, got %s", Type(999))
	}
}
