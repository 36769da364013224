package health

import (
	"testing"
	"time"
)

func TestDeviceHealthMonitorTransitions(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	m := NewDeviceHealthMonitorWithClock(60*time.Second, clock)

	var flips []bool
	m.OnChange(func(online bool) { flips = append(flips, online) })

	if m.IsOnline() {
		t.Fatal("Expected monitor to start offline")
	}

	m.RecordSuccess()
	if !m.IsOnline() {
		t.Fatal("Expected online after success")
	}

	now = now.Add(10 * time.Second)
	if m.RecordError() {
		t.Error("Expected first error to stay within grace period")
	}
	if !m.IsOnline() || !m.IsInGracePeriod() {
		t.Error("Expected device to remain online in grace period")
	}

	now = now.Add(61 * time.Second)
	if !m.RecordError() {
		t.Error("Expected device to go offline after grace period")
	}
	if m.RecordError() {
		t.Error("Expected offline transition to be reported once")
	}
	if m.GetConsecutiveErrors() != 3 {
		t.Errorf("Expected 3 consecutive errors, got %d", m.GetConsecutiveErrors())
	}

	m.RecordSuccess()
	if len(flips) != 3 || !flips[0] || flips[1] || !flips[2] {
		t.Errorf("Expected [true false true], got %v", flips)
	}
}
