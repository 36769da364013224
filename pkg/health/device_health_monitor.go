package health

import (
	"sync"
	"time"

	"marstek-ble-bridge/pkg/recovery"
)

// DeviceHealthMonitor tracks whether the battery is reachable. Poll failures
// are tolerated for a grace period before the device is reported unavailable
type DeviceHealthMonitor struct {
	isOnline      bool
	lastErrorTime time.Time
	lastSuccess   time.Time
	errorManager  *recovery.ErrorRecoveryManager
	now           func() time.Time
	onChange      func(online bool)
	mu            sync.RWMutex
}

// NewDeviceHealthMonitor creates a monitor that starts offline until the first good poll
func NewDeviceHealthMonitor(gracePeriod time.Duration) *DeviceHealthMonitor {
	return NewDeviceHealthMonitorWithClock(gracePeriod, time.Now)
}

// NewDeviceHealthMonitorWithClock is NewDeviceHealthMonitor with an injected clock
func NewDeviceHealthMonitorWithClock(gracePeriod time.Duration, now func() time.Time) *DeviceHealthMonitor {
	if now == nil {
		now = time.Now
	}
	return &DeviceHealthMonitor{
		errorManager: recovery.NewErrorRecoveryManagerWithClock(gracePeriod, now),
		now:          now,
	}
}

// OnChange registers a callback invoked outside the lock whenever availability flips
func (m *DeviceHealthMonitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// IsOnline returns whether the device is currently marked as available
func (m *DeviceHealthMonitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isOnline
}

// RecordSuccess records a completed poll cycle
func (m *DeviceHealthMonitor) RecordSuccess() {
	m.mu.Lock()
	m.errorManager.RecordSuccess()
	m.lastSuccess = m.now()
	changed := !m.isOnline
	m.isOnline = true
	cb := m.onChange
	m.mu.Unlock()

	if changed && cb != nil {
		cb(true)
	}
}

// RecordError records a failed poll cycle and returns true when the device
// has just been marked offline
func (m *DeviceHealthMonitor) RecordError() bool {
	m.mu.Lock()
	m.lastErrorTime = m.now()
	m.errorManager.RecordError()

	// A device that never answered has no grace to spend
	goOffline := m.errorManager.ShouldMarkOffline() || (m.lastSuccess.IsZero() && !m.errorManager.IsInGracePeriod())
	changed := false
	if goOffline {
		m.errorManager.MarkAsOffline()
		changed = m.isOnline
		m.isOnline = false
	}
	cb := m.onChange
	m.mu.Unlock()

	if changed && cb != nil {
		cb(false)
	}
	return changed
}

// GetConsecutiveErrors returns the current count of consecutive errors
func (m *DeviceHealthMonitor) GetConsecutiveErrors() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errorManager.GetConsecutiveErrors()
}

// GetLastErrorTime returns the time of the last error
func (m *DeviceHealthMonitor) GetLastErrorTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErrorTime
}

// GetLastSuccessTime returns the time of the last completed poll
func (m *DeviceHealthMonitor) GetLastSuccessTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSuccess
}

// IsInGracePeriod returns true if currently in error grace period
func (m *DeviceHealthMonitor) IsInGracePeriod() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errorManager.IsInGracePeriod()
}

// GetTimeSinceFirstError returns duration since first error in current sequence
func (m *DeviceHealthMonitor) GetTimeSinceFirstError() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errorManager.GetTimeSinceFirstError()
}

// ErrorRun returns the current streak of failed cycles
func (m *DeviceHealthMonitor) ErrorRun() recovery.ErrorRun {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errorManager.Run()
}
