package recovery

import (
	"time"
)

// DefaultGracePeriod applies when no grace period is configured
const DefaultGracePeriod = 60 * time.Second

// ErrorRun describes the current streak of failed poll cycles.
type ErrorRun struct {
	Count       int
	Since       time.Duration // Time since the first failure of the run
	InGrace     bool
	Offline     bool // Offline has already been reported for this run
	GracePeriod time.Duration
}

// ErrorRecoveryManager tracks a run of failed poll cycles and decides when the
// device should be reported unavailable. Not safe for concurrent use; callers
// hold their own lock
type ErrorRecoveryManager struct {
	grace    time.Duration
	now      func() time.Time
	count    int
	first    time.Time
	reported bool
}

// NewErrorRecoveryManager creates a new error recovery manager
func NewErrorRecoveryManager(gracePeriod time.Duration) *ErrorRecoveryManager {
	return NewErrorRecoveryManagerWithClock(gracePeriod, time.Now)
}

// NewErrorRecoveryManagerWithClock is NewErrorRecoveryManager with an injected clock
func NewErrorRecoveryManagerWithClock(gracePeriod time.Duration, now func() time.Time) *ErrorRecoveryManager {
	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}
	if now == nil {
		now = time.Now
	}
	return &ErrorRecoveryManager{grace: gracePeriod, now: now}
}

func (m *ErrorRecoveryManager) elapsed() time.Duration {
	if m.first.IsZero() {
		return 0
	}
	return m.now().Sub(m.first)
}

// RecordError counts a failed cycle and reports whether the grace period is spent
func (m *ErrorRecoveryManager) RecordError() bool {
	if m.count == 0 {
		m.first = m.now()
	}
	m.count++
	return m.elapsed() >= m.grace
}

// RecordSuccess ends the current run
func (m *ErrorRecoveryManager) RecordSuccess() {
	m.Reset()
}

// GetConsecutiveErrors returns the length of the current run
func (m *ErrorRecoveryManager) GetConsecutiveErrors() int {
	return m.count
}

// ShouldMarkOffline is true once per run, after the grace period
func (m *ErrorRecoveryManager) ShouldMarkOffline() bool {
	return m.count > 0 && !m.reported && m.elapsed() >= m.grace
}

// MarkAsOffline records that offline has been reported for this run
func (m *ErrorRecoveryManager) MarkAsOffline() {
	m.reported = true
}

// IsInGracePeriod is true while a run is younger than the grace period
func (m *ErrorRecoveryManager) IsInGracePeriod() bool {
	return m.count > 0 && m.elapsed() < m.grace
}

// GetTimeSinceFirstError returns the age of the current run
func (m *ErrorRecoveryManager) GetTimeSinceFirstError() time.Duration {
	return m.elapsed()
}

// Run returns the current run as a value.
func (m *ErrorRecoveryManager) Run() ErrorRun {
	return ErrorRun{
		Count:       m.count,
		Since:       m.elapsed(),
		InGrace:     m.IsInGracePeriod(),
		Offline:     m.reported,
		GracePeriod: m.grace,
	}
}

// Reset clears the run
func (m *ErrorRecoveryManager) Reset() {
	m.count = 0
	m.first = time.Time{}
	m.reported = false
}
