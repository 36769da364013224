package metrics

import (
	"sync"
	"time"

	"marstek-ble-bridge/pkg/events"
	"marstek-ble-bridge/pkg/logger"
)

// PerformanceTracker keeps command success and failure counts between
// periodic log summaries.
type PerformanceTracker struct {
	device          string
	successes       int
	failures        int
	cycles          int
	lastSummaryTime time.Time
	summaryInterval time.Duration
	now             func() time.Time
	mu              sync.RWMutex
}

// PerformanceStats represents performance statistics
type PerformanceStats struct {
	Successes   int
	Failures    int
	Cycles      int
	LastSummary time.Time
	SuccessRate float64
	ErrorRate   float64
}

// NewPerformanceTracker creates a new performance tracker
func NewPerformanceTracker(device string, summaryInterval time.Duration) *PerformanceTracker {
	return NewPerformanceTrackerWithClock(device, summaryInterval, time.Now)
}

// NewPerformanceTrackerWithClock creates a tracker reading time from now.
func NewPerformanceTrackerWithClock(device string, summaryInterval time.Duration, now func() time.Time) *PerformanceTracker {
	return &PerformanceTracker{
		device:          device,
		lastSummaryTime: now(),
		summaryInterval: summaryInterval,
		now:             now,
	}
}

// RecordSuccess records a command that got its reply
func (pt *PerformanceTracker) RecordSuccess() {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.successes++
}

// RecordError records a command that failed after retries
func (pt *PerformanceTracker) RecordError() {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.failures++
}

// RecordCycle records a finished poll cycle
func (pt *PerformanceTracker) RecordCycle() {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.cycles++
}

// GetStats returns current performance statistics
func (pt *PerformanceTracker) GetStats() PerformanceStats {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	total := pt.successes + pt.failures
	var successRate, errorRate float64
	if total > 0 {
		successRate = (float64(pt.successes) / float64(total)) * 100.0
		errorRate = (float64(pt.failures) / float64(total)) * 100.0
	}

	return PerformanceStats{
		Successes:   pt.successes,
		Failures:    pt.failures,
		Cycles:      pt.cycles,
		LastSummary: pt.lastSummaryTime,
		SuccessRate: successRate,
		ErrorRate:   errorRate,
	}
}

// ShouldPrintSummary checks if enough time has passed to print summary
func (pt *PerformanceTracker) ShouldPrintSummary() bool {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return pt.now().Sub(pt.lastSummaryTime) >= pt.summaryInterval
}

// PrintSummaryIfNeeded logs a summary and resets the counters once the
// summary interval has elapsed. It reports whether a summary was printed.
func (pt *PerformanceTracker) PrintSummaryIfNeeded() bool {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	now := pt.now()
	if now.Sub(pt.lastSummaryTime) < pt.summaryInterval {
		return false
	}

	logger.LogInfo("📊 [%s] Summary - Commands OK: %d, Failed: %d, Cycles: %d, Last %v",
		pt.device, pt.successes, pt.failures, pt.cycles, pt.summaryInterval)

	pt.lastSummaryTime = now
	pt.successes = 0
	pt.failures = 0
	pt.cycles = 0
	return true
}

// Reset resets all counters and timers
func (pt *PerformanceTracker) Reset() {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.successes = 0
	pt.failures = 0
	pt.cycles = 0
	pt.lastSummaryTime = pt.now()
}

// Sink counts command outcomes and prints the summary after each cycle.
func (pt *PerformanceTracker) Sink() events.Sink {
	return events.SinkFunc(func(e events.Event) {
		switch e.Type {
		case events.CommandSucceeded:
			pt.RecordSuccess()
		case events.CommandFailed:
			pt.RecordError()
		case events.PollCompleted, events.PollFailed:
			pt.RecordCycle()
			pt.PrintSummaryIfNeeded()
		}
	})
}
