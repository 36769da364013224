package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"marstek-ble-bridge/pkg/driver"
	"marstek-ble-bridge/pkg/scheduler"
)

// Health states reported on /health
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Error rate thresholds in percent of failed commands
const (
	degradedErrorRate  = 20.0
	unhealthyErrorRate = 50.0
)

// HealthStatus is the /health response body
type HealthStatus struct {
	Status              string    `json:"status"`
	Reason              string    `json:"reason,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
	Uptime              string    `json:"uptime"`
	DeviceOnline        bool      `json:"device_online"`
	ConnectionState     string    `json:"connection_state"`
	LastSuccessfulPoll  string    `json:"last_successful_poll"`
	PollInterval        float64   `json:"poll_interval_s,omitempty"`
	Stale               bool      `json:"stale"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	ErrorCount          int       `json:"error_count"`
	SuccessCount        int       `json:"success_count"`
	Version             string    `json:"version,omitempty"`
}

// HealthChecker provides device availability
type HealthChecker interface {
	IsOnline() bool
	GetLastSuccessTime() time.Time
}

// CommandCounter provides command counters and the link state
type CommandCounter interface {
	Diagnostics() driver.Diagnostics
}

// PollStatus provides the scheduler's staleness view
type PollStatus interface {
	Status() scheduler.Status
}

// HealthHandler serves /health from the device monitor, driver counters and,
// when set, the poll scheduler.
type HealthHandler struct {
	started time.Time
	health  HealthChecker
	counter CommandCounter
	poller  PollStatus
	version string
	now     func() time.Time
}

// NewHealthHandler creates a new health check handler
func NewHealthHandler(health HealthChecker, counter CommandCounter, version string) *HealthHandler {
	return &HealthHandler{
		started: time.Now(),
		health:  health,
		counter: counter,
		version: version,
		now:     time.Now,
	}
}

// WithPoller adds scheduler staleness to the report. A stale device is degraded.
func (hh *HealthHandler) WithPoller(p PollStatus) *HealthHandler {
	hh.poller = p
	return hh
}

func (hh *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := hh.Check()

	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(status); err != nil {
		http.Error(w, fmt.Sprintf("Failed to encode health status: %v", err), http.StatusInternalServerError)
	}
}

// Check assembles the current health report.
func (hh *HealthHandler) Check() HealthStatus {
	now := hh.now()
	diag := hh.counter.Diagnostics()

	hs := HealthStatus{
		Timestamp:          now,
		Uptime:             formatDuration(now.Sub(hh.started)),
		DeviceOnline:       hh.health.IsOnline(),
		ConnectionState:    diag.State,
		LastSuccessfulPoll: "never",
		ErrorCount:         diag.TotalFailure,
		SuccessCount:       diag.TotalSuccess,
		Version:            hh.version,
	}
	if last := hh.health.GetLastSuccessTime(); !last.IsZero() {
		hs.LastSuccessfulPoll = formatDuration(now.Sub(last)) + " ago"
	}
	if hh.poller != nil {
		ps := hh.poller.Status()
		hs.PollInterval = ps.FastInterval
		hs.Stale = ps.Stale
		hs.ConsecutiveFailures = ps.ConsecutiveFailures
	}

	hs.Status, hs.Reason = grade(hs)
	return hs
}

// grade picks the worst condition that applies.
func grade(hs HealthStatus) (string, string) {
	if !hs.DeviceOnline {
		return StatusUnhealthy, "device offline"
	}
	rate := errorRate(hs.SuccessCount, hs.ErrorCount)
	switch {
	case rate > unhealthyErrorRate:
		return StatusUnhealthy, fmt.Sprintf("%.0f%% of commands failed", rate)
	case rate > degradedErrorRate:
		return StatusDegraded, fmt.Sprintf("%.0f%% of commands failed", rate)
	case hs.Stale:
		return StatusDegraded, "no successful poll within the stale threshold"
	}
	return StatusHealthy, ""
}

func errorRate(success, failure int) float64 {
	total := success + failure
	if total == 0 {
		return 0
	}
	return float64(failure) / float64(total) * 100
}

// formatDuration formats a duration in human-readable form
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours %d minutes", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%d days %d hours", int(d.Hours())/24, int(d.Hours())%24)
	}
}
