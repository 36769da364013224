package metrics

import (
	"net/http"
	"time"

	"marstek-ble-bridge/pkg/state"
)

// MetricsCollector defines the interface for collecting application metrics.
//
// Implementations:
//   - PrometheusMetrics: client_golang collectors on a private registry
//   - NullMetrics: no-op implementation when metrics are disabled
type MetricsCollector interface {
	// IncrementCommandSuccess counts a command that received its reply
	IncrementCommandSuccess(command string)

	// IncrementCommandFailures counts a command that failed after all retries
	IncrementCommandFailures(command string)

	// ObserveCommandDuration records the time of one attempt
	ObserveCommandDuration(command string, duration time.Duration)

	// IncrementFrameErrors counts a rejected notification by error kind
	IncrementFrameErrors(kind string)

	// IncrementPollCycles counts a finished poll cycle
	IncrementPollCycles(trigger string, success bool)

	// ObservePollDuration records the duration of a poll cycle
	ObservePollDuration(duration time.Duration)

	// IncrementWatchdogFires counts forced self-heal cycles
	IncrementWatchdogFires()

	// IncrementMQTTPublishes increments the counter for successful MQTT publish operations
	IncrementMQTTPublishes()

	// IncrementMQTTErrors increments the counter for failed MQTT publish operations
	IncrementMQTTErrors()

	// SetDeviceStatus sets whether the device is considered available
	SetDeviceStatus(online bool)

	// SetConnected sets whether a BLE session is open
	SetConnected(connected bool)

	// UpdateFromSnapshot exports the numeric fields of a device snapshot
	UpdateFromSnapshot(snap state.Snapshot)

	// Handler serves the metrics in exposition format
	Handler() http.Handler

	// StartMetricsServer starts an HTTP server to expose metrics
	// Parameters:
	//   - port: HTTP port to listen on (0 disables the server)
	StartMetricsServer(port int) error
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector
var _ MetricsCollector = (*PrometheusMetrics)(nil)
