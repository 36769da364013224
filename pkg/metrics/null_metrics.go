package metrics

import (
	"net/http"
	"time"

	"marstek-ble-bridge/pkg/state"
)

// NullMetrics is a no-op implementation of MetricsCollector.
// Use this when metrics are disabled to avoid any collection overhead.
type NullMetrics struct{}

// NewNullMetrics creates a new NullMetrics instance
func NewNullMetrics() *NullMetrics {
	return &NullMetrics{}
}

func (nm *NullMetrics) IncrementCommandSuccess(command string)                       {}
func (nm *NullMetrics) IncrementCommandFailures(command string)                      {}
func (nm *NullMetrics) ObserveCommandDuration(command string, duration time.Duration) {}
func (nm *NullMetrics) IncrementFrameErrors(kind string)                             {}
func (nm *NullMetrics) IncrementPollCycles(trigger string, success bool)             {}
func (nm *NullMetrics) ObservePollDuration(duration time.Duration)                   {}
func (nm *NullMetrics) IncrementWatchdogFires()                                      {}
func (nm *NullMetrics) IncrementMQTTPublishes()                                      {}
func (nm *NullMetrics) IncrementMQTTErrors()                                         {}
func (nm *NullMetrics) SetDeviceStatus(online bool)                                  {}
func (nm *NullMetrics) SetConnected(connected bool)                                  {}
func (nm *NullMetrics) UpdateFromSnapshot(snap state.Snapshot)                       {}

// Handler reports that metrics are disabled
func (nm *NullMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "metrics disabled", http.StatusNotFound)
	})
}

// StartMetricsServer is a no-op (always returns nil)
func (nm *NullMetrics) StartMetricsServer(port int) error {
	return nil
}

// Compile-time verification that NullMetrics implements MetricsCollector
var _ MetricsCollector = (*NullMetrics)(nil)
