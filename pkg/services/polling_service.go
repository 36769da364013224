package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"marstek-ble-bridge/pkg/driver"
	bridgeerrors "marstek-ble-bridge/pkg/errors"
	"marstek-ble-bridge/pkg/health"
	"marstek-ble-bridge/pkg/logger"
	"marstek-ble-bridge/pkg/metrics"
	"marstek-ble-bridge/pkg/mqtt"
	"marstek-ble-bridge/pkg/scheduler"
	"marstek-ble-bridge/pkg/state"
)

// Device is the driver surface used by the polling service
type Device interface {
	Snapshot() state.Snapshot
	Diagnostics() driver.Diagnostics
}

// Poller is the scheduler surface used by the polling service
type Poller interface {
	OnCycle(fn func(scheduler.CycleResult))
	PollInterval() time.Duration
	Status() scheduler.Status
	StaleError() error
	Start(ctx context.Context)
	Stop()
}

// Publisher receives state and availability. A nil Publisher disables MQTT output
type Publisher interface {
	mqtt.StatePublisher
	mqtt.StatusPublisher
	PublishDiagnostic(ctx context.Context, code int, message string) error
}

// History stores every published state document
type History interface {
	Store(ctx context.Context, ts time.Time, doc map[string]any) error
}

// PollingService turns scheduler cycles into published state
// Single Responsibility: react to poll results and coordinate publishing
type PollingService struct {
	device        Device
	poller        Poller
	publisher     Publisher
	healthMonitor *health.DeviceHealthMonitor
	metrics       metrics.MetricsCollector
	tracker       *metrics.PerformanceTracker
	history       History
	errorHandler  *bridgeerrors.ErrorHandler

	results   chan scheduler.CycleResult
	republish chan string
}

// PollingOptions holds the optional collaborators
type PollingOptions struct {
	Publisher    Publisher
	Metrics      metrics.MetricsCollector
	Tracker      *metrics.PerformanceTracker
	History      History
	ErrorHandler *bridgeerrors.ErrorHandler
}

// NewPollingService creates a new polling service
func NewPollingService(device Device, poller Poller, healthMonitor *health.DeviceHealthMonitor, opts PollingOptions) *PollingService {
	mc := opts.Metrics
	if mc == nil {
		mc = metrics.NewNullMetrics()
	}
	eh := opts.ErrorHandler
	if eh == nil {
		eh = bridgeerrors.NewErrorHandler(nil)
	}
	s := &PollingService{
		device:        device,
		poller:        poller,
		publisher:     opts.Publisher,
		healthMonitor: healthMonitor,
		metrics:       mc,
		tracker:       opts.Tracker,
		history:       opts.History,
		errorHandler:  eh,
		results:       make(chan scheduler.CycleResult, 16),
		republish:     make(chan string, 1),
	}
	poller.OnCycle(s.enqueue)
	return s
}

// enqueue runs under the scheduler's poll lock and must not block
func (s *PollingService) enqueue(result scheduler.CycleResult) {
	select {
	case s.results <- result:
	default:
		logger.LogWarn("⚠️ Polling service is behind, dropping %s cycle result", result.Trigger)
	}
}

// Republish requests a state publish outside the poll cadence
func (s *PollingService) Republish(reason string) {
	select {
	case s.republish <- reason:
	default:
	}
}

// Start runs the scheduler and handles its cycles until ctx is done
func (s *PollingService) Start(ctx context.Context) error {
	logger.LogInfo("🔄 Polling service started with interval: %v", s.poller.PollInterval())
	s.healthMonitor.OnChange(func(online bool) { s.OnAvailabilityChange(ctx, online) })
	s.poller.Start(ctx)
	defer s.poller.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.LogDebug("🔄 Polling service stopped")
			return nil
		case result := <-s.results:
			s.HandleCycle(ctx, result)
		case reason := <-s.republish:
			logger.LogDebug("🔄 Republishing state after %s", reason)
			s.PublishState(ctx)
		}
	}
}

// HandleCycle updates device health and publishes the state after a cycle
func (s *PollingService) HandleCycle(ctx context.Context, result scheduler.CycleResult) {
	if result.Success {
		s.healthMonitor.RecordSuccess()
	} else {
		s.recordError(ctx, result)
	}

	if s.device.Snapshot().SetCount() > 0 {
		s.PublishState(ctx)
	}

	if s.tracker != nil {
		s.tracker.PrintSummaryIfNeeded()
	}
}

// Extras returns the connection and scheduler values published next to the state
func (s *PollingService) Extras() map[string]any {
	diag := s.device.Diagnostics()
	status := s.poller.Status()

	extras := map[string]any{
		mqtt.ExtraPollInterval:    s.poller.PollInterval().Seconds(),
		mqtt.ExtraConnectionState: diag.State,
		mqtt.ExtraSuccessRate:     diag.SuccessRate,
	}
	if status.LastSuccess != nil {
		extras[mqtt.ExtraLastPoll] = status.LastSuccess.UTC().Format(time.RFC3339)
	}
	return extras
}

// PublishState publishes the current snapshot to MQTT, metrics and history
func (s *PollingService) PublishState(ctx context.Context) {
	snap := s.device.Snapshot()
	extras := s.Extras()

	s.metrics.UpdateFromSnapshot(snap)
	s.metrics.SetConnected(s.device.Diagnostics().Connected)

	if s.publisher != nil {
		if err := s.publisher.PublishState(ctx, snap, extras); err != nil {
			logger.LogError("⚠️ Error publishing state: %v", err)
		}
	}

	if s.history != nil {
		if err := s.history.Store(ctx, snap.TakenAt(), mqtt.StatePayload(snap, extras)); err != nil {
			logger.LogWarn("⚠️ Error storing state history: %v", err)
		}
	}
}

// recordError records a failed cycle
func (s *PollingService) recordError(ctx context.Context, result scheduler.CycleResult) {
	wentOffline := s.healthMonitor.RecordError()
	run := s.healthMonitor.ErrorRun()

	if run.Count == 1 {
		logger.LogWarn("⚠️ First failed cycle detected, starting %.0fs grace period", run.GracePeriod.Seconds())
	}
	logger.LogDebug("❌ %s cycle failed (failed: %s, aborted: %t)", result.Trigger, strings.Join(result.Failed, ", "), result.Aborted)

	if run.InGrace {
		logger.LogDebug("🕐 Error %d in grace period (%.1fs elapsed) - keeping device online", run.Count, run.Since.Seconds())
		return
	}

	if wentOffline {
		logger.LogError("🔴 Grace period expired - device marked as OFFLINE after %d failed cycles over %.1f seconds",
			run.Count, run.Since.Seconds())
	}
	if err := s.poller.StaleError(); err != nil {
		s.errorHandler.Handle(ctx, err)
	}
}

// OnAvailabilityChange publishes the new availability
func (s *PollingService) OnAvailabilityChange(ctx context.Context, online bool) {
	s.metrics.SetDeviceStatus(online)
	if online {
		logger.LogInfo("🟢 Device marked as ONLINE")
	} else {
		logger.LogError("🔴 Device marked as OFFLINE")
	}
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishAvailability(ctx, online); err != nil {
		logger.LogError("⚠️ Error publishing availability: %v", err)
		return
	}
	if online {
		if err := s.publisher.PublishDiagnostic(ctx, 0, "Device reachable - polling restored"); err != nil {
			logger.LogDebug("⚠️ Error publishing recovery diagnostic: %v", err)
		}
	} else {
		msg := fmt.Sprintf("Device unreachable after %d failed cycles", s.healthMonitor.GetConsecutiveErrors())
		if err := s.publisher.PublishDiagnostic(ctx, bridgeerrors.CodeConnection, msg); err != nil {
			logger.LogDebug("⚠️ Error publishing offline diagnostic: %v", err)
		}
	}
}
