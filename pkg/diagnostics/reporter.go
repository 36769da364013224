package diagnostics

import (
	"context"
	"sync"
	"time"

	"marstek-ble-bridge/pkg/logger"
)

// Publisher delivers reports
type Publisher interface {
	PublishDiagnostics(ctx context.Context, report any) error
}

// Reporter publishes diagnostics reports periodically and on health changes
type Reporter struct {
	sources   Sources
	publisher Publisher
	interval  time.Duration
	check     time.Duration
	now       func() time.Time
	log       logger.ILogger

	mu          sync.Mutex
	lastHealth  string
	lastPublish time.Time
	published   int
}

// NewReporter creates a reporter. interval is the periodic publish period.
func NewReporter(sources Sources, publisher Publisher, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reporter{
		sources:   sources,
		publisher: publisher,
		interval:  interval,
		check:     5 * time.Second,
		now:       time.Now,
		log:       logger.NewStandardLogger(),
	}
}

// SetLogger replaces the logger
func (r *Reporter) SetLogger(l logger.ILogger) {
	r.log = l
}

// Report builds the current report
func (r *Reporter) Report() Report {
	return Build(r.sources, r.now())
}

// Published returns how many reports were delivered
func (r *Reporter) Published() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.published
}

// Run checks the device health until ctx is done
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.check)
	defer ticker.Stop()

	r.log.LogInfo("📊 Diagnostics reporter started (interval %s)", r.interval)
	r.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			r.log.LogDebug("📊 Diagnostics reporter stopped")
			return nil
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick publishes a report if the health changed or the interval elapsed.
// It returns whether a report was published.
func (r *Reporter) Tick(ctx context.Context) bool {
	report := r.Report()

	r.mu.Lock()
	changed := report.Health != r.lastHealth
	due := r.lastPublish.IsZero() || report.GeneratedAt.Sub(r.lastPublish) >= r.interval
	previous := r.lastHealth
	r.mu.Unlock()

	if !changed && !due {
		return false
	}
	if changed && previous != "" {
		r.log.LogInfo("📊 Device %s health changed: %s → %s", report.Device, previous, report.Health)
	}

	if err := r.publisher.PublishDiagnostics(ctx, report); err != nil {
		r.log.LogWarn("Error publishing diagnostics for %s: %v", report.Device, err)
		return false
	}

	r.mu.Lock()
	r.lastHealth = report.Health
	r.lastPublish = report.GeneratedAt
	r.published++
	r.mu.Unlock()
	return true
}
