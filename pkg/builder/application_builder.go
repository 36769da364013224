package builder

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"marstek-ble-bridge/pkg/config"
	"marstek-ble-bridge/pkg/controls"
	"marstek-ble-bridge/pkg/diagnostics"
	"marstek-ble-bridge/pkg/driver"
	bridgeerrors "marstek-ble-bridge/pkg/errors"
	"marstek-ble-bridge/pkg/events"
	"marstek-ble-bridge/pkg/health"
	bridgehttp "marstek-ble-bridge/pkg/http"
	"marstek-ble-bridge/pkg/logger"
	"marstek-ble-bridge/pkg/metrics"
	"marstek-ble-bridge/pkg/mqtt"
	"marstek-ble-bridge/pkg/scheduler"
	"marstek-ble-bridge/pkg/services"
	"marstek-ble-bridge/pkg/state"
	"marstek-ble-bridge/pkg/storage"
	"marstek-ble-bridge/pkg/transport/ble"
)

// Version is reported by the health endpoint
var Version = "dev"

// ApplicationBuilder provides a fluent interface for constructing Application instances
// Following Builder pattern to enable dependency injection and improve testability
type ApplicationBuilder struct {
	config        *config.Config
	transport     driver.Transport
	resolver      driver.Resolver
	publisher     *mqtt.Publisher
	metrics       metrics.MetricsCollector
	history       services.History
	healthMonitor *health.DeviceHealthMonitor
	sinks         []events.Sink
}

// NewApplicationBuilder creates a new builder
func NewApplicationBuilder(cfg *config.Config) *ApplicationBuilder {
	return &ApplicationBuilder{config: cfg}
}

// WithTransport sets a custom link implementation and device resolver
func (b *ApplicationBuilder) WithTransport(t driver.Transport, resolver driver.Resolver) *ApplicationBuilder {
	b.transport = t
	b.resolver = resolver
	return b
}

// WithPublisher sets a custom MQTT publisher
func (b *ApplicationBuilder) WithPublisher(pub *mqtt.Publisher) *ApplicationBuilder {
	b.publisher = pub
	return b
}

// WithMetrics sets a custom metrics collector
func (b *ApplicationBuilder) WithMetrics(mc metrics.MetricsCollector) *ApplicationBuilder {
	b.metrics = mc
	return b
}

// WithHistory sets a custom state history store
func (b *ApplicationBuilder) WithHistory(h services.History) *ApplicationBuilder {
	b.history = h
	return b
}

// WithHealthMonitor sets a custom health monitor
func (b *ApplicationBuilder) WithHealthMonitor(monitor *health.DeviceHealthMonitor) *ApplicationBuilder {
	b.healthMonitor = monitor
	return b
}

// WithEventSink adds a sink receiving every driver and scheduler event
func (b *ApplicationBuilder) WithEventSink(sink events.Sink) *ApplicationBuilder {
	b.sinks = append(b.sinks, sink)
	return b
}

// Build constructs the Application with all dependencies
// Creates default implementations for any missing dependencies
func (b *ApplicationBuilder) Build(ctx context.Context) (*Application, error) {
	if b.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := b.config
	monitor := config.NewMonitorSettings(cfg)

	app := &Application{config: cfg}

	if b.metrics == nil {
		if cfg.Metrics.Enabled {
			b.metrics = metrics.NewPrometheusMetrics(cfg.Device.ID)
		} else {
			b.metrics = metrics.NewNullMetrics()
		}
	}
	app.metrics = b.metrics
	app.tracker = metrics.NewPerformanceTracker(cfg.Device.ID, monitor.SummaryInterval)

	sinks := append([]events.Sink{logger.EventSink(), metrics.EventSink(app.metrics), app.tracker.Sink()}, b.sinks...)
	sink := events.Fanout(sinks...)

	if b.transport == nil {
		bt := ble.New(config.NewBLEConfig(cfg))
		b.transport = bt
		b.resolver = bt.Resolver()
		app.ble = bt
	}
	if b.resolver == nil {
		b.resolver = driver.StaticResolver(cfg.Device.Address)
	}
	transport := b.transport
	if bc, enabled := config.NewBreakerConfig(cfg); enabled {
		app.breaker = driver.NewBreakerTransport(b.transport, bc)
		transport = app.breaker
	}

	app.driver = driver.New(config.NewDriverConfig(cfg), transport, b.resolver, state.NewRecord(), sink)
	app.scheduler = scheduler.New(config.NewPollingConfig(cfg), app.driver, scheduler.DefaultPlan(), sink)
	app.catalog = controls.NewCatalog(cfg.Device.ID, app.driver, nil)

	if b.healthMonitor == nil {
		b.healthMonitor = health.NewDeviceHealthMonitor(monitor.ErrorGracePeriod)
	}
	app.healthMonitor = b.healthMonitor

	opts := services.PollingOptions{
		Metrics: app.metrics,
		Tracker: app.tracker,
	}

	if b.publisher == nil && cfg.MQTT.Broker != "" {
		b.publisher = mqtt.NewPublisher(config.NewMQTTSettings(cfg), config.NewHomeAssistantSettings(cfg), app.catalog, app.metrics)
	}
	if b.publisher != nil {
		app.publisher = b.publisher
		app.errorHandler = bridgeerrors.NewErrorHandler(app.publisher)
		app.router = mqtt.NewCommandRouter(cfg.MQTT.BaseTopic, cfg.Device.ID, app.catalog, app.scheduler)
		app.router.SetErrorHandler(app.errorHandler)
		app.publisher.SetCommandRouter(app.router)
		opts.Publisher = app.publisher
		opts.ErrorHandler = app.errorHandler
	} else {
		logger.LogWarn("⚠️ MQTT broker not configured, Home Assistant integration disabled")
	}

	if b.history == nil && cfg.Redis.Enabled {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		history, err := storage.NewRedisHistory(connectCtx, storage.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			DeviceID: cfg.Device.ID,
			Channel:  cfg.Redis.Channel,
			Length:   cfg.Redis.HistoryLength,
		})
		cancel()
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, history.Close)
		b.history = history
	}
	opts.History = b.history

	app.polling = services.NewPollingService(app.driver, app.scheduler, app.healthMonitor, opts)
	if app.router != nil {
		app.router.OnApplied(app.polling.Republish)
	}

	sources := diagnostics.Sources{Driver: app.driver, Scheduler: app.scheduler, Health: app.healthMonitor}
	if app.breaker != nil {
		sources.Breaker = app.breaker
	}
	ha := config.NewHomeAssistantSettings(cfg)
	var reportPublisher diagnostics.Publisher = discardReports{}
	if app.publisher != nil {
		app.heartbeat = services.NewHeartbeatService(app.publisher, app.healthMonitor, config.NewMQTTSettings(cfg).HeartbeatInterval)
		if ha.Diagnostics {
			reportPublisher = app.publisher
		}
	}
	app.reporter = diagnostics.NewReporter(sources, reportPublisher, ha.DiagnosticsInterval)
	app.reporter.SetLogger(logger.ForDevice(cfg.Device.Name))

	if cfg.HTTP.Enabled {
		deps := bridgehttp.Deps{
			Health:   bridgehttp.NewHealthHandler(app.healthMonitor, app.driver, Version).WithPoller(app.scheduler),
			State:    app.driver,
			Reports:  app.reporter,
			Controls: app.catalog,
			Interval: app.scheduler,
			OnChange: app.polling.Republish,
		}
		if cfg.Metrics.Enabled {
			deps.Metrics = app.metrics.Handler()
		}
		app.http = bridgehttp.NewServer(cfg.HTTP.Listen, deps)
	}

	return app, nil
}

// discardReports drops reports when no MQTT diagnostics topic is configured
type discardReports struct{}

func (discardReports) PublishDiagnostics(context.Context, any) error { return nil }

// Application represents the main application structure
type Application struct {
	config        *config.Config
	ble           *ble.Transport
	breaker       *driver.BreakerTransport
	driver        *driver.Driver
	scheduler     *scheduler.Scheduler
	catalog       *controls.Catalog
	healthMonitor *health.DeviceHealthMonitor
	metrics       metrics.MetricsCollector
	tracker       *metrics.PerformanceTracker
	publisher     *mqtt.Publisher
	router        *mqtt.CommandRouter
	errorHandler  *bridgeerrors.ErrorHandler
	polling       *services.PollingService
	heartbeat     *services.HeartbeatService
	reporter      *diagnostics.Reporter
	http          *bridgehttp.Server
	closers       []func() error
}

// Run starts every service and blocks until ctx is done or one of them fails
func (app *Application) Run(ctx context.Context) error {
	logger.LogInfo("🚀 Starting Marstek BLE Bridge for %s...", app.config.Device.Name)
	defer app.shutdown()

	if app.config.Metrics.Enabled && app.config.Metrics.Port > 0 {
		go func() {
			if err := app.metrics.StartMetricsServer(app.config.Metrics.Port); err != nil {
				logger.LogError("❌ Metrics server error: %v", err)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)

	if app.publisher != nil {
		if err := app.publisher.Connect(gctx); err != nil {
			return fmt.Errorf("error connecting publisher: %w", err)
		}
		g.Go(func() error { return app.heartbeat.Start(gctx) })
		g.Go(func() error { return app.reporter.Run(gctx) })
	}

	g.Go(func() error { return app.polling.Start(gctx) })

	if app.http != nil {
		g.Go(app.http.Start)
		g.Go(func() error {
			<-gctx.Done()
			return app.http.Stop(context.Background())
		})
	}

	logger.LogInfo("✅ Bridge running (poll interval %s)", app.scheduler.PollInterval())
	return g.Wait()
}

func (app *Application) shutdown() {
	logger.LogInfo("🛑 Stopping bridge...")
	if app.publisher != nil {
		app.publisher.Disconnect()
	}
	app.driver.Disconnect()
	for _, c := range app.closers {
		if err := c(); err != nil {
			logger.LogDebug("Error closing resource: %v", err)
		}
	}
	logger.LogInfo("✅ Bridge stopped")
}

// GetConfig returns the application configuration
func (app *Application) GetConfig() *config.Config {
	return app.config
}

// GetDriver returns the command driver
func (app *Application) GetDriver() *driver.Driver {
	return app.driver
}

// GetScheduler returns the poll scheduler
func (app *Application) GetScheduler() *scheduler.Scheduler {
	return app.scheduler
}

// GetCatalog returns the control catalog
func (app *Application) GetCatalog() *controls.Catalog {
	return app.catalog
}

// GetPublisher returns the MQTT publisher, nil when MQTT is disabled
func (app *Application) GetPublisher() *mqtt.Publisher {
	return app.publisher
}

// GetReporter returns the diagnostics reporter
func (app *Application) GetReporter() *diagnostics.Reporter {
	return app.reporter
}

// GetHTTPServer returns the API server, nil when disabled
func (app *Application) GetHTTPServer() *bridgehttp.Server {
	return app.http
}

// GetBLE returns the BLE transport, nil when a custom transport was injected
func (app *Application) GetBLE() *ble.Transport {
	return app.ble
}
