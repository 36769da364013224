package builder

import (
	"context"
	"errors"
	"testing"
	"time"

	"marstek-ble-bridge/pkg/config"
	"marstek-ble-bridge/pkg/driver"
	"marstek-ble-bridge/pkg/events"
)

type unreachableTransport struct{}

func (unreachableTransport) Connect(ctx context.Context, handle driver.DeviceHandle, onDisconnect func(error)) (driver.Session, error) {
	return nil, errors.New("out of range")
}

func testConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfigFromString(yaml)
	if err != nil {
		t.Fatalf("Expected valid config, got %v", err)
	}
	return cfg
}

func TestBuildRequiresConfig(t *testing.T) {
	if _, err := NewApplicationBuilder(nil).Build(context.Background()); err == nil {
		t.Error("Expected error without config")
	}
}

func TestBuildWithoutMQTT(t *testing.T) {
	cfg := testConfig(t, `
version: "1.0"
device:
  name: Venus E
  address: "AA:BB:CC:DD:EE:FF"
driver:
  circuit_breaker:
    enabled: true
http:
  enabled: true
  listen: "127.0.0.1:0"
`)
	app, err := NewApplicationBuilder(cfg).
		WithTransport(unreachableTransport{}, driver.StaticResolver(cfg.Device.Address)).
		Build(context.Background())
	if err != nil {
		t.Fatalf("Expected build to succeed, got %v", err)
	}

	if app.GetPublisher() != nil {
		t.Error("Expected no publisher without a broker")
	}
	if app.GetHTTPServer() == nil {
		t.Error("Expected HTTP server when enabled")
	}
	if app.GetBLE() != nil {
		t.Error("Expected injected transport to replace BLE")
	}
	if app.GetScheduler().PollInterval().Seconds() != 10 {
		t.Errorf("Expected default poll interval 10s, got %s", app.GetScheduler().PollInterval())
	}
	if len(app.GetCatalog().All()) == 0 {
		t.Error("Expected default controls")
	}
	if app.breaker == nil {
		t.Error("Expected circuit breaker wrapping the transport")
	}
	if got := app.GetReporter().Report().Device; got != cfg.Device.ID {
		t.Errorf("Expected report for %s, got %s", cfg.Device.ID, got)
	}
}

func TestBuildWithMQTTWiresRouter(t *testing.T) {
	cfg := testConfig(t, `
version: "1.0"
device:
  name: Venus E
  address: "AA:BB:CC:DD:EE:FF"
mqtt:
  broker: localhost
`)
	var seen []events.Event
	app, err := NewApplicationBuilder(cfg).
		WithTransport(unreachableTransport{}, nil).
		WithEventSink(events.SinkFunc(func(e events.Event) { seen = append(seen, e) })).
		Build(context.Background())
	if err != nil {
		t.Fatalf("Expected build to succeed, got %v", err)
	}
	if app.GetPublisher() == nil || app.router == nil || app.heartbeat == nil {
		t.Error("Expected publisher, router and heartbeat with a broker")
	}
	if app.GetHTTPServer() != nil {
		t.Error("Expected HTTP server disabled by default")
	}

	app.GetScheduler().SetPollInterval(20 * time.Second)
	if len(seen) == 0 || seen[len(seen)-1].Type != events.IntervalChanged {
		t.Errorf("Expected interval change event in extra sink, got %v", seen)
	}
}
