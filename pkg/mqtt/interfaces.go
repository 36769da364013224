package mqtt

import (
	"context"
	"time"

	"marstek-ble-bridge/pkg/errors"
	"marstek-ble-bridge/pkg/state"
)

// StatePublisher publishes decoded device state
type StatePublisher interface {
	// PublishState publishes the snapshot, derived values and extras as one JSON document
	PublishState(ctx context.Context, snap state.Snapshot, extras map[string]any) error
}

// StatusPublisher publishes device availability
type StatusPublisher interface {
	PublishAvailability(ctx context.Context, online bool) error
}

// DiagnosticPublisher publishes error codes and diagnostic reports
type DiagnosticPublisher interface {
	PublishDiagnostic(ctx context.Context, code int, message string) error
	PublishDiagnostics(ctx context.Context, report any) error
}

// DiscoveryPublisher publishes Home Assistant discovery configs
type DiscoveryPublisher interface {
	PublishDiscovery(ctx context.Context) error
}

// ConnectionManager manages the broker connection
type ConnectionManager interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
}

// HAPublisher combines all publishing capabilities
type HAPublisher interface {
	StatePublisher
	StatusPublisher
	DiagnosticPublisher
	DiscoveryPublisher
	ConnectionManager
}

// Actuator executes a control by key
type Actuator interface {
	Actuate(ctx context.Context, key, value string) error
}

// IntervalSetter changes the fast poll interval
type IntervalSetter interface {
	SetPollInterval(d time.Duration) time.Duration
}

// Compile-time interface checks
var (
	_ HAPublisher                = (*Publisher)(nil)
	_ errors.DiagnosticPublisher = (*Publisher)(nil)
)
