package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"marstek-ble-bridge/pkg/config"
	"marstek-ble-bridge/pkg/controls"
	bridgeerrors "marstek-ble-bridge/pkg/errors"
	"marstek-ble-bridge/pkg/logger"
	"marstek-ble-bridge/pkg/metrics"
	"marstek-ble-bridge/pkg/state"
	"marstek-ble-bridge/pkg/topics"
)

const publishTimeout = 5 * time.Second

// Publisher bridges one device to Home Assistant over MQTT
type Publisher struct {
	client   paho.Client
	settings config.MQTTSettings
	ha       config.HomeAssistantSettings
	catalog  *controls.Catalog
	metrics  metrics.MetricsCollector

	stateTopic        string
	availabilityTopic string
	diagnosticTopic   string

	mu     sync.Mutex
	online bool
	router *CommandRouter
}

// NewPublisher creates a publisher with a paho client built from settings
func NewPublisher(settings config.MQTTSettings, ha config.HomeAssistantSettings, catalog *controls.Catalog, mc metrics.MetricsCollector) *Publisher {
	p := newPublisher(settings, ha, catalog, mc)

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", settings.Broker, settings.Port))
	// Random suffix, the broker drops duplicate client ids
	opts.SetClientID(settings.ClientID + "_" + uuid.NewString()[:8])
	opts.SetUsername(settings.Username)
	opts.SetPassword(settings.Password)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	keepAlive := settings.KeepAlive
	if keepAlive == 0 {
		keepAlive = 60 * time.Second
	}
	opts.SetKeepAlive(keepAlive)
	opts.SetPingTimeout(10 * time.Second)

	// Last Will marks the device unavailable if the bridge drops off
	opts.SetWill(p.availabilityTopic, PayloadOffline, 1, true)

	opts.SetOnConnectHandler(p.onConnect)
	opts.SetConnectionLostHandler(func(client paho.Client, err error) {
		logger.LogError("MQTT connection lost: %v", err)
	})

	p.client = paho.NewClient(opts)
	return p
}

// NewPublisherWithClient creates a publisher over an existing client (used in tests)
func NewPublisherWithClient(client paho.Client, settings config.MQTTSettings, ha config.HomeAssistantSettings, catalog *controls.Catalog, mc metrics.MetricsCollector) *Publisher {
	p := newPublisher(settings, ha, catalog, mc)
	p.client = client
	return p
}

func newPublisher(settings config.MQTTSettings, ha config.HomeAssistantSettings, catalog *controls.Catalog, mc metrics.MetricsCollector) *Publisher {
	if mc == nil {
		mc = metrics.NewNullMetrics()
	}
	return &Publisher{
		settings:          settings,
		ha:                ha,
		catalog:           catalog,
		metrics:           mc,
		stateTopic:        topics.BuildStateTopic(settings.BaseTopic, ha.DeviceID),
		availabilityTopic: topics.BuildAvailabilityTopic(settings.BaseTopic, ha.DeviceID),
		diagnosticTopic:   topics.BuildDiagnosticStateTopic(settings.BaseTopic, ha.DeviceID),
	}
}

// SetCommandRouter installs the handler for command topics.
// It is subscribed on every (re)connect.
func (p *Publisher) SetCommandRouter(r *CommandRouter) {
	p.mu.Lock()
	p.router = r
	p.mu.Unlock()
}

func (p *Publisher) onConnect(client paho.Client) {
	logger.LogInfo("✅ MQTT connected to %s:%d", p.settings.Broker, p.settings.Port)

	p.mu.Lock()
	online := p.online
	router := p.router
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.PublishAvailability(ctx, online); err != nil {
		logger.LogWarn("Error publishing availability on connect: %v", err)
	}
	if p.ha.Discovery {
		if err := p.PublishDiscovery(ctx); err != nil {
			logger.LogWarn("Error publishing discovery on connect: %v", err)
		}
	}
	if router != nil {
		topic := topics.BuildCommandSubscription(p.settings.BaseTopic, p.ha.DeviceID)
		token := client.Subscribe(topic, 1, router.MessageHandler())
		if token.WaitTimeout(publishTimeout) && token.Error() != nil {
			logger.LogError("❌ Subscribe to %s failed: %v", topic, token.Error())
		} else {
			logger.LogDebug("📥 Subscribed to %s", topic)
		}
	}
}

// Connect connects to the broker, retrying until success or ctx is done
func (p *Publisher) Connect(ctx context.Context) error {
	retryDelay := p.settings.RetryDelay
	if retryDelay == 0 {
		retryDelay = 5 * time.Second
	}

	for attempt := 1; ; attempt++ {
		logger.LogDebug("🔄 Attempting to connect to MQTT broker (attempt %d)...", attempt)

		token := p.client.Connect()
		token.Wait()
		if token.Error() == nil {
			logger.LogInfo("✅ MQTT publisher connected after %d attempt(s)", attempt)
			return nil
		}

		err := bridgeerrors.NewMQTTError("connect", token.Error(), p.settings.Broker)
		logger.LogError("❌ %v (attempt %d)", err, attempt)
		logger.LogInfo("⏳ Retrying in %.0f seconds...", retryDelay.Seconds())

		select {
		case <-ctx.Done():
			return fmt.Errorf("MQTT connection cancelled: %w", ctx.Err())
		case <-time.After(retryDelay):
		}
	}
}

// Disconnect marks the device unavailable and closes the connection
func (p *Publisher) Disconnect() {
	if !p.client.IsConnected() {
		return
	}
	token := p.client.Publish(p.availabilityTopic, 1, true, PayloadOffline)
	token.WaitTimeout(time.Second)
	p.client.Disconnect(250)
}

// IsConnected reports whether the broker connection is up
func (p *Publisher) IsConnected() bool {
	return p.client.IsConnected()
}

func (p *Publisher) publish(ctx context.Context, topic string, qos byte, retained bool, payload any) error {
	if !p.client.IsConnected() {
		p.metrics.IncrementMQTTErrors()
		return bridgeerrors.NewMQTTPublishError(topic, fmt.Errorf("client is not connected"), p.settings.Broker)
	}
	token := p.client.Publish(topic, qos, retained, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		p.metrics.IncrementMQTTErrors()
		return bridgeerrors.NewMQTTPublishError(topic, ctx.Err(), p.settings.Broker)
	case <-time.After(publishTimeout):
		p.metrics.IncrementMQTTErrors()
		return bridgeerrors.NewMQTTPublishError(topic, fmt.Errorf("timeout after %s", publishTimeout), p.settings.Broker)
	}
	if err := token.Error(); err != nil {
		p.metrics.IncrementMQTTErrors()
		return bridgeerrors.NewMQTTPublishError(topic, err, p.settings.Broker)
	}
	p.metrics.IncrementMQTTPublishes()
	return nil
}

// DiscoveryContext returns the shared discovery parameters
func (p *Publisher) DiscoveryContext() DiscoveryContext {
	return DiscoveryContext{
		DeviceID:          p.ha.DeviceID,
		BaseTopic:         p.settings.BaseTopic,
		StateTopic:        p.stateTopic,
		AvailabilityTopic: p.availabilityTopic,
		Diagnostics:       p.ha.Diagnostics,
		Device: DeviceInfo{
			Name:         p.ha.DeviceName,
			Identifiers:  []string{p.ha.DeviceID},
			Manufacturer: p.ha.Manufacturer,
			Model:        p.ha.Model,
		},
	}
}

// PublishDiscovery publishes the retained discovery config of every entity
func (p *Publisher) PublishDiscovery(ctx context.Context) error {
	entities := BuildEntities(p.DiscoveryContext(), p.catalog)
	failed := 0
	for _, e := range entities {
		data, err := json.Marshal(e.Config)
		if err != nil {
			return fmt.Errorf("error serializing discovery for %s: %w", e.Key, err)
		}
		topic := e.DiscoveryTopic(p.ha.DiscoveryPrefix, p.ha.DeviceID)
		if err := p.publish(ctx, topic, 1, true, data); err != nil {
			logger.LogError("❌ Error publishing discovery for %s: %v", e.Key, err)
			failed++
		}
	}
	logger.LogInfo("📡 Published %d discovery configs (%d failed)", len(entities)-failed, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d discovery configs failed", failed, len(entities))
	}
	return nil
}

// StatePayload builds the state JSON document
func StatePayload(snap state.Snapshot, extras map[string]any) map[string]any {
	doc := snap.Map()
	for k, v := range snap.DerivedMap() {
		doc[k] = v
	}
	for k, v := range extras {
		doc[k] = v
	}
	if _, ok := doc[ExtraLastUpdate]; !ok {
		doc[ExtraLastUpdate] = snap.TakenAt().UTC().Format(time.RFC3339)
	}
	return doc
}

// PublishState publishes the snapshot document and the control positions
func (p *Publisher) PublishState(ctx context.Context, snap state.Snapshot, extras map[string]any) error {
	data, err := json.Marshal(StatePayload(snap, extras))
	if err != nil {
		return fmt.Errorf("error serializing state: %w", err)
	}
	logger.LogTrace("📤 Publishing state (%d fields) → %s", snap.SetCount(), p.stateTopic)
	if err := p.publish(ctx, p.stateTopic, 0, true, data); err != nil {
		return err
	}
	return p.PublishControlStates(ctx, snap)
}

// PublishControlStates publishes the position of every switch and select
func (p *Publisher) PublishControlStates(ctx context.Context, snap state.Snapshot) error {
	if p.catalog == nil {
		return nil
	}
	for _, ctl := range p.catalog.All() {
		position, ok := p.catalog.State(ctl.Key, snap)
		if !ok {
			continue
		}
		topic := topics.BuildControlStateTopic(p.settings.BaseTopic, p.ha.DeviceID, ctl.Key)
		if err := p.publish(ctx, topic, 0, true, position); err != nil {
			return err
		}
	}
	return nil
}

// PublishAvailability publishes the retained availability payload
func (p *Publisher) PublishAvailability(ctx context.Context, online bool) error {
	p.mu.Lock()
	p.online = online
	p.mu.Unlock()

	payload := PayloadOffline
	if online {
		payload = PayloadOnline
	}
	return p.publish(ctx, p.availabilityTopic, 1, true, payload)
}

// DiagnosticMessage is published on the error sub-topic
type DiagnosticMessage struct {
	Code      int       `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishDiagnostic publishes an error code and message
func (p *Publisher) PublishDiagnostic(ctx context.Context, code int, message string) error {
	data, err := json.Marshal(DiagnosticMessage{Code: code, Message: message, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("error serializing diagnostic: %w", err)
	}
	return p.publish(ctx, p.diagnosticTopic+"/error", 1, false, data)
}

// PublishDiagnostics publishes a full diagnostics report
func (p *Publisher) PublishDiagnostics(ctx context.Context, report any) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("error serializing diagnostics report: %w", err)
	}
	return p.publish(ctx, p.diagnosticTopic, 0, true, data)
}
