package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"marstek-ble-bridge/pkg/config"
	"marstek-ble-bridge/pkg/controls"
	"marstek-ble-bridge/pkg/protocol"
	"marstek-ble-bridge/pkg/state"
)

type mockSender struct {
	mu   sync.Mutex
	sent []protocol.Command
	ok   bool
}

func (m *mockSender) SendCommand(ctx context.Context, cmd protocol.Command, payload []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, cmd)
	return m.ok
}

type mockInterval struct {
	mu  sync.Mutex
	set []time.Duration
}

func (m *mockInterval) SetPollInterval(d time.Duration) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set = append(m.set, d)
	return d
}

func testSettings() (config.MQTTSettings, config.HomeAssistantSettings) {
	return config.MQTTSettings{
			Broker:    "localhost",
			Port:      1883,
			ClientID:  "test",
			BaseTopic: "marstek",
		}, config.HomeAssistantSettings{
			DiscoveryPrefix: "homeassistant",
			Discovery:       true,
			Diagnostics:     true,
			DeviceID:        "venus",
			DeviceName:      "Venus E",
			Manufacturer:    "Marstek",
		}
}

func newTestPublisher(client *mockClient, sender *mockSender) (*Publisher, *controls.Catalog) {
	ms, ha := testSettings()
	catalog := controls.NewCatalog("venus", sender, nil)
	return NewPublisherWithClient(client, ms, ha, catalog, nil), catalog
}

func TestPublishStateIncludesDerivedAndExtras(t *testing.T) {
	client := newMockClient()
	p, _ := newTestPublisher(client, &mockSender{ok: true})

	r := state.NewRecord()
	r.Update(0x14, time.Now(), nil, func(w *state.Writer) bool {
		w.SetFloat(state.FieldBatteryVoltage, 50)
		w.SetFloat(state.FieldBatteryCurrent, 2)
		w.SetFloat(state.FieldBatterySOC, 80)
		w.SetBool(state.FieldOut1Active, true)
		return true
	})

	err := p.PublishState(context.Background(), r.Snapshot(), map[string]any{ExtraPollInterval: 10})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	msg, ok := client.last("marstek/venus/state")
	if !ok {
		t.Fatal("Expected a state publish")
	}
	if !msg.retained {
		t.Error("Expected state to be retained")
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(msg.payload), &doc); err != nil {
		t.Fatalf("Expected JSON payload, got %v", err)
	}
	if doc["battery_soc"] != 80.0 {
		t.Errorf("Expected battery_soc 80, got %v", doc["battery_soc"])
	}
	if doc[state.DerivedBatteryState] != state.BatteryCharging {
		t.Errorf("Expected battery_state charging, got %v", doc[state.DerivedBatteryState])
	}
	if doc[ExtraPollInterval] != 10.0 {
		t.Errorf("Expected poll_interval 10, got %v", doc[ExtraPollInterval])
	}
	if _, ok := doc[ExtraLastUpdate]; !ok {
		t.Error("Expected last_update in payload")
	}

	// out1 reports its position from the device
	out1, ok := client.last("marstek/venus/out1_control/state")
	if !ok || out1.payload != "ON" {
		t.Errorf("Expected out1_control state ON, got %+v", out1)
	}
	// eps_mode was never actuated, so no state yet
	if _, ok := client.last("marstek/venus/eps_mode/state"); ok {
		t.Error("Expected no eps_mode state before actuation")
	}
}

func TestPublishAvailability(t *testing.T) {
	client := newMockClient()
	p, _ := newTestPublisher(client, &mockSender{ok: true})

	if err := p.PublishAvailability(context.Background(), true); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	msg, _ := client.last("marstek/venus/availability")
	if msg.payload != PayloadOnline || !msg.retained || msg.qos != 1 {
		t.Errorf("Expected retained qos1 online, got %+v", msg)
	}

	p.Disconnect()
	msg, _ = client.last("marstek/venus/availability")
	if msg.payload != PayloadOffline {
		t.Errorf("Expected offline on disconnect, got %s", msg.payload)
	}
	if client.IsConnected() {
		t.Error("Expected client disconnected")
	}
}

func TestPublishFailsWhenDisconnected(t *testing.T) {
	client := newMockClient()
	client.connected = false
	p, _ := newTestPublisher(client, &mockSender{ok: true})

	err := p.PublishAvailability(context.Background(), true)
	if err == nil || !strings.Contains(err.Error(), "not connected") {
		t.Errorf("Expected not connected error, got %v", err)
	}
}

func TestPublishErrorIsWrapped(t *testing.T) {
	client := newMockClient()
	client.publishErr = errors.New("broker full")
	p, _ := newTestPublisher(client, &mockSender{ok: true})

	err := p.PublishDiagnostic(context.Background(), 3, "command failed")
	if err == nil || !strings.Contains(err.Error(), "broker full") {
		t.Errorf("Expected broker error, got %v", err)
	}
}

func TestOnConnectPublishesDiscoveryAndSubscribes(t *testing.T) {
	client := newMockClient()
	sender := &mockSender{ok: true}
	p, catalog := newTestPublisher(client, sender)
	router := NewCommandRouter("marstek", "venus", catalog, &mockInterval{})
	p.SetCommandRouter(router)

	p.onConnect(client)

	if _, ok := client.subscriptions["marstek/venus/+/set"]; !ok {
		t.Error("Expected subscription to command topics")
	}
	avail, _ := client.last("marstek/venus/availability")
	if avail.payload != PayloadOffline {
		t.Errorf("Expected offline before first device contact, got %s", avail.payload)
	}

	expected := len(BuildEntities(p.DiscoveryContext(), catalog))
	if got := client.count("homeassistant/"); got != expected {
		t.Errorf("Expected %d discovery configs, got %d", expected, got)
	}

	msg, ok := client.last("homeassistant/switch/venus/venus_eps_mode/config")
	if !ok {
		t.Fatal("Expected eps_mode switch discovery")
	}
	var cfg EntityConfig
	if err := json.Unmarshal([]byte(msg.payload), &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.CommandTopic != "marstek/venus/eps_mode/set" {
		t.Errorf("Expected command topic marstek/venus/eps_mode/set, got %s", cfg.CommandTopic)
	}
	if !cfg.Optimistic {
		t.Error("Expected eps_mode to be optimistic")
	}
	if cfg.AvailabilityTopic != "marstek/venus/availability" {
		t.Errorf("Expected availability topic, got %s", cfg.AvailabilityTopic)
	}
}

func TestConnectRetriesUntilSuccess(t *testing.T) {
	client := newMockClient()
	client.connectErrs = []error{errors.New("refused"), nil}
	ms, ha := testSettings()
	ms.RetryDelay = time.Millisecond
	p := NewPublisherWithClient(client, ms, ha, nil, nil)

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Expected connect to succeed, got %v", err)
	}
	if client.connectCalls != 2 {
		t.Errorf("Expected 2 connect attempts, got %d", client.connectCalls)
	}
}

func TestConnectCancelled(t *testing.T) {
	client := newMockClient()
	client.connectErrs = []error{errors.New("refused"), errors.New("refused"), errors.New("refused")}
	ms, ha := testSettings()
	ms.RetryDelay = time.Hour
	p := NewPublisherWithClient(client, ms, ha, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Connect(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestBuildEntities(t *testing.T) {
	ms, ha := testSettings()
	p := NewPublisherWithClient(newMockClient(), ms, ha, nil, nil)
	catalog := controls.NewCatalog("venus", &mockSender{}, nil)

	byKey := make(map[string]Entity)
	for _, e := range BuildEntities(p.DiscoveryContext(), catalog) {
		if _, dup := byKey[e.Config.UniqueID]; dup {
			t.Errorf("Duplicate unique id %s", e.Config.UniqueID)
		}
		byKey[e.Config.UniqueID] = e
	}

	tests := []struct {
		uniqueID    string
		component   string
		deviceClass string
		unit        string
	}{
		{"venus_battery_soc", "sensor", "battery", "%"},
		{"venus_total_charge_energy", "sensor", "energy", "kWh"},
		{"venus_battery_voltage", "sensor", "voltage", "V"},
		{"venus_wifi_connected", "binary_sensor", "connectivity", ""},
		{"venus_power_in", "sensor", "power", "W"},
		{"venus_poll_interval", "number", "", "s"},
		{"venus_reboot", "button", "", ""},
		{"venus_charge_mode", "select", "", ""},
		{"venus_command_success_rate", "sensor", "", "%"},
		{"venus_ct_polling_rate", "sensor", "", ""},
		{"venus_ct_polling_rate_select", "select", "", ""},
	}
	for _, tt := range tests {
		e, ok := byKey[tt.uniqueID]
		if !ok {
			t.Errorf("Expected entity %s", tt.uniqueID)
			continue
		}
		if e.Component != tt.component {
			t.Errorf("%s: expected component %s, got %s", tt.uniqueID, tt.component, e.Component)
		}
		if e.Config.DeviceClass != tt.deviceClass {
			t.Errorf("%s: expected device class %q, got %q", tt.uniqueID, tt.deviceClass, e.Config.DeviceClass)
		}
		if e.Config.UnitOfMeasurement != tt.unit {
			t.Errorf("%s: expected unit %q, got %q", tt.uniqueID, tt.unit, e.Config.UnitOfMeasurement)
		}
	}

	interval := byKey["venus_poll_interval"].Config
	if *interval.Min != 5 || *interval.Max != 60 {
		t.Errorf("Expected poll interval range 5-60, got %v-%v", *interval.Min, *interval.Max)
	}
	charge := byKey["venus_charge_mode"].Config
	if len(charge.Options) != 3 || charge.Options[0] != "Load First" {
		t.Errorf("Expected charge mode options, got %v", charge.Options)
	}
}

func TestHumanize(t *testing.T) {
	tests := map[string]string{
		"battery_soc":     "Battery SOC",
		"wifi_ssid":       "WiFi SSID",
		"ct_polling_rate": "CT Polling Rate",
		"mosfet_temp":     "MOSFET Temp",
	}
	for in, want := range tests {
		if got := humanize(in); got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	}
}
