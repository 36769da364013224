package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"marstek-ble-bridge/pkg/controls"
	"marstek-ble-bridge/pkg/diagnostics"
	"marstek-ble-bridge/pkg/driver"
	"marstek-ble-bridge/pkg/protocol"
	"marstek-ble-bridge/pkg/scheduler"
	"marstek-ble-bridge/pkg/state"
)

type mockHealth struct {
	online      bool
	lastSuccess time.Time
}

func (m *mockHealth) IsOnline() bool { return m.online }
func (m *mockHealth) GetLastSuccessTime() time.Time { return m.lastSuccess }

type mockCounter struct {
	diag driver.Diagnostics
}

func (m *mockCounter) Diagnostics() driver.Diagnostics { return m.diag }

type mockState struct {
	record *state.Record
}

func (m *mockState) Snapshot() state.Snapshot { return m.record.Snapshot() }

type mockReports struct{}

func (mockReports) Report() diagnostics.Report {
	return diagnostics.Report{Device: "venus", Health: diagnostics.StateOperational}
}

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
	set time.Duration
}

func (m *mockInterval) SetPollInterval(d time.Duration) time.Duration {
	if d > 60*time.Second {
		d = 60 * time.Second
	}
	m.set = d
	return d
}

type fixture struct {
	server   *Server
	sender   *mockSender
	interval *mockInterval
	health   *mockHealth
	counter  *mockCounter
	changes  []string
}

func newFixture() *fixture {
	record := state.NewRecord()
	record.Update(byte(protocol.CmdBMSData), time.Now(), []byte{0x01}, func(w *state.Writer) bool {
		w.SetFloat(state.FieldBatterySOC, 55)
		w.SetBool(state.FieldOut1Active, false)
		return true
	})

	f := &fixture{
		sender:   &mockSender{ok: true},
		interval: &mockInterval{},
		health:   &mockHealth{online: true, lastSuccess: time.Now().Add(-5 * time.Second)},
		counter:  &mockCounter{diag: driver.Diagnostics{State: "connected", TotalSuccess: 10}},
	}
	f.server = NewServer(":0", Deps{
		Health:   NewHealthHandler(f.health, f.counter, "test"),
		State:    &mockState{record: record},
		Reports:  mockReports{},
		Controls: controls.NewCatalog("venus", f.sender, nil),
		Interval: f.interval,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("marstek_up 1\n"))
		}),
		OnChange: func(key string) { f.changes = append(f.changes, key) },
	})
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("Expected JSON body, got %v (%s)", err, rec.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		online     bool
		success    int
		failure    int
		wantStatus string
		wantCode   int
	}{
		{"healthy", true, 10, 0, "healthy", http.StatusOK},
		{"degraded", true, 7, 3, "degraded", http.StatusOK},
		{"high error rate", true, 4, 6, "unhealthy", http.StatusServiceUnavailable},
		{"offline", false, 10, 0, "unhealthy", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.health.online = tt.online
			f.counter.diag.TotalSuccess = tt.success
			f.counter.diag.TotalFailure = tt.failure

			rec := f.do("GET", "/health", "")
			if rec.Code != tt.wantCode {
				t.Errorf("Expected status code %d, got %d", tt.wantCode, rec.Code)
			}
			var status HealthStatus
			decode(t, rec, &status)
			if status.Status != tt.wantStatus {
				t.Errorf("Expected %s, got %s", tt.wantStatus, status.Status)
			}
			if status.ConnectionState != "connected" {
				t.Errorf("Expected connection state connected, got %s", status.ConnectionState)
			}
		})
	}
}

type mockPoller struct {
	status scheduler.Status
}

func (m *mockPoller) Status() scheduler.Status { return m.status }

func TestHealthStaleIsDegraded(t *testing.T) {
	health := &mockHealth{online: true, lastSuccess: time.Now().Add(-2 * time.Minute)}
	counter := &mockCounter{diag: driver.Diagnostics{State: "connected", TotalSuccess: 10}}
	poller := &mockPoller{status: scheduler.Status{FastInterval: 10, Stale: true, ConsecutiveFailures: 4}}
	h := NewHealthHandler(health, counter, "test").WithPoller(poller)

	status := h.Check()
	if status.Status != StatusDegraded {
		t.Errorf("Expected %s, got %s", StatusDegraded, status.Status)
	}
	if !status.Stale || status.ConsecutiveFailures != 4 || status.PollInterval != 10 {
		t.Errorf("Expected poller fields in report, got %+v", status)
	}
	if status.Reason == "" {
		t.Error("Expected a reason for degraded health")
	}

	poller.status.Stale = false
	if got := h.Check().Status; got != StatusHealthy {
		t.Errorf("Expected %s once fresh, got %s", StatusHealthy, got)
	}
}

func TestStateEndpoint(t *testing.T) {
	f := newFixture()
	rec := f.do("GET", "/api/v1/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var doc struct {
		Fields map[string]any `json:"fields"`
	}
	decode(t, rec, &doc)
	if doc.Fields["battery_soc"] != 55.0 {
		t.Errorf("Expected battery_soc 55, got %v", doc.Fields["battery_soc"])
	}
}

func TestFieldEndpoint(t *testing.T) {
	f := newFixture()

	rec := f.do("GET", "/api/v1/fields/battery_soc", "")
	var field FieldResponse
	decode(t, rec, &field)
	if !field.Set || field.Value != 55.0 || field.Unit != "%" {
		t.Errorf("Expected battery_soc 55 %%, got %+v", field)
	}
	if field.Metadata == nil || field.Metadata.Command != byte(protocol.CmdBMSData) {
		t.Errorf("Expected metadata from 0x14, got %+v", field.Metadata)
	}

	rec = f.do("GET", "/api/v1/fields/battery_voltage", "")
	decode(t, rec, &field)
	if rec.Code != http.StatusOK || field.Set {
		t.Errorf("Expected unset field, got %d %+v", rec.Code, field)
	}

	rec = f.do("GET", "/api/v1/fields/warp_drive", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown field, got %d", rec.Code)
	}
}

func TestControlEndpoints(t *testing.T) {
	f := newFixture()

	rec := f.do("GET", "/api/v1/controls/out1_control", "")
	var ctl ControlResponse
	decode(t, rec, &ctl)
	if ctl.State != "OFF" || ctl.Assumed {
		t.Errorf("Expected reported OFF state, got %+v", ctl)
	}

	rec = f.do("POST", "/api/v1/controls/eps_mode", `{"value":"ON"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &ctl)
	if ctl.State != "ON" || !ctl.Assumed {
		t.Errorf("Expected assumed ON state, got %+v", ctl)
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0] != protocol.CmdEPSMode {
		t.Errorf("Expected EPS mode command, got %v", f.sender.sent)
	}
	if len(f.changes) != 1 || f.changes[0] != "eps_mode" {
		t.Errorf("Expected change notification for eps_mode, got %v", f.changes)
	}

	rec = f.do("GET", "/api/v1/controls", "")
	var list struct {
		Count int `json:"count"`
	}
	decode(t, rec, &list)
	if list.Count != len(controls.Defaults()) {
		t.Errorf("Expected %d controls, got %d", len(controls.Defaults()), list.Count)
	}
}

func TestControlErrors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		ack      bool
		expected int
	}{
		{"unknown control", "/api/v1/controls/self_destruct", `{"value":"ON"}`, true, http.StatusNotFound},
		{"bad value", "/api/v1/controls/eps_mode", `{"value":"MAYBE"}`, true, http.StatusBadRequest},
		{"bad body", "/api/v1/controls/eps_mode", `{`, true, http.StatusBadRequest},
		{"not acknowledged", "/api/v1/controls/buzzer", `{"value":"OFF"}`, false, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.sender.ok = tt.ack
			rec := f.do("POST", tt.path, tt.body)
			if rec.Code != tt.expected {
				t.Errorf("Expected %d, got %d: %s", tt.expected, rec.Code, rec.Body.String())
			}
			if len(f.changes) != 0 {
				t.Errorf("Expected no change notification, got %v", f.changes)
			}
		})
	}
}

func TestPollIntervalEndpoint(t *testing.T) {
	f := newFixture()

	rec := f.do("PUT", "/api/v1/poll-interval", `{"seconds":90}`)
	var resp map[string]float64
	decode(t, rec, &resp)
	if resp["poll_interval"] != 60 {
		t.Errorf("Expected clamped interval 60, got %v", resp["poll_interval"])
	}
	if f.interval.set != 60*time.Second {
		t.Errorf("Expected scheduler interval 60s, got %s", f.interval.set)
	}

	rec = f.do("PUT", "/api/v1/poll-interval", `{"seconds":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for zero interval, got %d", rec.Code)
	}
	rec = f.do("GET", "/api/v1/poll-interval", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET, got %d", rec.Code)
	}
}

func TestDiagnosticsAndMetricsEndpoints(t *testing.T) {
	f := newFixture()

	rec := f.do("GET", "/api/v1/diagnostics", "")
	var report diagnostics.Report
	decode(t, rec, &report)
	if report.Device != "venus" {
		t.Errorf("Expected device venus, got %s", report.Device)
	}

	rec = f.do("GET", "/metrics", "")
	if !strings.Contains(rec.Body.String(), "marstek_up 1") {
		t.Errorf("Expected metrics body, got %s", rec.Body.String())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[time.Duration]string{
		30 * time.Second:              "30 seconds",
		5 * time.Minute:               "5 minutes",
		2*time.Hour + 3*time.Minute:   "2 hours 3 minutes",
		50*time.Hour + 10*time.Minute: "2 days 2 hours",
	}
	for d, want := range tests {
		if got := formatDuration(d); got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	}
}
