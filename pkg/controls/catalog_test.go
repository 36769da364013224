package controls

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	bridgeerrors "marstek-ble-bridge/pkg/errors"
	"marstek-ble-bridge/pkg/protocol"
	"marstek-ble-bridge/pkg/state"
)

type sentCommand struct {
	cmd     protocol.Command
	payload []byte
}

type mockSender struct {
	mu   sync.Mutex
	sent []sentCommand
	ok   bool
}

func (m *mockSender) SendCommand(ctx context.Context, cmd protocol.Command, payload []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentCommand{cmd, append([]byte(nil), payload...)})
	return m.ok
}

func TestActuateWritesExpectedFrames(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		cmd     protocol.Command
		payload []byte
	}{
		{"out1_control", "ON", protocol.CmdOutputControl, []byte{0x01}},
		{"buzzer", "off", protocol.CmdBuzzer, []byte{0x00}},
		{"reboot", "PRESS", protocol.CmdReboot, nil},
		{"set_800w_mode", "", protocol.CmdPowerMode, []byte{0x20, 0x03}},
		{"set_2500w_mode", "", protocol.CmdPowerMode, []byte{0xC4, 0x09}},
		{"set_total_power_2500w", "", protocol.CmdTotalPower, []byte{0xC4, 0x09}},
		{"charge_mode", "Load First", protocol.CmdChargeMode, []byte{0x01}},
		{"ct_polling_rate", "slowest (2)", protocol.CmdCTPollingRateWrite, []byte{0x02}},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			sender := &mockSender{ok: true}
			c := NewCatalog("test", sender, nil)
			if err := c.Actuate(context.Background(), tt.key, tt.value); err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if len(sender.sent) != 1 {
				t.Fatalf("Expected 1 command, got %d", len(sender.sent))
			}
			got := sender.sent[0]
			if got.cmd != tt.cmd {
				t.Errorf("Expected command %s, got %s", tt.cmd, got.cmd)
			}
			if string(got.payload) != string(tt.payload) {
				t.Errorf("Expected payload % X, got % X", tt.payload, got.payload)
			}
		})
	}
}

func TestActuateRejectsInvalidValues(t *testing.T) {
	sender := &mockSender{ok: true}
	c := NewCatalog("test", sender, nil)

	var verr *bridgeerrors.ValidationError
	if err := c.Actuate(context.Background(), "eps_mode", "maybe"); !errors.As(err, &verr) {
		t.Errorf("Expected ValidationError, got %v", err)
	}
	if err := c.Actuate(context.Background(), "charge_mode", "Turbo"); !errors.As(err, &verr) {
		t.Errorf("Expected ValidationError, got %v", err)
	}
	if err := c.Actuate(context.Background(), "self_destruct", "ON"); !errors.Is(err, ErrUnknownControl) {
		t.Errorf("Expected ErrUnknownControl, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("Expected no commands, got %d", len(sender.sent))
	}
}

func TestActuateFailureLeavesAssumedState(t *testing.T) {
	sender := &mockSender{ok: false}
	c := NewCatalog("test", sender, nil)

	err := c.Actuate(context.Background(), "eps_mode", "ON")
	var cerr *bridgeerrors.CommandError
	if !errors.As(err, &cerr) {
		t.Fatalf("Expected CommandError, got %v", err)
	}
	if _, ok := c.State("eps_mode", state.NewRecord().Snapshot()); ok {
		t.Error("Expected no assumed state after failed write")
	}
}

func TestStatePrefersDeviceReport(t *testing.T) {
	sender := &mockSender{ok: true}
	c := NewCatalog("test", sender, nil)
	rec := state.NewRecord()

	_ = c.Actuate(context.Background(), "out1_control", "ON")
	rec.Update(0x03, time.Now(), nil, func(w *state.Writer) bool {
		w.SetBool(state.FieldOut1Active, false)
		return true
	})

	if v, ok := c.State("out1_control", rec.Snapshot()); !ok || v != "OFF" {
		t.Errorf("Expected device-reported OFF, got %q", v)
	}

	_ = c.Actuate(context.Background(), "buzzer", "ON")
	if v, ok := c.State("buzzer", rec.Snapshot()); !ok || v != "ON" {
		t.Errorf("Expected assumed ON, got %q", v)
	}
	if _, ok := c.State("reboot", rec.Snapshot()); ok {
		t.Error("Expected buttons to have no state")
	}
}

func TestDefaultsHaveUniqueKeys(t *testing.T) {
	seen := make(map[string]bool)
	for _, ctl := range Defaults() {
		if seen[ctl.Key] {
			t.Errorf("Duplicate control key %s", ctl.Key)
		}
		seen[ctl.Key] = true
		if ctl.Kind == KindSelect && len(ctl.Options) == 0 {
			t.Errorf("Select %s has no options", ctl.Key)
		}
	}
}
