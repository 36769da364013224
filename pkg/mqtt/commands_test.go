package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"marstek-ble-bridge/pkg/controls"
	bridgeerrors "marstek-ble-bridge/pkg/errors"
	"marstek-ble-bridge/pkg/protocol"
)

func TestCommandRouterActuatesControl(t *testing.T) {
	sender := &mockSender{ok: true}
	catalog := controls.NewCatalog("venus", sender, nil)
	router := NewCommandRouter("marstek", "venus", catalog, &mockInterval{})

	var applied []string
	router.OnApplied(func(key string) { applied = append(applied, key) })

	if err := router.Handle(context.Background(), "marstek/venus/eps_mode/set", []byte(" ON ")); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0] != protocol.CmdEPSMode {
		t.Errorf("Expected one EPS command, got %v", sender.sent)
	}
	if len(applied) != 1 || applied[0] != "eps_mode" {
		t.Errorf("Expected applied callback for eps_mode, got %v", applied)
	}
}

func TestCommandRouterPollInterval(t *testing.T) {
	interval := &mockInterval{}
	router := NewCommandRouter("marstek", "venus", nil, interval)

	if err := router.Handle(context.Background(), "marstek/venus/poll_interval/set", []byte("15")); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(interval.set) != 1 || interval.set[0] != 15*time.Second {
		t.Errorf("Expected 15s, got %v", interval.set)
	}

	err := router.Handle(context.Background(), "marstek/venus/poll_interval/set", []byte("fast"))
	var valErr *bridgeerrors.ValidationError
	if !errors.As(err, &valErr) {
		t.Errorf("Expected ValidationError, got %v", err)
	}
}

func TestCommandRouterErrors(t *testing.T) {
	sender := &mockSender{ok: false}
	catalog := controls.NewCatalog("venus", sender, nil)
	router := NewCommandRouter("marstek", "venus", catalog, nil)

	tests := []struct {
		name  string
		topic string
		value string
		check func(error) bool
	}{
		{"foreign topic", "marstek/other/eps_mode/set", "ON", func(err error) bool { return err != nil }},
		{"unknown control", "marstek/venus/nope/set", "ON", func(err error) bool { return errors.Is(err, controls.ErrUnknownControl) }},
		{"device did not answer", "marstek/venus/eps_mode/set", "ON", func(err error) bool {
			var cmdErr *bridgeerrors.CommandError
			return errors.As(err, &cmdErr)
		}},
		{"no interval setter", "marstek/venus/poll_interval/set", "10", func(err error) bool { return err != nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := router.Handle(context.Background(), tt.topic, []byte(tt.value))
			if !tt.check(err) {
				t.Errorf("Unexpected error %v", err)
			}
		})
	}
}

func TestMessageHandlerRunsAsync(t *testing.T) {
	sender := &mockSender{ok: true}
	catalog := controls.NewCatalog("venus", sender, nil)
	router := NewCommandRouter("marstek", "venus", catalog, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	router.OnApplied(func(string) { wg.Done() })

	handler := router.MessageHandler()
	handler(newMockClient(), &mockMessage{topic: "marstek/venus/reboot/set", payload: []byte("PRESS")})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected command to be applied")
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 1 || sender.sent[0] != protocol.CmdReboot {
		t.Errorf("Expected reboot command, got %v", sender.sent)
	}
}
