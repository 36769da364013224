package errors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// TestConnectionErrorCreation tests creating ConnectionError
func TestConnectionErrorCreation(t *testing.T) {
	baseErr := fmt.Errorf("no device handle")
	connErr := NewConnectionError("resolve", baseErr, "MST_ACCP_3ab1", "AA:BB:CC:DD:EE:FF")

	if connErr.Code != CodeConnection {
		t.Errorf("Expected code %d, got %d", CodeConnection, connErr.Code)
	}
	if connErr.Device != "MST_ACCP_3ab1" {
		t.Errorf("Expected Device 'MST_ACCP_3ab1', got '%s'", connErr.Device)
	}

	errMsg := connErr.Error()
	if errMsg == "" {
		t.Error("Expected non-empty error message")
	}
	t.Logf("ConnectionError message: %s", errMsg)
}

// TestCommandErrorCreation tests creating CommandError
func TestCommandErrorCreation(t *testing.T) {
	cmdErr := NewCommandError("venus", "bms_data", 3, fmt.Errorf("timeout"))
	if cmdErr.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", cmdErr.Attempts)
	}
	if cmdErr.Severity != SeverityWarning {
		t.Errorf("Expected WARNING severity, got %s", cmdErr.Severity)
	}
	t.Logf("CommandError message: %s", cmdErr.Error())
}

// TestErrorUnwrapping tests error unwrapping
func TestErrorUnwrapping(t *testing.T) {
	baseErr := errors.New("base error")
	connErr := NewConnectionError("connect", baseErr, "venus", "")

	if !errors.Is(connErr, baseErr) {
		t.Error("Expected errors.Is to find base error")
	}

	wrapped := fmt.Errorf("ensure connected: %w", connErr)
	var target *ConnectionError
	if !errors.As(wrapped, &target) {
		t.Error("Expected errors.As to find ConnectionError through wrapping")
	}
}

// TestSeverityString tests severity string representation
func TestMQTTPublishErrorNamesTopic(t *testing.T) {
	err := NewMQTTPublishError("marstek/venus/state", errors.New("broker full"), "localhost")
	if err.Topic != "marstek/venus/state" || err.Op != "publish" {
		t.Errorf("Expected publish op with topic, got %+v", err)
	}
	expected := "[ERROR] MQTT broker 'localhost' (topic: marstek/venus/state): publish: broker full"
	if err.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, err.Error())
	}
}

func TestSeverityString(t *testing.T) {
	tests := []struct {
		severity ErrorSeverity
		expected string
	}{
		{SeverityInfo, "INFO"},
		{SeverityWarning, "WARNING"},
		{SeverityError, "ERROR"},
		{SeverityCritical, "CRITICAL"},
		{ErrorSeverity(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.severity.String(); got != tt.expected {
			t.Errorf("Expected %s, got %s", tt.expected, got)
		}
	}
}

// TestStaleDataError tests both never-polled and stale messages
func TestStaleDataError(t *testing.T) {
	never := NewStaleDataError("venus", -1, time.Minute)
	stale := NewStaleDataError("venus", 61*time.Second, time.Minute)

	if never.Error() == stale.Error() {
		t.Error("Expected different messages for never-polled and stale")
	}
	if !IsRecoverable(stale) {
		t.Error("Expected stale data to be recoverable")
	}
}

// TestIsRecoverable tests recoverability classification
func TestIsRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"config", NewConfigError("load", errors.New("bad"), "mqtt.broker"), false},
		{"wrapped config", fmt.Errorf("startup: %w", NewConfigError("load", errors.New("bad"), "")), false},
		{"connection", NewConnectionError("connect", errors.New("refused"), "venus", ""), true},
		{"critical bridge", &BridgeError{Op: "x", Severity: SeverityCritical}, false},
		{"untyped", errors.New("plain"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRecoverable(tt.err); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

// TestGetDiagnosticCode tests diagnostic code extraction
func TestGetDiagnosticCode(t *testing.T) {
	if code := GetDiagnosticCode(NewMQTTError("publish", errors.New("x"), "broker")); code != CodeMQTT {
		t.Errorf("Expected %d, got %d", CodeMQTT, code)
	}
	if code := GetDiagnosticCode(errors.New("plain")); code != CodeGeneric {
		t.Errorf("Expected %d, got %d", CodeGeneric, code)
	}
	if code := GetDiagnosticCode(nil); code != 0 {
		t.Errorf("Expected 0, got %d", code)
	}
}

type recordingPublisher struct {
	mu       sync.Mutex
	codes    []int
	messages []string
}

func (p *recordingPublisher) PublishDiagnostic(ctx context.Context, code int, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.codes = append(p.codes, code)
	p.messages = append(p.messages, message)
	return nil
}

// TestHandlerPublishesDiagnostics tests that the handler forwards codes
func TestHandlerPublishesDiagnostics(t *testing.T) {
	pub := &recordingPublisher{}
	h := NewErrorHandler(pub)

	h.Handle(context.Background(), NewCommandError("venus", "runtime_info", 3, errors.New("timeout")))
	h.Handle(context.Background(), errors.New("something odd"))
	h.Handle(context.Background(), nil)

	if len(pub.codes) != 2 {
		t.Fatalf("Expected 2 diagnostics, got %d", len(pub.codes))
	}
	if pub.codes[0] != CodeCommand || pub.codes[1] != CodeGeneric {
		t.Errorf("Expected codes [%d %d], got %v", CodeCommand, CodeGeneric, pub.codes)
	}
	t.Logf("Published: %v", pub.messages)
}
