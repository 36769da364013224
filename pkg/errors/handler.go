package errors

import (
	"context"
	stderrors "errors"
	"fmt"

	"marstek-ble-bridge/pkg/logger"
)

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	diagnosticPublisher DiagnosticPublisher
}

// DiagnosticPublisher interface for publishing diagnostics
type DiagnosticPublisher interface {
	PublishDiagnostic(ctx context.Context, code int, message string) error
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(publisher DiagnosticPublisher) *ErrorHandler {
	return &ErrorHandler{
		diagnosticPublisher: publisher,
	}
}

// Handle processes an error with appropriate logging and diagnostics
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil {
		return
	}

	var (
		connErr   *ConnectionError
		cmdErr    *CommandError
		mqttErr   *MQTTError
		cfgErr    *ConfigError
		valErr    *ValidationError
		staleErr  *StaleDataError
		bridgeErr *BridgeError
	)

	switch {
	case stderrors.As(err, &connErr):
		h.report(ctx, "Connection", connErr.Severity, connErr.Code, err,
			fmt.Sprintf("Device %s: %s", connErr.Device, connErr.Op))
	case stderrors.As(err, &cmdErr):
		h.report(ctx, "Command", cmdErr.Severity, cmdErr.Code, err,
			fmt.Sprintf("Device %s: %s failed after %d attempt(s)", cmdErr.Device, cmdErr.Command, cmdErr.Attempts))
	case stderrors.As(err, &mqttErr):
		h.report(ctx, "MQTT", mqttErr.Severity, mqttErr.Code, err,
			fmt.Sprintf("Broker '%s': %s", mqttErr.Broker, mqttErr.Op))
	case stderrors.As(err, &cfgErr):
		// Config errors are always critical
		h.report(ctx, "Configuration", SeverityCritical, cfgErr.Code, err,
			fmt.Sprintf("Config field '%s': %s", cfgErr.Field, cfgErr.Op))
	case stderrors.As(err, &valErr):
		h.report(ctx, "Validation", SeverityWarning, valErr.Code, err,
			fmt.Sprintf("Validation failed for '%s'", valErr.Field))
	case stderrors.As(err, &staleErr):
		h.report(ctx, "Staleness", staleErr.Severity, staleErr.Code, err,
			fmt.Sprintf("Device %s: data stale", staleErr.Device))
	case stderrors.As(err, &bridgeErr):
		h.report(ctx, "Bridge", bridgeErr.Severity, bridgeErr.Code, err, bridgeErr.Op)
	default:
		logger.LogError("Untyped Error: %v", err)
		h.publish(ctx, CodeGeneric, err.Error())
	}
}

func (h *ErrorHandler) report(ctx context.Context, kind string, severity ErrorSeverity, code int, err error, message string) {
	switch severity {
	case SeverityCritical:
		logger.LogError("🔴 CRITICAL %s Error: %s", kind, err.Error())
	case SeverityError:
		logger.LogError("%s Error: %s", kind, err.Error())
	case SeverityWarning:
		logger.LogWarn("%s Warning: %s", kind, err.Error())
	default:
		logger.LogInfo("%s Info: %s", kind, err.Error())
	}
	h.publish(ctx, code, message)
}

// publish sends a diagnostic if a publisher is available
func (h *ErrorHandler) publish(ctx context.Context, code int, message string) {
	if h.diagnosticPublisher == nil {
		return
	}
	if publishErr := h.diagnosticPublisher.PublishDiagnostic(ctx, code, message); publishErr != nil {
		logger.LogDebug("Failed to publish error diagnostic: %v", publishErr)
	}
}

// IsRecoverable returns true if the error is recoverable
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}

	var cfgErr *ConfigError
	if stderrors.As(err, &cfgErr) {
		return false // Config errors are not recoverable
	}
	if sev, ok := severityOf(err); ok {
		return sev != SeverityCritical
	}
	return true // Unknown errors are assumed recoverable
}

// GetDiagnosticCode extracts the diagnostic code from an error
func GetDiagnosticCode(err error) int {
	if err == nil {
		return 0
	}
	if b := bridgeOf(err); b != nil {
		return b.Code
	}
	return CodeGeneric
}

func severityOf(err error) (ErrorSeverity, bool) {
	if b := bridgeOf(err); b != nil {
		return b.Severity, true
	}
	return 0, false
}

// bridgeOf finds the embedded BridgeError of any typed error in the chain
func bridgeOf(err error) *BridgeError {
	var (
		connErr   *ConnectionError
		cmdErr    *CommandError
		mqttErr   *MQTTError
		cfgErr    *ConfigError
		valErr    *ValidationError
		staleErr  *StaleDataError
		bridgeErr *BridgeError
	)
	switch {
	case stderrors.As(err, &connErr):
		return &connErr.BridgeError
	case stderrors.As(err, &cmdErr):
		return &cmdErr.BridgeError
	case stderrors.As(err, &mqttErr):
		return &mqttErr.BridgeError
	case stderrors.As(err, &cfgErr):
		return &cfgErr.BridgeError
	case stderrors.As(err, &valErr):
		return &valErr.BridgeError
	case stderrors.As(err, &staleErr):
		return &staleErr.BridgeError
	case stderrors.As(err, &bridgeErr):
		return bridgeErr
	}
	return nil
}
