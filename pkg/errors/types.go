package errors

import (
	"fmt"
	"time"
)

// ErrorSeverity defines the severity level of an error
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the string representation of the severity
func (s ErrorSeverity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Diagnostic codes published alongside errors
const (
	CodeConfig     = 1
	CodeConnection = 2
	CodeCommand    = 3
	CodeMQTT       = 4
	CodeValidation = 5
	CodeStaleData  = 6
	CodeGeneric    = 99
)

// BridgeError is the base error type for all bridge errors
type BridgeError struct {
	Op       string        // Operation that failed
	Err      error         // Underlying error
	Severity ErrorSeverity // Error severity
	Code     int           // Diagnostic code for MQTT
}

// Error implements the error interface
func (e *BridgeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Severity, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Severity, e.Op)
}

// Unwrap returns the underlying error
func (e *BridgeError) Unwrap() error {
	return e.Err
}

// ConnectionError is raised when no BLE session can be established:
// the resolver has no handle, the transport refuses, or notifications fail
type ConnectionError struct {
	BridgeError
	Device  string
	Address string
}

// NewConnectionError creates a new connection error
func NewConnectionError(op string, err error, device, address string) *ConnectionError {
	return &ConnectionError{
		BridgeError: BridgeError{
			Op:       op,
			Err:      err,
			Severity: SeverityError,
			Code:     CodeConnection,
		},
		Device:  device,
		Address: address,
	}
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("[%s] Device %s (%s): %s: %v",
			e.Severity, e.Device, e.Address, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] Device %s: %s: %v",
		e.Severity, e.Device, e.Op, e.Err)
}

// CommandError reports a command that failed after all retries
type CommandError struct {
	BridgeError
	Device   string
	Command  string
	Attempts int
}

// NewCommandError creates a new command error
func NewCommandError(device, command string, attempts int, err error) *CommandError {
	return &CommandError{
		BridgeError: BridgeError{
			Op:       "send " + command,
			Err:      err,
			Severity: SeverityWarning,
			Code:     CodeCommand,
		},
		Device:   device,
		Command:  command,
		Attempts: attempts,
	}
}

// Error implements the error interface
func (e *CommandError) Error() string {
	return fmt.Sprintf("[%s] Device %s: command %s failed after %d attempt(s): %v",
		e.Severity, e.Device, e.Command, e.Attempts, e.Err)
}

// MQTTError represents errors from MQTT operations
type MQTTError struct {
	BridgeError
	Broker string
	Topic  string
}

// NewMQTTError creates a new MQTT error
func NewMQTTError(op string, err error, broker string) *MQTTError {
	return &MQTTError{
		BridgeError: BridgeError{
			Op:       op,
			Err:      err,
			Severity: SeverityError,
			Code:     CodeMQTT,
		},
		Broker: broker,
	}
}

// NewMQTTPublishError reports a failed publish to topic
func NewMQTTPublishError(topic string, err error, broker string) *MQTTError {
	e := NewMQTTError("publish", err, broker)
	e.Topic = topic
	return e
}

// Error implements the error interface
func (e *MQTTError) Error() string {
	if e.Topic != "" {
		return fmt.Sprintf("[%s] MQTT broker '%s' (topic: %s): %s: %v",
			e.Severity, e.Broker, e.Topic, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] MQTT broker '%s': %s: %v",
		e.Severity, e.Broker, e.Op, e.Err)
}

// ConfigError represents configuration errors
type ConfigError struct {
	BridgeError
	Field string
}

// NewConfigError creates a new configuration error
func NewConfigError(op string, err error, field string) *ConfigError {
	return &ConfigError{
		BridgeError: BridgeError{
			Op:       op,
			Err:      err,
			Severity: SeverityCritical, // Config errors are critical
			Code:     CodeConfig,
		},
		Field: field,
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] Configuration field '%s': %s: %v",
			e.Severity, e.Field, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] Configuration: %s: %v",
		e.Severity, e.Op, e.Err)
}

// ValidationError represents validation errors
type ValidationError struct {
	BridgeError
	Field    string
	Expected interface{}
	Actual   interface{}
}

// NewValidationError creates a new validation error
func NewValidationError(field string, expected, actual interface{}) *ValidationError {
	return &ValidationError{
		BridgeError: BridgeError{
			Op:       "validation",
			Err:      fmt.Errorf("validation failed"),
			Severity: SeverityWarning,
			Code:     CodeValidation,
		},
		Field:    field,
		Expected: expected,
		Actual:   actual,
	}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] Field '%s': expected %v, got %v",
		e.Severity, e.Field, e.Expected, e.Actual)
}

// StaleDataError describes a device with no successful poll within the threshold.
// It is a condition for the watchdog, never fatal
type StaleDataError struct {
	BridgeError
	Device    string
	Since     time.Duration
	Threshold time.Duration
}

// NewStaleDataError creates a new staleness error. since < 0 means never polled
func NewStaleDataError(device string, since, threshold time.Duration) *StaleDataError {
	return &StaleDataError{
		BridgeError: BridgeError{
			Op:       "poll freshness",
			Err:      fmt.Errorf("no successful poll"),
			Severity: SeverityInfo,
			Code:     CodeStaleData,
		},
		Device:    device,
		Since:     since,
		Threshold: threshold,
	}
}

// Error implements the error interface
func (e *StaleDataError) Error() string {
	if e.Since < 0 {
		return fmt.Sprintf("[%s] Device %s: no successful poll yet", e.Severity, e.Device)
	}
	return fmt.Sprintf("[%s] Device %s: last successful poll %s ago (threshold %s)",
		e.Severity, e.Device, e.Since.Round(time.Second), e.Threshold)
}
