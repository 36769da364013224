package logger

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// ILogger is the logging surface injected into long-lived components
type ILogger interface {
	LogInfo(format string, args ...interface{})
	LogWarn(format string, args ...interface{})
	LogError(format string, args ...interface{})
	LogDebug(format string, args ...interface{})
}

// deviceLogger tags every line with the device it concerns
type deviceLogger struct {
	entry *logrus.Entry
}

// ForDevice returns an ILogger on the process logger. A non-empty device
// is attached as the "device" field.
func ForDevice(device string) ILogger {
	entry := logrus.NewEntry(std)
	if device != "" {
		entry = entry.WithField("device", device)
	}
	return &deviceLogger{entry: entry}
}

// NewStandardLogger returns an untagged ILogger on the process logger
func NewStandardLogger() ILogger {
	return ForDevice("")
}

func (l *deviceLogger) LogInfo(format string, args ...interface{}) {
	l.entry.Infof("ℹ️ "+format, args...)
}

func (l *deviceLogger) LogWarn(format string, args ...interface{}) {
	l.entry.Warnf("⚠️ "+format, args...)
}

func (l *deviceLogger) LogError(format string, args ...interface{}) {
	l.entry.Errorf("❌ "+format, args...)
}

func (l *deviceLogger) LogDebug(format string, args ...interface{}) {
	l.entry.Debugf("🔧 "+format, args...)
}

// MockLogger records formatted messages per level. Safe for concurrent use.
type MockLogger struct {
	mu            sync.Mutex
	InfoMessages  []string
	WarnMessages  []string
	ErrorMessages []string
	DebugMessages []string
}

// NewMockLogger creates a new mock logger for testing
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (l *MockLogger) record(dst *[]string, format string, args []interface{}) {
	l.mu.Lock()
	*dst = append(*dst, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *MockLogger) LogInfo(format string, args ...interface{}) {
	l.record(&l.InfoMessages, format, args)
}

func (l *MockLogger) LogWarn(format string, args ...interface{}) {
	l.record(&l.WarnMessages, format, args)
}

func (l *MockLogger) LogError(format string, args ...interface{}) {
	l.record(&l.ErrorMessages, format, args)
}

func (l *MockLogger) LogDebug(format string, args ...interface{}) {
	l.record(&l.DebugMessages, format, args)
}

// Reset clears all recorded messages
func (l *MockLogger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.InfoMessages, l.WarnMessages, l.ErrorMessages, l.DebugMessages = nil, nil, nil, nil
}

func (l *MockLogger) count(msgs *[]string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(*msgs)
}

// HasInfoMessage reports whether any info message was recorded
func (l *MockLogger) HasInfoMessage() bool { return l.count(&l.InfoMessages) > 0 }

// HasWarnMessage reports whether any warning was recorded
func (l *MockLogger) HasWarnMessage() bool { return l.count(&l.WarnMessages) > 0 }

// HasErrorMessage reports whether any error was recorded
func (l *MockLogger) HasErrorMessage() bool { return l.count(&l.ErrorMessages) > 0 }

// Contains reports whether any recorded message at any level contains substr
func (l *MockLogger) Contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, set := range [][]string{l.InfoMessages, l.WarnMessages, l.ErrorMessages, l.DebugMessages} {
		for _, m := range set {
			if strings.Contains(m, substr) {
				return true
			}
		}
	}
	return false
}
