package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogLevel constants
const (
	LogLevelError = "error"
	LogLevelWarn  = "warn"
	LogLevelInfo  = "info"
	LogLevelDebug = "debug"
	LogLevelTrace = "trace"
)

// Log formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"`
}

// Global logging configuration
var GlobalLogging *LoggingConfig

// std is the process logger behind the package-level helpers
var std = newLogrus()

func newLogrus() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return l
}

// Logger wraps a logrus logger with the bridge's emoji level prefixes
type Logger struct {
	entry *logrus.Entry
	file  *os.File
}

// NewLogger configures the process logger and returns a handle to it
func NewLogger(config *LoggingConfig) (*Logger, error) {
	if config == nil {
		config = &LoggingConfig{}
	}

	level, err := parseLevel(config.Level)
	if err != nil {
		return nil, err
	}
	std.SetLevel(level)

	switch strings.ToLower(config.Format) {
	case FormatJSON:
		std.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
	case "", FormatText:
		std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	default:
		return nil, fmt.Errorf("unknown log format %q", config.Format)
	}

	l := &Logger{entry: logrus.NewEntry(std)}
	if config.File != "" {
		// Use 0600 permissions (owner read/write only) for security
		f, err := os.OpenFile(config.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", config.File, err)
		}
		std.SetOutput(io.MultiWriter(os.Stdout, f))
		l.file = f
	} else {
		std.SetOutput(os.Stdout)
	}

	// Set global reference
	GlobalLogging = config

	return l, nil
}

// parseLevel accepts the bridge level names plus anything logrus understands
func parseLevel(level string) (logrus.Level, error) {
	if level == "" {
		return logrus.InfoLevel, nil
	}
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

// Close releases the log file, if any
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	std.SetOutput(os.Stdout)
	return l.file.Close()
}

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Errorf("❌ "+format, args...)
}

// Warn logs warning messages
func (l *Logger) Warn(format string, args ...interface{}) {
	l.entry.Warnf("⚠️ "+format, args...)
}

// Info logs info messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Infof("ℹ️ "+format, args...)
}

// Debug logs debug messages
func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.Debugf("🔧 "+format, args...)
}

// Trace logs trace messages
func (l *Logger) Trace(format string, args ...interface{}) {
	l.entry.Tracef("🔍 "+format, args...)
}

// WithFields returns an entry carrying structured fields
func WithFields(fields map[string]interface{}) *logrus.Entry {
	return std.WithFields(logrus.Fields(fields))
}

// LogStartup logs startup messages that should always be visible regardless of log level
func LogStartup(format string, args ...interface{}) {
	std.Logf(std.GetLevel(), "🔧 "+format, args...)
}

// Helper functions for global logging
func LogError(format string, args ...interface{}) {
	std.Errorf("❌ "+format, args...)
}

func LogWarn(format string, args ...interface{}) {
	std.Warnf("⚠️ "+format, args...)
}

func LogInfo(format string, args ...interface{}) {
	std.Infof("ℹ️ "+format, args...)
}

func LogDebug(format string, args ...interface{}) {
	std.Debugf("🔧 "+format, args...)
}

func LogTrace(format string, args ...interface{}) {
	std.Tracef("🔍 "+format, args...)
}

// IsDebugEnabled checks if debug logging is enabled
func IsDebugEnabled() bool {
	return std.IsLevelEnabled(logrus.DebugLevel)
}

// IsTraceEnabled checks if trace logging is enabled
func IsTraceEnabled() bool {
	return std.IsLevelEnabled(logrus.TraceLevel)
}

// SetOutput redirects the process logger, mainly for tests
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}
