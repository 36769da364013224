package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	bridgeerrors "marstek-ble-bridge/pkg/errors"
	"marstek-ble-bridge/pkg/logger"
)

// Config represents the complete application configuration
type Config struct {
	Version       string               `yaml:"version,omitempty"` // Configuration version (optional, default 1.0)
	Device        DeviceConfig         `yaml:"device"`
	BLE           BLEConfig            `yaml:"ble"`
	Driver        DriverConfig         `yaml:"driver"`
	Polling       PollingConfig        `yaml:"polling"`
	MQTT          MQTTConfig           `yaml:"mqtt"`
	HomeAssistant HAConfig             `yaml:"homeassistant"`
	HTTP          HTTPConfig           `yaml:"http"`
	Metrics       MetricsConfig        `yaml:"metrics"`
	Redis         RedisConfig          `yaml:"redis"`
	Logging       logger.LoggingConfig `yaml:"logging"`
}

// DriverConfig contains command and connection timings
type DriverConfig struct {
	Retries           int                  `yaml:"retries"`
	CommandTimeout    int                  `yaml:"command_timeout"`    // Milliseconds per attempt
	RetryBackoff      int                  `yaml:"retry_backoff"`      // Milliseconds between attempts
	InactivityTimeout int                  `yaml:"inactivity_timeout"` // Seconds idle before the link is dropped
	HistorySize       int                  `yaml:"history_size"`
	CircuitBreaker    CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig guards connection attempts
type CircuitBreakerConfig struct {
	Enabled     bool `yaml:"enabled"`
	MaxFailures int  `yaml:"max_failures"`
	Timeout     int  `yaml:"timeout"` // Seconds before a half-open probe
}

// PollingConfig contains the tiered polling cadence
type PollingConfig struct {
	FastInterval           int `yaml:"fast_interval"`            // Seconds, clamped to 5-60
	MediumTarget           int `yaml:"medium_target"`            // Seconds
	SlowTarget             int `yaml:"slow_target"`              // Seconds
	Pacing                 int `yaml:"pacing"`                   // Milliseconds between commands
	StrideEvery            int `yaml:"stride_every"`             // Run runtime info every Nth cycle (1 = always)
	StrideJitter           int `yaml:"stride_jitter"`            // Milliseconds of random delay before it
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"` // Abort a cycle after this many
	MinStaleThreshold      int `yaml:"min_stale_threshold"`      // Seconds
	MinWatchdogInterval    int `yaml:"min_watchdog_interval"`    // Seconds
	SummaryInterval        int `yaml:"summary_interval"`         // Seconds between performance summaries
	ErrorGracePeriod       int `yaml:"error_grace_period"`       // Seconds before the device is reported offline
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker            string `yaml:"broker"` // Empty disables MQTT
	Port              int    `yaml:"port"`
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
	ClientID          string `yaml:"client_id"`
	BaseTopic         string `yaml:"base_topic"`
	RetryDelay        int    `yaml:"retry_delay"`        // Milliseconds between connection retries
	KeepAlive         int    `yaml:"keep_alive"`         // Seconds
	HeartbeatInterval int    `yaml:"heartbeat_interval"` // Seconds between availability refreshes
}

// HAConfig contains Home Assistant MQTT Discovery settings
type HAConfig struct {
	DiscoveryPrefix     string `yaml:"discovery_prefix"`     // HA MQTT discovery prefix (e.g., "homeassistant")
	Discovery           bool   `yaml:"discovery"`            // Publish discovery configs
	Diagnostics         bool   `yaml:"diagnostics"`          // Expose diagnostic sensors and the report topic
	DiagnosticsInterval int    `yaml:"diagnostics_interval"` // Seconds between diagnostic reports
}

// HTTPConfig contains the local API server settings
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"` // Dedicated listener, 0 = only under the HTTP API
}

// RedisConfig contains the optional snapshot history sink
type RedisConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	HistoryLength int    `yaml:"history_length"`
	Channel       string `yaml:"channel"`
}

// configPaths lists the locations searched when no explicit path works
var configPaths = []string{
	"/etc/marstek-ble-bridge/config.yaml",
	"/etc/marstek-ble-bridge.yaml",
	"./config.yaml",
}

// LoadConfig loads configuration from specified file with version detection
func LoadConfig(configPath string) (*Config, error) {
	paths := append([]string{configPath}, configPaths...)

	var data []byte
	var err error
	var usedPath string

	for _, path := range paths {
		if path == "" {
			continue
		}
		// #nosec G304 - Paths are the explicit flag value or a fixed list of locations
		data, err = os.ReadFile(path)
		if err == nil {
			usedPath = path
			break
		}
	}

	if usedPath == "" {
		return nil, fmt.Errorf("cannot read configuration file from any of the locations: %v. Last error: %w", paths, err)
	}

	config, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", usedPath, err)
	}

	logger.LogInfo("✅ Configuration loaded successfully from %s (version: %s)", usedPath, config.Version)
	return config, nil
}

// LoadConfigFromString loads configuration from a YAML string (for testing)
func LoadConfigFromString(yamlContent string) (*Config, error) {
	return parse([]byte(yamlContent))
}

func parse(data []byte) (*Config, error) {
	// First, parse just the version to validate compatibility
	var versionCheck VersionInfo
	if err := yaml.Unmarshal(data, &versionCheck); err != nil {
		return nil, fmt.Errorf("error parsing configuration version: %w", err)
	}
	if versionCheck.Version == "" {
		logger.LogWarn("⚠️  No 'version' field in configuration, assuming %s", CurrentVersion)
		versionCheck.Version = CurrentVersion
	}
	if err := ValidateVersion(versionCheck.Version); err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing configuration: %w", err)
	}
	config.Version = versionCheck.Version

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{Version: CurrentVersion}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills unset values
func (c *Config) ApplyDefaults() {
	c.Device.applyDefaults()

	setInt(&c.BLE.ScanTimeout, 10)
	setInt(&c.BLE.ConnectTimeout, 15)
	setInt(&c.BLE.SightingMaxAge, 600)

	setInt(&c.Driver.Retries, 3)
	setInt(&c.Driver.CommandTimeout, 2000)
	setInt(&c.Driver.RetryBackoff, 500)
	setInt(&c.Driver.InactivityTimeout, 30)
	setInt(&c.Driver.HistorySize, 25)
	setInt(&c.Driver.CircuitBreaker.MaxFailures, 5)
	setInt(&c.Driver.CircuitBreaker.Timeout, 30)

	setInt(&c.Polling.FastInterval, 10)
	setInt(&c.Polling.MediumTarget, 60)
	setInt(&c.Polling.SlowTarget, 300)
	setInt(&c.Polling.Pacing, 300)
	setInt(&c.Polling.StrideEvery, 1)
	setInt(&c.Polling.MaxConsecutiveFailures, 3)
	setInt(&c.Polling.MinStaleThreshold, 60)
	setInt(&c.Polling.MinWatchdogInterval, 30)
	setInt(&c.Polling.SummaryInterval, 300)
	setInt(&c.Polling.ErrorGracePeriod, 60)

	setInt(&c.MQTT.Port, 1883)
	setInt(&c.MQTT.RetryDelay, 5000)
	setInt(&c.MQTT.KeepAlive, 60)
	setInt(&c.MQTT.HeartbeatInterval, 60)
	if c.MQTT.BaseTopic == "" {
		c.MQTT.BaseTopic = "marstek"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "marstek-ble-bridge"
	}

	if c.HomeAssistant.DiscoveryPrefix == "" {
		c.HomeAssistant.DiscoveryPrefix = "homeassistant"
	}
	setInt(&c.HomeAssistant.DiagnosticsInterval, 300)

	if c.HTTP.Listen == "" {
		c.HTTP.Listen = ":8080"
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	setInt(&c.Redis.HistoryLength, 1000)
	if c.Redis.Channel == "" {
		c.Redis.Channel = "marstek:" + c.Device.ID + ":state"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = logger.FormatText
	}
}

// invalid reports a rejected value as a critical configuration error
func invalid(field, format string, args ...interface{}) error {
	return bridgeerrors.NewConfigError("validate", fmt.Errorf(format, args...), field)
}

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.Device.Validate(); err != nil {
		return err
	}

	if c.BLE.ScanTimeout < 0 || c.BLE.ConnectTimeout < 0 {
		return invalid("ble", "timeouts must be non-negative")
	}

	if c.Driver.Retries < 1 {
		return invalid("driver.retries", "must be at least 1")
	}
	if c.Driver.CommandTimeout <= 0 {
		return invalid("driver.command_timeout", "must be positive")
	}
	if c.Driver.RetryBackoff < 0 {
		return invalid("driver.retry_backoff", "must be non-negative")
	}
	if c.Driver.HistorySize < 1 {
		return invalid("driver.history_size", "must be at least 1")
	}

	if c.Polling.FastInterval < 5 || c.Polling.FastInterval > 60 {
		return invalid("polling.fast_interval", "must be between 5 and 60 seconds, got %d", c.Polling.FastInterval)
	}
	if c.Polling.MediumTarget < c.Polling.FastInterval {
		return invalid("polling.medium_target", "must not be shorter than polling.fast_interval")
	}
	if c.Polling.SlowTarget < c.Polling.MediumTarget {
		return invalid("polling.slow_target", "must not be shorter than polling.medium_target")
	}
	if c.Polling.Pacing < 0 {
		return invalid("polling.pacing", "must be non-negative")
	}
	if c.Polling.StrideEvery < 1 {
		return invalid("polling.stride_every", "must be at least 1")
	}
	if c.Polling.StrideJitter < 0 {
		return invalid("polling.stride_jitter", "must be non-negative")
	}

	if c.MQTT.Broker != "" && c.MQTT.Port <= 0 {
		return invalid("mqtt.port", "must be positive")
	}

	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return invalid("metrics.port", "must be between 0 and 65535")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return invalid("redis.addr", "is not specified")
	}

	switch c.Logging.Format {
	case logger.FormatText, logger.FormatJSON:
	default:
		return invalid("logging.format", "must be %q or %q", logger.FormatText, logger.FormatJSON)
	}

	return nil
}
