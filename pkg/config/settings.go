package config

import (
	"time"

	"marstek-ble-bridge/pkg/driver"
	"marstek-ble-bridge/pkg/recovery"
	"marstek-ble-bridge/pkg/scheduler"
	"marstek-ble-bridge/pkg/transport/ble"
)

// NewDriverConfig extracts command driver settings from full config
func NewDriverConfig(cfg *Config) driver.Config {
	return driver.Config{
		Name:              cfg.Device.ID,
		Retries:           cfg.Driver.Retries,
		CommandTimeout:    time.Duration(cfg.Driver.CommandTimeout) * time.Millisecond,
		RetryBackoff:      time.Duration(cfg.Driver.RetryBackoff) * time.Millisecond,
		InactivityTimeout: time.Duration(cfg.Driver.InactivityTimeout) * time.Second,
		HistorySize:       cfg.Driver.HistorySize,
		Reassemble:        cfg.BLE.Reassemble,
	}
}

// NewBreakerConfig extracts circuit breaker settings from full config.
// The second result is false when the breaker is disabled.
func NewBreakerConfig(cfg *Config) (recovery.CircuitBreakerConfig, bool) {
	return recovery.CircuitBreakerConfig{
		MaxFailures: cfg.Driver.CircuitBreaker.MaxFailures,
		Timeout:     time.Duration(cfg.Driver.CircuitBreaker.Timeout) * time.Second,
	}, cfg.Driver.CircuitBreaker.Enabled
}

// NewPollingConfig extracts scheduler settings from full config
func NewPollingConfig(cfg *Config) scheduler.Config {
	p := cfg.Polling
	sc := scheduler.DefaultConfig()
	sc.Name = cfg.Device.ID
	sc.FastInterval = time.Duration(p.FastInterval) * time.Second
	sc.MediumTarget = time.Duration(p.MediumTarget) * time.Second
	sc.SlowTarget = time.Duration(p.SlowTarget) * time.Second
	sc.Pacing = time.Duration(p.Pacing) * time.Millisecond
	sc.StrideEvery = p.StrideEvery
	sc.StrideJitter = time.Duration(p.StrideJitter) * time.Millisecond
	sc.MaxConsecutiveFailures = p.MaxConsecutiveFailures
	sc.MinStaleThreshold = time.Duration(p.MinStaleThreshold) * time.Second
	sc.MinWatchdogInterval = time.Duration(p.MinWatchdogInterval) * time.Second
	return sc
}

// NewBLEConfig extracts transport settings from full config
func NewBLEConfig(cfg *Config) ble.Config {
	return ble.Config{
		Address:        cfg.Device.Address,
		NamePrefixes:   cfg.Device.NamePrefixes,
		ScanTimeout:    time.Duration(cfg.BLE.ScanTimeout) * time.Second,
		ConnectTimeout: time.Duration(cfg.BLE.ConnectTimeout) * time.Second,
		SightingMaxAge: time.Duration(cfg.BLE.SightingMaxAge) * time.Second,
	}
}

// MQTTSettings contains only MQTT-specific configuration
// Used for dependency injection to avoid coupling to full Config
type MQTTSettings struct {
	Broker            string
	Port              int
	Username          string
	Password          string
	ClientID          string
	BaseTopic         string
	RetryDelay        time.Duration
	KeepAlive         time.Duration
	HeartbeatInterval time.Duration
}

// NewMQTTSettings extracts MQTT settings from full config
func NewMQTTSettings(cfg *Config) MQTTSettings {
	return MQTTSettings{
		Broker:            cfg.MQTT.Broker,
		Port:              cfg.MQTT.Port,
		Username:          cfg.MQTT.Username,
		Password:          cfg.MQTT.Password,
		ClientID:          cfg.MQTT.ClientID,
		BaseTopic:         cfg.MQTT.BaseTopic,
		RetryDelay:        time.Duration(cfg.MQTT.RetryDelay) * time.Millisecond,
		KeepAlive:         time.Duration(cfg.MQTT.KeepAlive) * time.Second,
		HeartbeatInterval: time.Duration(cfg.MQTT.HeartbeatInterval) * time.Second,
	}
}

// HomeAssistantSettings contains Home Assistant discovery configuration
// Used for dependency injection to avoid coupling to full Config
type HomeAssistantSettings struct {
	DiscoveryPrefix     string
	Discovery           bool
	Diagnostics         bool
	DiagnosticsInterval time.Duration
	DeviceID            string
	DeviceName          string
	Manufacturer        string
	Model               string
}

// NewHomeAssistantSettings extracts Home Assistant settings from full config
func NewHomeAssistantSettings(cfg *Config) HomeAssistantSettings {
	return HomeAssistantSettings{
		DiscoveryPrefix:     cfg.HomeAssistant.DiscoveryPrefix,
		Discovery:           cfg.HomeAssistant.Discovery,
		Diagnostics:         cfg.HomeAssistant.Diagnostics,
		DiagnosticsInterval: time.Duration(cfg.HomeAssistant.DiagnosticsInterval) * time.Second,
		DeviceID:            cfg.Device.ID,
		DeviceName:          cfg.Device.Name,
		Manufacturer:        cfg.Device.Manufacturer,
		Model:               cfg.Device.Model,
	}
}

// MonitorSettings contains availability and summary settings
type MonitorSettings struct {
	SummaryInterval  time.Duration
	ErrorGracePeriod time.Duration
}

// NewMonitorSettings extracts monitoring settings from full config
func NewMonitorSettings(cfg *Config) MonitorSettings {
	return MonitorSettings{
		SummaryInterval:  time.Duration(cfg.Polling.SummaryInterval) * time.Second,
		ErrorGracePeriod: time.Duration(cfg.Polling.ErrorGracePeriod) * time.Second,
	}
}
