package main

import (
	"fmt"
	"os"

	"marstek-ble-bridge/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: validate_config <config-file>")
		os.Exit(1)
	}

	configPath := os.Args[1]
	fmt.Printf("📄 Loading config from: %s\n", configPath)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("❌ Error loading config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Config loaded successfully!\n")
	fmt.Printf("   Version: %s\n", cfg.Version)

	fmt.Printf("   Device:\n")
	fmt.Printf("     Name: %s\n", cfg.Device.Name)
	fmt.Printf("     ID: %s\n", cfg.Device.ID)
	if cfg.Device.Address != "" {
		fmt.Printf("     Address: %s\n", cfg.Device.Address)
	} else {
		fmt.Printf("     Address: (discovered by name prefix %v)\n", cfg.Device.NamePrefixes)
	}
	fmt.Printf("     Manufacturer: %s\n", cfg.Device.Manufacturer)
	fmt.Printf("     Model: %s\n", cfg.Device.Model)

	polling := config.NewPollingConfig(cfg)
	fmt.Printf("   Polling:\n")
	fmt.Printf("     Fast: %s, Medium: %s, Slow: %s\n", polling.FastInterval, polling.MediumTarget, polling.SlowTarget)
	fmt.Printf("     Pacing: %s\n", polling.Pacing)

	drv := config.NewDriverConfig(cfg)
	fmt.Printf("   Driver:\n")
	fmt.Printf("     Timeout: %s x %d attempts (backoff %s)\n", drv.CommandTimeout, drv.Retries, drv.RetryBackoff)
	fmt.Printf("     Inactivity disconnect: %s\n", drv.InactivityTimeout)
	if _, enabled := config.NewBreakerConfig(cfg); enabled {
		fmt.Printf("     Circuit breaker: %d failures, %ds open\n", cfg.Driver.CircuitBreaker.MaxFailures, cfg.Driver.CircuitBreaker.Timeout)
	}

	if cfg.MQTT.Broker != "" {
		fmt.Printf("   MQTT Broker: %s:%d (base topic %s)\n", cfg.MQTT.Broker, cfg.MQTT.Port, cfg.MQTT.BaseTopic)
		fmt.Printf("   HA Discovery: %v (prefix %s)\n", cfg.HomeAssistant.Discovery, cfg.HomeAssistant.DiscoveryPrefix)
	} else {
		fmt.Printf("   MQTT: disabled\n")
	}
	if cfg.HTTP.Enabled {
		fmt.Printf("   HTTP API: %s\n", cfg.HTTP.Listen)
	}
	if cfg.Metrics.Enabled {
		fmt.Printf("   Metrics: enabled (port %d)\n", cfg.Metrics.Port)
	}
	if cfg.Redis.Enabled {
		fmt.Printf("   Redis: %s (channel %s, %d entries)\n", cfg.Redis.Addr, cfg.Redis.Channel, cfg.Redis.HistoryLength)
	}

	fmt.Println("\n✅ Configuration is valid!")
}
