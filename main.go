package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marstek-ble-bridge/pkg/builder"
	"marstek-ble-bridge/pkg/config"
	"marstek-ble-bridge/pkg/logger"
	"marstek-ble-bridge/pkg/transport/ble"
)

func usage() {
	fmt.Printf("Usage: %s [--config path] [--scan] [--diagnostic]\n", os.Args[0])
	fmt.Printf("  --config path: Path to configuration file (optional)\n")
	fmt.Printf("  --scan: List nearby Marstek devices and exit\n")
	fmt.Printf("  --diagnostic: Connect, run one poll cycle and print the diagnostics report\n")
}

func main() {
	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configPath := ""
	scanMode := false
	diagnosticMode := false

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--help", "-h":
			usage()
			return
		case "--config", "-c":
			if i+1 >= len(args) {
				usage()
				os.Exit(2)
			}
			i++
			configPath = args[i]
		case "--scan":
			scanMode = true
		case "--diagnostic":
			diagnosticMode = true
		default:
			// A bare argument is the config path
			configPath = args[i]
		}
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		if !scanMode {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = config.Default()
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	logger.LogStartup("Logging initialized with level: %s", cfg.Logging.Level)

	if scanMode {
		if err := runScan(ctx, cfg); err != nil {
			logger.LogError("Scan failed: %v", err)
			os.Exit(1)
		}
		return
	}

	app, err := builder.NewApplicationBuilder(cfg).Build(ctx)
	if err != nil {
		logger.LogError("Application creation error: %v", err)
		os.Exit(1)
	}

	if diagnosticMode {
		logger.LogInfo("🔍 Running diagnostic mode...")
		if err := runDiagnostic(ctx, app); err != nil {
			logger.LogError("Diagnostic failed: %v", err)
			os.Exit(1)
		}
		logger.LogInfo("✅ Diagnostic completed successfully")
		return
	}

	if err := app.Run(ctx); err != nil {
		logger.LogError("Application error: %v", err)
		os.Exit(1)
	}
}

// runScan lists advertising devices that match the configured name prefixes
func runScan(ctx context.Context, cfg *config.Config) error {
	bleCfg := config.NewBLEConfig(cfg)
	transport := ble.New(bleCfg)

	logger.LogInfo("🔍 Scanning for %s...", bleCfg.ScanTimeout)
	handles, err := transport.Scan(ctx, bleCfg.ScanTimeout)
	if err != nil {
		return err
	}
	if len(handles) == 0 {
		fmt.Println("No Marstek devices found")
		return nil
	}
	for _, h := range handles {
		fmt.Printf("%-17s  %-24s  RSSI %d\n", h.Address, h.Name, h.RSSI)
	}
	return nil
}

// runDiagnostic connects to the device, runs one full cycle and prints the report
func runDiagnostic(ctx context.Context, app *builder.Application) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	logger.LogInfo("🔍 Test 1: BLE connection to %s", app.GetConfig().Device.Address)
	if err := app.GetDriver().EnsureConnected(ctx); err != nil {
		logger.LogInfo("💡 Possible issues:")
		logger.LogInfo("   - Device is out of range or powered off")
		logger.LogInfo("   - Another client (the vendor app) holds the connection")
		logger.LogInfo("   - Wrong address in configuration")
		return fmt.Errorf("connection failed: %w", err)
	}
	logger.LogInfo("✅ Connected")

	logger.LogInfo("🔍 Test 2: Poll cycle")
	pollErr := app.GetScheduler().PollNow(ctx)
	if pollErr != nil {
		logger.LogWarn("Poll cycle incomplete: %v", pollErr)
	} else {
		logger.LogInfo("✅ Poll cycle completed (%d fields)", app.GetDriver().Snapshot().SetCount())
	}

	data, err := json.MarshalIndent(app.GetReporter().Report(), "", "  ")
	if err != nil {
		return fmt.Errorf("error serializing report: %w", err)
	}
	fmt.Println(string(data))

	app.GetDriver().Disconnect()
	return pollErr
}
