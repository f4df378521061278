// Command hapticcore runs the device abstraction and session protocol
// server: it discovers actuation hardware over the configured transports,
// matches vendor protocols, and serves the websocket control protocol.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wrenfold/haptic-core/internal/api"
	"github.com/wrenfold/haptic-core/internal/device"
	"github.com/wrenfold/haptic-core/internal/infrastructure/config"
	"github.com/wrenfold/haptic-core/internal/infrastructure/database"
	"github.com/wrenfold/haptic-core/internal/infrastructure/influxdb"
	"github.com/wrenfold/haptic-core/internal/infrastructure/logging"
	"github.com/wrenfold/haptic-core/internal/infrastructure/mqtt"
	"github.com/wrenfold/haptic-core/internal/protocols"
	"github.com/wrenfold/haptic-core/internal/transport/mqttlink"
)

// version is set at build time via -ldflags.
var version = "dev"

const shutdownGrace = 15 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("hapticcore %s\n", version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		logging.Default().Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(cfg.Logging, version)
	logger.Info("starting hapticcore",
		"version", version,
		"schema_versions", fmt.Sprintf("%d-%d", cfg.Server.SchemaVersionMin, cfg.Server.SchemaVersionMax),
	)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // Shutdown path

	store, err := device.NewStore(db)
	if err != nil {
		return fmt.Errorf("initializing known-device store: %w", err)
	}

	manager := device.NewManager(protocols.New(), store, logger.With("component", "device"))

	if cfg.InfluxDB.Enabled {
		telemetry, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			// Telemetry is optional; run without it.
			logger.Warn("telemetry unavailable", "error", err)
		} else {
			defer telemetry.Close() //nolint:errcheck // Shutdown path
			manager.SetTelemetry(telemetry)
			logger.Info("telemetry connected", "url", cfg.InfluxDB.URL)
		}
	}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to broker: %w", err)
		}
		defer mqttClient.Close() //nolint:errcheck // Shutdown path
		mqttClient.SetLogger(logger.With("component", "mqtt"))
		mqttClient.SetOnConnect(func() {
			logger.Info("broker connection established")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			logger.Warn("broker connection lost", "error", err)
		})

		link := mqttlink.New(mqttClient, logger.With("component", "mqttlink"))
		link.SetNotificationHandler(manager.HandleNotification)
		manager.AddScanner(link)
		logger.Info("device link connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		)
	}

	go manager.Run(ctx)
	if err := manager.StartScanning(ctx); err != nil {
		logger.Warn("initial scan reported failures", "error", err)
	}

	server := api.New(cfg, manager, logger)
	server.AddHealthCheck("database", db.HealthCheck)
	if mqttClient != nil {
		server.AddHealthCheck("mqtt", mqttClient.HealthCheck)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	// Devices must not keep actuating after the server goes away.
	if err := manager.StopAll(shutdownCtx); err != nil {
		logger.Warn("stop sweep on shutdown reported failures", "error", err)
	}
	if err := manager.StopScanning(shutdownCtx); err != nil {
		logger.Warn("stopping scanners", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown", "error", err)
	}

	logger.Info("hapticcore stopped")
	return nil
}
