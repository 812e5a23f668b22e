// WardWatch Core - Emergency Bracelet Connection Manager
//
// This is the main entry point for the WardWatch Core application.
// WardWatch keeps a hospital ward connected to its emergency bracelets:
//   - TCP line protocol for bracelet registration and emergencies
//   - Ward-wide alarm with audible sounder
//   - REST API and WebSocket feed for the nurse station dashboard
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/wardwatch/wardwatch-core/migrations"

	"github.com/wardwatch/wardwatch-core/internal/alarm"
	"github.com/wardwatch/wardwatch-core/internal/api"
	"github.com/wardwatch/wardwatch-core/internal/bracelet"
	"github.com/wardwatch/wardwatch-core/internal/device"
	"github.com/wardwatch/wardwatch-core/internal/infrastructure/config"
	"github.com/wardwatch/wardwatch-core/internal/infrastructure/database"
	"github.com/wardwatch/wardwatch-core/internal/infrastructure/influxdb"
	"github.com/wardwatch/wardwatch-core/internal/infrastructure/logging"
	"github.com/wardwatch/wardwatch-core/internal/infrastructure/mqtt"
	"github.com/wardwatch/wardwatch-core/internal/notify"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting WardWatch Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "ward", cfg.Ward.Name)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Initialise device registry from the stored snapshot plus any
	// pre-provisioned bracelets from config
	store := device.NewSQLiteStore(db.DB)
	registry := device.NewRegistry(store)
	registry.SetLogger(log)

	if loadErr := registry.Load(ctx, provisionedDevices(cfg)); loadErr != nil {
		return fmt.Errorf("loading device registry: %w", loadErr)
	}
	log.Info("device registry initialised", "devices", len(registry.Snapshot()))

	// Event dispatcher fans registry and alarm events out to sinks
	dispatcher := notify.NewDispatcher()
	dispatcher.SetLogger(log)
	dispatcher.Start(ctx)
	defer func() {
		log.Info("closing event dispatcher", "dropped", dispatcher.Dropped())
		dispatcher.Close()
	}()

	registry.SetNotifier(dispatcher)

	// Ward alarm coordinator with console sounder
	alarms := alarm.NewCoordinator(registry, alarm.NewConsoleBeeper(os.Stdout), cfg.Alarm.FrequencyHz, cfg.Alarm.DurationMs)
	alarms.SetLogger(log)
	alarms.SetNotifier(dispatcher)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		qos := byte(cfg.MQTT.QoS)
		dispatcher.AddSink(mqtt.NewEventSink(mqttClient, qos))
		if subErr := mqtt.SubscribeAlarmCommands(mqttClient, alarms, qos); subErr != nil {
			return fmt.Errorf("subscribing to alarm commands: %w", subErr)
		}
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB for event history (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		dispatcher.AddSink(influxdb.NewEventSink(influxClient))
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start the bracelet TCP listener
	bracelets := bracelet.NewServer(
		cfg.Bracelet.Host,
		cfg.Bracelet.Port,
		time.Duration(cfg.Bracelet.ReadTimeout)*time.Second,
		registry,
		alarms,
	)
	bracelets.SetLogger(log)
	if startErr := bracelets.Start(ctx); startErr != nil {
		return fmt.Errorf("starting bracelet listener: %w", startErr)
	}
	defer func() {
		log.Info("stopping bracelet listener")
		bracelets.Stop(context.Background())
	}()
	log.Info("bracelet listener started", "address", bracelets.Addr())

	// Stale-connection sweep demotes silent bracelets to DISCONNECTED
	sweeper := device.NewSweeper(
		registry,
		time.Duration(cfg.Bracelet.SweepInterval)*time.Second,
		time.Duration(cfg.Bracelet.MaxIdle)*time.Second,
	)
	sweeper.SetLogger(log)
	go sweeper.Run(ctx)

	// Start the dashboard API server
	apiServer, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log,
		Registry:  registry,
		Alarms:    alarms,
		Bracelets: bracelets,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// The WebSocket hub exists once the API server has started; wire it
	// into the dispatcher so dashboards get live updates
	dispatcher.AddSink(apiServer.Hub())

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Bracelet listener
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if enabled)
	// 5. Event dispatcher
	// 6. Database

	log.Info("WardWatch Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses WARDWATCH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("WARDWATCH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// provisionedDevices converts config device entries to registry seeds.
func provisionedDevices(cfg *config.Config) []device.Provisioned {
	provisioned := make([]device.Provisioned, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		provisioned = append(provisioned, device.Provisioned{
			DeviceID:   d.DeviceID,
			MACAddress: d.MACAddress,
			IPAddress:  d.IPAddress,
		})
	}
	return provisioned
}

// healthCheck verifies all infrastructure connections are healthy.
// The MQTT and InfluxDB clients may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, apiServer *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	// Bracelet listener health is verified during Start(): it binds the
	// port and begins accepting before returning successfully.

	return nil
}
