// influxrelay - MQTT to InfluxDB telemetry relay
//
// This is the main entry point for the influxrelay daemon. It subscribes
// to MQTT telemetry topics, batches incoming readings, and writes them
// to InfluxDB over HTTP or UDP using the influxline client. Batches that
// cannot be delivered are parked in a SQLite journal and re-sent when
// the database comes back.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/influxline"
	"github.com/nerrad567/influxline/internal/infrastructure/config"
	"github.com/nerrad567/influxline/internal/infrastructure/logging"
	"github.com/nerrad567/influxline/internal/infrastructure/mqtt"
	"github.com/nerrad567/influxline/internal/relay"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/influxrelay.yaml"

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
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting influxrelay",
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
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the journal (optional)
	var journal *relay.Journal
	if cfg.Relay.Journal.Path != "" {
		journal, err = relay.OpenJournal(cfg.Relay.Journal)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer func() {
			log.Info("closing journal")
			if closeErr := journal.Close(); closeErr != nil {
				log.Error("error closing journal", "error", closeErr)
			}
		}()
		log.Info("journal opened", "path", journal.Path())
	} else {
		log.Warn("journal disabled, failed batches will be dropped")
	}

	// Build the InfluxDB writer for the configured transport
	writer, closeWriter, err := newWriter(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	defer closeWriter()

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
	)

	// Set up MQTT logging callbacks
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Start the relay
	r, err := relay.Start(relay.Options{
		Config:     cfg.Relay,
		Precision:  influxline.Precision(cfg.Influx.Precision),
		QoS:        byte(cfg.MQTT.QoS),
		Subscriber: mqttClient,
		Writer:     writer,
		Journal:    journal,
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("starting relay: %w", err)
	}
	defer func() {
		log.Info("stopping relay")
		if closeErr := r.Close(); closeErr != nil {
			log.Error("error stopping relay", "error", closeErr)
		}
	}()
	log.Info("relay started",
		"topics", cfg.Relay.Topics,
		"batch_size", cfg.Relay.BatchSize,
		"flush_interval", cfg.GetFlushInterval().String(),
	)

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. Relay (final flush)
	// 2. MQTT
	// 3. Writer
	// 4. Journal

	log.Info("influxrelay stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses INFLUXRELAY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("INFLUXRELAY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newWriter builds the delivery side for the configured transport.
//
// The HTTP transport pings the database at startup. A dead database is
// not fatal; the journal absorbs batches until it appears, so the
// failure degrades to a warning.
//
// Parameters:
//   - ctx: Context for the startup ping
//   - cfg: Application configuration
//   - log: Logger instance
//
// Returns:
//   - relay.Writer: Writer for the configured transport
//   - func(): Cleanup to run at shutdown
//   - error: If the transport cannot be constructed
func newWriter(ctx context.Context, cfg *config.Config, log *logging.Logger) (relay.Writer, func(), error) {
	if cfg.Influx.Transport == "udp" {
		client, err := influxline.NewUDPClient(cfg.Influx.UDPAddresses...)
		if err != nil {
			return nil, nil, fmt.Errorf("creating UDP client: %w", err)
		}
		log.Info("UDP transport ready", "addresses", cfg.Influx.UDPAddresses)

		cleanup := func() {
			log.Info("closing UDP client")
			if closeErr := client.Close(); closeErr != nil {
				log.Error("error closing UDP client", "error", closeErr)
			}
		}
		return relay.NewUDPWriter(client), cleanup, nil
	}

	client, err := influxline.NewClient(influxline.Config{
		URL:          cfg.Influx.URL,
		Database:     cfg.Influx.Database,
		Username:     cfg.Influx.Username,
		Password:     cfg.Influx.Password,
		SharedSecret: cfg.Influx.SharedSecret,
		Timeout:      cfg.GetInfluxTimeout(),
		Gzip:         cfg.Influx.Gzip,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating HTTP client: %w", err)
	}

	if serverVersion, pingErr := client.Version(ctx); pingErr != nil {
		log.Warn("InfluxDB unreachable at startup, journal will absorb writes",
			"url", cfg.Influx.URL,
			"error", pingErr,
		)
	} else {
		log.Info("InfluxDB reachable",
			"url", cfg.Influx.URL,
			"database", cfg.Influx.Database,
			"server_version", serverVersion,
		)
	}

	writer := relay.NewHTTPWriter(client,
		influxline.Precision(cfg.Influx.Precision),
		cfg.Influx.RetentionPolicy,
	)
	return writer, func() {}, nil
}
