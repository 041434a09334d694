package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the relay daemon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Influx  InfluxConfig  `yaml:"influx"`
	Relay   RelayConfig   `yaml:"relay"`
	Logging LoggingConfig `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
// An empty ClientID causes a random one to be generated at connect time,
// which allows multiple relay instances against the same broker.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxConfig contains settings for the InfluxDB endpoint points are
// relayed to.
//
// Transport selects the delivery mechanism: "http" uses the v1 /write
// endpoint, "udp" sends line protocol datagrams to UDPAddresses.
type InfluxConfig struct {
	Transport       string   `yaml:"transport"`
	URL             string   `yaml:"url"`
	Database        string   `yaml:"database"`
	RetentionPolicy string   `yaml:"retention_policy"`
	Precision       string   `yaml:"precision"`
	Username        string   `yaml:"username"`
	Password        string   `yaml:"password"`
	SharedSecret    string   `yaml:"shared_secret"`
	Gzip            bool     `yaml:"gzip"`
	Timeout         int      `yaml:"timeout"`
	UDPAddresses    []string `yaml:"udp_addresses"`
}

// RelayConfig contains message batching and dead-letter settings.
type RelayConfig struct {
	Topics        []string      `yaml:"topics"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval int           `yaml:"flush_interval"`
	Journal       JournalConfig `yaml:"journal"`
}

// JournalConfig contains SQLite dead-letter journal settings.
// An empty Path disables the journal; failed batches are then dropped
// after logging.
type JournalConfig struct {
	Path        string `yaml:"path"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: INFLUXRELAY_SECTION_KEY
// For example: INFLUXRELAY_MQTT_HOST, INFLUXRELAY_INFLUX_URL
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Influx: InfluxConfig{
			Transport: "http",
			URL:       "http://localhost:8086",
			Database:  "telemetry",
			Precision: "n",
			Timeout:   10,
		},
		Relay: RelayConfig{
			Topics:        []string{"telemetry/#"},
			BatchSize:     1000,
			FlushInterval: 1,
			Journal: JournalConfig{
				Path:        "./data/influxrelay.db",
				BusyTimeout: 5,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: INFLUXRELAY_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("INFLUXRELAY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("INFLUXRELAY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("INFLUXRELAY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Influx
	if v := os.Getenv("INFLUXRELAY_INFLUX_URL"); v != "" {
		cfg.Influx.URL = v
	}
	if v := os.Getenv("INFLUXRELAY_INFLUX_DATABASE"); v != "" {
		cfg.Influx.Database = v
	}
	if v := os.Getenv("INFLUXRELAY_INFLUX_USERNAME"); v != "" {
		cfg.Influx.Username = v
	}
	if v := os.Getenv("INFLUXRELAY_INFLUX_PASSWORD"); v != "" {
		cfg.Influx.Password = v
	}

	// Shared secret (IMPORTANT: always set via environment in production)
	if v := os.Getenv("INFLUXRELAY_INFLUX_SHARED_SECRET"); v != "" {
		cfg.Influx.SharedSecret = v
	}

	// Journal
	if v := os.Getenv("INFLUXRELAY_JOURNAL_PATH"); v != "" {
		cfg.Relay.Journal.Path = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Influx validation
	switch c.Influx.Transport {
	case "http":
		if c.Influx.URL == "" {
			errs = append(errs, "influx.url is required for http transport")
		}
		if c.Influx.Database == "" {
			errs = append(errs, "influx.database is required for http transport")
		}
	case "udp":
		if len(c.Influx.UDPAddresses) == 0 {
			errs = append(errs, "influx.udp_addresses is required for udp transport")
		}
	default:
		errs = append(errs, "influx.transport must be http or udp")
	}

	switch c.Influx.Precision {
	case "", "n", "u", "ms", "s", "m", "h":
	default:
		errs = append(errs, "influx.precision must be one of n, u, ms, s, m, h")
	}

	// Relay validation
	if len(c.Relay.Topics) == 0 {
		errs = append(errs, "relay.topics must list at least one subscription")
	}
	if c.Relay.BatchSize < 1 {
		errs = append(errs, "relay.batch_size must be at least 1")
	}
	if c.Relay.FlushInterval < 1 {
		errs = append(errs, "relay.flush_interval must be at least 1 second")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetInfluxTimeout returns the InfluxDB request timeout as a Duration.
func (c *Config) GetInfluxTimeout() time.Duration {
	return time.Duration(c.Influx.Timeout) * time.Second
}

// GetFlushInterval returns the relay flush interval as a Duration.
func (c *Config) GetFlushInterval() time.Duration {
	return time.Duration(c.Relay.FlushInterval) * time.Second
}
