package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Wardwatch Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Ward      WardConfig      `yaml:"ward"`
	Bracelet  BraceletConfig  `yaml:"bracelet"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Alarm     AlarmConfig     `yaml:"alarm"`
	Devices   []DeviceConfig  `yaml:"devices"`
}

// WardConfig contains deployment-specific information.
type WardConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// BraceletConfig contains the bracelet TCP listener settings.
type BraceletConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// ReadTimeout is the per-read socket deadline in seconds. Zero
	// disables the deadline, leaving liveness to the sweep. When set it
	// must cover at least max_idle, or the deadline would tear silent
	// sessions down before the sweep's idle policy applies.
	ReadTimeout int `yaml:"read_timeout"`

	// SweepInterval is how often the stale-connection sweep runs, in seconds.
	SweepInterval int `yaml:"sweep_interval"`

	// MaxIdle is the silence threshold after which a connected bracelet
	// is demoted to DISCONNECTED, in seconds.
	MaxIdle int `yaml:"max_idle"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
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

// APIConfig contains dashboard HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains dashboard WebSocket settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains the optional event-history sink settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AlarmConfig contains audible alarm settings.
type AlarmConfig struct {
	// FrequencyHz is the beep frequency handed to the audible sink.
	FrequencyHz int `yaml:"frequency_hz"`

	// DurationMs is the beep duration handed to the audible sink.
	DurationMs int `yaml:"duration_ms"`
}

// DeviceConfig describes a pre-provisioned bracelet known by hardware identity.
// Records for these are created at startup when the device store lacks them.
type DeviceConfig struct {
	DeviceID   string `yaml:"device_id"`
	MACAddress string `yaml:"mac_address"`
	IPAddress  string `yaml:"ip_address"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: WARDWATCH_SECTION_KEY
// For example: WARDWATCH_DATABASE_PATH, WARDWATCH_BRACELET_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := Default()

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

// Default returns a Config with sensible defaults.
// Callers without a config file can use it directly after Validate().
func Default() *Config {
	return &Config{
		Ward: WardConfig{
			ID:       "ward-001",
			Name:     "Wardwatch",
			Timezone: "UTC",
		},
		Bracelet: BraceletConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			ReadTimeout:   0,
			SweepInterval: 1,
			MaxIdle:       60,
		},
		Database: DatabaseConfig{
			Path:        "./data/wardwatch.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "wardwatch-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Alarm: AlarmConfig{
			FrequencyHz: 1000,
			DurationMs:  500,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: WARDWATCH_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("WARDWATCH_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Bracelet listener
	if v := os.Getenv("WARDWATCH_BRACELET_HOST"); v != "" {
		cfg.Bracelet.Host = v
	}
	if v := os.Getenv("WARDWATCH_BRACELET_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Bracelet.Port = port
		}
	}

	// MQTT
	if v := os.Getenv("WARDWATCH_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("WARDWATCH_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("WARDWATCH_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("WARDWATCH_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("WARDWATCH_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Ward validation
	if c.Ward.ID == "" {
		errs = append(errs, "ward.id is required")
	}

	// Bracelet listener validation
	if c.Bracelet.Port < 1 || c.Bracelet.Port > 65535 {
		errs = append(errs, fmt.Sprintf("bracelet.port %d out of range", c.Bracelet.Port))
	}
	if c.Bracelet.SweepInterval < 1 {
		errs = append(errs, "bracelet.sweep_interval must be at least 1 second")
	}
	if c.Bracelet.MaxIdle < c.Bracelet.SweepInterval {
		errs = append(errs, "bracelet.max_idle must not be shorter than bracelet.sweep_interval")
	}
	if c.Bracelet.ReadTimeout > 0 && c.Bracelet.ReadTimeout < c.Bracelet.MaxIdle {
		errs = append(errs, "bracelet.read_timeout must be 0 or at least bracelet.max_idle")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation (only when enabled)
	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, fmt.Sprintf("mqtt.qos %d out of range (0-2)", c.MQTT.QoS))
		}
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port %d out of range", c.API.Port))
	}
	if c.API.Port == c.Bracelet.Port {
		errs = append(errs, "api.port must differ from bracelet.port")
	}

	// InfluxDB validation (only when enabled)
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	// Alarm validation
	if c.Alarm.FrequencyHz < 10 || c.Alarm.FrequencyHz > 20000 {
		errs = append(errs, fmt.Sprintf("alarm.frequency_hz %d out of range (10-20000)", c.Alarm.FrequencyHz))
	}
	if c.Alarm.DurationMs < 10 {
		errs = append(errs, "alarm.duration_ms must be at least 10")
	}

	// Pre-provisioned device validation
	seen := make(map[string]struct{}, len(c.Devices))
	for i, d := range c.Devices {
		if d.IPAddress == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].ip_address is required", i))
			continue
		}
		if net.ParseIP(d.IPAddress) == nil {
			errs = append(errs, fmt.Sprintf("devices[%d].ip_address %q is not a valid IP", i, d.IPAddress))
		}
		if _, dup := seen[d.IPAddress]; dup {
			errs = append(errs, fmt.Sprintf("devices[%d].ip_address %q is listed twice", i, d.IPAddress))
		}
		seen[d.IPAddress] = struct{}{}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
