package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingRequired is returned when one of the mandatory connection keys
// (server.url, server.user, server.password, client.id) is absent.
var ErrMissingRequired = errors.New("config: missing required key")

// Config is the root configuration structure for the relay.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Client   ClientConfig   `yaml:"client"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Relay    RelayConfig    `yaml:"relay"`
	Logging  LoggingConfig  `yaml:"logging"`
	Journal  JournalConfig  `yaml:"journal"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
}

// ServerConfig identifies the MQTT broker and the credentials used on it.
type ServerConfig struct {
	// URL of the broker, e.g. "tcp://example.com:1883" or "ssl://example.com:8883".
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// ClientConfig contains the MQTT client identity.
type ClientConfig struct {
	ID string `yaml:"id"`
}

// MQTTConfig contains transport-level tuning for the broker session.
type MQTTConfig struct {
	QoS            int           `yaml:"qos"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
}

// RelayConfig contains the connection manager's watchdog and retry settings.
type RelayConfig struct {
	// TickInterval is the period of the health check.
	TickInterval time.Duration `yaml:"tick_interval"`

	// WatchdogThreshold is the number of consecutive ticks without traffic on
	// the control topic after which the link is considered dead.
	WatchdogThreshold int `yaml:"watchdog_threshold"`

	// ReconnectDelay is the fixed pause between reconnect attempts.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`

	// DispatchBuffer is the capacity of the inbound message queue.
	// Zero selects the connection manager's default of 64.
	DispatchBuffer int `yaml:"dispatch_buffer"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// JournalConfig contains settings for the SQLite connection journal.
type JournalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for relay telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains settings for the read-only status API.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP server timeouts.
type APITimeoutConfig struct {
	Read  time.Duration `yaml:"read"`
	Write time.Duration `yaml:"write"`
	Idle  time.Duration `yaml:"idle"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DH2MQTT_SECTION_KEY
// For example: DH2MQTT_SERVER_URL, DH2MQTT_CLIENT_ID
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
// Relay timings: a 1s tick, 30 silent ticks before a forced reconnect,
// 5s between attempts.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			QoS:            1,
			ConnectTimeout: 10 * time.Second,
			PublishTimeout: 5 * time.Second,
			KeepAlive:      60 * time.Second,
		},
		Relay: RelayConfig{
			TickInterval:      time.Second,
			WatchdogThreshold: 30,
			ReconnectDelay:    5 * time.Second,
			DispatchBuffer:    64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Journal: JournalConfig{
			Path:        "./data/dh2mqtt.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  5 * time.Second,
				Write: 10 * time.Second,
				Idle:  60 * time.Second,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: DH2MQTT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DH2MQTT_SERVER_URL"); v != "" {
		cfg.Server.URL = v
	}
	if v := os.Getenv("DH2MQTT_SERVER_USER"); v != "" {
		cfg.Server.User = v
	}
	if v := os.Getenv("DH2MQTT_SERVER_PASSWORD"); v != "" {
		cfg.Server.Password = v
	}
	if v := os.Getenv("DH2MQTT_CLIENT_ID"); v != "" {
		cfg.Client.ID = v
	}

	if v := os.Getenv("DH2MQTT_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("DH2MQTT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for missing keys and out-of-range values.
//
// Returns:
//   - error: wraps ErrMissingRequired when a connection key is absent,
//     otherwise describes the first set of invalid values, or nil if valid
func (c *Config) Validate() error {
	if missing := c.MissingKeys(); len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", "))
	}

	var errs []string

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.Relay.TickInterval <= 0 {
		errs = append(errs, "relay.tick_interval must be positive")
	}
	if c.Relay.WatchdogThreshold < 1 {
		errs = append(errs, "relay.watchdog_threshold must be at least 1")
	}
	if c.Relay.ReconnectDelay <= 0 {
		errs = append(errs, "relay.reconnect_delay must be positive")
	}
	if c.Relay.DispatchBuffer < 0 {
		errs = append(errs, "relay.dispatch_buffer must not be negative")
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// MissingKeys returns the required keys that are empty, in their dotted form.
// An explicit empty string counts as missing: yaml.v3 cannot tell it from an
// absent key, and none of these can be blank for a working session.
func (c *Config) MissingKeys() []string {
	var missing []string
	if c.Server.URL == "" {
		missing = append(missing, "server.url")
	}
	if c.Client.ID == "" {
		missing = append(missing, "client.id")
	}
	if c.Server.User == "" {
		missing = append(missing, "server.user")
	}
	if c.Server.Password == "" {
		missing = append(missing, "server.password")
	}
	return missing
}
