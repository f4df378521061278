package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Haptic Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Safety    SafetyConfig    `yaml:"safety"`
	Security  SecurityConfig  `yaml:"security"`
}

// ServerConfig contains the identity the server reports during handshakes.
type ServerConfig struct {
	// Name is sent to clients in the handshake reply.
	Name string `yaml:"name"`

	// SchemaVersionMin and SchemaVersionMax bound the message schema
	// versions this server will negotiate with clients.
	SchemaVersionMin uint32 `yaml:"schema_version_min"`
	SchemaVersionMax uint32 `yaml:"schema_version_max"`
}

// DatabaseConfig contains SQLite database settings for the known-device store.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings for the device link.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// TopicPrefix is the root of the device-link topic tree
	// (announce/notify/raw topics hang off it).
	TopicPrefix string `yaml:"topic_prefix"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket listener settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	WriteTimeout   int    `yaml:"write_timeout"`
	SendBuffer     int    `yaml:"send_buffer"`
}

// InfluxDBConfig contains InfluxDB connection settings for sensor telemetry.
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

// StopScope selects which devices a ping-timeout stop sweep covers.
type StopScope string

// StopScope values.
const (
	// StopScopeGlobal stops every connected device on the server.
	StopScopeGlobal StopScope = "global"

	// StopScopeSession stops only devices the timed-out session has commanded.
	StopScopeSession StopScope = "session"
)

// SafetyConfig contains the ping-timeout safety settings.
type SafetyConfig struct {
	// MaxPingInterval is the maximum time, in milliseconds, a client may go
	// without sending any message before its devices are stopped and the
	// session is closed. Declared to clients in the handshake reply.
	// 0 disables the liveness requirement.
	MaxPingInterval int `yaml:"max_ping_interval"`

	// CheckInterval is how often, in milliseconds, each session checks
	// elapsed time since the last client message. Must be shorter than
	// MaxPingInterval when that is non-zero.
	CheckInterval int `yaml:"check_interval"`

	// StopScope selects global or session-scoped stop sweeps on timeout.
	StopScope StopScope `yaml:"stop_scope"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig contains bearer-token authentication settings for the API server.
type AuthConfig struct {
	// Enabled gates the /ws and REST endpoints behind JWT validation.
	Enabled bool   `yaml:"enabled"`
	Secret  string `yaml:"secret"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HAPTIC_SECTION_KEY
// For example: HAPTIC_DATABASE_PATH, HAPTIC_MQTT_HOST
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

// Default returns the built-in configuration: local listener, MQTT device
// link disabled, telemetry disabled. Used when no config file is given.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:             "Haptic Core",
			SchemaVersionMin: 1,
			SchemaVersionMax: 3,
		},
		Database: DatabaseConfig{
			Path:        "./data/hapticcore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "hapticcore",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			TopicPrefix: "haptic",
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 12345,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 65536,
			WriteTimeout:   10,
			SendBuffer:     256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Safety: SafetyConfig{
			MaxPingInterval: 10000,
			CheckInterval:   1000,
			StopScope:       StopScopeGlobal,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HAPTIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HAPTIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("HAPTIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HAPTIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HAPTIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("HAPTIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("HAPTIC_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("HAPTIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Auth secret should come from the environment in production.
	if v := os.Getenv("HAPTIC_AUTH_SECRET"); v != "" {
		cfg.Security.Auth.Secret = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Name == "" {
		errs = append(errs, "server.name is required")
	}
	if c.Server.SchemaVersionMin == 0 || c.Server.SchemaVersionMax < c.Server.SchemaVersionMin {
		errs = append(errs, "server.schema_version_min/max must form a non-empty range starting at 1 or above")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// The liveness check has to fire at least once inside the allowed window,
	// otherwise a dead client could keep hardware running past the deadline.
	if c.Safety.MaxPingInterval < 0 {
		errs = append(errs, "safety.max_ping_interval must not be negative")
	}
	if c.Safety.MaxPingInterval > 0 {
		if c.Safety.CheckInterval <= 0 {
			errs = append(errs, "safety.check_interval must be positive when max_ping_interval is set")
		} else if c.Safety.CheckInterval >= c.Safety.MaxPingInterval {
			errs = append(errs, "safety.check_interval must be shorter than safety.max_ping_interval")
		}
	}
	switch c.Safety.StopScope {
	case StopScopeGlobal, StopScopeSession:
	default:
		errs = append(errs, `safety.stop_scope must be "global" or "session"`)
	}

	// Weak secrets would let anyone forge a token and drive hardware.
	const minAuthSecretLength = 32
	if c.Security.Auth.Enabled {
		if c.Security.Auth.Secret == "" {
			errs = append(errs, "security.auth.secret is required when auth is enabled (set HAPTIC_AUTH_SECRET)")
		} else if len(c.Security.Auth.Secret) < minAuthSecretLength {
			errs = append(errs, "security.auth.secret must be at least 32 characters")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// MaxPingIntervalDuration returns the ping deadline as a Duration. Zero means disabled.
func (c *SafetyConfig) MaxPingIntervalDuration() time.Duration {
	return time.Duration(c.MaxPingInterval) * time.Millisecond
}

// CheckIntervalDuration returns the liveness check period as a Duration.
func (c *SafetyConfig) CheckIntervalDuration() time.Duration {
	return time.Duration(c.CheckInterval) * time.Millisecond
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// WriteTimeoutDuration returns the WebSocket write timeout as a Duration.
func (c *WebSocketConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(c.WriteTimeout) * time.Second
}
