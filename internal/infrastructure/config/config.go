package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the strip gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Security  SecurityConfig  `yaml:"security"`
	Provider  ProviderConfig  `yaml:"provider"`
	Devices   DevicesConfig   `yaml:"devices"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains settings for device duplex connections.
// Intervals are in seconds.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
	WriteTimeout   int `yaml:"write_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DatabaseConfig contains SQLite settings for the action audit trail.
// Device state is never stored here.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings for the state mirror.
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
}

// InfluxDBConfig contains InfluxDB connection settings for device telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// SecurityConfig contains credentials for the operator-facing surfaces.
type SecurityConfig struct {
	// APIKey authenticates device connections and operator endpoints (X-API-Key).
	APIKey   string         `yaml:"api_key"`
	Operator OperatorConfig `yaml:"operator"`
	JWT      JWTConfig      `yaml:"jwt"`
}

// OperatorConfig holds the single operator account.
// PasswordHash (argon2id PHC string) takes precedence over Password.
type OperatorConfig struct {
	Login        string `yaml:"login"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
}

// JWTConfig contains operator access token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// ProviderConfig describes the external identity provider that issues the
// platform's bearer tokens.
type ProviderConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TokenURL     string `yaml:"token_url"`
	UserInfoURL  string `yaml:"userinfo_url"`
	Timeout      int    `yaml:"timeout"`     // seconds
	DefaultTTL   int    `yaml:"default_ttl"` // seconds, used when the provider omits expires_in
}

// DevicesConfig lists devices known before they connect.
type DevicesConfig struct {
	Preprovisioned []string `yaml:"preprovisioned"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. .env file (STRIPGATE_ENV_FILE, default ".env"; never overrides the real environment)
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: STRIPGATE_SECTION_KEY
// For example: STRIPGATE_API_KEY, STRIPGATE_DATABASE_PATH
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := loadDotEnv(dotEnvPath()); err != nil {
		return nil, fmt.Errorf("loading env file: %w", err)
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultEnvFile is read when STRIPGATE_ENV_FILE is not set.
const defaultEnvFile = ".env"

func dotEnvPath() string {
	if v := os.Getenv("STRIPGATE_ENV_FILE"); v != "" {
		return v
	}
	return defaultEnvFile
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
			WriteTimeout:   5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Database: DatabaseConfig{
			Path:        "./data/stripgate.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "stripgate",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
		},
		Provider: ProviderConfig{
			TokenURL:    "https://oauth.yandex.ru/token",
			UserInfoURL: "https://login.yandex.ru/info",
			Timeout:     10,
			DefaultTTL:  3600,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Secrets are expected to arrive this way rather than through the YAML file.
func applyEnvOverrides(cfg *Config) {
	// API
	if v := os.Getenv("STRIPGATE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// Security
	if v := os.Getenv("STRIPGATE_API_KEY"); v != "" {
		cfg.Security.APIKey = v
	}
	if v := os.Getenv("STRIPGATE_LOGIN"); v != "" {
		cfg.Security.Operator.Login = v
	}
	if v := os.Getenv("STRIPGATE_PASSWORD"); v != "" {
		cfg.Security.Operator.Password = v
	}
	if v := os.Getenv("STRIPGATE_PASSWORD_HASH"); v != "" {
		cfg.Security.Operator.PasswordHash = v
	}
	if v := os.Getenv("STRIPGATE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	// Identity provider
	if v := os.Getenv("STRIPGATE_CLIENT_ID"); v != "" {
		cfg.Provider.ClientID = v
	}
	if v := os.Getenv("STRIPGATE_CLIENT_SECRET"); v != "" {
		cfg.Provider.ClientSecret = v
	}

	// Database
	if v := os.Getenv("STRIPGATE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("STRIPGATE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("STRIPGATE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("STRIPGATE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("STRIPGATE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// minJWTSecretLength is the shortest accepted operator JWT secret.
const minJWTSecretLength = 32

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Devices and operator endpoints authenticate with this key; an empty key
	// would accept any connection claiming any device id.
	if c.Security.APIKey == "" {
		errs = append(errs, "security.api_key is required (set STRIPGATE_API_KEY environment variable)")
	}

	if c.Security.Operator.Login != "" {
		if c.Security.Operator.Password == "" && c.Security.Operator.PasswordHash == "" {
			errs = append(errs, "security.operator requires password or password_hash when login is set")
		}
		if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters when operator login is enabled")
		}
	}

	if c.Provider.UserInfoURL == "" {
		errs = append(errs, "provider.userinfo_url is required")
	}
	if c.Provider.Timeout <= 0 {
		errs = append(errs, "provider.timeout must be positive")
	}

	if c.WebSocket.PingInterval <= 0 || c.WebSocket.PongTimeout <= 0 {
		errs = append(errs, "websocket.ping_interval and websocket.pong_timeout must be positive")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

// GetProviderTimeout returns the identity provider request timeout.
func (c *Config) GetProviderTimeout() time.Duration {
	return time.Duration(c.Provider.Timeout) * time.Second
}
