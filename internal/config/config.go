// ABOUTME: Configuration loading and parsing for bemfa-bridge
// ABOUTME: Supports YAML files with environment variable expansion and an env-only fallback

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Config represents the complete bemfa-bridge configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Bemfa    BemfaConfig    `yaml:"bemfa"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" env:"BEMFA_HTTP_ADDR,default=localhost:8080"`

	KeepAliveInterval time.Duration `yaml:"-" env:"BEMFA_KEEPALIVE_INTERVAL,default=30s"`

	// Raw string value for YAML unmarshaling
	KeepAliveIntervalRaw string `yaml:"keepalive_interval"`
}

// BemfaConfig holds broker defaults applied when a client configures a
// session without an explicit host or port
type BemfaConfig struct {
	DefaultHost string `yaml:"default_host" env:"BEMFA_MQTT_HOST,default=bemfa.com"`
	DefaultPort int    `yaml:"default_port" env:"BEMFA_MQTT_PORT,default=9501"`

	ConnectTimeout time.Duration `yaml:"-" env:"BEMFA_CONNECT_TIMEOUT,default=5s"`
	PublishTimeout time.Duration `yaml:"-" env:"BEMFA_PUBLISH_TIMEOUT,default=5s"`

	// Raw string values for YAML unmarshaling
	ConnectTimeoutRaw string `yaml:"connect_timeout"`
	PublishTimeoutRaw string `yaml:"publish_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" env:"BEMFA_DB_PATH,default=bemfa-bridge.db"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" env:"BEMFA_LOG_LEVEL,default=info"`
	Format string `yaml:"format" env:"BEMFA_LOG_FORMAT,default=text"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// FromEnv builds a Config from environment variables alone, using the
// defaults from the struct tags. Used when no config file exists.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Resolve loads the config file at path if it exists, and falls back to the
// environment when it does not.
func Resolve(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FromEnv()
		}
		return nil, fmt.Errorf("checking config file: %w", err)
	}
	return Load(path)
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills fields the file left empty.
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "localhost:8080"
	}
	if c.Server.KeepAliveInterval == 0 {
		c.Server.KeepAliveInterval = 30 * time.Second
	}
	if c.Bemfa.DefaultHost == "" {
		c.Bemfa.DefaultHost = "bemfa.com"
	}
	if c.Bemfa.DefaultPort == 0 {
		c.Bemfa.DefaultPort = 9501
	}
	if c.Bemfa.ConnectTimeout == 0 {
		c.Bemfa.ConnectTimeout = 5 * time.Second
	}
	if c.Bemfa.PublishTimeout == 0 {
		c.Bemfa.PublishTimeout = 5 * time.Second
	}
	if c.Database.Path == "" {
		c.Database.Path = "bemfa-bridge.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Bemfa.DefaultPort < 1 || c.Bemfa.DefaultPort > 65535 {
		return fmt.Errorf("bemfa.default_port %d is out of range", c.Bemfa.DefaultPort)
	}

	if c.Server.KeepAliveInterval < 0 {
		return fmt.Errorf("keepalive_interval must not be negative")
	}
	if c.Bemfa.ConnectTimeout < 0 || c.Bemfa.PublishTimeout < 0 {
		return fmt.Errorf("bemfa timeouts must not be negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Server.KeepAliveIntervalRaw != "" {
		cfg.Server.KeepAliveInterval, err = time.ParseDuration(cfg.Server.KeepAliveIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing keepalive_interval %q: %w", cfg.Server.KeepAliveIntervalRaw, err)
		}
	}

	if cfg.Bemfa.ConnectTimeoutRaw != "" {
		cfg.Bemfa.ConnectTimeout, err = time.ParseDuration(cfg.Bemfa.ConnectTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing connect_timeout %q: %w", cfg.Bemfa.ConnectTimeoutRaw, err)
		}
	}

	if cfg.Bemfa.PublishTimeoutRaw != "" {
		cfg.Bemfa.PublishTimeout, err = time.ParseDuration(cfg.Bemfa.PublishTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing publish_timeout %q: %w", cfg.Bemfa.PublishTimeoutRaw, err)
		}
	}

	return nil
}
