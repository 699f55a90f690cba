// ABOUTME: Configuration loading for the bemfa-ctl client
// ABOUTME: Loads TOML config from XDG path with environment variable expansion

package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Gateway GatewayConfig `toml:"gateway"`
	Device  DeviceConfig  `toml:"device"`
}

type GatewayConfig struct {
	URL string `toml:"url"`
}

// DeviceConfig holds the Bemfa credentials and topic sent via configureBemfa.
type DeviceConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	ClientID string `toml:"client_id"`
	Topic    string `toml:"topic"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// defaultConfigPath returns the path to the ctl config file.
// Priority: BEMFA_CTL_CONFIG env var > XDG_CONFIG_HOME/bemfa/ctl.toml > ~/.config/bemfa/ctl.toml
func defaultConfigPath() string {
	if envPath := os.Getenv("BEMFA_CTL_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "ctl.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "bemfa", "ctl.toml")
}

// loadConfig reads config from the given path, expanding environment variables.
// A missing file is not an error; defaults apply and the device section stays empty.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{
		Gateway: GatewayConfig{URL: "http://localhost:8080"},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables (${VAR} syntax)
	expanded := expandEnvVars(string(data))

	if _, err := toml.Decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// Validate checks that config fields that are present are valid.
func (c *Config) Validate() error {
	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway.url is required")
	}
	u, err := url.Parse(c.Gateway.URL)
	if err != nil {
		return fmt.Errorf("gateway.url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("gateway.url must use http or https scheme")
	}
	if c.Device.Port < 0 || c.Device.Port > 65535 {
		return fmt.Errorf("device.port %d is out of range", c.Device.Port)
	}
	return nil
}

// requireDevice checks that the fields needed for configureBemfa are set.
func (c *Config) requireDevice() error {
	if c.Device.ClientID == "" {
		return fmt.Errorf("device.client_id is required (set it in %s)", defaultConfigPath())
	}
	if c.Device.Topic == "" {
		return fmt.Errorf("device.topic is required (set it in %s)", defaultConfigPath())
	}
	return nil
}

// deviceArgs builds the configureBemfa arguments from the device section.
// Optional fields are omitted so the bridge applies its own defaults.
func (c *Config) deviceArgs() map[string]any {
	args := map[string]any{
		"clientId": c.Device.ClientID,
		"topic":    c.Device.Topic,
	}
	if c.Device.Host != "" {
		args["host"] = c.Device.Host
	}
	if c.Device.Port != 0 {
		args["port"] = c.Device.Port
	}
	if c.Device.Username != "" {
		args["username"] = c.Device.Username
	}
	if c.Device.Password != "" {
		args["password"] = c.Device.Password
	}
	return args
}
