// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, env-only fallback, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  http_addr: "0.0.0.0:8080"
  keepalive_interval: "15s"

bemfa:
  default_host: "broker.example.com"
  default_port: 1883
  connect_timeout: "10s"
  publish_timeout: "3s"

database:
  path: "./test.db"

logging:
  level: "debug"
  format: "json"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Verify server config
	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Server.KeepAliveInterval != 15*time.Second {
		t.Errorf("Server.KeepAliveInterval = %v, want %v", cfg.Server.KeepAliveInterval, 15*time.Second)
	}

	// Verify broker defaults with duration parsing
	if cfg.Bemfa.DefaultHost != "broker.example.com" {
		t.Errorf("Bemfa.DefaultHost = %q, want %q", cfg.Bemfa.DefaultHost, "broker.example.com")
	}
	if cfg.Bemfa.DefaultPort != 1883 {
		t.Errorf("Bemfa.DefaultPort = %d, want 1883", cfg.Bemfa.DefaultPort)
	}
	if cfg.Bemfa.ConnectTimeout != 10*time.Second {
		t.Errorf("Bemfa.ConnectTimeout = %v, want %v", cfg.Bemfa.ConnectTimeout, 10*time.Second)
	}
	if cfg.Bemfa.PublishTimeout != 3*time.Second {
		t.Errorf("Bemfa.PublishTimeout = %v, want %v", cfg.Bemfa.PublishTimeout, 3*time.Second)
	}

	// Verify database config
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}

	// Verify logging config
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Minimal file; everything else comes from defaults
	configContent := `
database:
  path: "./test.db"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "localhost:8080" {
		t.Errorf("Server.HTTPAddr = %q, want localhost:8080", cfg.Server.HTTPAddr)
	}
	if cfg.Server.KeepAliveInterval != 30*time.Second {
		t.Errorf("Server.KeepAliveInterval = %v, want 30s", cfg.Server.KeepAliveInterval)
	}
	if cfg.Bemfa.DefaultHost != "bemfa.com" {
		t.Errorf("Bemfa.DefaultHost = %q, want bemfa.com", cfg.Bemfa.DefaultHost)
	}
	if cfg.Bemfa.DefaultPort != 9501 {
		t.Errorf("Bemfa.DefaultPort = %d, want 9501", cfg.Bemfa.DefaultPort)
	}
	if cfg.Bemfa.ConnectTimeout != 5*time.Second {
		t.Errorf("Bemfa.ConnectTimeout = %v, want 5s", cfg.Bemfa.ConnectTimeout)
	}
	if cfg.Bemfa.PublishTimeout != 5*time.Second {
		t.Errorf("Bemfa.PublishTimeout = %v, want 5s", cfg.Bemfa.PublishTimeout)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("logging defaults = %q/%q, want info/text", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	// Set environment variables for testing
	t.Setenv("TEST_BEMFA_DB", "/tmp/from-env.db")
	t.Setenv("TEST_BEMFA_HOST", "env.bemfa.com")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  http_addr: "localhost:8080"

bemfa:
  default_host: "${TEST_BEMFA_HOST}"

database:
  path: "${TEST_BEMFA_DB}"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/from-env.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/from-env.db")
	}
	if cfg.Bemfa.DefaultHost != "env.bemfa.com" {
		t.Errorf("Bemfa.DefaultHost = %q, want %q", cfg.Bemfa.DefaultHost, "env.bemfa.com")
	}
}

func TestLoad_EnvVarExpansion_UnsetVar(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Unset variable expands to empty, so the default fills it back in
	configContent := `
bemfa:
  default_host: "${BEMFA_TEST_UNSET_VAR_XYZ}"

database:
  path: "./test.db"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bemfa.DefaultHost != "bemfa.com" {
		t.Errorf("Bemfa.DefaultHost = %q, want default bemfa.com", cfg.Bemfa.DefaultHost)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	err := os.WriteFile(configPath, []byte("server: [not: valid: yaml"), 0644)
	if err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err = Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	tests := []struct {
		name          string
		configContent string
		wantErrSubstr string
	}{
		{
			name: "bad keepalive",
			configContent: `
server:
  keepalive_interval: "not-a-duration"
database:
  path: "./test.db"
`,
			wantErrSubstr: "keepalive_interval",
		},
		{
			name: "bad connect timeout",
			configContent: `
bemfa:
  connect_timeout: "10 parsecs"
database:
  path: "./test.db"
`,
			wantErrSubstr: "connect_timeout",
		},
		{
			name: "bad publish timeout",
			configContent: `
bemfa:
  publish_timeout: "soon"
database:
  path: "./test.db"
`,
			wantErrSubstr: "publish_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")

			err := os.WriteFile(configPath, []byte(tt.configContent), 0644)
			if err != nil {
				t.Fatalf("failed to write test config: %v", err)
			}

			_, err = Load(configPath)
			if err == nil {
				t.Errorf("Load() expected error containing %q, got nil", tt.wantErrSubstr)
				return
			}

			if !strings.Contains(err.Error(), tt.wantErrSubstr) {
				t.Errorf("Load() error = %q, want error containing %q", err.Error(), tt.wantErrSubstr)
			}
		})
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
bemfa:
  default_port: 70000
database:
  path: "./test.db"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err = Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for out-of-range port, got nil")
	}
	if !strings.Contains(err.Error(), "default_port") {
		t.Errorf("Load() error = %q, want error mentioning default_port", err.Error())
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "localhost:8080" {
		t.Errorf("Server.HTTPAddr = %q, want localhost:8080", cfg.Server.HTTPAddr)
	}
	if cfg.Bemfa.DefaultHost != "bemfa.com" {
		t.Errorf("Bemfa.DefaultHost = %q, want bemfa.com", cfg.Bemfa.DefaultHost)
	}
	if cfg.Bemfa.DefaultPort != 9501 {
		t.Errorf("Bemfa.DefaultPort = %d, want 9501", cfg.Bemfa.DefaultPort)
	}
	if cfg.Server.KeepAliveInterval != 30*time.Second {
		t.Errorf("Server.KeepAliveInterval = %v, want 30s", cfg.Server.KeepAliveInterval)
	}
	if cfg.Database.Path != "bemfa-bridge.db" {
		t.Errorf("Database.Path = %q, want bemfa-bridge.db", cfg.Database.Path)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("BEMFA_HTTP_ADDR", "0.0.0.0:9090")
	t.Setenv("BEMFA_MQTT_HOST", "other.broker")
	t.Setenv("BEMFA_MQTT_PORT", "1883")
	t.Setenv("BEMFA_KEEPALIVE_INTERVAL", "10s")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:9090" {
		t.Errorf("Server.HTTPAddr = %q, want 0.0.0.0:9090", cfg.Server.HTTPAddr)
	}
	if cfg.Bemfa.DefaultHost != "other.broker" {
		t.Errorf("Bemfa.DefaultHost = %q, want other.broker", cfg.Bemfa.DefaultHost)
	}
	if cfg.Bemfa.DefaultPort != 1883 {
		t.Errorf("Bemfa.DefaultPort = %d, want 1883", cfg.Bemfa.DefaultPort)
	}
	if cfg.Server.KeepAliveInterval != 10*time.Second {
		t.Errorf("Server.KeepAliveInterval = %v, want 10s", cfg.Server.KeepAliveInterval)
	}
}

func TestResolve(t *testing.T) {
	t.Run("existing file wins", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.yaml")

		configContent := `
server:
  http_addr: "127.0.0.1:7070"
database:
  path: "./test.db"
`
		if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := Resolve(configPath)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if cfg.Server.HTTPAddr != "127.0.0.1:7070" {
			t.Errorf("Server.HTTPAddr = %q, want 127.0.0.1:7070", cfg.Server.HTTPAddr)
		}
	})

	t.Run("missing file falls back to env", func(t *testing.T) {
		t.Setenv("BEMFA_HTTP_ADDR", "0.0.0.0:6060")

		cfg, err := Resolve(filepath.Join(t.TempDir(), "no-such.yaml"))
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if cfg.Server.HTTPAddr != "0.0.0.0:6060" {
			t.Errorf("Server.HTTPAddr = %q, want 0.0.0.0:6060", cfg.Server.HTTPAddr)
		}
	})
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_EXPAND_ONE", "first")
	t.Setenv("TEST_EXPAND_TWO", "second")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "single var", input: "value: ${TEST_EXPAND_ONE}", want: "value: first"},
		{name: "two vars", input: "${TEST_EXPAND_ONE}-${TEST_EXPAND_TWO}", want: "first-second"},
		{name: "unset var", input: "value: ${TEST_EXPAND_UNSET_XYZ}", want: "value: "},
		{name: "no vars", input: "plain text", want: "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expandEnvVars(tt.input); got != tt.want {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
