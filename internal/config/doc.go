// Package config handles configuration loading for bemfa-bridge.
//
// # Overview
//
// Configuration is loaded from a YAML file with environment variable
// expansion, or entirely from environment variables when no file exists.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from BEMFA_CONFIG environment variable
//  2. ~/.config/bemfa/bridge.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  path: "${BEMFA_DB_PATH}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	server:
//	  keepalive_interval: "30s"
//	bemfa:
//	  connect_timeout: "5s"
//	  publish_timeout: "5s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "localhost:8080"   # SSE and message endpoints
//	  keepalive_interval: "30s"     # SSE keep-alive comment cadence
//
// Broker defaults (used when a client omits host/port in configureBemfa):
//
//	bemfa:
//	  default_host: "bemfa.com"
//	  default_port: 9501
//	  connect_timeout: "5s"
//	  publish_timeout: "5s"
//
// Database:
//
//	database:
//	  path: "~/.local/share/bemfa/bemfa-bridge.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Environment-Only Mode
//
// Without a config file, the same settings come from BEMFA_HTTP_ADDR,
// BEMFA_KEEPALIVE_INTERVAL, BEMFA_MQTT_HOST, BEMFA_MQTT_PORT,
// BEMFA_CONNECT_TIMEOUT, BEMFA_PUBLISH_TIMEOUT, BEMFA_DB_PATH,
// BEMFA_LOG_LEVEL, and BEMFA_LOG_FORMAT.
//
// # Usage
//
// Load configuration from a file if present, else the environment:
//
//	cfg, err := config.Resolve(path)
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
