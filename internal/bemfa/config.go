// ABOUTME: Broker configuration snapshot captured by the configureBemfa tool.
// ABOUTME: Validates required fields and masks credentials for display.

package bemfa

import (
	"fmt"
)

// Bemfa cloud defaults, used when a caller omits host/port.
const (
	DefaultHost = "bemfa.com"
	DefaultPort = 9501
)

// Configuration is an immutable snapshot of one session's broker settings,
// captured when the caller configures the session. The client identifier is
// the Bemfa private key and doubles as the MQTT client id.
type Configuration struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	ClientID string `json:"clientId"`
	Topic    string `json:"topic"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// validate checks the required fields before any network action happens.
func (c Configuration) validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("%w: clientId", ErrValidation)
	}
	if c.Topic == "" {
		return fmt.Errorf("%w: topic", ErrValidation)
	}
	return nil
}

// BrokerURL returns the paho broker address for this configuration.
func (c Configuration) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

// Masked returns a copy safe for readback and logging: the client identifier
// and password never appear in full.
func (c Configuration) Masked() Configuration {
	c.ClientID = mask(c.ClientID)
	c.Password = mask(c.Password)
	return c
}

// mask keeps a two-rune prefix and hides the rest. Short values are hidden
// entirely so their length leaks nothing.
func mask(s string) string {
	if s == "" {
		return ""
	}
	r := []rune(s)
	if len(r) <= 2 {
		return "****"
	}
	return string(r[:2]) + "****"
}
