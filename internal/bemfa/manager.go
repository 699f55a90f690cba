// ABOUTME: Per-session broker connection state machine for the Bemfa cloud.
// ABOUTME: Owns configure/connect/publish/disconnect transitions and inbound forwarding.

package bemfa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// State of a session's broker connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Commands accepted by the light-control tool. Payloads go out verbatim; the
// device side gives them meaning.
const (
	CommandOn     = "on"
	CommandOff    = "off"
	CommandToggle = "toggle"
	CommandStatus = "status"
)

// validCommand is the closed dispatch over the command set.
func validCommand(command string) bool {
	switch command {
	case CommandOn, CommandOff, CommandToggle, CommandStatus:
		return true
	}
	return false
}

// ErrValidation indicates a required configuration field is missing.
var ErrValidation = errors.New("missing required configuration field")

// ErrNotConfigured indicates connect was attempted before configure.
var ErrNotConfigured = errors.New("session not configured")

// ErrNotConnected indicates publish/disconnect was attempted while not connected.
var ErrNotConnected = errors.New("not connected to broker")

// ErrUnsupportedCommand indicates a command outside the enumerated set.
var ErrUnsupportedCommand = errors.New("unsupported command")

// ErrConnection indicates the broker connection attempt failed.
var ErrConnection = errors.New("broker connection failed")

// ErrPublish indicates the broker rejected or dropped a publish.
var ErrPublish = errors.New("publish failed")

// ManagerConfig holds the shared settings for all bridges.
type ManagerConfig struct {
	// Dial builds broker links; nil means the paho implementation.
	Dial DialFunc
	// DefaultHost and DefaultPort fill configurations that omit them.
	DefaultHost string
	DefaultPort int
	// Timeouts bound connect and publish; zero fields get defaults.
	Timeouts Timeouts
	Logger   *slog.Logger
}

// Manager creates and supervises the per-session bridges. It holds no
// per-session state itself; each Bridge is exclusively owned by its session.
type Manager struct {
	dial        DialFunc
	defaultHost string
	defaultPort int
	timeouts    Timeouts
	logger      *slog.Logger
}

// NewManager creates a Manager with defaults filled in.
func NewManager(cfg ManagerConfig) *Manager {
	dial := cfg.Dial
	if dial == nil {
		dial = Dial
	}
	host := cfg.DefaultHost
	if host == "" {
		host = DefaultHost
	}
	port := cfg.DefaultPort
	if port == 0 {
		port = DefaultPort
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		dial:        dial,
		defaultHost: host,
		defaultPort: port,
		timeouts:    cfg.Timeouts.withDefaults(),
		logger:      logger,
	}
}

// NewBridge creates the broker-connection state for one session. onMessage
// receives inbound messages for that session only, in delivery order.
func (m *Manager) NewBridge(sessionID string, onMessage MessageHandler) *Bridge {
	return &Bridge{
		sessionID: sessionID,
		dial:      m.dial,
		defaults:  Configuration{Host: m.defaultHost, Port: m.defaultPort},
		timeouts:  m.timeouts,
		onMessage: onMessage,
		logger:    m.logger.With("session_id", sessionID),
	}
}

// ConfigureArgs carries the caller-supplied broker settings. Host and port
// are optional and fall back to the manager defaults.
type ConfigureArgs struct {
	Host     string
	Port     int
	ClientID string
	Topic    string
	Username string
	Password string
}

// Bridge is the broker-connection state machine for a single session.
// Caller-invoked operations serialize on the bridge mutex; inbound message
// delivery deliberately bypasses it so a slow connect never delays delivery.
// At most one live link exists at any time.
type Bridge struct {
	sessionID string
	dial      DialFunc
	defaults  Configuration
	timeouts  Timeouts
	onMessage MessageHandler
	logger    *slog.Logger

	mu    sync.Mutex
	state State
	cfg   *Configuration
	link  Link
}

// Configure validates and stores a configuration snapshot. Allowed in any
// state; a live connection is left untouched until the next connect.
func (b *Bridge) Configure(args ConfigureArgs) error {
	cfg := Configuration{
		Host:     args.Host,
		Port:     args.Port,
		ClientID: args.ClientID,
		Topic:    args.Topic,
		Username: args.Username,
		Password: args.Password,
	}
	if cfg.Host == "" {
		cfg.Host = b.defaults.Host
	}
	if cfg.Port == 0 {
		cfg.Port = b.defaults.Port
	}

	if err := cfg.validate(); err != nil {
		return err
	}

	b.mu.Lock()
	b.cfg = &cfg
	b.mu.Unlock()

	b.logger.Info("session configured",
		"host", cfg.Host,
		"port", cfg.Port,
		"topic", cfg.Topic,
		"client_id", mask(cfg.ClientID),
	)
	return nil
}

// Connect opens a broker connection from the stored configuration, closing
// any previous connection first. The result reflects the broker's connection
// acknowledgement only: the topic subscription runs afterwards and its
// failure is logged, not returned.
func (b *Bridge) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cfg == nil {
		return ErrNotConfigured
	}

	if b.link != nil {
		b.link.Close()
		b.link = nil
		b.state = StateDisconnected
	}

	cfg := *b.cfg
	b.state = StateConnecting

	var link Link
	link = b.dial(cfg, b.timeouts, b.forwardMessage, func(err error) {
		b.connectionLost(link, err)
	})

	if err := link.Connect(ctx); err != nil {
		link.Close()
		b.state = StateDisconnected
		b.logger.Warn("broker connect failed",
			"host", cfg.Host,
			"port", cfg.Port,
			"error", err,
		)
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	b.link = link
	b.state = StateConnected
	b.logger.Info("connected to broker",
		"host", cfg.Host,
		"port", cfg.Port,
		"client_id", mask(cfg.ClientID),
	)

	// Subscribe outcome does not gate the connect result.
	go func() {
		if err := link.Subscribe(cfg.Topic); err != nil {
			b.logger.Warn("topic subscribe failed", "topic", cfg.Topic, "error", err)
			return
		}
		b.logger.Debug("subscribed to topic", "topic", cfg.Topic)
	}()

	return nil
}

// Publish sends a control command verbatim on the configured topic. The
// command must come from the enumerated set; nothing reaches the broker
// otherwise.
func (b *Bridge) Publish(ctx context.Context, command string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateConnected || b.link == nil {
		return ErrNotConnected
	}
	if !validCommand(command) {
		return fmt.Errorf("%w: %q", ErrUnsupportedCommand, command)
	}

	topic := b.cfg.Topic
	if err := b.link.Publish(ctx, topic, []byte(command)); err != nil {
		b.logger.Warn("publish failed", "topic", topic, "command", command, "error", err)
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}

	b.logger.Debug("published command", "topic", topic, "command", command)
	return nil
}

// Disconnect closes the broker connection. The stored configuration is
// retained so a later connect can reuse it without reconfiguring.
func (b *Bridge) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateConnected || b.link == nil {
		return ErrNotConnected
	}

	b.state = StateClosing
	b.link.Close()
	b.link = nil
	b.state = StateDisconnected

	b.logger.Info("disconnected from broker")
	return nil
}

// Shutdown force-closes any live connection. Idempotent and safe to call
// concurrently with in-flight operations; used when the session goes away.
func (b *Bridge) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.link != nil {
		b.state = StateClosing
		b.link.Close()
		b.link = nil
	}
	b.state = StateDisconnected
}

// State returns the current connection state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Config returns a copy of the stored configuration, or nil before the first
// successful configure.
func (b *Bridge) Config() *Configuration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cfg == nil {
		return nil
	}
	cfg := *b.cfg
	return &cfg
}

// forwardMessage hands an inbound message to the session. It runs on the
// broker client's delivery goroutine and must not take b.mu: delivery order
// is preserved by the link and an in-flight connect must not block it.
func (b *Bridge) forwardMessage(msg Message) {
	if b.onMessage == nil {
		return
	}
	b.onMessage(msg)
}

// connectionLost handles an unexpected drop of an established connection.
// The link identity check discards late callbacks from replaced links.
func (b *Bridge) connectionLost(link Link, err error) {
	b.mu.Lock()
	if b.link != link {
		b.mu.Unlock()
		return
	}
	b.link.Close()
	b.link = nil
	b.state = StateDisconnected
	b.mu.Unlock()

	b.logger.Warn("broker connection lost", "error", err)
}
