// ABOUTME: Broker link abstraction and its paho MQTT implementation.
// ABOUTME: Tests substitute a fake link so the state machine runs without a network.

package bemfa

import (
	"context"
	"errors"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Message is one inbound broker message on the subscribed topic.
type Message struct {
	Topic     string
	Payload   string
	Timestamp time.Time
}

// MessageHandler receives inbound messages in delivery order.
type MessageHandler func(msg Message)

// Link is a single live connection to the broker.
type Link interface {
	// Connect dials the broker and blocks until the connection is
	// acknowledged, the context ends, or the timeout elapses.
	Connect(ctx context.Context) error
	// Subscribe registers for messages on the given topic.
	Subscribe(topic string) error
	// Publish sends payload on topic and blocks until the broker accepts it.
	Publish(ctx context.Context, topic string, payload []byte) error
	// Close tears the connection down. Safe in any state.
	Close()
}

// DialFunc builds an unconnected Link. onMessage receives subscribed
// messages; onLost fires when an established connection drops unexpectedly.
type DialFunc func(cfg Configuration, timeouts Timeouts, onMessage MessageHandler, onLost func(err error)) Link

// Timeouts bound the blocking broker operations. A pending connect or
// publish past its bound is treated as failed so no session can wedge on a
// stalled broker.
type Timeouts struct {
	Connect time.Duration
	Publish time.Duration
}

const (
	defaultConnectTimeout = 5 * time.Second
	defaultPublishTimeout = 5 * time.Second

	// disconnectQuiesce is how long paho may flush in-flight work on Close.
	disconnectQuiesce = 250 // milliseconds
)

// errTimeout marks a broker operation that outlived its bound.
var errTimeout = errors.New("timed out waiting for broker")

// withDefaults fills unset bounds.
func (t Timeouts) withDefaults() Timeouts {
	if t.Connect <= 0 {
		t.Connect = defaultConnectTimeout
	}
	if t.Publish <= 0 {
		t.Publish = defaultPublishTimeout
	}
	return t
}

// pahoLink is the production Link backed by eclipse/paho.
type pahoLink struct {
	client    mqtt.Client
	timeouts  Timeouts
	onMessage MessageHandler
}

// Dial creates a paho-backed Link for the given configuration. Auto-reconnect
// is off: an unexpected drop is surfaced through onLost and the session owns
// the decision to reconnect.
func Dial(cfg Configuration, timeouts Timeouts, onMessage MessageHandler, onLost func(err error)) Link {
	timeouts = timeouts.withDefaults()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL()).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetKeepAlive(60 * time.Second).
		SetConnectTimeout(timeouts.Connect)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if onLost != nil {
		opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			onLost(err)
		})
	}

	return &pahoLink{
		client:    mqtt.NewClient(opts),
		timeouts:  timeouts,
		onMessage: onMessage,
	}
}

func (l *pahoLink) Connect(ctx context.Context) error {
	return waitToken(ctx, l.client.Connect(), l.timeouts.Connect)
}

func (l *pahoLink) Subscribe(topic string) error {
	token := l.client.Subscribe(topic, 0, func(_ mqtt.Client, m mqtt.Message) {
		if l.onMessage == nil {
			return
		}
		l.onMessage(Message{
			Topic:     m.Topic(),
			Payload:   string(m.Payload()),
			Timestamp: time.Now(),
		})
	})
	return waitToken(context.Background(), token, l.timeouts.Connect)
}

func (l *pahoLink) Publish(ctx context.Context, topic string, payload []byte) error {
	// QoS 0: resolved when the client hands the packet to the network.
	token := l.client.Publish(topic, 0, false, payload)
	return waitToken(ctx, token, l.timeouts.Publish)
}

func (l *pahoLink) Close() {
	l.client.Disconnect(disconnectQuiesce)
}

// waitToken blocks on a paho token with both a context and a hard bound.
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return errTimeout
	}
}
