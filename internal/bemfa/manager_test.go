// ABOUTME: Tests for the per-session bridge state machine.
// ABOUTME: Uses a fake link so no real broker is needed.

package bemfa

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeLink records calls and returns scripted errors.
type fakeLink struct {
	mu           sync.Mutex
	connectErr   error
	subscribeErr error
	publishErr   error
	closed       int
	subscribed   []string
	published    []fakePublish

	subscribeDone chan string
}

type fakePublish struct {
	topic   string
	payload string
}

func newFakeLink() *fakeLink {
	return &fakeLink{subscribeDone: make(chan string, 1)}
}

func (f *fakeLink) Connect(ctx context.Context) error {
	return f.connectErr
}

func (f *fakeLink) Subscribe(topic string) error {
	f.mu.Lock()
	f.subscribed = append(f.subscribed, topic)
	err := f.subscribeErr
	f.mu.Unlock()
	f.subscribeDone <- topic
	return err
}

func (f *fakeLink) Publish(ctx context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, fakePublish{topic: topic, payload: string(payload)})
	return nil
}

func (f *fakeLink) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func (f *fakeLink) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeLink) publishes() []fakePublish {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakePublish, len(f.published))
	copy(out, f.published)
	return out
}

func (f *fakeLink) waitSubscribed(t *testing.T) string {
	t.Helper()
	select {
	case topic := <-f.subscribeDone:
		return topic
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscribe")
		return ""
	}
}

// fakeDialer hands out scripted links and captures the callbacks the bridge
// wires into each one.
type fakeDialer struct {
	mu    sync.Mutex
	next  *fakeLink
	dials []dialRecord
}

type dialRecord struct {
	link      *fakeLink
	cfg       Configuration
	onMessage MessageHandler
	onLost    func(err error)
}

func (d *fakeDialer) dial(cfg Configuration, timeouts Timeouts, onMessage MessageHandler, onLost func(err error)) Link {
	d.mu.Lock()
	defer d.mu.Unlock()
	link := d.next
	if link == nil {
		link = newFakeLink()
	}
	d.next = nil
	d.dials = append(d.dials, dialRecord{link: link, cfg: cfg, onMessage: onMessage, onLost: onLost})
	return link
}

func (d *fakeDialer) lastDial(t *testing.T) dialRecord {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.dials) == 0 {
		t.Fatal("no dial recorded")
	}
	return d.dials[len(d.dials)-1]
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

func newTestBridge(t *testing.T, dialer *fakeDialer, onMessage MessageHandler) *Bridge {
	t.Helper()
	mgr := NewManager(ManagerConfig{Dial: dialer.dial})
	return mgr.NewBridge("test-session", onMessage)
}

func configureBridge(t *testing.T, b *Bridge) {
	t.Helper()
	err := b.Configure(ConfigureArgs{ClientID: "client-abc", Topic: "light002"})
	if err != nil {
		t.Fatalf("configure failed: %v", err)
	}
}

func TestBridge_Connect_RequiresConfig(t *testing.T) {
	dialer := &fakeDialer{}
	bridge := newTestBridge(t, dialer, nil)

	err := bridge.Connect(context.Background())
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if dialer.dialCount() != 0 {
		t.Errorf("expected no dial before configuration, got %d", dialer.dialCount())
	}
}

func TestBridge_Configure_Validation(t *testing.T) {
	tests := []struct {
		name string
		args ConfigureArgs
	}{
		{name: "missing clientId", args: ConfigureArgs{Topic: "light002"}},
		{name: "missing topic", args: ConfigureArgs{ClientID: "client-abc"}},
		{name: "missing both", args: ConfigureArgs{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bridge := newTestBridge(t, &fakeDialer{}, nil)

			err := bridge.Configure(tt.args)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if bridge.Config() != nil {
				t.Error("invalid configure must not store a configuration")
			}
		})
	}
}

func TestBridge_Configure_AppliesDefaults(t *testing.T) {
	bridge := newTestBridge(t, &fakeDialer{}, nil)
	configureBridge(t, bridge)

	cfg := bridge.Config()
	if cfg == nil {
		t.Fatal("expected stored configuration")
	}
	if cfg.Host != DefaultHost {
		t.Errorf("expected default host %q, got %q", DefaultHost, cfg.Host)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("expected default port %d, got %d", DefaultPort, cfg.Port)
	}
}

func TestBridge_Configure_KeepsExplicitEndpoint(t *testing.T) {
	bridge := newTestBridge(t, &fakeDialer{}, nil)

	err := bridge.Configure(ConfigureArgs{
		Host:     "broker.example.com",
		Port:     1883,
		ClientID: "client-abc",
		Topic:    "light002",
	})
	if err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	cfg := bridge.Config()
	if cfg.Host != "broker.example.com" || cfg.Port != 1883 {
		t.Errorf("explicit endpoint overwritten: got %s:%d", cfg.Host, cfg.Port)
	}
}

func TestBridge_Connect_Success(t *testing.T) {
	dialer := &fakeDialer{}
	bridge := newTestBridge(t, dialer, nil)
	configureBridge(t, bridge)

	if err := bridge.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if bridge.State() != StateConnected {
		t.Errorf("expected state connected, got %s", bridge.State())
	}

	rec := dialer.lastDial(t)
	if rec.cfg.Topic != "light002" {
		t.Errorf("expected dial with topic light002, got %q", rec.cfg.Topic)
	}
	if topic := rec.link.waitSubscribed(t); topic != "light002" {
		t.Errorf("expected subscribe on light002, got %q", topic)
	}
}

func TestBridge_Connect_Failure(t *testing.T) {
	link := newFakeLink()
	link.connectErr = fmt.Errorf("connection refused")
	dialer := &fakeDialer{next: link}
	bridge := newTestBridge(t, dialer, nil)
	configureBridge(t, bridge)

	err := bridge.Connect(context.Background())
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	if bridge.State() != StateDisconnected {
		t.Errorf("expected state disconnected after failure, got %s", bridge.State())
	}
	if link.closeCount() == 0 {
		t.Error("failed link was not closed")
	}
}

func TestBridge_Connect_ReplacesPreviousLink(t *testing.T) {
	dialer := &fakeDialer{}
	bridge := newTestBridge(t, dialer, nil)
	configureBridge(t, bridge)

	if err := bridge.Connect(context.Background()); err != nil {
		t.Fatalf("first connect failed: %v", err)
	}
	first := dialer.lastDial(t).link

	if err := bridge.Connect(context.Background()); err != nil {
		t.Fatalf("second connect failed: %v", err)
	}
	second := dialer.lastDial(t).link

	if first == second {
		t.Fatal("expected a fresh link on reconnect")
	}
	if first.closeCount() == 0 {
		t.Error("previous link was not closed before reconnect")
	}
	if bridge.State() != StateConnected {
		t.Errorf("expected state connected, got %s", bridge.State())
	}
}

func TestBridge_Connect_SubscribeFailureDoesNotFailConnect(t *testing.T) {
	link := newFakeLink()
	link.subscribeErr = fmt.Errorf("subscribe rejected")
	dialer := &fakeDialer{next: link}
	bridge := newTestBridge(t, dialer, nil)
	configureBridge(t, bridge)

	if err := bridge.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	link.waitSubscribed(t)

	if bridge.State() != StateConnected {
		t.Errorf("subscribe failure must not change state, got %s", bridge.State())
	}
}

func TestBridge_Publish_RequiresConnected(t *testing.T) {
	bridge := newTestBridge(t, &fakeDialer{}, nil)
	configureBridge(t, bridge)

	err := bridge.Publish(context.Background(), CommandOn)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestBridge_Publish_StateCheckedBeforeCommand(t *testing.T) {
	bridge := newTestBridge(t, &fakeDialer{}, nil)
	configureBridge(t, bridge)

	// Disconnected takes precedence over the bad command.
	err := bridge.Publish(context.Background(), "explode")
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestBridge_Publish_RejectsUnknownCommand(t *testing.T) {
	dialer := &fakeDialer{}
	bridge := newTestBridge(t, dialer, nil)
	configureBridge(t, bridge)

	if err := bridge.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	err := bridge.Publish(context.Background(), "explode")
	if !errors.Is(err, ErrUnsupportedCommand) {
		t.Fatalf("expected ErrUnsupportedCommand, got %v", err)
	}

	link := dialer.lastDial(t).link
	if got := link.publishes(); len(got) != 0 {
		t.Errorf("rejected command must not reach the broker, got %v", got)
	}
}

func TestBridge_Publish_SendsVerbatimPayload(t *testing.T) {
	dialer := &fakeDialer{}
	bridge := newTestBridge(t, dialer, nil)
	configureBridge(t, bridge)

	if err := bridge.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	for _, command := range []string{CommandOn, CommandOff, CommandToggle, CommandStatus} {
		if err := bridge.Publish(context.Background(), command); err != nil {
			t.Fatalf("publish %q failed: %v", command, err)
		}
	}

	link := dialer.lastDial(t).link
	got := link.publishes()
	if len(got) != 4 {
		t.Fatalf("expected 4 publishes, got %d", len(got))
	}
	want := []string{"on", "off", "toggle", "status"}
	for i, pub := range got {
		if pub.topic != "light002" {
			t.Errorf("publish %d on topic %q, want light002", i, pub.topic)
		}
		if pub.payload != want[i] {
			t.Errorf("publish %d payload %q, want %q", i, pub.payload, want[i])
		}
	}
}

func TestBridge_Publish_WrapsBrokerError(t *testing.T) {
	link := newFakeLink()
	dialer := &fakeDialer{next: link}
	bridge := newTestBridge(t, dialer, nil)
	configureBridge(t, bridge)

	if err := bridge.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	link.mu.Lock()
	link.publishErr = fmt.Errorf("broker gone")
	link.mu.Unlock()

	err := bridge.Publish(context.Background(), CommandOn)
	if !errors.Is(err, ErrPublish) {
		t.Fatalf("expected ErrPublish, got %v", err)
	}
}

func TestBridge_Disconnect_RetainsConfig(t *testing.T) {
	dialer := &fakeDialer{}
	bridge := newTestBridge(t, dialer, nil)
	configureBridge(t, bridge)

	if err := bridge.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if err := bridge.Disconnect(); err != nil {
		t.Fatalf("disconnect failed: %v", err)
	}

	if bridge.State() != StateDisconnected {
		t.Errorf("expected state disconnected, got %s", bridge.State())
	}
	if bridge.Config() == nil {
		t.Fatal("disconnect must retain the configuration")
	}

	// Reconnect works without reconfiguring.
	if err := bridge.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
}

func TestBridge_Disconnect_RequiresConnected(t *testing.T) {
	bridge := newTestBridge(t, &fakeDialer{}, nil)
	configureBridge(t, bridge)

	err := bridge.Disconnect()
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestBridge_InboundMessages_PreserveOrder(t *testing.T) {
	var mu sync.Mutex
	var received []string
	onMessage := func(msg Message) {
		mu.Lock()
		received = append(received, msg.Payload)
		mu.Unlock()
	}

	dialer := &fakeDialer{}
	bridge := newTestBridge(t, dialer, onMessage)
	configureBridge(t, bridge)

	if err := bridge.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	rec := dialer.lastDial(t)
	for i := 0; i < 5; i++ {
		rec.onMessage(Message{Topic: "light002", Payload: fmt.Sprintf("msg-%d", i), Timestamp: time.Now()})
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(received))
	}
	for i, payload := range received {
		if want := fmt.Sprintf("msg-%d", i); payload != want {
			t.Errorf("message %d = %q, want %q", i, payload, want)
		}
	}
}

func TestBridge_SessionsAreIsolated(t *testing.T) {
	var mu sync.Mutex
	received := map[string][]string{}
	handler := func(session string) MessageHandler {
		return func(msg Message) {
			mu.Lock()
			received[session] = append(received[session], msg.Payload)
			mu.Unlock()
		}
	}

	dialer := &fakeDialer{}
	mgr := NewManager(ManagerConfig{Dial: dialer.dial})
	bridgeA := mgr.NewBridge("sess-a", handler("sess-a"))
	bridgeB := mgr.NewBridge("sess-b", handler("sess-b"))

	if err := bridgeA.Configure(ConfigureArgs{ClientID: "client-a", Topic: "light002"}); err != nil {
		t.Fatalf("configure A failed: %v", err)
	}
	if err := bridgeB.Configure(ConfigureArgs{ClientID: "client-b", Topic: "light003"}); err != nil {
		t.Fatalf("configure B failed: %v", err)
	}

	// Configurations stay independent.
	if got := bridgeA.Config().Topic; got != "light002" {
		t.Errorf("bridge A topic = %q, want light002", got)
	}
	if got := bridgeB.Config().Topic; got != "light003" {
		t.Errorf("bridge B topic = %q, want light003", got)
	}

	if err := bridgeA.Connect(context.Background()); err != nil {
		t.Fatalf("connect A failed: %v", err)
	}
	recA := dialer.lastDial(t)
	if err := bridgeB.Connect(context.Background()); err != nil {
		t.Fatalf("connect B failed: %v", err)
	}
	recB := dialer.lastDial(t)

	if recA.link == recB.link {
		t.Fatal("two sessions must not share a link")
	}

	recA.onMessage(Message{Topic: "light002", Payload: "for-a", Timestamp: time.Now()})
	recB.onMessage(Message{Topic: "light003", Payload: "for-b", Timestamp: time.Now()})

	mu.Lock()
	defer mu.Unlock()
	if got := received["sess-a"]; len(got) != 1 || got[0] != "for-a" {
		t.Errorf("session A received %v, want [for-a]", got)
	}
	if got := received["sess-b"]; len(got) != 1 || got[0] != "for-b" {
		t.Errorf("session B received %v, want [for-b]", got)
	}
}

func TestBridge_ConnectionLost_ResetsState(t *testing.T) {
	dialer := &fakeDialer{}
	bridge := newTestBridge(t, dialer, nil)
	configureBridge(t, bridge)

	if err := bridge.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	rec := dialer.lastDial(t)
	rec.onLost(fmt.Errorf("EOF"))

	if bridge.State() != StateDisconnected {
		t.Errorf("expected state disconnected after lost connection, got %s", bridge.State())
	}
	if bridge.Config() == nil {
		t.Error("lost connection must retain the configuration")
	}
}

func TestBridge_ConnectionLost_IgnoresStaleLink(t *testing.T) {
	dialer := &fakeDialer{}
	bridge := newTestBridge(t, dialer, nil)
	configureBridge(t, bridge)

	if err := bridge.Connect(context.Background()); err != nil {
		t.Fatalf("first connect failed: %v", err)
	}
	stale := dialer.lastDial(t)

	if err := bridge.Connect(context.Background()); err != nil {
		t.Fatalf("second connect failed: %v", err)
	}

	// Late callback from the replaced link must not touch the live one.
	stale.onLost(fmt.Errorf("EOF"))

	if bridge.State() != StateConnected {
		t.Errorf("stale lost callback changed state to %s", bridge.State())
	}
}

func TestBridge_Shutdown_Idempotent(t *testing.T) {
	dialer := &fakeDialer{}
	bridge := newTestBridge(t, dialer, nil)
	configureBridge(t, bridge)

	if err := bridge.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	link := dialer.lastDial(t).link

	bridge.Shutdown()
	bridge.Shutdown()

	if bridge.State() != StateDisconnected {
		t.Errorf("expected state disconnected, got %s", bridge.State())
	}
	if link.closeCount() != 1 {
		t.Errorf("expected exactly one close, got %d", link.closeCount())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{StateClosing, "closing"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
