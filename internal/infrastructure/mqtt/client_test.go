package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/lexgate-core/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "lexgate-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func fakeClient(t *testing.T) (*Client, *fakePaho) {
	t.Helper()
	pc := newFakePaho()
	return newClient(testConfig(), pc), pc
}

type logRecorder struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *logRecorder) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errs = append(l.errs, msg)
	l.mu.Unlock()
}

func (l *logRecorder) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	if _, err := Connect(cfg); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close(nil) error = %v", err)
	}
	if c.IsConnected() {
		t.Error("nil client reports connected")
	}
}

func TestClose_PublishesOfflineStatus(t *testing.T) {
	c, pc := fakeClient(t)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	msgs := pc.messages()
	if len(msgs) != 1 || msgs[0].topic != "lexgate/system/status" || !msgs[0].retained {
		t.Fatalf("published = %+v", msgs)
	}
	var status statusMessage
	if err := json.Unmarshal(msgs[0].payload, &status); err != nil {
		t.Fatalf("status payload: %v", err)
	}
	if status.Status != "offline" || status.Reason != "graceful_shutdown" || status.ClientID != "lexgate-test" {
		t.Errorf("status = %+v", status)
	}
	if c.IsConnected() || !pc.disconnected {
		t.Error("client should be disconnected after Close")
	}
}

func TestHealthCheck(t *testing.T) {
	c, pc := fakeClient(t)

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v", err)
	}

	pc.mu.Lock()
	pc.connected = false
	pc.mu.Unlock()
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck(disconnected) error = %v, want ErrNotConnected", err)
	}
}

func TestPublish_Validation(t *testing.T) {
	c, _ := fakeClient(t)

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"bad qos", "lexgate/x", []byte("x"), 3, ErrInvalidQoS},
		{"wildcard", "lexgate/events/auth/+", []byte("x"), 1, ErrInvalidTopic},
		{"too large", "lexgate/x", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := c.Publish(tc.topic, tc.payload, tc.qos, false); !errors.Is(err, tc.want) {
				t.Errorf("Publish() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestPublish_Disconnected(t *testing.T) {
	c, pc := fakeClient(t)
	pc.mu.Lock()
	pc.connected = false
	pc.mu.Unlock()

	if err := c.Publish("lexgate/x", nil, 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestPublishAuthEvent(t *testing.T) {
	c, pc := fakeClient(t)

	err := c.PublishAuthEvent(AuthEvent{Action: "logout", UserID: "usr-1", OrganizationID: "org-a"})
	if err != nil {
		t.Fatalf("PublishAuthEvent() error = %v", err)
	}

	msgs := pc.messages()
	if len(msgs) != 1 || msgs[0].topic != "lexgate/events/auth/logout" || msgs[0].retained {
		t.Fatalf("published = %+v", msgs)
	}
	var ev AuthEvent
	if err := json.Unmarshal(msgs[0].payload, &ev); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if ev.UserID != "usr-1" || ev.Timestamp.IsZero() {
		t.Errorf("event = %+v", ev)
	}
	if strings.Contains(string(msgs[0].payload), "token") {
		t.Error("event payload must not mention tokens")
	}

	if err := c.PublishAuthEvent(AuthEvent{}); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("PublishAuthEvent(no action) error = %v", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c, _ := fakeClient(t)
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("lexgate/#", 5, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos error = %v", err)
	}
	if err := c.Subscribe("lexgate/#", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
}

func TestSubscribe_FailureNotTracked(t *testing.T) {
	c, pc := fakeClient(t)
	pc.subscribeErr = errors.New("not authorised")

	err := c.Subscribe("lexgate/commands/membership/revoke", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Error("failed subscription should not be tracked")
	}
}

func TestSubscribeRevocations(t *testing.T) {
	c, pc := fakeClient(t)
	logs := &logRecorder{}
	c.SetLogger(logs)

	var got []RevokeCommand
	if err := c.SubscribeRevocations(func(cmd RevokeCommand) error {
		got = append(got, cmd)
		return nil
	}); err != nil {
		t.Fatalf("SubscribeRevocations() error = %v", err)
	}
	if !c.HasSubscription(Topics{}.MembershipRevoke()) {
		t.Fatal("revocation topic not tracked")
	}

	topic := Topics{}.MembershipRevoke()
	pc.Publish(topic, 1, false, []byte(`{"membership_id":"mem-1","organization_id":"org-a","requested_by":"ops"}`))
	pc.Publish(topic, 1, false, []byte(`{"membership_id":"mem-2"}`))
	pc.Publish(topic, 1, false, []byte(`not json`))

	if len(got) != 1 || got[0].MembershipID != "mem-1" || got[0].OrganizationID != "org-a" {
		t.Errorf("commands = %+v", got)
	}
	if len(logs.warns) != 2 {
		t.Errorf("handler warnings = %d, want 2", len(logs.warns))
	}
}

func TestHandler_PanicRecovered(t *testing.T) {
	c, pc := fakeClient(t)
	logs := &logRecorder{}
	c.SetLogger(logs)

	if err := c.Subscribe("lexgate/test", 0, func(string, []byte) error {
		panic("boom")
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	pc.Publish("lexgate/test", 0, false, []byte("x"))
	if len(logs.errs) != 1 {
		t.Errorf("panic logs = %d, want 1", len(logs.errs))
	}
}

func TestHandleConnect_RestoresSubscriptions(t *testing.T) {
	c, pc := fakeClient(t)
	if err := c.Subscribe("lexgate/a", 1, func(string, []byte) error { return nil }); err != nil {
		t.Fatal(err)
	}

	// Simulate a reconnect on a fresh broker session.
	pc.mu.Lock()
	pc.handlers = map[string]pahoHandler{}
	pc.mu.Unlock()

	connected := make(chan struct{}, 1)
	c.SetOnConnect(func() { connected <- struct{}{} })
	c.handleConnect()

	<-connected
	pc.mu.Lock()
	_, ok := pc.handlers["lexgate/a"]
	pc.mu.Unlock()
	if !ok {
		t.Error("subscription not restored after reconnect")
	}

	msgs := pc.messages()
	last := msgs[len(msgs)-1]
	if last.topic != "lexgate/system/status" || !strings.Contains(string(last.payload), `"online"`) {
		t.Errorf("last publish = %s %s", last.topic, last.payload)
	}
}

func TestHandleDisconnect_Callback(t *testing.T) {
	c, _ := fakeClient(t)
	var got error
	c.SetOnDisconnect(func(err error) { got = err })

	c.handleDisconnect(errors.New("eof"))
	if got == nil || got.Error() != "eof" {
		t.Errorf("disconnect callback err = %v", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	c, _ := fakeClient(t)
	_ = c.Subscribe("lexgate/a", 1, func(string, []byte) error { return nil })

	if err := c.Unsubscribe("lexgate/a"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if c.HasSubscription("lexgate/a") {
		t.Error("subscription still tracked")
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v", err)
	}
}

func TestTopics(t *testing.T) {
	tp := Topics{}
	tests := map[string]string{
		tp.SystemStatus():     "lexgate/system/status",
		tp.AuthEvent("login"): "lexgate/events/auth/login",
		tp.AllAuthEvents():    "lexgate/events/auth/+",
		tp.MembershipRevoke(): "lexgate/commands/membership/revoke",
	}
	for got, want := range tests {
		if got != want {
			t.Errorf("topic = %q, want %q", got, want)
		}
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "lexgate"
	cfg.Auth.Password = "pw"

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "lexgate-test" || opts.Username != "lexgate" {
		t.Errorf("ClientID = %q, Username = %q", opts.ClientID, opts.Username)
	}
	if !opts.CleanSession || opts.ResumeSubs || opts.Order {
		t.Errorf("CleanSession=%v ResumeSubs=%v Order=%v", opts.CleanSession, opts.ResumeSubs, opts.Order)
	}
	if opts.TLSConfig != nil {
		t.Error("TLS configured without broker.tls")
	}

	cfg.Broker.TLS = true
	cfg.Broker.Host = "::1"
	opts = buildClientOptions(cfg)
	if got := opts.Servers[0].String(); got != "ssl://[::1]:1883" {
		t.Errorf("TLS server = %q", got)
	}
	if opts.TLSConfig == nil {
		t.Error("TLS not configured")
	}
}
