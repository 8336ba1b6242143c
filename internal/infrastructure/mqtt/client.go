package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/lexgate-core/internal/infrastructure/config"
)

// Client is the service's broker connection. It publishes auth events and
// the retained online/offline status, and carries the membership
// revocation command subscription.
//
// All methods are safe for concurrent use. A nil *Client reports itself
// disconnected and Close is a no-op on it.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	connected atomic.Bool

	mu           sync.RWMutex
	subs         map[string]subscription
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger is satisfied by *slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// MessageHandler handles one received message. A returned error is logged
// as a warning; the message is acknowledged either way. Handlers run on
// paho's goroutines.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker described by cfg with a retained last will on
// the status topic. A disabled config returns ErrDisabled.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	c := &Client{cfg: cfg, subs: make(map[string]subscription)}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })

	c.client = pahomqtt.NewClient(opts)
	if err := await(c.client.Connect(), ErrConnectionFailed); err != nil {
		return nil, err
	}

	// The OnConnect handler may not have run yet.
	c.connected.Store(true)
	return c, nil
}

// newClient adopts an existing paho connection.
func newClient(cfg config.MQTTConfig, pc pahomqtt.Client) *Client {
	c := &Client{client: pc, cfg: cfg, subs: make(map[string]subscription)}
	c.connected.Store(pc.IsConnected())
	return c
}

func (c *Client) qos() byte {
	return byte(c.cfg.QoS) // #nosec G115 -- validated to 0..2 by config
}

func (c *Client) handleConnect() {
	c.connected.Store(true)
	c.replay()
	c.announce(statusOnline, "")

	c.mu.RLock()
	fn := c.onConnect
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connected.Store(false)

	c.mu.RLock()
	fn := c.onDisconnect
	c.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// replay re-issues every remembered subscription. Failures are left for
// the next reconnect.
func (c *Client) replay() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for filter, sub := range c.subs {
		c.client.Subscribe(filter, sub.qos, c.dispatch(sub.handler))
	}
}

func (c *Client) announce(status, reason string) pahomqtt.Token {
	return c.client.Publish(Topics{}.SystemStatus(), c.qos(), true,
		statusPayload(c.cfg.Broker.ClientID, status, reason))
}

// Close marks the service offline on the status topic and disconnects.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.IsConnected() {
		c.announce(statusOffline, "graceful_shutdown").WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck fails when the broker connection is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether both our view and paho's agree the
// connection is up.
func (c *Client) IsConnected() bool {
	if c == nil || c.client == nil {
		return false
	}
	return c.connected.Load() && c.client.IsConnected()
}

// SetOnConnect sets a callback run after every (re)connect.
func (c *Client) SetOnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// SetOnDisconnect sets a callback run when the connection drops.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// SetLogger sets where handler errors and panics are reported.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// dispatch adapts a MessageHandler to paho, logging returned errors and
// recovering panics so one bad command cannot take down the client.
func (c *Client) dispatch(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if l := c.log(); l != nil {
					l.Error("mqtt handler panicked", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if l := c.log(); l != nil {
				l.Warn("mqtt message rejected", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
