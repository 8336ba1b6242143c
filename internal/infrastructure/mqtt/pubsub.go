package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxPayloadSize caps an outbound message at 1MB. Auth events are a few
// hundred bytes; anything larger is a bug upstream.
const maxPayloadSize = 1 << 20

func checkTopic(topic string, filter bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !filter && strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcard in publish topic %q", ErrInvalidTopic, topic)
	}
	return nil
}

func checkQoS(qos byte) error {
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}

// await waits for a paho token and wraps a timeout or broker error in kind.
func await(token pahomqtt.Token, kind error) error {
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", kind, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return nil
}

// Publish sends payload to topic and waits for the broker acknowledgment.
// Wildcards are rejected in publish topics.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopic(topic, false); err != nil {
		return err
	}
	if err := checkQoS(qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload is %d bytes, limit %d", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return await(c.client.Publish(topic, qos, retained, payload), ErrPublishFailed)
}

// PublishJSON publishes v as JSON at the configured QoS, not retained.
func (c *Client) PublishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %w", ErrPublishFailed, topic, err)
	}
	return c.Publish(topic, payload, c.qos(), false)
}

// Subscribe registers handler for a topic filter. Wildcards are allowed.
// The subscription is remembered and replayed after every reconnect, since
// the broker session is clean.
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	if err := checkTopic(filter, true); err != nil {
		return err
	}
	if err := checkQoS(qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, filter)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	c.subs[filter] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	if err := await(c.client.Subscribe(filter, qos, c.dispatch(handler)), ErrSubscribeFailed); err != nil {
		c.forget(filter)
		return err
	}
	return nil
}

// Unsubscribe drops a filter registered with Subscribe.
func (c *Client) Unsubscribe(filter string) error {
	if err := checkTopic(filter, true); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.forget(filter)
	return await(c.client.Unsubscribe(filter), ErrUnsubscribeFailed)
}

func (c *Client) forget(filter string) {
	c.mu.Lock()
	delete(c.subs, filter)
	c.mu.Unlock()
}

// SubscriptionCount returns how many filters are remembered for replay.
func (c *Client) SubscriptionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// HasSubscription reports whether filter is remembered for replay.
func (c *Client) HasSubscription(filter string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subs[filter]
	return ok
}
