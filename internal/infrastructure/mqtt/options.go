package mqtt

import (
	"crypto/tls"
	"net"
	"net/url"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/lexgate-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultWriteTimeout      = 5 * time.Second
	defaultKeepAlive         = 60 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds

	maxQoS = 2
)

// brokerURL renders host and port as tcp:// or ssl://.
func brokerURL(b config.MQTTBrokerConfig) string {
	u := url.URL{Scheme: "tcp", Host: net.JoinHostPort(b.Host, strconv.Itoa(b.Port))}
	if b.TLS {
		u.Scheme = "ssl"
	}
	return u.String()
}

// buildClientOptions maps the mqtt config section onto paho options.
//
// The session is clean and paho does not resume subscriptions; Client
// replays its own on every connect. Messages are not ordered so a slow
// revocation write does not hold up the next command.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetResumeSubs(false).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(defaultConnectTimeout).
		SetWriteTimeout(defaultWriteTimeout).
		SetKeepAlive(defaultKeepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}
