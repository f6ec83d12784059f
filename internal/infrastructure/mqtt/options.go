package mqtt

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for a connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Options configures a Client.
type Options struct {
	// ServerURL is the broker address, e.g. "tcp://broker:1883" or "ssl://broker:8883".
	ServerURL string

	ClientID string
	Username string
	Password string

	// QoS is used for both the subscription and every publish.
	QoS byte

	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	KeepAlive      time.Duration

	// OnConnectionLost is called when an established connection drops.
	// It is not called for Close.
	OnConnectionLost func(err error)

	// Logger is optional.
	Logger Logger
}

// Validate checks the options that would otherwise fail deep inside paho.
func (o Options) Validate() error {
	if o.ClientID == "" {
		return fmt.Errorf("%w: client ID is required", ErrConnectionFailed)
	}
	if o.QoS > maxQoS {
		return ErrInvalidQoS
	}
	_, err := parseServerURL(o.ServerURL)
	return err
}

// parseServerURL checks the broker URL has a scheme paho can dial.
func parseServerURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidServerURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidServerURL, err)
	}
	switch u.Scheme {
	case "tcp", "mqtt", "ssl", "tls", "mqtts", "tcps", "ws", "wss":
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidServerURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidServerURL)
	}
	return u, nil
}

func isTLSScheme(scheme string) bool {
	switch scheme {
	case "ssl", "tls", "mqtts", "tcps", "wss":
		return true
	}
	return false
}

// withDefaults fills zero timeouts.
func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = defaultPublishTimeout
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = defaultKeepAlive
	}
	return o
}

// buildClientOptions creates paho MQTT options for a single session.
//
// This configures:
//   - Broker URL (TLS when the scheme asks for it)
//   - Client ID and credentials
//   - Clean session with an in-memory store
//   - No library reconnect: the connection manager replaces the session instead
//   - Ordered message delivery, so the subscription callback sees one message at a time
func buildClientOptions(o Options) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(o.ServerURL)
	opts.SetClientID(o.ClientID)

	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	opts.SetCleanSession(true)
	opts.SetStore(pahomqtt.NewMemoryStore())

	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	opts.SetConnectTimeout(o.ConnectTimeout)
	opts.SetKeepAlive(o.KeepAlive)
	opts.SetOrderMatters(true)

	if u, err := url.Parse(o.ServerURL); err == nil && isTLSScheme(u.Scheme) {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}
