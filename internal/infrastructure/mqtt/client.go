package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// Client is one broker session backed by paho.mqtt.golang.
//
// A Client is connected at most once. It never reconnects by itself; when
// the link drops it reports the loss through Options.OnConnectionLost and
// the owner builds a new Client.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	opts   Options

	// connected tracks current connection state.
	connected bool
	closed    bool
	connMu    sync.RWMutex

	closeOnce sync.Once

	// logger for error/panic logging (optional).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// NewClient creates an unconnected client. Call Connect to open the session.
func NewClient(opts Options) *Client {
	opts = opts.withDefaults()

	c := &Client{
		opts:   opts,
		logger: opts.Logger,
	}

	pahoOpts := buildClientOptions(opts)
	pahoOpts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})

	c.client = pahomqtt.NewClient(pahoOpts)
	return c
}

// Connect opens the session. It blocks until the broker acknowledges, the
// connect timeout passes, or ctx is cancelled.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.opts.Validate(); err != nil {
		return err
	}

	c.connMu.RLock()
	closed := c.closed
	c.connMu.RUnlock()
	if closed {
		return ErrClosed
	}

	token := c.client.Connect()
	if err := waitToken(ctx, token, c.opts.ConnectTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return nil
}

// Subscribe registers handler for every message matching filter, at the
// configured QoS. Handler panics are recovered and logged.
func (c *Client) Subscribe(filter string, handler func(topic string, payload []byte)) error {
	if filter == "" {
		return ErrInvalidTopic
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Subscribe(filter, c.opts.QoS, c.wrapHandler(handler))
	if err := waitToken(context.Background(), token, c.opts.PublishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, filter, err)
	}

	return nil
}

// Publish sends payload to topic at the configured QoS, not retained.
//
// deliveryID only labels errors: paho assigns wire packet identifiers itself.
func (c *Client) Publish(topic string, payload []byte, deliveryID uint16) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, c.opts.QoS, false, payload)
	if err := waitToken(context.Background(), token, c.opts.PublishTimeout); err != nil {
		return fmt.Errorf("%w: delivery %d: %w", ErrPublishFailed, deliveryID, err)
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && !c.closed && c.client != nil && c.client.IsConnected()
}

// Close disconnects from the broker. Safe to call more than once, and on a
// client that never connected.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.connMu.Lock()
		c.connected = false
		c.closed = true
		c.connMu.Unlock()

		// Also aborts a connect still in flight after a cancelled Connect.
		if c.client != nil {
			c.client.Disconnect(defaultDisconnectQuiesce)
		}
	})
}

// SetLogger sets a logger for error and panic logging.
// If not set, handler panics are recovered silently.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// handleConnectionLost is paho's connection-lost callback.
func (c *Client) handleConnectionLost(err error) {
	c.connMu.Lock()
	wasConnected := c.connected && !c.closed
	c.connected = false
	c.connMu.Unlock()

	if !wasConnected {
		return
	}

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "client_id", c.opts.ClientID, "error", err)
	}

	if c.opts.OnConnectionLost != nil {
		c.opts.OnConnectionLost(err)
	}
}

// wrapHandler wraps a handler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler func(topic string, payload []byte)) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		handler(msg.Topic(), msg.Payload())
	}
}

// waitToken waits for a paho token to complete.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timeout after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
