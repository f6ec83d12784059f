package devicehub

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Outcome classifies what the relay did with an arrived message.
type Outcome string

// Message outcomes.
const (
	// OutcomeRelayed means the notification was published.
	OutcomeRelayed Outcome = "relayed"

	// OutcomeIgnored means the message arrived on a topic other than dh/request.
	OutcomeIgnored Outcome = "ignored"

	// OutcomeIncomplete means the envelope had no deviceId or no notification.
	OutcomeIncomplete Outcome = "incomplete"

	// OutcomeDropped means the envelope was malformed or the publish failed.
	OutcomeDropped Outcome = "dropped"
)

// Connection is the part of the connection manager the relay needs.
// This interface is satisfied by *connection.Manager.
type Connection interface {
	// Publish sends a message over the live session.
	Publish(topic string, payload []byte, deliveryID uint16) error

	// ObserveTraffic resets the connection watchdog.
	ObserveTraffic()

	// Reconnect requests recovery of a lost session. Must not block.
	Reconnect(cause error)
}

// Recorder receives one call per arrived message.
// It is optional - if nil, outcomes are only counted.
type Recorder interface {
	RecordOutcome(outcome Outcome, deviceID string)
}

// Logger defines the logging interface for the relay.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Stats is a snapshot of the relay's message counters.
type Stats struct {
	Received   uint64
	Ignored    uint64
	Incomplete uint64
	Dropped    uint64
	Relayed    uint64
}

// RelayOptions holds configuration for creating a relay.
type RelayOptions struct {
	// Connection is the broker connection manager.
	Connection Connection

	// Logger is optional structured logger.
	Logger Logger

	// Recorder is optional outcome sink for telemetry.
	Recorder Recorder
}

// Relay turns device-hub control messages into per-device notifications.
// It implements connection.EventHandler.
//
// Thread Safety: All methods are safe for concurrent use. The connection
// manager calls MessageArrived from a single goroutine.
type Relay struct {
	conn     Connection
	recorder Recorder

	received   atomic.Uint64
	ignored    atomic.Uint64
	incomplete atomic.Uint64
	dropped    atomic.Uint64
	relayed    atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// NewRelay creates a relay. Register it with the connection manager's
// SetHandler before starting the manager.
func NewRelay(opts RelayOptions) (*Relay, error) {
	if opts.Connection == nil {
		return nil, fmt.Errorf("connection is required")
	}

	return &Relay{
		conn:     opts.Connection,
		recorder: opts.Recorder,
		logger:   opts.Logger,
	}, nil
}

// MessageArrived handles one inbound message. Only dh/request is acted on;
// every message there resets the watchdog, even one that fails to decode.
func (r *Relay) MessageArrived(topic string, payload []byte) {
	r.received.Add(1)

	if topic != ControlTopic {
		r.ignored.Add(1)
		r.record(OutcomeIgnored, "")
		r.logDebug("ignoring message", "topic", topic)
		return
	}

	r.conn.ObserveTraffic()

	correlationID := uuid.NewString()

	env, err := DecodeEnvelope(payload)
	if err != nil {
		r.dropped.Add(1)
		r.record(OutcomeDropped, "")
		r.logWarn("dropping malformed envelope",
			"correlation_id", correlationID,
			"error", err,
			"payload", string(payload),
		)
		return
	}

	msg, err := Route(env)
	if err != nil {
		r.dropped.Add(1)
		r.record(OutcomeDropped, deviceOf(env))
		r.logWarn("dropping unroutable envelope",
			"correlation_id", correlationID,
			"request_id", env.RequestID,
			"error", err,
		)
		return
	}
	if msg == nil {
		r.incomplete.Add(1)
		r.record(OutcomeIncomplete, deviceOf(env))
		r.logDebug("envelope has nothing to relay",
			"correlation_id", correlationID,
			"request_id", env.RequestID,
		)
		return
	}

	if err := r.conn.Publish(msg.Topic, msg.Payload, msg.DeliveryID); err != nil {
		r.dropped.Add(1)
		r.record(OutcomeDropped, msg.DeviceID)
		r.logWarn("notification not relayed",
			"correlation_id", correlationID,
			"request_id", msg.RequestID,
			"topic", msg.Topic,
			"error", err,
		)
		return
	}

	r.relayed.Add(1)
	r.record(OutcomeRelayed, msg.DeviceID)
	r.logInfo("relayed notification",
		"correlation_id", correlationID,
		"request_id", msg.RequestID,
		"delivery_id", msg.DeliveryID,
		"topic", msg.Topic,
		"payload", string(msg.Payload),
	)
}

// ConnectionLost hands a transport-reported loss to the connection manager.
func (r *Relay) ConnectionLost(err error) {
	if err == nil {
		err = errors.New("connection lost")
	}
	r.logWarn("broker connection lost", "error", err)
	r.conn.Reconnect(err)
}

// Stats returns a snapshot of the message counters.
func (r *Relay) Stats() Stats {
	return Stats{
		Received:   r.received.Load(),
		Ignored:    r.ignored.Load(),
		Incomplete: r.incomplete.Load(),
		Dropped:    r.dropped.Load(),
		Relayed:    r.relayed.Load(),
	}
}

// SetLogger sets the logger for the relay.
func (r *Relay) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

func (r *Relay) record(outcome Outcome, deviceID string) {
	if r.recorder != nil {
		r.recorder.RecordOutcome(outcome, deviceID)
	}
}

func deviceOf(env Envelope) string {
	if env.DeviceID == nil {
		return ""
	}
	return *env.DeviceID
}

func (r *Relay) getLogger() Logger {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	return r.logger
}

// logInfo logs an info message if logger is set.
func (r *Relay) logInfo(msg string, keysAndValues ...any) {
	if logger := r.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (r *Relay) logWarn(msg string, keysAndValues ...any) {
	if logger := r.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logDebug logs a debug message if logger is set.
func (r *Relay) logDebug(msg string, keysAndValues ...any) {
	if logger := r.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
