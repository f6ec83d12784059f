package connection

import (
	"context"
	"time"
)

// State is the lifecycle state of the broker session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the lower-case state name used in logs and the journal.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Session is a single live transport connection to the broker.
// A Session is never reused after Close; the Manager builds a new one for
// every connect attempt.
type Session interface {
	// Connect establishes the transport session. It blocks until the broker
	// acknowledges, the transport gives up, or ctx is cancelled.
	Connect(ctx context.Context) error

	// Subscribe registers handler for every message matching filter.
	Subscribe(filter string, handler func(topic string, payload []byte)) error

	// Publish sends payload to topic. deliveryID is the caller's identifier
	// for the message, already reduced to the transport's 16-bit range.
	Publish(topic string, payload []byte, deliveryID uint16) error

	// IsConnected reports the transport's own view of the connection.
	IsConnected() bool

	// Close disconnects and releases the session. Safe to call more than once.
	Close()
}

// SessionFactory builds a fresh, unconnected session. The session must call
// onLost when the transport reports that an established connection dropped.
type SessionFactory func(onLost func(err error)) Session

// EventHandler receives the session's events. It mirrors the transport's
// callback surface: one call per arrived message, one per reported loss.
type EventHandler interface {
	MessageArrived(topic string, payload []byte)
	ConnectionLost(err error)
}

// Transition records a change of State.
type Transition struct {
	From   State
	To     State
	Reason error
	At     time.Time
}

// Stats is a snapshot of the manager's counters.
type Stats struct {
	State            State
	Connects         uint64
	ConnectionLosses uint64
	WatchdogTrips    uint64
	FailedAttempts   uint64
	Discarded        uint64 // rejected by Config.Accept
	IdleTicks        int64
}

// Logger defines the logging interface for the manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
