package connection

import "errors"

// Domain errors for the connection manager.
var (
	// ErrNotConnected is returned by Publish when no session is connected.
	ErrNotConnected = errors.New("connection: not connected")

	// ErrConnectFailed wraps a failed connect attempt.
	ErrConnectFailed = errors.New("connection: connect failed")

	// ErrSubscribeFailed wraps a failed resubscribe after connect.
	ErrSubscribeFailed = errors.New("connection: subscribe failed")

	// ErrPublishFailed wraps a transport error during publish.
	ErrPublishFailed = errors.New("connection: publish failed")

	// ErrWatchdogTimeout is the loss cause when the control topic stays silent.
	ErrWatchdogTimeout = errors.New("connection: watchdog timeout")

	// ErrTransportDisconnected is the loss cause when the transport reports
	// not-connected during a health check.
	ErrTransportDisconnected = errors.New("connection: transport reports disconnected")

	// ErrReconnectRequested is the cause used when Reconnect is called with nil.
	ErrReconnectRequested = errors.New("connection: reconnect requested")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("connection: manager already running")
)
