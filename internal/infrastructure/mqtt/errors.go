package mqtt

import "errors"

// Sentinel errors; test with errors.Is. Paho's own errors are wrapped
// beneath them.
var (
	ErrNotConnected     = errors.New("mqtt: not connected")
	ErrConnectionFailed = errors.New("mqtt: connect failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrSubscribeFailed  = errors.New("mqtt: subscribe failed")
	ErrClosed           = errors.New("mqtt: session closed")

	// Option validation, reported before any network activity.
	ErrInvalidQoS       = errors.New("mqtt: QoS must be 0, 1 or 2")
	ErrInvalidTopic     = errors.New("mqtt: empty topic")
	ErrInvalidServerURL = errors.New("mqtt: invalid server URL")
)
