package devicehub

import "errors"

// Domain errors for the device-hub relay.
var (
	// ErrMalformedEnvelope is returned when the payload is not a JSON object
	// or a present field has the wrong type.
	ErrMalformedEnvelope = errors.New("devicehub: malformed envelope")

	// ErrMissingRequestID is returned when the envelope has no requestId.
	ErrMissingRequestID = errors.New("devicehub: missing requestId")

	// ErrInvalidRequestID is returned when requestId is not an integer.
	ErrInvalidRequestID = errors.New("devicehub: requestId is not an integer")
)
