package devicehub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Envelope field names on the wire.
const (
	fieldRequestID    = "requestId"
	fieldDeviceID     = "deviceId"
	fieldNotification = "notification"
	fieldName         = "notification" // name key inside the notification block
	fieldParameters   = "parameters"
)

// Envelope is a decoded device-hub control message.
type Envelope struct {
	// RequestID identifies the request. Always present after a successful decode.
	RequestID int64

	// DeviceID is nil when the envelope carries no deviceId.
	DeviceID *string

	// Notification is nil when the envelope carries no notification block.
	Notification *Notification
}

// Notification is the notification block of an Envelope.
type Notification struct {
	Name string

	// Parameters holds the notification's parameters. Numbers are kept as
	// json.Number so they re-encode with their original text. Never nil
	// after a successful decode.
	Parameters map[string]any
}

// DecodeEnvelope parses a raw control-topic payload.
//
// The payload must be a JSON object with an integral requestId. deviceId and
// notification are optional; a JSON null counts as absent. A notification
// block must carry a string name; its parameters are optional.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if fields == nil {
		return Envelope{}, fmt.Errorf("%w: payload is null", ErrMalformedEnvelope)
	}

	var env Envelope

	rawID, ok := fields[fieldRequestID]
	if !ok || isNull(rawID) {
		return Envelope{}, ErrMissingRequestID
	}
	id, err := parseRequestID(rawID)
	if err != nil {
		return Envelope{}, err
	}
	env.RequestID = id

	if rawDevice, ok := fields[fieldDeviceID]; ok && !isNull(rawDevice) {
		var deviceID string
		if err := json.Unmarshal(rawDevice, &deviceID); err != nil {
			return Envelope{}, fmt.Errorf("%w: deviceId must be a string", ErrMalformedEnvelope)
		}
		env.DeviceID = &deviceID
	}

	if rawNotification, ok := fields[fieldNotification]; ok && !isNull(rawNotification) {
		n, err := decodeNotification(rawNotification)
		if err != nil {
			return Envelope{}, err
		}
		env.Notification = n
	}

	return env, nil
}

func decodeNotification(raw json.RawMessage) (*Notification, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: notification must be an object", ErrMalformedEnvelope)
	}

	n := &Notification{Parameters: map[string]any{}}

	rawName, ok := fields[fieldName]
	if !ok || isNull(rawName) {
		return nil, fmt.Errorf("%w: notification has no name", ErrMalformedEnvelope)
	}
	if err := json.Unmarshal(rawName, &n.Name); err != nil {
		return nil, fmt.Errorf("%w: notification name must be a string", ErrMalformedEnvelope)
	}

	if rawParams, ok := fields[fieldParameters]; ok && !isNull(rawParams) {
		params, err := decodeParameters(rawParams)
		if err != nil {
			return nil, err
		}
		n.Parameters = params
	}

	return n, nil
}

// decodeParameters decodes a JSON object keeping numbers as json.Number.
func decodeParameters(raw json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var params map[string]any
	if err := dec.Decode(&params); err != nil {
		return nil, fmt.Errorf("%w: parameters must be an object", ErrMalformedEnvelope)
	}
	if params == nil {
		params = map[string]any{}
	}
	return params, nil
}

// parseRequestID accepts any JSON number with an integral value that fits
// in int64, e.g. 42, 42.0 or 4.2e1. Strings are rejected.
func parseRequestID(raw json.RawMessage) (int64, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidRequestID, err)
	}

	n, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("%w: got %s", ErrInvalidRequestID, string(raw))
	}

	if id, err := n.Int64(); err == nil {
		return id, nil
	}

	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: got %s", ErrInvalidRequestID, n.String())
	}
	return int64(f), nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// EncodePayload builds the outbound payload: a copy of parameters with
// requestID accumulated under "requestId". Keys are sorted and HTML
// characters are not escaped. parameters is not modified.
func EncodePayload(parameters map[string]any, requestID int64) ([]byte, error) {
	out := make(map[string]any, len(parameters)+1)
	for k, v := range parameters {
		out[k] = v
	}
	Accumulate(out, fieldRequestID, requestID)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Accumulate merges value into m[key] without discarding what is there:
//   - key absent: m[key] = value
//   - existing value is a list: value is appended to a copy of the list
//   - otherwise: m[key] = [existing, value]
//
// An explicit null counts as an existing value.
func Accumulate(m map[string]any, key string, value any) {
	existing, ok := m[key]
	if !ok {
		m[key] = value
		return
	}

	if list, isList := existing.([]any); isList {
		merged := make([]any, 0, len(list)+1)
		merged = append(merged, list...)
		m[key] = append(merged, value)
		return
	}

	m[key] = []any{existing, value}
}
