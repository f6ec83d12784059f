package devicehub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope_Full(t *testing.T) {
	raw := `{"requestId":42,"deviceId":"dev1","notification":{"notification":"battery_low","parameters":{"level":5}}}`

	env, err := DecodeEnvelope([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, int64(42), env.RequestID)
	require.NotNil(t, env.DeviceID)
	assert.Equal(t, "dev1", *env.DeviceID)
	require.NotNil(t, env.Notification)
	assert.Equal(t, "battery_low", env.Notification.Name)
	assert.Equal(t, map[string]any{"level": json.Number("5")}, env.Notification.Parameters)
}

func TestDecodeEnvelope_Optional(t *testing.T) {
	tests := []struct {
		name             string
		raw              string
		wantDevice       bool
		wantNotification bool
		wantParams       map[string]any
	}{
		{
			name: "request id only",
			raw:  `{"requestId":7}`,
		},
		{
			name: "null fields count as absent",
			raw:  `{"requestId":7,"deviceId":null,"notification":null}`,
		},
		{
			name:       "device without notification",
			raw:        `{"requestId":7,"deviceId":"dev1"}`,
			wantDevice: true,
		},
		{
			name:             "notification without parameters",
			raw:              `{"requestId":7,"notification":{"notification":"ping"}}`,
			wantNotification: true,
			wantParams:       map[string]any{},
		},
		{
			name:             "null parameters",
			raw:              `{"requestId":7,"notification":{"notification":"ping","parameters":null}}`,
			wantNotification: true,
			wantParams:       map[string]any{},
		},
		{
			name:       "unknown fields ignored",
			raw:        `{"requestId":7,"deviceId":"d","timestamp":"2024-01-01T00:00:00Z"}`,
			wantDevice: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := DecodeEnvelope([]byte(tt.raw))
			require.NoError(t, err)

			assert.Equal(t, int64(7), env.RequestID)
			assert.Equal(t, tt.wantDevice, env.DeviceID != nil)
			assert.Equal(t, tt.wantNotification, env.Notification != nil)
			if tt.wantNotification {
				assert.Equal(t, tt.wantParams, env.Notification.Parameters)
			}
		})
	}
}

func TestDecodeEnvelope_RequestID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int64
		wantErr error
	}{
		{name: "integer", raw: `{"requestId":42}`, want: 42},
		{name: "negative", raw: `{"requestId":-3}`, want: -3},
		{name: "integral float", raw: `{"requestId":42.0}`, want: 42},
		{name: "exponent", raw: `{"requestId":4.2e1}`, want: 42},
		{name: "large", raw: `{"requestId":9007199254740993}`, want: 9007199254740993},
		{name: "missing", raw: `{"deviceId":"d"}`, wantErr: ErrMissingRequestID},
		{name: "null", raw: `{"requestId":null}`, wantErr: ErrMissingRequestID},
		{name: "fraction", raw: `{"requestId":4.5}`, wantErr: ErrInvalidRequestID},
		{name: "string", raw: `{"requestId":"42"}`, wantErr: ErrInvalidRequestID},
		{name: "bool", raw: `{"requestId":true}`, wantErr: ErrInvalidRequestID},
		{name: "object", raw: `{"requestId":{}}`, wantErr: ErrInvalidRequestID},
		{name: "overflow", raw: `{"requestId":1e30}`, wantErr: ErrInvalidRequestID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := DecodeEnvelope([]byte(tt.raw))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, env.RequestID)
		})
	}
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ``},
		{name: "not json", raw: `battery low`},
		{name: "truncated", raw: `{"requestId":42`},
		{name: "array", raw: `[{"requestId":42}]`},
		{name: "string", raw: `"hello"`},
		{name: "top-level null", raw: `null`},
		{name: "trailing data", raw: `{"requestId":1} {"requestId":2}`},
		{name: "device id not string", raw: `{"requestId":1,"deviceId":5}`},
		{name: "notification not object", raw: `{"requestId":1,"notification":"battery_low"}`},
		{name: "notification without name", raw: `{"requestId":1,"notification":{"parameters":{}}}`},
		{name: "notification name not string", raw: `{"requestId":1,"notification":{"notification":3}}`},
		{name: "parameters not object", raw: `{"requestId":1,"notification":{"notification":"n","parameters":[1,2]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(tt.raw))
			assert.ErrorIs(t, err, ErrMalformedEnvelope)
		})
	}
}

func TestEncodePayload(t *testing.T) {
	tests := []struct {
		name      string
		params    map[string]any
		requestID int64
		want      string
	}{
		{
			name:      "injects request id",
			params:    map[string]any{"level": json.Number("5")},
			requestID: 42,
			want:      `{"level":5,"requestId":42}`,
		},
		{
			name:      "empty parameters",
			params:    map[string]any{},
			requestID: 7,
			want:      `{"requestId":7}`,
		},
		{
			name:      "nil parameters",
			params:    nil,
			requestID: 7,
			want:      `{"requestId":7}`,
		},
		{
			name:      "existing scalar becomes list",
			params:    map[string]any{"requestId": json.Number("1")},
			requestID: 9,
			want:      `{"requestId":[1,9]}`,
		},
		{
			name:      "existing list is appended",
			params:    map[string]any{"requestId": []any{json.Number("1"), json.Number("2")}},
			requestID: 9,
			want:      `{"requestId":[1,2,9]}`,
		},
		{
			name:      "existing null is kept",
			params:    map[string]any{"requestId": nil},
			requestID: 9,
			want:      `{"requestId":[null,9]}`,
		},
		{
			name:      "sorted keys",
			params:    map[string]any{"zeta": true, "alpha": "a"},
			requestID: 1,
			want:      `{"alpha":"a","requestId":1,"zeta":true}`,
		},
		{
			name:      "number text preserved",
			params:    map[string]any{"temp": json.Number("21.50"), "big": json.Number("12345678901234567890")},
			requestID: 1,
			want:      `{"big":12345678901234567890,"requestId":1,"temp":21.50}`,
		},
		{
			name:      "html not escaped",
			params:    map[string]any{"msg": "<b>a & b</b>"},
			requestID: 1,
			want:      `{"msg":"<b>a & b</b>","requestId":1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodePayload(tt.params, tt.requestID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestEncodePayload_DoesNotMutateInput(t *testing.T) {
	list := []any{json.Number("1")}
	params := map[string]any{"requestId": list, "level": json.Number("5")}

	_, err := EncodePayload(params, 9)
	require.NoError(t, err)

	assert.Len(t, params, 2)
	assert.Equal(t, []any{json.Number("1")}, params["requestId"])
	assert.Len(t, list, 1)
}

func TestEncodePayload_RoundTripFromDecode(t *testing.T) {
	raw := `{"requestId":3,"deviceId":"d","notification":{"notification":"n","parameters":{"nested":{"b":[1,2.0],"a":null},"x":"y"}}}`

	env, err := DecodeEnvelope([]byte(raw))
	require.NoError(t, err)

	got, err := EncodePayload(env.Notification.Parameters, env.RequestID)
	require.NoError(t, err)
	assert.Equal(t, `{"nested":{"a":null,"b":[1,2.0]},"requestId":3,"x":"y"}`, string(got))
}

func TestAccumulate(t *testing.T) {
	m := map[string]any{}

	Accumulate(m, "k", 1)
	assert.Equal(t, 1, m["k"])

	Accumulate(m, "k", 2)
	assert.Equal(t, []any{1, 2}, m["k"])

	Accumulate(m, "k", 3)
	assert.Equal(t, []any{1, 2, 3}, m["k"])
}
