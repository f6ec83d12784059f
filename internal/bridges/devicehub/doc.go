// Package devicehub relays device-hub notifications onto per-device MQTT topics.
//
// The device hub publishes every notification to a single control topic,
// dh/request, as a JSON envelope:
//
//	{
//	  "requestId": 42,
//	  "deviceId": "dev1",
//	  "notification": {
//	    "notification": "battery_low",
//	    "parameters": {"level": 5}
//	  }
//	}
//
// The relay republishes the notification's parameters, with the request
// identifier injected, on a topic derived from the envelope:
//
//	devices/dev1/notification/battery_low  {"level":5,"requestId":42}
//
// Envelopes without a deviceId or without a notification block are valid but
// produce no publish. Malformed envelopes are logged and dropped.
//
// # Components
//
//   - DecodeEnvelope / EncodePayload: the JSON codec
//   - Route: pure mapping from an Envelope to an OutboundMessage
//   - Relay: the connection.EventHandler that ties them to the broker session
//
// Every message on dh/request counts as traffic for the connection watchdog,
// including envelopes that fail to decode.
package devicehub
