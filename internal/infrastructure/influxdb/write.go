package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementRelayMessages   = "relay_messages"
	measurementRelayConnection = "relay_connection"
)

// WriteRelayOutcome records what the relay did with one arrived message.
// deviceID is added as a tag only when known.
//
// Example:
//
//	client.WriteRelayOutcome("relayed", "dev1")
//	client.WriteRelayOutcome("ignored", "")
func (c *Client) WriteRelayOutcome(outcome, deviceID string) {
	tags := map[string]string{
		"outcome": outcome,
	}
	if deviceID != "" {
		tags["device_id"] = deviceID
	}

	c.WritePoint(measurementRelayMessages, tags, map[string]interface{}{
		"count": 1,
	})
}

// WriteConnectionState records a broker connection state change.
func (c *Client) WriteConnectionState(from, to, reason string, at time.Time) {
	c.WritePointWithTime(measurementRelayConnection,
		map[string]string{
			"state": to,
		},
		map[string]interface{}{
			"from":   from,
			"reason": reason,
		},
		at,
	)
}

// WritePoint writes a point stamped with the current time.
// The write is non-blocking; points are batched and sent asynchronously.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a point with a specific timestamp.
// A zero timestamp is replaced with the current time.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	// Held so Close cannot release the write API mid-write.
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.influx == nil || c.closed {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
