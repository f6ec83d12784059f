package devicehub

import "fmt"

// Topic constants for the device-hub control channel.
const (
	// ControlFilter is the subscription filter for the device-hub topic tree.
	ControlFilter = "dh/#"

	// ControlTopic is the only inbound topic the relay acts on.
	ControlTopic = "dh/request"
)

// NotificationTopic returns the outbound topic for a device notification.
// Segments are joined verbatim: MQTT special characters in deviceID or name
// are not escaped.
//
// Example: NotificationTopic("dev1", "battery_low") returns
// "devices/dev1/notification/battery_low".
func NotificationTopic(deviceID, name string) string {
	return fmt.Sprintf("devices/%s/notification/%s", deviceID, name)
}

// IsControlTopic reports whether topic is the one the relay acts on.
func IsControlTopic(topic string) bool {
	return topic == ControlTopic
}
