// Package mqtt provides the broker session used by the relay.
//
// Client wraps paho.mqtt.golang and implements connection.Session. Each
// Client is a single session: clean session, in-memory store, no library
// reconnect. When the link drops, the Client reports the loss through
// Options.OnConnectionLost and the connection manager builds a replacement.
//
// # Security Considerations
//
//   - Use an ssl:// (or tls://, mqtts://) server URL in production; TLS 1.2 is the minimum
//   - Credentials are sent only when a username is configured
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client := mqtt.NewClient(mqtt.Options{
//	    ServerURL:        "tcp://broker:1883",
//	    ClientID:         "dh2mqtt-01",
//	    QoS:              1,
//	    OnConnectionLost: onLost,
//	})
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err := client.Subscribe("dh/#", func(topic string, payload []byte) {
//	    log.Printf("Received: %s = %s", topic, payload)
//	})
package mqtt
