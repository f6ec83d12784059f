package devicehub

// OutboundMessage is a notification ready to publish.
type OutboundMessage struct {
	Topic   string
	Payload []byte

	// DeliveryID is the request identifier reduced to the 16-bit range of
	// MQTT packet identifiers (modulo 65536).
	DeliveryID uint16

	RequestID    int64
	DeviceID     string
	Notification string
}

// Route maps an envelope to the message to publish. It returns nil, nil when
// the envelope lacks a deviceId or a notification block; there is nothing to
// relay in that case.
//
// Route has no side effects: the same envelope always yields the same topic
// and byte-identical payload.
func Route(env Envelope) (*OutboundMessage, error) {
	if env.DeviceID == nil || env.Notification == nil {
		return nil, nil
	}

	payload, err := EncodePayload(env.Notification.Parameters, env.RequestID)
	if err != nil {
		return nil, err
	}

	return &OutboundMessage{
		Topic:        NotificationTopic(*env.DeviceID, env.Notification.Name),
		Payload:      payload,
		DeliveryID:   DeliveryID(env.RequestID),
		RequestID:    env.RequestID,
		DeviceID:     *env.DeviceID,
		Notification: env.Notification.Name,
	}, nil
}

// DeliveryID wraps a request identifier into the transport's identifier range.
// Negative identifiers wrap the same way (two's complement truncation).
func DeliveryID(requestID int64) uint16 {
	return uint16(requestID)
}
