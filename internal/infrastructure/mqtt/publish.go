package mqtt

import "fmt"

// maxPayloadSize is the largest payload we will publish (1 MB).
// Raw device writes are tiny; this guards against programming errors.
const maxPayloadSize = 1024 * 1024

// Publish sends a message to the specified topic.
//
// QoS is taken from config. The call blocks until the broker acknowledges
// or the publish timeout elapses.
func (c *Client) Publish(topic string, payload []byte) error {
	return c.publish(topic, payload, false)
}

// PublishRetained sends a retained message to the specified topic.
//
// The broker stores the message and delivers it to future subscribers.
// Used for the system status topic.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.publish(topic, payload, true)
}

func (c *Client) publish(topic string, payload []byte, retained bool) error {
	if topic == "" {
		return fmt.Errorf("%w: empty topic", ErrInvalidTopic)
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, byte(c.cfg.QoS), retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout publishing to %s", ErrPublishFailed, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}

	return nil
}
