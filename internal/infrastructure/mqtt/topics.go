package mqtt

import (
	"fmt"
	"strings"
)

// Topics builds topic strings for the device-link tree under a common prefix.
//
// Topic structure:
//
//	{prefix}/device/{transport}/{address}/announce   - retained device presence (empty = gone)
//	{prefix}/device/{transport}/{address}/write/{endpoint}  - raw bytes to device
//	{prefix}/device/{transport}/{address}/notify/{endpoint} - raw bytes from device
//	{prefix}/system/status                           - server online/offline (retained, LWT)
//
// Transport and address segments come from the bridge that owns the
// physical link; they must not contain '/', '+', or '#'.
type Topics struct {
	// Prefix is the root topic segment (default "haptic").
	Prefix string
}

// prefix returns the configured prefix or the default.
func (t Topics) prefix() string {
	if t.Prefix == "" {
		return "haptic"
	}
	return t.Prefix
}

// SystemStatus returns the server status topic.
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}

// DeviceAnnounce returns the retained presence topic for one device.
func (t Topics) DeviceAnnounce(transport, address string) string {
	return fmt.Sprintf("%s/device/%s/%s/announce", t.prefix(), transport, address)
}

// DeviceAnnounceWildcard returns a filter matching all device announcements.
func (t Topics) DeviceAnnounceWildcard() string {
	return fmt.Sprintf("%s/device/+/+/announce", t.prefix())
}

// DeviceWrite returns the topic for raw bytes sent to a device endpoint.
func (t Topics) DeviceWrite(transport, address, endpoint string) string {
	return fmt.Sprintf("%s/device/%s/%s/write/%s", t.prefix(), transport, address, endpoint)
}

// DeviceNotify returns the topic for raw bytes received from a device endpoint.
func (t Topics) DeviceNotify(transport, address, endpoint string) string {
	return fmt.Sprintf("%s/device/%s/%s/notify/%s", t.prefix(), transport, address, endpoint)
}

// DeviceNotifyWildcard returns a filter matching all notify endpoints of one device.
func (t Topics) DeviceNotifyWildcard(transport, address string) string {
	return fmt.Sprintf("%s/device/%s/%s/notify/+", t.prefix(), transport, address)
}

// ParseAnnounceTopic extracts transport and address from an announce topic.
func (t Topics) ParseAnnounceTopic(topic string) (transport, address string, err error) {
	parts := strings.Split(topic, "/")
	// {prefix}/device/{transport}/{address}/announce
	if len(parts) != 5 || parts[0] != t.prefix() || parts[1] != "device" || parts[4] != "announce" {
		return "", "", fmt.Errorf("%w: not an announce topic: %s", ErrInvalidTopic, topic)
	}
	if parts[2] == "" || parts[3] == "" {
		return "", "", fmt.Errorf("%w: empty segment: %s", ErrInvalidTopic, topic)
	}
	return parts[2], parts[3], nil
}

// ParseNotifyTopic extracts transport, address, and endpoint from a notify topic.
func (t Topics) ParseNotifyTopic(topic string) (transport, address, endpoint string, err error) {
	parts := strings.Split(topic, "/")
	// {prefix}/device/{transport}/{address}/notify/{endpoint}
	if len(parts) != 6 || parts[0] != t.prefix() || parts[1] != "device" || parts[4] != "notify" {
		return "", "", "", fmt.Errorf("%w: not a notify topic: %s", ErrInvalidTopic, topic)
	}
	if parts[2] == "" || parts[3] == "" || parts[5] == "" {
		return "", "", "", fmt.Errorf("%w: empty segment: %s", ErrInvalidTopic, topic)
	}
	return parts[2], parts[3], parts[5], nil
}
