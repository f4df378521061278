// Package mqtt provides the broker client used by the MQTT device link.
//
// It wraps paho.mqtt.golang with connection management, automatic
// reconnection, subscription restoration, and panic-safe message handlers.
// The Topics type builds the device-link topic tree (device announcements,
// raw endpoint writes, notify streams) plus the retained system status
// topic used for Last Will and Testament.
//
// All client methods are safe for concurrent use.
package mqtt
