// Package mqttlink implements the MQTT transport for device discovery
// and raw I/O. Hardware bridges publish retained announcements under the
// device announce tree; the link turns those into scan events, publishes
// raw writes to per-endpoint write topics, and routes notify-topic bytes
// back to the device manager.
package mqttlink
