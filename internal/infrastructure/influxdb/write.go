package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSensorReading records a sensor reading reported by a device.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteSensorReading(3, "battery", 0, 85)
func (c *Client) WriteSensorReading(deviceIndex uint32, sensorKind string, sensorIndex uint32, value float64) {
	c.WritePoint(
		"sensor_readings",
		map[string]string{
			"device_index": strconv.FormatUint(uint64(deviceIndex), 10),
			"sensor":       sensorKind,
			"sensor_index": strconv.FormatUint(uint64(sensorIndex), 10),
		},
		map[string]interface{}{
			"value": value,
		},
	)
}

// WriteActuatorLevel records the level dispatched to a device actuator.
//
// Useful for reviewing command throughput and intensity profiles.
func (c *Client) WriteActuatorLevel(deviceIndex uint32, actuatorKind string, actuatorIndex uint32, level float64) {
	c.WritePoint(
		"actuator_levels",
		map[string]string{
			"device_index":   strconv.FormatUint(uint64(deviceIndex), 10),
			"actuator":       actuatorKind,
			"actuator_index": strconv.FormatUint(uint64(actuatorIndex), 10),
		},
		map[string]interface{}{
			"level": level,
		},
	)
}

// WritePoint writes a point with full control over tags and fields.
//
// Tags are indexed and should stay low cardinality; fields carry the data.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
