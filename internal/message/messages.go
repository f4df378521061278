package message

// Kind identifies the type of a protocol message.
type Kind string

// Message kinds recognized by the session layer.
//
// Unknown kinds decode to KindUnrecognized so a single unexpected message
// can be rejected without failing the whole decode.
const (
	KindHandshakeRequest  Kind = "handshake_request"
	KindHandshakeReply    Kind = "handshake_reply"
	KindPing              Kind = "ping"
	KindDeviceListRequest Kind = "device_list_request"
	KindDeviceListReply   Kind = "device_list_reply"
	KindDeviceAdded       Kind = "device_added"
	KindDeviceRemoved     Kind = "device_removed"
	KindDeviceCommand     Kind = "device_command"
	KindCommandResult     Kind = "command_result"
	KindSensorRequest     Kind = "sensor_request"
	KindSensorReading     Kind = "sensor_reading"
	KindStopDeviceRequest Kind = "stop_device_request"
	KindStopAllRequest    Kind = "stop_all_request"
	KindStartScanning     Kind = "start_scanning"
	KindStopScanning      Kind = "stop_scanning"
	KindScanningFinished  Kind = "scanning_finished"
	KindOk                Kind = "ok"
	KindError             Kind = "error"
	KindUnrecognized      Kind = "unrecognized"
)

// EventID is the reserved message id for unsolicited server-to-client
// messages (events, broadcasts). Ids greater than 0 correlate a reply
// to its originating request.
const EventID uint32 = 0

// Message is the protocol envelope: an id for correlation, a kind, and a
// kind-specific payload. Payload is one of the typed structs below (or nil
// for kinds that carry none).
type Message struct {
	ID      uint32
	Kind    Kind
	Payload any
}

// HandshakeRequest opens a session. The client declares its name and the
// inclusive range of schema versions it speaks.
type HandshakeRequest struct {
	ClientName string `json:"client_name"`
	VersionMin uint32 `json:"version_min"`
	VersionMax uint32 `json:"version_max"`
}

// HandshakeReply completes a successful handshake. MaxPingTime is the
// liveness deadline in milliseconds; 0 means the server does not require
// pings.
type HandshakeReply struct {
	ServerName  string `json:"server_name"`
	Version     uint32 `json:"version"`
	MaxPingTime uint32 `json:"max_ping_time"`
}

// ActuatorInfo describes one actuator in a device listing.
type ActuatorInfo struct {
	Index uint32  `json:"index"`
	Kind  string  `json:"kind"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// SensorInfo describes one sensor in a device listing.
type SensorInfo struct {
	Index uint32  `json:"index"`
	Kind  string  `json:"kind"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// DeviceInfo describes one device in a listing or lifecycle event.
type DeviceInfo struct {
	Index     uint32         `json:"index"`
	Name      string         `json:"name"`
	Actuators []ActuatorInfo `json:"actuators,omitempty"`
	Sensors   []SensorInfo   `json:"sensors,omitempty"`
}

// DeviceListReply enumerates currently-connected devices.
type DeviceListReply struct {
	Devices []DeviceInfo `json:"devices"`
}

// DeviceAdded announces a newly-registered device (unsolicited, id 0).
type DeviceAdded struct {
	Device DeviceInfo `json:"device"`
}

// DeviceRemoved announces a device going away (unsolicited, id 0).
type DeviceRemoved struct {
	Index uint32 `json:"index"`
}

// ActuatorCommand targets one actuator within a DeviceCommand.
//
// Level applies to vibrate and rotate (rotate uses Clockwise for
// direction). Linear moves additionally carry a duration and a target
// position in Level.
type ActuatorCommand struct {
	Index      uint32  `json:"index"`
	Kind       string  `json:"kind"`
	Level      float64 `json:"level"`
	Clockwise  *bool   `json:"clockwise,omitempty"`
	DurationMs uint32  `json:"duration_ms,omitempty"`
}

// RawWrite carries raw bytes for a named device endpoint.
type RawWrite struct {
	Endpoint string `json:"endpoint"`
	Data     []byte `json:"data"`
}

// DeviceCommand requests actuation on one device. Exactly one of
// Actuators or Raw should be populated.
type DeviceCommand struct {
	DeviceIndex uint32            `json:"device_index"`
	Actuators   []ActuatorCommand `json:"actuators,omitempty"`
	Raw         *RawWrite         `json:"raw,omitempty"`
}

// CommandResult is the correlated reply to a successful DeviceCommand.
type CommandResult struct {
	DeviceIndex uint32 `json:"device_index"`
}

// SensorRequest asks for an on-demand reading from one sensor.
type SensorRequest struct {
	DeviceIndex uint32 `json:"device_index"`
	SensorIndex uint32 `json:"sensor_index"`
}

// SensorReading carries sensor data, either as the correlated reply to a
// SensorRequest or unsolicited (id 0) for subscribed streams.
type SensorReading struct {
	DeviceIndex uint32    `json:"device_index"`
	SensorIndex uint32    `json:"sensor_index"`
	Kind        string    `json:"kind"`
	Values      []float64 `json:"values"`
}

// StopDeviceRequest stops all actuators on a single device.
type StopDeviceRequest struct {
	DeviceIndex uint32 `json:"device_index"`
}

// ErrorCode classifies an Error message.
type ErrorCode string

const (
	// ErrorCodeUnknown covers failures with no more specific class.
	ErrorCodeUnknown ErrorCode = "unknown"
	// ErrorCodeHandshake covers handshake-order and version failures.
	ErrorCodeHandshake ErrorCode = "handshake"
	// ErrorCodePing covers ping-timeout failures.
	ErrorCodePing ErrorCode = "ping"
	// ErrorCodeMessage covers per-message protocol violations.
	ErrorCodeMessage ErrorCode = "message"
	// ErrorCodeDevice covers device-level command failures.
	ErrorCodeDevice ErrorCode = "device"
)

// Error reports a failure to the client. When the failure was caused by a
// specific request, the envelope id correlates it; otherwise id is 0.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Unrecognized preserves the raw payload of a message whose kind the
// decoder did not recognize. WireKind is the kind string as received.
type Unrecognized struct {
	WireKind string `json:"-"`
	Raw      []byte `json:"-"`
}
