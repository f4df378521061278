package device

import "time"

// Identity identifies a physical device on its transport. Immutable once
// a Device is created; the transport/address pair is the dedup key, so
// repeated discovery of an already-registered device is a no-op.
type Identity struct {
	// Transport is the link kind the device is reachable over ("mqtt",
	// "ble", "serial", ...).
	Transport string

	// Address is the vendor-assigned address or handle on that transport.
	Address string

	// Name is the advertised display name.
	Name string
}

// Key returns the dedup key for this identity.
func (id Identity) Key() string {
	return id.Transport + "/" + id.Address
}

// Probe carries what a transport scanner learned about a device before
// any protocol is attached: the advertised name plus service signatures
// (BLE service UUIDs, USB ids, announce metadata). Protocol matching
// runs against this.
type Probe struct {
	Name     string
	Services []string
}

// ActuatorKind enumerates the generic actuator classes.
type ActuatorKind string

const (
	ActuatorVibrate  ActuatorKind = "vibrate"
	ActuatorRotate   ActuatorKind = "rotate"
	ActuatorLinear   ActuatorKind = "linear"
	ActuatorRawWrite ActuatorKind = "raw_write"
)

// SensorKind enumerates the generic sensor classes.
type SensorKind string

const (
	SensorBattery  SensorKind = "battery"
	SensorRSSI     SensorKind = "rssi"
	SensorPressure SensorKind = "pressure"
)

// Actuator describes one controllable output of a device.
type Actuator struct {
	Kind  ActuatorKind
	Index uint32
	Min   float64
	Max   float64
}

// Sensor describes one readable input of a device.
type Sensor struct {
	Kind  SensorKind
	Index uint32
	Min   float64
	Max   float64
}

// CapabilitySet is the fixed set of actuators and sensors a device
// exposes. Derived from the matched protocol at registration; never
// mutated afterward.
type CapabilitySet struct {
	Actuators []Actuator
	Sensors   []Sensor
}

// Actuator returns the descriptor for the given index, if present.
func (cs CapabilitySet) Actuator(index uint32) (Actuator, bool) {
	for _, a := range cs.Actuators {
		if a.Index == index {
			return a, true
		}
	}
	return Actuator{}, false
}

// Sensor returns the descriptor for the given index, if present.
func (cs CapabilitySet) Sensor(index uint32) (Sensor, bool) {
	for _, s := range cs.Sensors {
		if s.Index == index {
			return s, true
		}
	}
	return Sensor{}, false
}

// ActuatorCommand targets one actuator within a Command.
//
// Level is the target intensity (or position for linear moves) and must
// lie within the actuator's declared range. Clockwise selects rotation
// direction; Duration applies to linear moves only.
type ActuatorCommand struct {
	Index     uint32
	Kind      ActuatorKind
	Level     float64
	Clockwise bool
	Duration  time.Duration
}

// RawWrite is a protocol-produced (or client-requested) write of raw
// bytes to a named device endpoint.
type RawWrite struct {
	Endpoint string
	Data     []byte
}

// Command requests actuation on one device. Exactly one of Actuators or
// Raw is populated.
type Command struct {
	DeviceIndex uint32
	Actuators   []ActuatorCommand
	Raw         *RawWrite
}

// Reading is one generic sensor reading produced by a protocol's
// interpretation of a raw notification.
type Reading struct {
	DeviceIndex uint32
	SensorIndex uint32
	Kind        SensorKind
	Values      []float64
}
