package device

import "context"

// Protocol translates generic commands into vendor-specific raw writes
// and raw notifications back into generic sensor readings.
//
// A Protocol instance is owned by exactly one Device and holds that
// device's translation state (last-sent values for redundant-write
// suppression). It is never shared between devices. Callers serialize
// access; implementations need no internal locking.
type Protocol interface {
	// Name returns the protocol identifier ("lovense", "vorze", ...).
	Name() string

	// Capabilities returns the fixed capability set for the matched device.
	Capabilities() CapabilitySet

	// Translate converts a command into the raw writes that realize it.
	// It fails with ErrInvalidActuatorIndex or ErrOutOfRange for caller
	// errors; those are never retried. A write whose value equals the
	// last sent value for that actuator may be suppressed (empty result).
	Translate(cmd Command) ([]RawWrite, error)

	// Interpret converts a raw notification from the device into generic
	// sensor readings. Notifications that carry no reading return an
	// empty slice.
	Interpret(endpoint string, data []byte) ([]Reading, error)

	// SensorQuery returns the raw writes that solicit an on-demand
	// reading from the given sensor. The reading itself arrives later as
	// a notification handled by Interpret.
	SensorQuery(sensorIndex uint32) ([]RawWrite, error)

	// Stop returns the raw writes that halt every actuator, independent
	// of current translation state. Stop always writes; suppression does
	// not apply.
	Stop() []RawWrite
}

// Writer sends raw bytes to one device over its transport. Implemented
// by the transport link that discovered the device.
type Writer interface {
	// Write sends data to the named endpoint. Blocks until the transport
	// accepts the write or ctx is done.
	Write(ctx context.Context, endpoint string, data []byte) error

	// Close releases the transport link.
	Close() error
}

// ProtocolRegistry selects a vendor protocol for a discovered device by
// matching its identity and probe against known vendor signatures.
//
// Match returns a fresh Protocol instance for the device, or
// ErrUnsupportedDevice when nothing matches.
type ProtocolRegistry interface {
	Match(identity Identity, probe Probe) (Protocol, error)
}

// ScanEventKind enumerates scanner event types.
type ScanEventKind int

const (
	// ScanDeviceFound reports a device appearing on the transport.
	ScanDeviceFound ScanEventKind = iota
	// ScanDeviceLost reports a device disappearing.
	ScanDeviceLost
	// ScanFinished reports the scanner completing a scan pass.
	ScanFinished
)

// ScanEvent is one notification from a transport scanner.
type ScanEvent struct {
	Kind     ScanEventKind
	Identity Identity
	Probe    Probe

	// Open establishes the raw link to a found device. Set only for
	// ScanDeviceFound.
	Open func(ctx context.Context) (Writer, error)
}

// Scanner is the per-transport discovery collaborator. Implementations
// must be restartable (stop then start again) and tolerate StartScanning
// while already scanning.
type Scanner interface {
	// Name identifies the transport ("mqtt", "ble", ...).
	Name() string

	// StartScanning begins discovery. Idempotent.
	StartScanning(ctx context.Context) error

	// StopScanning halts discovery. Idempotent.
	StopScanning(ctx context.Context) error

	// Events returns the stream of scan notifications. The channel is
	// closed when the scanner shuts down permanently.
	Events() <-chan ScanEvent
}
