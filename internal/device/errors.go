package device

import "errors"

var (
	// ErrUnknownDevice indicates the device index was never registered.
	ErrUnknownDevice = errors.New("device: unknown device")

	// ErrDeviceNotConnected indicates the device is known but currently
	// unreachable.
	ErrDeviceNotConnected = errors.New("device: not connected")

	// ErrInvalidActuatorIndex indicates a command referenced an actuator
	// outside the device's capability set.
	ErrInvalidActuatorIndex = errors.New("device: invalid actuator index")

	// ErrInvalidSensorIndex indicates a request referenced a sensor
	// outside the device's capability set.
	ErrInvalidSensorIndex = errors.New("device: invalid sensor index")

	// ErrOutOfRange indicates a command value lies outside the actuator's
	// declared range.
	ErrOutOfRange = errors.New("device: value out of range")

	// ErrUnsupportedDevice indicates no vendor protocol matched the
	// discovered device.
	ErrUnsupportedDevice = errors.New("device: unsupported device")

	// ErrWriteFailed indicates a raw transport write failed.
	ErrWriteFailed = errors.New("device: transport write failed")

	// ErrScanFailed indicates a scanner could not start or stop.
	ErrScanFailed = errors.New("device: scan failed")
)
