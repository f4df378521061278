package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Device is one registered hardware device: its identity, its matched
// protocol instance, and its transport writer.
//
// The per-device mutex serializes translate+write so commands for one
// device never interleave at the transport level. Commands for different
// devices proceed concurrently; only the Manager's registry lock is ever
// held across devices, and never during a write.
type Device struct {
	index    uint32
	identity Identity
	protocol Protocol
	caps     CapabilitySet

	mu          sync.Mutex
	displayName string
	writer      Writer
	connected   bool
}

// Index returns the device's registry index. Indices are allocated
// monotonically and never reassigned to a different identity.
func (d *Device) Index() uint32 {
	return d.index
}

// Identity returns the device's immutable identity.
func (d *Device) Identity() Identity {
	return d.identity
}

// Name returns the user-facing name: the assigned display name when one
// is set, otherwise the advertised name.
func (d *Device) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.displayName != "" {
		return d.displayName
	}
	return d.identity.Name
}

// setDisplayName assigns the user-facing display name.
func (d *Device) setDisplayName(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.displayName = name
}

// ProtocolName returns the name of the matched vendor protocol.
func (d *Device) ProtocolName() string {
	return d.protocol.Name()
}

// Capabilities returns the device's fixed capability set.
func (d *Device) Capabilities() CapabilitySet {
	return d.caps
}

// Connected reports whether the device is currently reachable.
func (d *Device) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// dispatch translates the command and performs the resulting raw writes.
//
// Held under the device mutex for the full translate+write span: the
// protocol's suppression state stays consistent with what actually
// reached the transport.
func (d *Device) dispatch(ctx context.Context, cmd Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return fmt.Errorf("%w: %s", ErrDeviceNotConnected, d.identity.Key())
	}

	writes, err := d.protocol.Translate(cmd)
	if err != nil {
		return err
	}

	for _, w := range writes {
		if err := d.writer.Write(ctx, w.Endpoint, w.Data); err != nil {
			return fmt.Errorf("%w: %s endpoint %s: %w", ErrWriteFailed, d.identity.Key(), w.Endpoint, err)
		}
	}

	return nil
}

// stop issues the protocol's stop writes to every actuator. A failed
// write does not abort the remaining writes; all failures are aggregated.
func (d *Device) stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	var errs []error
	for _, w := range d.protocol.Stop() {
		if err := d.writer.Write(ctx, w.Endpoint, w.Data); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s endpoint %s: %w", ErrWriteFailed, d.identity.Key(), w.Endpoint, err))
		}
	}
	return errors.Join(errs...)
}

// sensorQuery solicits an on-demand reading; the reading arrives later
// as a notification.
func (d *Device) sensorQuery(ctx context.Context, sensorIndex uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return fmt.Errorf("%w: %s", ErrDeviceNotConnected, d.identity.Key())
	}

	writes, err := d.protocol.SensorQuery(sensorIndex)
	if err != nil {
		return err
	}

	for _, w := range writes {
		if err := d.writer.Write(ctx, w.Endpoint, w.Data); err != nil {
			return fmt.Errorf("%w: %s endpoint %s: %w", ErrWriteFailed, d.identity.Key(), w.Endpoint, err)
		}
	}

	return nil
}

// interpret converts a raw notification into readings stamped with this
// device's index. Held under the device mutex: the protocol contract
// promises serialized access, and a parser carrying rx state must not
// race the suppression state Translate touches.
func (d *Device) interpret(endpoint string, data []byte) ([]Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	readings, err := d.protocol.Interpret(endpoint, data)
	if err != nil {
		return nil, err
	}
	for i := range readings {
		readings[i].DeviceIndex = d.index
	}
	return readings, nil
}

// markDisconnected closes the writer and flags the device unreachable.
// The Device stays in the registry as known-but-inactive. It reports
// whether this call performed the transition, so concurrent removals
// announce the disconnect exactly once.
func (d *Device) markDisconnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return false
	}
	d.connected = false
	if d.writer != nil {
		d.writer.Close() //nolint:errcheck // Best effort on teardown
		d.writer = nil
	}
	return true
}

// reconnect attaches a fresh writer to a retained device.
func (d *Device) reconnect(w Writer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writer = w
	d.connected = true
}
