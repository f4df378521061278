package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/wrenfold/haptic-core/internal/infrastructure/influxdb"
	"github.com/wrenfold/haptic-core/internal/infrastructure/logging"
)

// EventKind enumerates registry event types pushed to subscribers.
type EventKind int

const (
	// EventAdded reports a device registering (or reconnecting).
	EventAdded EventKind = iota
	// EventRemoved reports a device disconnecting.
	EventRemoved
	// EventScanningFinished reports all scanners completing their pass.
	EventScanningFinished
	// EventReading reports an unsolicited sensor reading.
	EventReading
)

// Event is one registry notification. Device is set for EventAdded,
// Index for EventRemoved, Reading for EventReading.
type Event struct {
	Kind    EventKind
	Device  *Device
	Index   uint32
	Reading *Reading
}

// subscriberBuffer is the per-subscriber event channel depth. A
// subscriber that falls this far behind loses events rather than
// blocking the registry.
const subscriberBuffer = 16

// Manager owns the device registry: discovery intake, protocol matching,
// index allocation, command dispatch, and lifecycle events.
//
// Locking discipline: the registry mutex guards only the index maps and
// is never held across a transport write. Per-device serialization is
// the Device's own mutex.
type Manager struct {
	protocols ProtocolRegistry
	store     *Store
	logger    *logging.Logger

	mu        sync.RWMutex
	byIndex   map[uint32]*Device
	byKey     map[string]*Device
	nextIndex uint32

	scanMu   sync.Mutex
	scanners []Scanner
	scanning int

	subMu   sync.RWMutex
	subs    map[int]chan Event
	nextSub int

	telemetry *influxdb.Client
}

// NewManager creates a device manager. The store may be nil when the
// known-device database is disabled.
func NewManager(protocols ProtocolRegistry, store *Store, logger *logging.Logger) *Manager {
	return &Manager{
		protocols: protocols,
		store:     store,
		logger:    logger,
		byIndex:   make(map[uint32]*Device),
		byKey:     make(map[string]*Device),
		subs:      make(map[int]chan Event),
	}
}

// SetTelemetry attaches an optional telemetry sink for sensor readings
// and dispatched actuator levels.
func (m *Manager) SetTelemetry(client *influxdb.Client) {
	m.telemetry = client
}

// AddScanner registers a transport scanner. Call before Run.
func (m *Manager) AddScanner(s Scanner) {
	m.scanMu.Lock()
	defer m.scanMu.Unlock()
	m.scanners = append(m.scanners, s)
}

// Run consumes scanner events until ctx is cancelled. It blocks; run it
// in its own goroutine.
func (m *Manager) Run(ctx context.Context) {
	m.scanMu.Lock()
	scanners := make([]Scanner, len(m.scanners))
	copy(scanners, m.scanners)
	m.scanMu.Unlock()

	var wg sync.WaitGroup
	for _, s := range scanners {
		wg.Add(1)
		go func(s Scanner) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-s.Events():
					if !ok {
						return
					}
					m.handleScanEvent(ctx, s, ev)
				}
			}
		}(s)
	}
	wg.Wait()
}

// StartScanning starts discovery on every registered scanner. Failures
// are aggregated; scanners that did start keep scanning.
func (m *Manager) StartScanning(ctx context.Context) error {
	m.scanMu.Lock()
	defer m.scanMu.Unlock()

	var errs []error
	started := 0
	for _, s := range m.scanners {
		if err := s.StartScanning(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrScanFailed, s.Name(), err))
			continue
		}
		started++
	}
	m.scanning = started
	return errors.Join(errs...)
}

// StopScanning stops discovery on every registered scanner.
func (m *Manager) StopScanning(ctx context.Context) error {
	m.scanMu.Lock()
	defer m.scanMu.Unlock()

	var errs []error
	for _, s := range m.scanners {
		if err := s.StopScanning(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrScanFailed, s.Name(), err))
		}
	}
	m.scanning = 0
	return errors.Join(errs...)
}

// handleScanEvent routes one scanner notification.
func (m *Manager) handleScanEvent(ctx context.Context, s Scanner, ev ScanEvent) {
	switch ev.Kind {
	case ScanDeviceFound:
		if _, err := m.Register(ctx, ev.Identity, ev.Probe, ev.Open); err != nil {
			if errors.Is(err, ErrUnsupportedDevice) {
				m.logger.Debug("ignoring unsupported device",
					"identity", ev.Identity.Key(),
					"name", ev.Probe.Name,
				)
				return
			}
			m.logger.Warn("device registration failed",
				"identity", ev.Identity.Key(),
				"error", err,
			)
		}
	case ScanDeviceLost:
		m.Remove(ev.Identity)
	case ScanFinished:
		m.scanMu.Lock()
		if m.scanning > 0 {
			m.scanning--
		}
		done := m.scanning == 0
		m.scanMu.Unlock()
		if done {
			m.publish(Event{Kind: EventScanningFinished})
		}
	}
}

// Register adds a discovered device to the registry.
//
// Registration is idempotent on identity: a device that is already
// connected is returned unchanged, and a retained (disconnected) device
// reconnects under its original index. A fresh identity gets the next
// monotonic index; indices are never reassigned.
//
// The open callback is invoked outside the registry lock; a device whose
// probe matches no vendor protocol is rejected with ErrUnsupportedDevice
// before any link is opened.
func (m *Manager) Register(ctx context.Context, identity Identity, probe Probe, open func(context.Context) (Writer, error)) (*Device, error) {
	key := identity.Key()

	m.mu.RLock()
	existing, known := m.byKey[key]
	m.mu.RUnlock()

	if known && existing.Connected() {
		return existing, nil
	}

	var proto Protocol
	if !known {
		p, err := m.protocols.Match(identity, probe)
		if err != nil {
			return nil, err
		}
		proto = p
	}

	if open == nil {
		return nil, fmt.Errorf("%w: %s: no link opener", ErrDeviceNotConnected, key)
	}
	writer, err := open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDeviceNotConnected, key, err)
	}

	var displayName string
	if m.store != nil {
		if name, err := m.store.DisplayName(ctx, identity); err == nil {
			displayName = name
		}
	}

	m.mu.Lock()
	// Re-check under the write lock; a concurrent Register may have won.
	if d, ok := m.byKey[key]; ok {
		if d.Connected() {
			m.mu.Unlock()
			writer.Close() //nolint:errcheck // Lost the race, discard the extra link
			return d, nil
		}
		d.reconnect(writer)
		m.mu.Unlock()
		m.touchStore(identity, d.ProtocolName())
		m.publish(Event{Kind: EventAdded, Device: d})
		m.logger.Info("device reconnected", "index", d.Index(), "identity", key)
		return d, nil
	}

	d := &Device{
		index:       m.nextIndex,
		identity:    identity,
		protocol:    proto,
		caps:        proto.Capabilities(),
		displayName: displayName,
		writer:      writer,
		connected:   true,
	}
	m.nextIndex++
	m.byIndex[d.index] = d
	m.byKey[key] = d
	m.mu.Unlock()

	m.touchStore(identity, d.ProtocolName())

	m.publish(Event{Kind: EventAdded, Device: d})
	m.logger.Info("device registered",
		"index", d.Index(),
		"identity", key,
		"protocol", d.ProtocolName(),
	)
	return d, nil
}

// touchStore records the device in the known-device store, best effort.
func (m *Manager) touchStore(identity Identity, protocol string) {
	if m.store == nil {
		return
	}
	if err := m.store.Remember(context.Background(), identity, protocol); err != nil {
		m.logger.Warn("known-device store update failed",
			"identity", identity.Key(),
			"error", err,
		)
	}
}

// Remove marks a device disconnected. The Device stays in the registry
// as known-but-inactive, so later dispatches fail with
// ErrDeviceNotConnected rather than ErrUnknownDevice, and a rediscovery
// reuses its index.
func (m *Manager) Remove(identity Identity) {
	m.mu.RLock()
	d, ok := m.byKey[identity.Key()]
	m.mu.RUnlock()
	if !ok {
		return
	}

	// markDisconnected arbitrates concurrent removals; only the caller
	// that performed the transition announces it.
	if !d.markDisconnected() {
		return
	}
	m.publish(Event{Kind: EventRemoved, Index: d.Index()})
	m.logger.Info("device removed", "index", d.Index(), "identity", identity.Key())
}

// Rename assigns a user-facing display name to a device, persisting it
// in the known-device store when one is configured.
func (m *Manager) Rename(ctx context.Context, index uint32, name string) error {
	d, err := m.Get(index)
	if err != nil {
		return err
	}
	if m.store != nil {
		if err := m.store.SetDisplayName(ctx, d.Identity(), name); err != nil {
			return err
		}
	}
	d.setDisplayName(name)
	return nil
}

// KnownDevices lists every device the store has ever seen, most recently
// seen first. Empty when the known-device store is disabled.
func (m *Manager) KnownDevices(ctx context.Context) ([]KnownDevice, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.Known(ctx)
}

// Get returns the device registered under the given index.
func (m *Manager) Get(index uint32) (*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.byIndex[index]
	if !ok {
		return nil, fmt.Errorf("%w: index %d", ErrUnknownDevice, index)
	}
	return d, nil
}

// Devices returns all currently-connected devices, ordered by index.
func (m *Manager) Devices() []*Device {
	m.mu.RLock()
	defer m.mu.RUnlock()

	devices := make([]*Device, 0, len(m.byIndex))
	for _, d := range m.byIndex {
		if d.Connected() {
			devices = append(devices, d)
		}
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].index < devices[j].index
	})
	return devices
}

// Dispatch routes a command to its device. The registry lock is released
// before the device's translate+write runs, so commands for different
// devices proceed concurrently.
func (m *Manager) Dispatch(ctx context.Context, cmd Command) error {
	d, err := m.Get(cmd.DeviceIndex)
	if err != nil {
		return err
	}

	if err := d.dispatch(ctx, cmd); err != nil {
		return err
	}

	if m.telemetry != nil {
		for _, a := range cmd.Actuators {
			m.telemetry.WriteActuatorLevel(d.Index(), string(a.Kind), a.Index, a.Level)
		}
	}
	return nil
}

// ReadSensor solicits an on-demand reading; the reading is delivered
// later through the event stream.
func (m *Manager) ReadSensor(ctx context.Context, deviceIndex, sensorIndex uint32) error {
	d, err := m.Get(deviceIndex)
	if err != nil {
		return err
	}
	return d.sensorQuery(ctx, sensorIndex)
}

// StopDevice halts every actuator on one device.
func (m *Manager) StopDevice(ctx context.Context, index uint32) error {
	d, err := m.Get(index)
	if err != nil {
		return err
	}
	return d.stop(ctx)
}

// StopAll issues a stop to every connected device. A failed stop on one
// device never prevents stop attempts on the rest; all failures are
// aggregated in the returned error.
func (m *Manager) StopAll(ctx context.Context) error {
	var errs []error
	for _, d := range m.Devices() {
		if err := d.stop(ctx); err != nil {
			m.logger.Error("stop failed", "index", d.Index(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StopDevices issues a stop to the listed devices only. Unknown or
// disconnected indices are skipped; they have nothing to stop.
func (m *Manager) StopDevices(ctx context.Context, indices []uint32) error {
	var errs []error
	for _, index := range indices {
		d, err := m.Get(index)
		if err != nil {
			continue
		}
		if err := d.stop(ctx); err != nil {
			m.logger.Error("stop failed", "index", d.Index(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleNotification feeds a raw device notification through the owning
// device's protocol and publishes any resulting readings.
func (m *Manager) HandleNotification(identity Identity, endpoint string, data []byte) {
	m.mu.RLock()
	d, ok := m.byKey[identity.Key()]
	m.mu.RUnlock()
	if !ok {
		return
	}

	readings, err := d.interpret(endpoint, data)
	if err != nil {
		m.logger.Warn("notification interpretation failed",
			"identity", identity.Key(),
			"endpoint", endpoint,
			"error", err,
		)
		return
	}

	for i := range readings {
		r := readings[i]
		m.publish(Event{Kind: EventReading, Reading: &r})
		if m.telemetry != nil && len(r.Values) > 0 {
			m.telemetry.WriteSensorReading(r.DeviceIndex, string(r.Kind), r.SensorIndex, r.Values[0])
		}
	}
}

// Subscribe registers an event listener. The returned cancel function
// unsubscribes and closes the channel. Slow subscribers lose events
// rather than blocking the registry.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan Event, subscriberBuffer)
	m.subs[id] = ch
	m.subMu.Unlock()

	cancel := func() {
		m.subMu.Lock()
		if existing, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(existing)
		}
		m.subMu.Unlock()
	}
	return ch, cancel
}

// publish fans an event out to every subscriber, dropping for any whose
// buffer is full.
func (m *Manager) publish(ev Event) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for id, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			m.logger.Warn("event dropped for slow subscriber", "subscriber", id, "kind", ev.Kind)
		}
	}
}
