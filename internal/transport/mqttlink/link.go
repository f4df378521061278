package mqttlink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/wrenfold/haptic-core/internal/device"
	"github.com/wrenfold/haptic-core/internal/infrastructure/logging"
	"github.com/wrenfold/haptic-core/internal/infrastructure/mqtt"
)

// Broker is the subset of the MQTT client the link uses. Satisfied by
// *mqtt.Client.
type Broker interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Topics() mqtt.Topics
}

// settleWindow is how long after subscribing the link waits for retained
// announcements before reporting the scan pass finished. Discovery stays
// live afterwards; the window only bounds the initial burst.
const settleWindow = 2 * time.Second

// eventBuffer is the scan event channel depth.
const eventBuffer = 32

// announcement is the JSON payload bridges publish on the announce topic.
// An empty retained payload on the same topic withdraws the device.
type announcement struct {
	Name     string   `json:"name"`
	Services []string `json:"services,omitempty"`
}

// Link is the MQTT transport: it discovers devices from retained
// announce topics and opens raw writers that publish to each device's
// write topics. It implements device.Scanner.
type Link struct {
	broker Broker
	logger *logging.Logger

	events chan device.ScanEvent

	mu       sync.Mutex
	scanning bool
	seen     map[string]device.Identity
	settle   *time.Timer

	notify func(identity device.Identity, endpoint string, data []byte)
}

// New creates the MQTT device link.
func New(broker Broker, logger *logging.Logger) *Link {
	return &Link{
		broker: broker,
		logger: logger,
		events: make(chan device.ScanEvent, eventBuffer),
		seen:   make(map[string]device.Identity),
	}
}

// SetNotificationHandler sets the sink for raw device notifications.
// Typically the device manager's HandleNotification.
func (l *Link) SetNotificationHandler(fn func(identity device.Identity, endpoint string, data []byte)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notify = fn
}

// Name identifies the transport kind.
func (l *Link) Name() string { return "mqtt" }

// Events returns the scan event stream.
func (l *Link) Events() <-chan device.ScanEvent { return l.events }

// StartScanning subscribes to the announce tree. Retained announcements
// for devices already on the bus arrive immediately; live announcements
// keep flowing until StopScanning. Idempotent.
func (l *Link) StartScanning(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.scanning {
		return nil
	}

	filter := l.broker.Topics().DeviceAnnounceWildcard()
	if err := l.broker.Subscribe(filter, l.handleAnnounce); err != nil {
		return fmt.Errorf("subscribing to announce tree: %w", err)
	}
	l.scanning = true

	l.settle = time.AfterFunc(settleWindow, func() {
		l.emit(device.ScanEvent{Kind: device.ScanFinished})
	})
	return nil
}

// StopScanning unsubscribes from the announce tree. Devices already
// registered keep their links; only discovery stops. Idempotent.
func (l *Link) StopScanning(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.scanning {
		return nil
	}
	l.scanning = false
	if l.settle != nil {
		l.settle.Stop()
	}

	filter := l.broker.Topics().DeviceAnnounceWildcard()
	if err := l.broker.Unsubscribe(filter); err != nil {
		return fmt.Errorf("unsubscribing from announce tree: %w", err)
	}
	return nil
}

// handleAnnounce processes one announce message. A non-empty payload is
// a device appearing (or re-announcing); an empty retained payload is
// the bridge withdrawing it.
func (l *Link) handleAnnounce(topic string, payload []byte) error {
	transport, address, err := l.broker.Topics().ParseAnnounceTopic(topic)
	if err != nil {
		return err
	}
	key := transport + "/" + address

	if len(payload) == 0 {
		l.mu.Lock()
		identity, ok := l.seen[key]
		delete(l.seen, key)
		l.mu.Unlock()
		if ok {
			l.emit(device.ScanEvent{Kind: device.ScanDeviceLost, Identity: identity})
		}
		return nil
	}

	var ann announcement
	if err := json.Unmarshal(payload, &ann); err != nil {
		return fmt.Errorf("malformed announcement on %s: %w", topic, err)
	}

	// The topic's transport segment names the physical link owning the
	// device; the same vendor address can exist on several transports.
	identity := device.Identity{
		Transport: transport,
		Address:   address,
		Name:      ann.Name,
	}

	l.mu.Lock()
	l.seen[key] = identity
	l.mu.Unlock()

	l.emit(device.ScanEvent{
		Kind:     device.ScanDeviceFound,
		Identity: identity,
		Probe:    device.Probe{Name: ann.Name, Services: ann.Services},
		Open: func(context.Context) (device.Writer, error) {
			return l.open(transport, address, identity)
		},
	})
	return nil
}

// open subscribes to the device's notify stream and returns a writer
// publishing to its write topics.
func (l *Link) open(transport, address string, identity device.Identity) (device.Writer, error) {
	filter := l.broker.Topics().DeviceNotifyWildcard(transport, address)
	if err := l.broker.Subscribe(filter, l.handleNotify); err != nil {
		return nil, fmt.Errorf("subscribing to notify stream for %s: %w", identity.Key(), err)
	}
	return &writer{link: l, transport: transport, address: address}, nil
}

// handleNotify routes one raw device notification to the sink.
func (l *Link) handleNotify(topic string, payload []byte) error {
	transport, address, endpoint, err := l.broker.Topics().ParseNotifyTopic(topic)
	if err != nil {
		return err
	}

	l.mu.Lock()
	identity, ok := l.seen[transport+"/"+address]
	sink := l.notify
	l.mu.Unlock()

	if !ok {
		identity = device.Identity{Transport: transport, Address: address}
	}
	if sink != nil {
		sink(identity, endpoint, payload)
	}
	return nil
}

// emit delivers a scan event, dropping when the consumer has fallen an
// entire buffer behind.
func (l *Link) emit(ev device.ScanEvent) {
	select {
	case l.events <- ev:
	default:
		l.logger.Warn("scan event dropped", "kind", ev.Kind, "identity", ev.Identity.Key())
	}
}

// writer publishes raw endpoint writes for one device.
type writer struct {
	link      *Link
	transport string
	address   string

	mu     sync.Mutex
	closed bool
}

// Write publishes data to the device's endpoint topic. The MQTT publish
// blocks until broker acknowledgement, which is the transport's write
// completion.
func (w *writer) Write(ctx context.Context, endpoint string, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return fmt.Errorf("link closed for %s/%s", w.transport, w.address)
	}

	topic := w.link.broker.Topics().DeviceWrite(w.transport, w.address, endpoint)
	return w.link.broker.Publish(topic, data)
}

// Close drops the notify subscription for this device.
func (w *writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	filter := w.link.broker.Topics().DeviceNotifyWildcard(w.transport, w.address)
	return w.link.broker.Unsubscribe(filter)
}
