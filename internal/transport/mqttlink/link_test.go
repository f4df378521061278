package mqttlink

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/wrenfold/haptic-core/internal/device"
	"github.com/wrenfold/haptic-core/internal/infrastructure/logging"
	"github.com/wrenfold/haptic-core/internal/infrastructure/mqtt"
)

// fakeBroker records publishes and lets tests inject inbound messages.
type fakeBroker struct {
	mu       sync.Mutex
	topics   mqtt.Topics
	handlers map[string]mqtt.MessageHandler
	pubs     []pub
}

type pub struct {
	topic   string
	payload []byte
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		topics:   mqtt.Topics{Prefix: "haptic"},
		handlers: make(map[string]mqtt.MessageHandler),
	}
}

func (b *fakeBroker) Publish(topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pubs = append(b.pubs, pub{topic: topic, payload: append([]byte(nil), payload...)})
	return nil
}

func (b *fakeBroker) Subscribe(topic string, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBroker) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, topic)
	return nil
}

func (b *fakeBroker) Topics() mqtt.Topics { return b.topics }

func (b *fakeBroker) subscribed(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.handlers[topic]
	return ok
}

// deliver simulates an inbound message on a subscribed filter.
func (b *fakeBroker) deliver(t *testing.T, filter, topic string, payload []byte) {
	t.Helper()
	b.mu.Lock()
	handler, ok := b.handlers[filter]
	b.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription on %s", filter)
	}
	if err := handler(topic, payload); err != nil {
		t.Fatalf("handler error: %v", err)
	}
}

func recvEvent(t *testing.T, events <-chan device.ScanEvent) device.ScanEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for scan event")
		return device.ScanEvent{}
	}
}

func TestLink_ScanningIsIdempotent(t *testing.T) {
	broker := newFakeBroker()
	link := New(broker, logging.Discard())
	ctx := context.Background()

	if err := link.StartScanning(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := link.StartScanning(ctx); err != nil {
		t.Fatalf("second start must be a no-op: %v", err)
	}
	if !broker.subscribed("haptic/device/+/+/announce") {
		t.Fatal("announce tree not subscribed")
	}

	if err := link.StopScanning(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := link.StopScanning(ctx); err != nil {
		t.Fatalf("second stop must be a no-op: %v", err)
	}
	if broker.subscribed("haptic/device/+/+/announce") {
		t.Fatal("announce subscription should be gone")
	}

	// Restartable: stop then start again is valid.
	if err := link.StartScanning(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
}

func TestLink_AnnouncementProducesFoundEvent(t *testing.T) {
	broker := newFakeBroker()
	link := New(broker, logging.Discard())
	if err := link.StartScanning(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	broker.deliver(t, "haptic/device/+/+/announce",
		"haptic/device/mqtt/aa11/announce",
		[]byte(`{"name":"LVS-Z001","services":["svc-1"]}`))

	ev := recvEvent(t, link.Events())
	if ev.Kind != device.ScanDeviceFound {
		t.Fatalf("kind: got %v, want ScanDeviceFound", ev.Kind)
	}
	if ev.Identity.Transport != "mqtt" || ev.Identity.Address != "aa11" {
		t.Errorf("identity: got %+v", ev.Identity)
	}
	if ev.Probe.Name != "LVS-Z001" || len(ev.Probe.Services) != 1 {
		t.Errorf("probe: got %+v", ev.Probe)
	}
	if ev.Open == nil {
		t.Fatal("found event must carry an opener")
	}
}

func TestLink_SameAddressOnDifferentTransportsStaysDistinct(t *testing.T) {
	broker := newFakeBroker()
	link := New(broker, logging.Discard())
	if err := link.StartScanning(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	broker.deliver(t, "haptic/device/+/+/announce",
		"haptic/device/ble/aa11/announce",
		[]byte(`{"name":"LVS-Z001"}`))
	broker.deliver(t, "haptic/device/+/+/announce",
		"haptic/device/serial/aa11/announce",
		[]byte(`{"name":"CycSA-X"}`))

	first := recvEvent(t, link.Events())
	second := recvEvent(t, link.Events())
	if first.Identity.Key() != "ble/aa11" {
		t.Errorf("first identity key: got %q, want %q", first.Identity.Key(), "ble/aa11")
	}
	if second.Identity.Key() != "serial/aa11" {
		t.Errorf("second identity key: got %q, want %q", second.Identity.Key(), "serial/aa11")
	}
	if first.Identity.Key() == second.Identity.Key() {
		t.Fatal("devices on different transports must not share an identity")
	}

	// Withdrawing one transport's device must not touch the other's.
	broker.deliver(t, "haptic/device/+/+/announce",
		"haptic/device/ble/aa11/announce", nil)
	lost := recvEvent(t, link.Events())
	if lost.Kind != device.ScanDeviceLost || lost.Identity.Key() != "ble/aa11" {
		t.Errorf("lost event: got kind %v identity %q", lost.Kind, lost.Identity.Key())
	}
}

func TestLink_EmptyAnnouncementProducesLostEvent(t *testing.T) {
	broker := newFakeBroker()
	link := New(broker, logging.Discard())
	if err := link.StartScanning(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	broker.deliver(t, "haptic/device/+/+/announce",
		"haptic/device/mqtt/aa11/announce",
		[]byte(`{"name":"LVS-Z001"}`))
	_ = recvEvent(t, link.Events())

	broker.deliver(t, "haptic/device/+/+/announce",
		"haptic/device/mqtt/aa11/announce", nil)

	ev := recvEvent(t, link.Events())
	if ev.Kind != device.ScanDeviceLost {
		t.Fatalf("kind: got %v, want ScanDeviceLost", ev.Kind)
	}
	if ev.Identity.Address != "aa11" {
		t.Errorf("identity: got %+v", ev.Identity)
	}
}

func TestLink_WriterPublishesAndRoutesNotifications(t *testing.T) {
	broker := newFakeBroker()
	link := New(broker, logging.Discard())

	var (
		mu       sync.Mutex
		notified []string
	)
	link.SetNotificationHandler(func(identity device.Identity, endpoint string, data []byte) {
		mu.Lock()
		defer mu.Unlock()
		notified = append(notified, identity.Key()+"/"+endpoint+"="+string(data))
	})

	if err := link.StartScanning(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	broker.deliver(t, "haptic/device/+/+/announce",
		"haptic/device/mqtt/aa11/announce",
		[]byte(`{"name":"LVS-Z001"}`))
	ev := recvEvent(t, link.Events())

	w, err := ev.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := w.Write(context.Background(), "tx", []byte("Vibrate:10;")); err != nil {
		t.Fatalf("write: %v", err)
	}
	broker.mu.Lock()
	last := broker.pubs[len(broker.pubs)-1]
	broker.mu.Unlock()
	if last.topic != "haptic/device/mqtt/aa11/write/tx" || string(last.payload) != "Vibrate:10;" {
		t.Errorf("publish: got %s %s", last.topic, last.payload)
	}

	broker.deliver(t, "haptic/device/mqtt/aa11/notify/+",
		"haptic/device/mqtt/aa11/notify/rx", []byte("85;"))
	mu.Lock()
	got := append([]string(nil), notified...)
	mu.Unlock()
	if len(got) != 1 || got[0] != "mqtt/aa11/rx=85;" {
		t.Errorf("notifications: got %v", got)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if broker.subscribed("haptic/device/mqtt/aa11/notify/+") {
		t.Error("notify subscription should be dropped on close")
	}
	if err := w.Write(context.Background(), "tx", []byte("x")); err == nil {
		t.Error("write after close must fail")
	}
}
