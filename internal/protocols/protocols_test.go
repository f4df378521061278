package protocols

import (
	"bytes"
	"errors"
	"testing"

	"github.com/wrenfold/haptic-core/internal/device"
)

func TestRegistry_Match(t *testing.T) {
	registry := New()

	tests := []struct {
		name     string
		probe    device.Probe
		want     string
		wantErr  error
	}{
		{
			name:  "lovense by name prefix",
			probe: device.Probe{Name: "LVS-Z001"},
			want:  "lovense",
		},
		{
			name:  "lovense by service id",
			probe: device.Probe{Name: "???", Services: []string{lovenseService}},
			want:  "lovense",
		},
		{
			name:  "vorze cyclone",
			probe: device.Probe{Name: "CycSA"},
			want:  "vorze",
		},
		{
			name:  "wevibe by model name",
			probe: device.Probe{Name: "Ditto"},
			want:  "wevibe",
		},
		{
			name:  "case insensitive prefix",
			probe: device.Probe{Name: "lvs-a011"},
			want:  "lovense",
		},
		{
			name:    "unknown device rejected",
			probe:   device.Probe{Name: "Toaster 3000"},
			wantErr: device.ErrUnsupportedDevice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity := device.Identity{Transport: "test", Address: "x", Name: tt.probe.Name}
			proto, err := registry.Match(identity, tt.probe)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("got %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("match: %v", err)
			}
			if proto.Name() != tt.want {
				t.Errorf("protocol: got %q, want %q", proto.Name(), tt.want)
			}
		})
	}
}

func TestRegistry_Match_FreshInstancePerDevice(t *testing.T) {
	registry := New()
	identity := device.Identity{Transport: "test", Address: "a", Name: "LVS-Z001"}
	probe := device.Probe{Name: "LVS-Z001"}

	p1, err := registry.Match(identity, probe)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	p2, err := registry.Match(identity, probe)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if p1 == p2 {
		t.Error("each device must get its own protocol instance")
	}
}

func vibrate(level float64) device.Command {
	return device.Command{
		Actuators: []device.ActuatorCommand{
			{Index: 0, Kind: device.ActuatorVibrate, Level: level},
		},
	}
}

func TestLovense_TranslateVibrate(t *testing.T) {
	p := newLovense(device.Identity{Name: "LVS-Z001"}, device.Probe{Name: "LVS-Z001"})

	writes, err := p.Translate(vibrate(0.5))
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(writes) != 1 {
		t.Fatalf("writes: got %d, want 1", len(writes))
	}
	if writes[0].Endpoint != "tx" {
		t.Errorf("endpoint: got %q, want tx", writes[0].Endpoint)
	}
	if string(writes[0].Data) != "Vibrate:10;" {
		t.Errorf("command: got %q, want Vibrate:10;", writes[0].Data)
	}
}

func TestLovense_SuppressesRedundantWrite(t *testing.T) {
	p := newLovense(device.Identity{Name: "LVS-Z001"}, device.Probe{Name: "LVS-Z001"})

	first, err := p.Translate(vibrate(0.5))
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("first translate: got %d writes", len(first))
	}

	second, err := p.Translate(vibrate(0.5))
	if err != nil {
		t.Fatalf("repeat translate must not fail: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("repeated value should be suppressed, got %d writes", len(second))
	}

	third, err := p.Translate(vibrate(0.8))
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(third) != 1 {
		t.Errorf("changed value must write, got %d", len(third))
	}
}

func TestLovense_TranslateErrors(t *testing.T) {
	p := newLovense(device.Identity{Name: "LVS-Z001"}, device.Probe{Name: "LVS-Z001"})

	_, err := p.Translate(device.Command{
		Actuators: []device.ActuatorCommand{{Index: 5, Level: 0.5}},
	})
	if !errors.Is(err, device.ErrInvalidActuatorIndex) {
		t.Errorf("got %v, want ErrInvalidActuatorIndex", err)
	}

	_, err = p.Translate(vibrate(1.2))
	if !errors.Is(err, device.ErrOutOfRange) {
		t.Errorf("got %v, want ErrOutOfRange", err)
	}
}

func TestLovense_NoraGetsRotator(t *testing.T) {
	p := newLovense(device.Identity{Name: "LVS-A011"}, device.Probe{Name: "LVS-A011"})

	if _, ok := p.Capabilities().Actuator(1); !ok {
		t.Fatal("Nora should expose a rotate actuator")
	}

	writes, err := p.Translate(device.Command{
		Actuators: []device.ActuatorCommand{
			{Index: 1, Kind: device.ActuatorRotate, Level: 1, Clockwise: true},
		},
	})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(writes) != 1 || string(writes[0].Data) != "Rotate:20;" {
		t.Errorf("writes: got %v", writes)
	}

	// Direction flip issues a RotateChange before the speed command.
	writes, err = p.Translate(device.Command{
		Actuators: []device.ActuatorCommand{
			{Index: 1, Kind: device.ActuatorRotate, Level: 0.5, Clockwise: false},
		},
	})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(writes) != 2 || string(writes[0].Data) != "RotateChange;" {
		t.Errorf("direction change writes: got %v", writes)
	}
}

func TestLovense_BatteryRoundTrip(t *testing.T) {
	p := newLovense(device.Identity{Name: "LVS-Z001"}, device.Probe{Name: "LVS-Z001"})

	writes, err := p.SensorQuery(0)
	if err != nil {
		t.Fatalf("sensor query: %v", err)
	}
	if len(writes) != 1 || string(writes[0].Data) != "Battery;" {
		t.Errorf("query writes: got %v", writes)
	}

	readings, err := p.Interpret("rx", []byte("85;"))
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if len(readings) != 1 {
		t.Fatalf("readings: got %d, want 1", len(readings))
	}
	if readings[0].Kind != device.SensorBattery || readings[0].Values[0] != 85 {
		t.Errorf("reading: got %+v", readings[0])
	}

	// Noise on the notify stream is ignored, not an error.
	readings, err = p.Interpret("rx", []byte("garbage"))
	if err != nil || len(readings) != 0 {
		t.Errorf("noise: got %v readings, err %v", readings, err)
	}
}

func TestLovense_StopAlwaysWrites(t *testing.T) {
	p := newLovense(device.Identity{Name: "LVS-Z001"}, device.Probe{Name: "LVS-Z001"})

	if _, err := p.Translate(vibrate(0)); err != nil {
		t.Fatalf("translate: %v", err)
	}

	// Even though the last sent value is already 0, stop must write.
	writes := p.Stop()
	if len(writes) != 1 || string(writes[0].Data) != "Vibrate:0;" {
		t.Errorf("stop writes: got %v", writes)
	}
}

func TestVorze_Translate(t *testing.T) {
	p := newVorze(device.Identity{}, device.Probe{})

	writes, err := p.Translate(device.Command{
		Actuators: []device.ActuatorCommand{
			{Index: 0, Kind: device.ActuatorRotate, Level: 1, Clockwise: true},
		},
	})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(writes) != 1 || !bytes.Equal(writes[0].Data, []byte{0x01, 0x01, 100}) {
		t.Errorf("writes: got %v", writes)
	}

	// Counter-clockwise sets the direction bit.
	writes, err = p.Translate(device.Command{
		Actuators: []device.ActuatorCommand{
			{Index: 0, Kind: device.ActuatorRotate, Level: 1, Clockwise: false},
		},
	})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(writes) != 1 || writes[0].Data[2] != 100|vorzeDirectionBit {
		t.Errorf("ccw writes: got %v", writes)
	}
}

func TestVorze_Stop(t *testing.T) {
	p := newVorze(device.Identity{}, device.Probe{})
	writes := p.Stop()
	if len(writes) != 1 || !bytes.Equal(writes[0].Data, []byte{0x01, 0x01, 0x00}) {
		t.Errorf("stop writes: got %v", writes)
	}
}

func TestWeVibe_Translate(t *testing.T) {
	p := newWeVibe(device.Identity{}, device.Probe{})

	writes, err := p.Translate(vibrate(1))
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	want := []byte{0x0f, 0x03, 0x00, 0xff, 0x00, 0x03, 0x00, 0x00}
	if len(writes) != 1 || !bytes.Equal(writes[0].Data, want) {
		t.Errorf("writes: got %v, want frame %v", writes, want)
	}

	// Same intensity again is suppressed.
	writes, err = p.Translate(vibrate(1))
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(writes) != 0 {
		t.Errorf("redundant frame should be suppressed, got %v", writes)
	}
}

func TestWeVibe_Stop(t *testing.T) {
	p := newWeVibe(device.Identity{}, device.Probe{})
	writes := p.Stop()
	want := []byte{0x0f, 0x03, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00}
	if len(writes) != 1 || !bytes.Equal(writes[0].Data, want) {
		t.Errorf("stop writes: got %v, want %v", writes, want)
	}
}
