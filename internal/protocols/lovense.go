package protocols

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wrenfold/haptic-core/internal/device"
)

// lovenseService is the BLE service id Lovense devices advertise.
const lovenseService = "50300001-0024-4bd4-bbd5-a6920e4c5653"

// lovenseMaxSpeed is the firmware's vibration/rotation scale ceiling.
const lovenseMaxSpeed = 20

// lovense speaks the Lovense text protocol: ASCII commands like
// "Vibrate:10;" written to the tx endpoint, replies ("85;") arriving on
// rx. Devices whose name marks them as a Nora additionally expose a
// rotator.
type lovense struct {
	caps device.CapabilitySet

	lastVibrate   int
	lastRotate    int
	lastClockwise bool
	sentVibrate   bool
	sentRotate    bool
}

func newLovense(identity device.Identity, probe device.Probe) device.Protocol {
	name := probe.Name
	if name == "" {
		name = identity.Name
	}

	caps := device.CapabilitySet{
		Actuators: []device.Actuator{
			{Kind: device.ActuatorVibrate, Index: 0, Min: 0, Max: 1},
		},
		Sensors: []device.Sensor{
			{Kind: device.SensorBattery, Index: 0, Min: 0, Max: 100},
		},
	}

	// Nora is the rotating model; LVS-A* is its advertising name.
	lower := strings.ToLower(name)
	if strings.Contains(lower, "nora") || strings.HasPrefix(lower, "lvs-a") {
		caps.Actuators = append(caps.Actuators, device.Actuator{
			Kind: device.ActuatorRotate, Index: 1, Min: 0, Max: 1,
		})
	}

	return &lovense{caps: caps, lastClockwise: true}
}

func (p *lovense) Name() string                       { return "lovense" }
func (p *lovense) Capabilities() device.CapabilitySet { return p.caps }

func (p *lovense) Translate(cmd device.Command) ([]device.RawWrite, error) {
	var writes []device.RawWrite

	for _, a := range cmd.Actuators {
		desc, ok := p.caps.Actuator(a.Index)
		if !ok {
			return nil, fmt.Errorf("%w: %d", device.ErrInvalidActuatorIndex, a.Index)
		}
		if a.Level < desc.Min || a.Level > desc.Max {
			return nil, fmt.Errorf("%w: %v for actuator %d", device.ErrOutOfRange, a.Level, a.Index)
		}

		speed := scaleToSpeed(a.Level, lovenseMaxSpeed)

		switch desc.Kind {
		case device.ActuatorVibrate:
			if p.sentVibrate && speed == p.lastVibrate {
				continue
			}
			p.lastVibrate = speed
			p.sentVibrate = true
			writes = append(writes, txWrite(fmt.Sprintf("Vibrate:%d;", speed)))

		case device.ActuatorRotate:
			if a.Clockwise != p.lastClockwise {
				p.lastClockwise = a.Clockwise
				writes = append(writes, txWrite("RotateChange;"))
			}
			if p.sentRotate && speed == p.lastRotate {
				continue
			}
			p.lastRotate = speed
			p.sentRotate = true
			writes = append(writes, txWrite(fmt.Sprintf("Rotate:%d;", speed)))

		default:
			return nil, fmt.Errorf("%w: %d", device.ErrInvalidActuatorIndex, a.Index)
		}
	}

	if cmd.Raw != nil {
		writes = append(writes, device.RawWrite{Endpoint: cmd.Raw.Endpoint, Data: cmd.Raw.Data})
	}

	return writes, nil
}

func (p *lovense) Interpret(endpoint string, data []byte) ([]device.Reading, error) {
	if endpoint != "rx" {
		return nil, nil
	}

	// Battery replies are "NN;".
	text := strings.TrimSuffix(strings.TrimSpace(string(data)), ";")
	level, err := strconv.Atoi(text)
	if err != nil || level < 0 || level > 100 {
		return nil, nil
	}

	return []device.Reading{{
		SensorIndex: 0,
		Kind:        device.SensorBattery,
		Values:      []float64{float64(level)},
	}}, nil
}

func (p *lovense) SensorQuery(sensorIndex uint32) ([]device.RawWrite, error) {
	if _, ok := p.caps.Sensor(sensorIndex); !ok {
		return nil, fmt.Errorf("%w: %d", device.ErrInvalidSensorIndex, sensorIndex)
	}
	return []device.RawWrite{txWrite("Battery;")}, nil
}

func (p *lovense) Stop() []device.RawWrite {
	writes := []device.RawWrite{txWrite("Vibrate:0;")}
	p.lastVibrate = 0
	p.sentVibrate = true

	if _, ok := p.caps.Actuator(1); ok {
		writes = append(writes, txWrite("Rotate:0;"))
		p.lastRotate = 0
		p.sentRotate = true
	}
	return writes
}

func txWrite(cmd string) device.RawWrite {
	return device.RawWrite{Endpoint: "tx", Data: []byte(cmd)}
}

// scaleToSpeed maps a 0..1 level onto the firmware's integer scale.
func scaleToSpeed(level float64, max int) int {
	speed := int(level*float64(max) + 0.5)
	if speed > max {
		speed = max
	}
	if speed < 0 {
		speed = 0
	}
	return speed
}
