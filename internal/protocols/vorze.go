package protocols

import (
	"fmt"

	"github.com/wrenfold/haptic-core/internal/device"
)

// vorzeService is the BLE service id Vorze devices advertise.
const vorzeService = "40ee1111-63ec-4b7f-8ce7-712efd55b90e"

const (
	vorzeMaxSpeed = 100

	// vorzeDirectionBit flags counter-clockwise rotation in the speed byte.
	vorzeDirectionBit = 0x80
)

// vorze speaks the Vorze A10 Cyclone binary protocol: a three-byte
// command [device, command, speed|direction] on the tx endpoint. Rotate
// only; no sensors.
type vorze struct {
	lastByte byte
	sent     bool
}

func newVorze(_ device.Identity, _ device.Probe) device.Protocol {
	return &vorze{}
}

func (p *vorze) Name() string { return "vorze" }

func (p *vorze) Capabilities() device.CapabilitySet {
	return device.CapabilitySet{
		Actuators: []device.Actuator{
			{Kind: device.ActuatorRotate, Index: 0, Min: 0, Max: 1},
		},
	}
}

func (p *vorze) Translate(cmd device.Command) ([]device.RawWrite, error) {
	var writes []device.RawWrite

	for _, a := range cmd.Actuators {
		if a.Index != 0 {
			return nil, fmt.Errorf("%w: %d", device.ErrInvalidActuatorIndex, a.Index)
		}
		if a.Level < 0 || a.Level > 1 {
			return nil, fmt.Errorf("%w: %v", device.ErrOutOfRange, a.Level)
		}

		speedByte := byte(scaleToSpeed(a.Level, vorzeMaxSpeed))
		if !a.Clockwise {
			speedByte |= vorzeDirectionBit
		}
		if p.sent && speedByte == p.lastByte {
			continue
		}
		p.lastByte = speedByte
		p.sent = true
		writes = append(writes, device.RawWrite{
			Endpoint: "tx",
			Data:     []byte{0x01, 0x01, speedByte},
		})
	}

	if cmd.Raw != nil {
		writes = append(writes, device.RawWrite{Endpoint: cmd.Raw.Endpoint, Data: cmd.Raw.Data})
	}

	return writes, nil
}

func (p *vorze) Interpret(_ string, _ []byte) ([]device.Reading, error) {
	return nil, nil
}

func (p *vorze) SensorQuery(sensorIndex uint32) ([]device.RawWrite, error) {
	return nil, fmt.Errorf("%w: %d", device.ErrInvalidSensorIndex, sensorIndex)
}

func (p *vorze) Stop() []device.RawWrite {
	p.lastByte = 0
	p.sent = true
	return []device.RawWrite{{
		Endpoint: "tx",
		Data:     []byte{0x01, 0x01, 0x00},
	}}
}
