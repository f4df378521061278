package protocols

import (
	"bytes"
	"fmt"

	"github.com/wrenfold/haptic-core/internal/device"
)

// wevibeService is the BLE service id WeVibe devices advertise.
const wevibeService = "f000bb03-0451-4000-b000-000000000000"

// wevibeMaxSpeed is the firmware's intensity ceiling (one nibble).
const wevibeMaxSpeed = 15

// wevibe speaks the WeVibe binary protocol: an eight-byte frame on the
// tx endpoint with the intensity packed into byte 3. Vibrate only.
type wevibe struct {
	lastFrame []byte
}

func newWeVibe(_ device.Identity, _ device.Probe) device.Protocol {
	return &wevibe{}
}

func (p *wevibe) Name() string { return "wevibe" }

func (p *wevibe) Capabilities() device.CapabilitySet {
	return device.CapabilitySet{
		Actuators: []device.Actuator{
			{Kind: device.ActuatorVibrate, Index: 0, Min: 0, Max: 1},
		},
	}
}

func (p *wevibe) Translate(cmd device.Command) ([]device.RawWrite, error) {
	var writes []device.RawWrite

	for _, a := range cmd.Actuators {
		if a.Index != 0 {
			return nil, fmt.Errorf("%w: %d", device.ErrInvalidActuatorIndex, a.Index)
		}
		if a.Level < 0 || a.Level > 1 {
			return nil, fmt.Errorf("%w: %v", device.ErrOutOfRange, a.Level)
		}

		frame := wevibeFrame(scaleToSpeed(a.Level, wevibeMaxSpeed))
		if p.lastFrame != nil && bytes.Equal(frame, p.lastFrame) {
			continue
		}
		p.lastFrame = frame
		writes = append(writes, device.RawWrite{Endpoint: "tx", Data: frame})
	}

	if cmd.Raw != nil {
		writes = append(writes, device.RawWrite{Endpoint: cmd.Raw.Endpoint, Data: cmd.Raw.Data})
	}

	return writes, nil
}

func (p *wevibe) Interpret(_ string, _ []byte) ([]device.Reading, error) {
	return nil, nil
}

func (p *wevibe) SensorQuery(sensorIndex uint32) ([]device.RawWrite, error) {
	return nil, fmt.Errorf("%w: %d", device.ErrInvalidSensorIndex, sensorIndex)
}

func (p *wevibe) Stop() []device.RawWrite {
	frame := wevibeFrame(0)
	p.lastFrame = frame
	return []device.RawWrite{{Endpoint: "tx", Data: frame}}
}

// wevibeFrame builds the command frame for one intensity step. Both
// motors run at the same intensity, packed one per nibble.
func wevibeFrame(speed int) []byte {
	b := byte(speed)
	return []byte{0x0f, 0x03, 0x00, b<<4 | b, 0x00, 0x03, 0x00, 0x00}
}
