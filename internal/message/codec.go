package message

import (
	"encoding/json"
	"fmt"
)

// Codec translates between Message values and wire bytes.
//
// The session layer is agnostic to the concrete encoding as long as id,
// kind, and payload round-trip losslessly and unknown kinds decode to
// KindUnrecognized rather than failing the whole decode.
type Codec interface {
	Encode(msg Message) ([]byte, error)
	Decode(data []byte) (Message, error)
}

// JSONCodec encodes messages as a JSON envelope:
//
//	{"kind": "device_command", "id": 3, "payload": {...}}
//
// Kinds without a payload omit the payload field.
type JSONCodec struct{}

// envelope is the wire shape of every message.
type envelope struct {
	Kind    string          `json:"kind"`
	ID      uint32          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode serializes a Message into the JSON envelope.
func (JSONCodec) Encode(msg Message) ([]byte, error) {
	env := envelope{
		Kind: string(msg.Kind),
		ID:   msg.ID,
	}

	if msg.Payload != nil {
		payload, err := json.Marshal(msg.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrEncode, msg.Kind, err)
		}
		env.Payload = payload
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEncode, msg.Kind, err)
	}
	return data, nil
}

// Decode parses wire bytes into a Message with a typed payload.
//
// An unknown kind yields Kind == KindUnrecognized with the raw kind and
// payload preserved in an Unrecognized value; only a malformed envelope
// or a payload that fails to parse as its declared kind is a decode error.
func (JSONCodec) Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if env.Kind == "" {
		return Message{}, fmt.Errorf("%w: missing kind", ErrDecode)
	}

	kind := Kind(env.Kind)
	payload, known := newPayload(kind)
	if !known {
		return Message{
			ID:   env.ID,
			Kind: KindUnrecognized,
			Payload: &Unrecognized{
				WireKind: env.Kind,
				Raw:      append([]byte(nil), env.Payload...),
			},
		}, nil
	}

	msg := Message{ID: env.ID, Kind: kind}
	if payload == nil {
		return msg, nil
	}
	if len(env.Payload) == 0 {
		return Message{}, fmt.Errorf("%w: %s: missing payload", ErrDecode, kind)
	}
	if err := json.Unmarshal(env.Payload, payload); err != nil {
		return Message{}, fmt.Errorf("%w: %s: %w", ErrDecode, kind, err)
	}
	msg.Payload = payload
	return msg, nil
}

// newPayload returns an empty payload value for the kind, or nil for
// kinds that carry none. The second return reports whether the kind is
// part of the catalogue at all.
func newPayload(kind Kind) (any, bool) {
	switch kind {
	case KindHandshakeRequest:
		return &HandshakeRequest{}, true
	case KindHandshakeReply:
		return &HandshakeReply{}, true
	case KindDeviceListReply:
		return &DeviceListReply{}, true
	case KindDeviceAdded:
		return &DeviceAdded{}, true
	case KindDeviceRemoved:
		return &DeviceRemoved{}, true
	case KindDeviceCommand:
		return &DeviceCommand{}, true
	case KindCommandResult:
		return &CommandResult{}, true
	case KindSensorRequest:
		return &SensorRequest{}, true
	case KindSensorReading:
		return &SensorReading{}, true
	case KindStopDeviceRequest:
		return &StopDeviceRequest{}, true
	case KindError:
		return &Error{}, true
	case KindPing, KindDeviceListRequest, KindStopAllRequest,
		KindStartScanning, KindStopScanning, KindScanningFinished, KindOk:
		return nil, true
	default:
		return nil, false
	}
}
