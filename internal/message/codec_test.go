package message

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestJSONCodec_RoundTrip(t *testing.T) {
	codec := JSONCodec{}

	tests := []struct {
		name string
		msg  Message
	}{
		{
			name: "handshake request",
			msg: Message{
				ID:   1,
				Kind: KindHandshakeRequest,
				Payload: &HandshakeRequest{
					ClientName: "test-client",
					VersionMin: 1,
					VersionMax: 3,
				},
			},
		},
		{
			name: "device command with actuators",
			msg: Message{
				ID:   7,
				Kind: KindDeviceCommand,
				Payload: &DeviceCommand{
					DeviceIndex: 2,
					Actuators: []ActuatorCommand{
						{Index: 0, Kind: "vibrate", Level: 0.5},
					},
				},
			},
		},
		{
			name: "ping has no payload",
			msg:  Message{ID: 0, Kind: KindPing},
		},
		{
			name: "stop all has no payload",
			msg:  Message{ID: 9, Kind: KindStopAllRequest},
		},
		{
			name: "error",
			msg: Message{
				ID:   4,
				Kind: KindError,
				Payload: &Error{
					Code:    ErrorCodeDevice,
					Message: "no such device",
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := codec.Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode() error: %v", err)
			}

			got, err := codec.Decode(data)
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}

			if got.ID != tt.msg.ID {
				t.Errorf("id: got %d, want %d", got.ID, tt.msg.ID)
			}
			if got.Kind != tt.msg.Kind {
				t.Errorf("kind: got %q, want %q", got.Kind, tt.msg.Kind)
			}

			if tt.msg.Payload == nil {
				if got.Payload != nil {
					t.Errorf("expected nil payload, got %T", got.Payload)
				}
				return
			}

			want, _ := json.Marshal(tt.msg.Payload)
			have, _ := json.Marshal(got.Payload)
			if string(want) != string(have) {
				t.Errorf("payload: got %s, want %s", have, want)
			}
		})
	}
}

func TestJSONCodec_UnknownKind(t *testing.T) {
	codec := JSONCodec{}

	msg, err := codec.Decode([]byte(`{"kind":"totally_new_thing","id":5,"payload":{"x":1}}`))
	if err != nil {
		t.Fatalf("unknown kind must not fail the decode: %v", err)
	}
	if msg.Kind != KindUnrecognized {
		t.Fatalf("kind: got %q, want %q", msg.Kind, KindUnrecognized)
	}
	if msg.ID != 5 {
		t.Errorf("id: got %d, want 5", msg.ID)
	}

	unrec, ok := msg.Payload.(*Unrecognized)
	if !ok {
		t.Fatalf("payload: got %T, want *Unrecognized", msg.Payload)
	}
	if unrec.WireKind != "totally_new_thing" {
		t.Errorf("wire kind: got %q", unrec.WireKind)
	}
	if string(unrec.Raw) != `{"x":1}` {
		t.Errorf("raw payload: got %s", unrec.Raw)
	}
}

func TestJSONCodec_DecodeErrors(t *testing.T) {
	codec := JSONCodec{}

	tests := []struct {
		name string
		data string
	}{
		{"not json", `{{{`},
		{"missing kind", `{"id":1}`},
		{"payload wrong shape", `{"kind":"handshake_request","id":1,"payload":[1,2]}`},
		{"payload required but absent", `{"kind":"device_command","id":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode([]byte(tt.data))
			if !errors.Is(err, ErrDecode) {
				t.Errorf("got %v, want ErrDecode", err)
			}
		})
	}
}

func TestJSONCodec_EncodeOmitsEmptyPayload(t *testing.T) {
	codec := JSONCodec{}

	data, err := codec.Encode(Message{ID: 2, Kind: KindPing})
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := env["payload"]; ok {
		t.Error("payload field should be omitted for payload-less kinds")
	}
}
