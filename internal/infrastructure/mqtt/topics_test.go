package mqtt

import "testing"

func TestTopics_Build(t *testing.T) {
	topics := Topics{Prefix: "haptic"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"system status", topics.SystemStatus(), "haptic/system/status"},
		{"announce", topics.DeviceAnnounce("mqtt", "aa11"), "haptic/device/mqtt/aa11/announce"},
		{"announce wildcard", topics.DeviceAnnounceWildcard(), "haptic/device/+/+/announce"},
		{"write", topics.DeviceWrite("mqtt", "aa11", "tx"), "haptic/device/mqtt/aa11/write/tx"},
		{"notify", topics.DeviceNotify("mqtt", "aa11", "rx"), "haptic/device/mqtt/aa11/notify/rx"},
		{"notify wildcard", topics.DeviceNotifyWildcard("mqtt", "aa11"), "haptic/device/mqtt/aa11/notify/+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestTopics_DefaultPrefix(t *testing.T) {
	topics := Topics{}
	if got := topics.SystemStatus(); got != "haptic/system/status" {
		t.Errorf("default prefix: got %q", got)
	}
}

func TestTopics_ParseAnnounceTopic(t *testing.T) {
	topics := Topics{Prefix: "haptic"}

	transport, address, err := topics.ParseAnnounceTopic("haptic/device/mqtt/aa11/announce")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transport != "mqtt" || address != "aa11" {
		t.Errorf("got (%q, %q), want (mqtt, aa11)", transport, address)
	}

	invalid := []string{
		"haptic/device/mqtt/aa11/notify/rx",
		"other/device/mqtt/aa11/announce",
		"haptic/device//aa11/announce",
		"haptic/system/status",
		"",
	}
	for _, topic := range invalid {
		if _, _, err := topics.ParseAnnounceTopic(topic); err == nil {
			t.Errorf("expected error for %q", topic)
		}
	}
}

func TestTopics_ParseNotifyTopic(t *testing.T) {
	topics := Topics{Prefix: "haptic"}

	transport, address, endpoint, err := topics.ParseNotifyTopic("haptic/device/ble/cafe01/notify/rx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transport != "ble" || address != "cafe01" || endpoint != "rx" {
		t.Errorf("got (%q, %q, %q)", transport, address, endpoint)
	}

	invalid := []string{
		"haptic/device/ble/cafe01/announce",
		"haptic/device/ble/cafe01/notify/",
		"haptic/device/ble/cafe01/write/tx",
	}
	for _, topic := range invalid {
		if _, _, _, err := topics.ParseNotifyTopic(topic); err == nil {
			t.Errorf("expected error for %q", topic)
		}
	}
}
