package topics

import "testing"

func TestTopicPatterns(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{BuildDiscoveryTopic("homeassistant", "sensor", "venus", "battery_soc"), "homeassistant/sensor/venus/venus_battery_soc/config"},
		{BuildUniqueID("venus", "battery_soc"), "venus_battery_soc"},
		{BuildStateTopic("marstek", "venus"), "marstek/venus/state"},
		{BuildAvailabilityTopic("marstek", "venus"), "marstek/venus/availability"},
		{BuildDiagnosticStateTopic("marstek", "venus"), "marstek/venus/diagnostics"},
		{BuildControlStateTopic("marstek", "venus", "eps_mode"), "marstek/venus/eps_mode/state"},
		{BuildCommandTopic("marstek", "venus", "eps_mode"), "marstek/venus/eps_mode/set"},
		{BuildCommandSubscription("marstek", "venus"), "marstek/venus/+/set"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("Expected %s, got %s", tt.want, tt.got)
		}
	}
}

func TestParseCommandTopic(t *testing.T) {
	tests := []struct {
		topic string
		key   string
		ok    bool
	}{
		{"marstek/venus/eps_mode/set", "eps_mode", true},
		{"marstek/venus/poll_interval/set", PollIntervalKey, true},
		{"marstek/venus/eps_mode/state", "", false},
		{"marstek/other/eps_mode/set", "", false},
		{"marstek/venus/a/b/set", "", false},
		{"marstek/venus//set", "", false},
	}
	for _, tt := range tests {
		key, ok := ParseCommandTopic("marstek", "venus", tt.topic)
		if key != tt.key || ok != tt.ok {
			t.Errorf("%s: expected (%q, %v), got (%q, %v)", tt.topic, tt.key, tt.ok, key, ok)
		}
	}
}
