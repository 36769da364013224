// Package topics builds the MQTT topic names shared by the publisher and the
// command router.
package topics

import (
	"fmt"
	"strings"
)

// PollIntervalKey is the command key that changes the fast poll interval
const PollIntervalKey = "poll_interval"

// BuildDiscoveryTopic constructs the discovery config topic for an entity
// Pattern: {prefix}/{component}/{device_id}/{device_id}_{key}/config
func BuildDiscoveryTopic(prefix, component, deviceID, key string) string {
	return fmt.Sprintf("%s/%s/%s/%s_%s/config", prefix, component, deviceID, deviceID, key)
}

// BuildUniqueID constructs the unique ID for an entity
// Pattern: {device_id}_{key}
func BuildUniqueID(deviceID, key string) string {
	return fmt.Sprintf("%s_%s", deviceID, key)
}

// BuildStateTopic constructs the topic carrying the full snapshot JSON
// Pattern: {base}/{device_id}/state
func BuildStateTopic(base, deviceID string) string {
	return fmt.Sprintf("%s/%s/state", base, deviceID)
}

// BuildAvailabilityTopic constructs the LWT availability topic
// Pattern: {base}/{device_id}/availability
func BuildAvailabilityTopic(base, deviceID string) string {
	return fmt.Sprintf("%s/%s/availability", base, deviceID)
}

// BuildDiagnosticStateTopic constructs the diagnostics report topic
// Pattern: {base}/{device_id}/diagnostics
func BuildDiagnosticStateTopic(base, deviceID string) string {
	return fmt.Sprintf("%s/%s/diagnostics", base, deviceID)
}

// BuildControlStateTopic constructs the state topic of one control
// Pattern: {base}/{device_id}/{key}/state
func BuildControlStateTopic(base, deviceID, key string) string {
	return fmt.Sprintf("%s/%s/%s/state", base, deviceID, key)
}

// BuildCommandTopic constructs the command topic of one control
// Pattern: {base}/{device_id}/{key}/set
func BuildCommandTopic(base, deviceID, key string) string {
	return fmt.Sprintf("%s/%s/%s/set", base, deviceID, key)
}

// BuildCommandSubscription matches every command topic of a device
// Pattern: {base}/{device_id}/+/set
func BuildCommandSubscription(base, deviceID string) string {
	return fmt.Sprintf("%s/%s/+/set", base, deviceID)
}

// ParseCommandTopic extracts the control key from a command topic.
func ParseCommandTopic(base, deviceID, topic string) (string, bool) {
	prefix := fmt.Sprintf("%s/%s/", base, deviceID)
	if !strings.HasPrefix(topic, prefix) || !strings.HasSuffix(topic, "/set") {
		return "", false
	}
	key := strings.TrimSuffix(strings.TrimPrefix(topic, prefix), "/set")
	if key == "" || strings.Contains(key, "/") {
		return "", false
	}
	return key, true
}
