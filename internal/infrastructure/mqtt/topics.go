package mqtt

import "fmt"

// Topic prefixes for the WardWatch MQTT hierarchy.
//
// Everything lives under a single root so building-wide brokers can
// fence WardWatch traffic with one ACL entry.
const (
	// TopicPrefix is the root of all WardWatch topics.
	TopicPrefix = "wardwatch"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "wardwatch/system"

	// TopicPrefixAlarm is the base for alarm topics.
	TopicPrefixAlarm = "wardwatch/alarm"

	// TopicPrefixRegistry is the base for device registry topics.
	TopicPrefixRegistry = "wardwatch/registry"
)

// Topics provides builders for WardWatch MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.AlarmState()
//	// Returns: "wardwatch/alarm/state"
type Topics struct{}

// SystemStatus returns the system status topic. Online/offline
// payloads and the LWT land here, retained.
//
// Example: wardwatch/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// RegistrySnapshot returns the topic carrying the full device table
// after every change, retained so late subscribers see current state.
//
// Example: wardwatch/registry/snapshot
func (Topics) RegistrySnapshot() string {
	return fmt.Sprintf("%s/snapshot", TopicPrefixRegistry)
}

// DeviceEvent returns the per-device event topic.
//
// Example: wardwatch/registry/device/BRACELET_01/event
func (Topics) DeviceEvent(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/event", TopicPrefixRegistry, deviceID)
}

// AlarmState returns the alarm state topic, retained.
//
// Example: wardwatch/alarm/state
func (Topics) AlarmState() string {
	return fmt.Sprintf("%s/state", TopicPrefixAlarm)
}

// AlarmCommand returns the inbound alarm command topic. Nurse-station
// integrations publish {"action":"test"} or {"action":"stop"} here.
//
// Example: wardwatch/alarm/command
func (Topics) AlarmCommand() string {
	return fmt.Sprintf("%s/command", TopicPrefixAlarm)
}

// AllDeviceEvents returns a pattern matching every per-device event.
//
// Pattern: wardwatch/registry/device/+/event
func (Topics) AllDeviceEvents() string {
	return fmt.Sprintf("%s/device/+/event", TopicPrefixRegistry)
}

// AllTopics returns a pattern matching all WardWatch topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: wardwatch/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
