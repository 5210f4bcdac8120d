package mqtt

import "strings"

// TopicPrefix is the root of every topic the gateway uses.
const TopicPrefix = "stripgate"

// Topics builds the gateway's topic names:
//
//	stripgate/gateway/status     retained gateway online/offline (also the LWT)
//	stripgate/state/{id}         retained device state JSON
//	stripgate/status/{id}        retained "online" / "offline" per device
//	stripgate/command/{id}       inbound {"instance": ..., "value": ...}
//	stripgate/ack/{id}           result of each inbound command
type Topics struct{}

// GatewayStatus returns the gateway's own status topic.
func (Topics) GatewayStatus() string {
	return TopicPrefix + "/gateway/status"
}

// DeviceState returns the retained state topic for a device.
func (Topics) DeviceState(id string) string {
	return TopicPrefix + "/state/" + id
}

// DeviceStatus returns the retained connectivity topic for a device.
func (Topics) DeviceStatus(id string) string {
	return TopicPrefix + "/status/" + id
}

// DeviceCommand returns the inbound command topic for a device.
func (Topics) DeviceCommand(id string) string {
	return TopicPrefix + "/command/" + id
}

// DeviceAck returns the topic command results are published on.
func (Topics) DeviceAck(id string) string {
	return TopicPrefix + "/ack/" + id
}

// AllDeviceCommands matches the command topic of every device.
func (Topics) AllDeviceCommands() string {
	return TopicPrefix + "/command/+"
}

// ParseDeviceCommand extracts the device id from a command topic.
func (Topics) ParseDeviceCommand(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, TopicPrefix+"/command/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
