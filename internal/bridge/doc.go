// Package bridge mirrors the device registry onto external systems.
//
// Bridge publishes every device's state and connectivity to MQTT as
// retained messages and accepts capability commands on
// stripgate/command/{id}, applying them through the registry exactly like
// a platform action. Telemetry writes state changes and connectivity to
// InfluxDB. Both are registry observers and both are optional.
package bridge
