package influxdb

import "errors"

// Sentinel errors for InfluxDB operations. Write failures are reported
// asynchronously through Client.SetOnError instead.
var (
	// ErrNotConnected indicates the client has been closed.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed indicates the initial ping failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled indicates the influxdb section is disabled.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
