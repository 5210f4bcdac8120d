package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/maxsfamily/stripgate/internal/capability"
)

// Measurement names.
const (
	MeasurementDeviceMetrics      = "device_metrics"
	MeasurementDeviceConnectivity = "device_connectivity"
)

// WriteDeviceState records a full state snapshot for one device.
func (c *Client) WriteDeviceState(deviceID string, state capability.State, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(deviceStatePoint(deviceID, state, at))
}

// WriteConnectivity records a device connecting or disconnecting.
func (c *Client) WriteConnectivity(deviceID string, connected bool, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementDeviceConnectivity,
		map[string]string{"device_id": deviceID},
		map[string]any{"connected": connected},
		at,
	))
}

func deviceStatePoint(deviceID string, state capability.State, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementDeviceMetrics,
		map[string]string{"device_id": deviceID},
		map[string]any{
			"on":         state.On,
			"brightness": state.Brightness,
			"program":    string(state.Program),
			"hue":        state.HSV.H,
			"saturation": state.HSV.S,
			"value":      state.HSV.V,
		},
		at,
	)
}
