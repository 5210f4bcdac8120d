package bridge

import (
	"time"

	"github.com/maxsfamily/stripgate/internal/capability"
	"github.com/maxsfamily/stripgate/internal/device"
)

// MetricsWriter is the subset of *influxdb.Client used for telemetry.
// Its writes must not block.
type MetricsWriter interface {
	WriteDeviceState(deviceID string, state capability.State, at time.Time)
	WriteConnectivity(deviceID string, connected bool, at time.Time)
}

// Telemetry is a registry observer that records state and connectivity
// changes as time-series points.
type Telemetry struct {
	w   MetricsWriter
	now func() time.Time
}

// NewTelemetry creates a Telemetry observer writing to w.
func NewTelemetry(w MetricsWriter) *Telemetry {
	return &Telemetry{w: w, now: time.Now}
}

// DeviceRegistered implements device.Observer.
func (t *Telemetry) DeviceRegistered(d device.Device) {
	at := t.now()
	t.w.WriteConnectivity(d.ID, d.Connected(), at)
	t.w.WriteDeviceState(d.ID, d.State, at)
}

// DeviceDeregistered implements device.Observer.
func (t *Telemetry) DeviceDeregistered(id string) {
	t.w.WriteConnectivity(id, false, t.now())
}

// StateChanged implements device.Observer.
func (t *Telemetry) StateChanged(id string, state capability.State) {
	t.w.WriteDeviceState(id, state, t.now())
}
