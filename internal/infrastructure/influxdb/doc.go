// Package influxdb writes device telemetry to InfluxDB v2 using
// github.com/influxdata/influxdb-client-go/v2.
//
// Every state change becomes a device_metrics point tagged with device_id;
// connects and disconnects become device_connectivity points. Writes are
// batched and never block the caller.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteDeviceState("kitchen", state, time.Now())
package influxdb
