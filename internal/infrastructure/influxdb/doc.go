// Package influxdb provides InfluxDB connectivity for WardWatch.
//
// It wraps the official influxdb-client-go v2 library with WardWatch
// patterns for connection management, event history, and health
// monitoring.
//
// # Purpose
//
// This package handles time-series event history for:
//   - Device status transitions (connect, disconnect, idle timeout)
//   - Ward alarm activations and silences
//   - Connected-device counts over time
//
// Ward managers pull this into dashboards to answer questions the live
// view cannot: how often alarms fire, which bracelets flap, how long
// alarms run before someone silences them.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteAlarmEvent(alarmID, "triggered", "bracelet", "BRACELET_01")
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a
// callback. Connection and health check errors are returned directly.
package influxdb
