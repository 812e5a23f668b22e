package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDeviceStatus records one device's state at a moment in time.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Patient names deliberately stay out of the time series: status
// history is operational data, the clinical assignment lives in the
// registry.
//
// Parameters:
//   - deviceID: Bracelet identifier
//   - ip: Device IP address
//   - status: Lifecycle state (READY, CONNECTED, EMERGENCY, DISCONNECTED)
//   - emergency: Whether the emergency flag is active
func (c *Client) WriteDeviceStatus(deviceID, ip, status string, emergency bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_status",
		map[string]string{
			"device_id": deviceID,
			"ip":        ip,
			"status":    status,
		},
		map[string]interface{}{
			"emergency": emergency,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteConnectedCount records the ward's online device total.
func (c *Client) WriteConnectedCount(count int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"ward",
		nil,
		map[string]interface{}{
			"connected_devices": count,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteAlarmEvent records an alarm lifecycle transition.
//
// Parameters:
//   - alarmID: Unique activation identifier
//   - event: "triggered" or "stopped"
//   - source: What raised the alarm ("bracelet", "manual", "mqtt")
//   - deviceID: The device behind the activation, if any
func (c *Client) WriteAlarmEvent(alarmID, event, source, deviceID string) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"event":  event,
		"source": source,
	}
	if deviceID != "" {
		tags["device_id"] = deviceID
	}

	point := write.NewPoint(
		"alarm_events",
		tags,
		map[string]interface{}{
			"alarm_id": alarmID,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
