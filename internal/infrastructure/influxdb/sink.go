package influxdb

import (
	"context"

	"github.com/wardwatch/wardwatch-core/internal/alarm"
	"github.com/wardwatch/wardwatch-core/internal/device"
	"github.com/wardwatch/wardwatch-core/internal/notify"
)

// EventSink records dispatcher events as time-series points.
type EventSink struct {
	client *Client
}

// NewEventSink creates a sink over a connected client.
func NewEventSink(client *Client) *EventSink {
	return &EventSink{client: client}
}

// Name implements notify.Sink.
func (s *EventSink) Name() string { return "influxdb" }

// HandleEvent implements notify.Sink. Writes are batched inside the
// client, so a slow InfluxDB never shows up here.
func (s *EventSink) HandleEvent(_ context.Context, e notify.Event) error {
	switch e.Type {
	case notify.EventRegistrySnapshot:
		snap, ok := e.Payload.(notify.RegistrySnapshot)
		if !ok {
			return nil
		}
		s.client.WriteConnectedCount(snap.Connected)
		for i := range snap.Devices {
			d := &snap.Devices[i]
			s.client.WriteDeviceStatus(d.DeviceID, d.IPAddress, string(d.Status), d.Emergency == device.EmergencyActive)
		}
	case notify.EventAlarmTriggered:
		if a, ok := e.Payload.(alarm.Alarm); ok {
			s.client.WriteAlarmEvent(a.ID, "triggered", a.Source, a.DeviceID)
		}
	case notify.EventAlarmStopped:
		if a, ok := e.Payload.(alarm.Alarm); ok {
			s.client.WriteAlarmEvent(a.ID, "stopped", a.Source, a.DeviceID)
		}
	}
	return nil
}
