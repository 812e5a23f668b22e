package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wardwatch/wardwatch-core/internal/alarm"
	"github.com/wardwatch/wardwatch-core/internal/notify"
)

// EventSink publishes dispatcher events to the broker. Registry
// snapshots and alarm state go out retained so anything that connects
// late immediately sees the current ward picture.
type EventSink struct {
	client *Client
	topics Topics
	qos    byte
}

// NewEventSink creates a sink over a connected client.
func NewEventSink(client *Client, qos byte) *EventSink {
	return &EventSink{client: client, qos: qos}
}

// Name implements notify.Sink.
func (s *EventSink) Name() string { return "mqtt" }

// HandleEvent implements notify.Sink.
func (s *EventSink) HandleEvent(_ context.Context, e notify.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	switch e.Type {
	case notify.EventRegistrySnapshot:
		return s.client.Publish(s.topics.RegistrySnapshot(), payload, s.qos, true)
	case notify.EventAlarmTriggered, notify.EventAlarmStopped:
		return s.client.Publish(s.topics.AlarmState(), payload, s.qos, true)
	default:
		return nil
	}
}

// AlarmCommander is the subset of the alarm coordinator driven by
// broker commands.
type AlarmCommander interface {
	Activate(t alarm.Trigger) (alarm.Alarm, bool)
	Deactivate(ctx context.Context) (alarm.Alarm, bool)
}

// alarmCommand is the payload of the alarm command topic.
type alarmCommand struct {
	Action string `json:"action"`
}

// SubscribeAlarmCommands wires the alarm command topic to the
// coordinator. "test" raises the alarm, "stop" silences it; anything
// else is rejected with an error for the dispatcher's log.
func SubscribeAlarmCommands(client *Client, alarms AlarmCommander, qos byte) error {
	return client.Subscribe(Topics{}.AlarmCommand(), qos, func(_ string, payload []byte) error {
		var cmd alarmCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("decoding alarm command: %w", err)
		}

		switch strings.ToLower(cmd.Action) {
		case "test":
			alarms.Activate(alarm.Trigger{Source: "mqtt"})
			return nil
		case "stop":
			alarms.Deactivate(context.Background())
			return nil
		default:
			return fmt.Errorf("unknown alarm action %q", cmd.Action)
		}
	})
}
