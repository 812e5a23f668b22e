package alarm

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger defines the logging interface used by the Coordinator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// State is the ward-wide alarm state. There is exactly one alarm for
// the whole ward: concurrent emergencies share it rather than stacking.
type State string

const (
	StateIdle   State = "IDLE"
	StateActive State = "ACTIVE"
)

// Alarm describes one activation of the ward alarm.
type Alarm struct {
	// ID is unique per activation, for event correlation downstream.
	ID string `json:"id"`

	// Source names what raised the alarm: "bracelet" for device
	// emergencies, "manual" for dashboard test triggers.
	Source string `json:"source"`

	// Device context captured at activation time. Later emergencies
	// while the alarm is already active do not replace these; the
	// first caller owns the alarm metadata.
	DeviceID    string `json:"device_id,omitempty"`
	PatientName string `json:"patient_name,omitempty"`
	RoomNumber  string `json:"room_number,omitempty"`
	BedNumber   string `json:"bed_number,omitempty"`

	TriggeredAt time.Time `json:"triggered_at"`
}

// Trigger carries the context of an activation request.
type Trigger struct {
	Source      string
	DeviceID    string
	PatientName string
	RoomNumber  string
	BedNumber   string
}

// Beeper drives the audible sounder. Start is called once per
// activation and must return immediately; the sounder keeps going
// until Stop. Both must be idempotent.
type Beeper interface {
	Start(frequencyHz, durationMs int)
	Stop()
}

// NoopBeeper is a silent sounder, for tests and headless deployments.
type NoopBeeper struct{}

func (NoopBeeper) Start(int, int) {}
func (NoopBeeper) Stop()          {}

// DeviceClearer clears per-device emergency flags when the ward alarm
// is silenced. Satisfied by device.Registry.
type DeviceClearer interface {
	ClearAllEmergencies(ctx context.Context) int
}

// Notifier receives alarm lifecycle events. Implementations must not
// block.
type Notifier interface {
	AlarmTriggered(a Alarm)
	AlarmStopped(a Alarm)
}

// noopNotifier discards alarm events.
type noopNotifier struct{}

func (noopNotifier) AlarmTriggered(Alarm) {}
func (noopNotifier) AlarmStopped(Alarm)   {}

// Coordinator owns the singleton ward alarm. Activations while the
// alarm is already sounding are logged no-ops; every device emergency
// still lands in the registry, but the sounder is not restarted and
// the alarm metadata keeps its first trigger.
type Coordinator struct {
	mu      sync.Mutex
	current *Alarm

	beeper   Beeper
	devices  DeviceClearer
	notifier Notifier
	logger   Logger

	frequencyHz int
	durationMs  int
}

// NewCoordinator creates an idle coordinator. The sounder parameters
// are passed to the beeper on every activation.
func NewCoordinator(devices DeviceClearer, beeper Beeper, frequencyHz, durationMs int) *Coordinator {
	if beeper == nil {
		beeper = NoopBeeper{}
	}
	return &Coordinator{
		beeper:      beeper,
		devices:     devices,
		notifier:    noopNotifier{},
		logger:      noopLogger{},
		frequencyHz: frequencyHz,
		durationMs:  durationMs,
	}
}

// SetLogger sets the logger for the coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	c.logger = logger
}

// SetNotifier sets the alarm event sink.
func (c *Coordinator) SetNotifier(n Notifier) {
	if n == nil {
		n = noopNotifier{}
	}
	c.notifier = n
}

// Activate raises the ward alarm. Returns the alarm and true when this
// call started it, or the already-running alarm and false when it was
// active. The duplicate path changes nothing: same sounder, same
// metadata, one log line.
func (c *Coordinator) Activate(t Trigger) (Alarm, bool) {
	c.mu.Lock()

	if c.current != nil {
		a := *c.current
		c.mu.Unlock()
		c.logger.Info("alarm already active, activation ignored",
			"alarm_id", a.ID,
			"source", t.Source,
			"device_id", t.DeviceID,
		)
		return a, false
	}

	a := Alarm{
		ID:          uuid.New().String(),
		Source:      t.Source,
		DeviceID:    t.DeviceID,
		PatientName: t.PatientName,
		RoomNumber:  t.RoomNumber,
		BedNumber:   t.BedNumber,
		TriggeredAt: time.Now(),
	}
	c.current = &a
	c.mu.Unlock()

	c.logger.Warn("ward alarm activated",
		"alarm_id", a.ID,
		"source", a.Source,
		"device_id", a.DeviceID,
		"patient", a.PatientName,
		"room", a.RoomNumber,
	)

	c.beeper.Start(c.frequencyHz, c.durationMs)
	c.notifier.AlarmTriggered(a)
	return a, true
}

// Deactivate silences the ward alarm, stops the sounder and clears
// every device emergency. Returns the alarm that was stopped and true,
// or a zero Alarm and false when the ward was already idle. The idle
// path is a logged no-op.
func (c *Coordinator) Deactivate(ctx context.Context) (Alarm, bool) {
	c.mu.Lock()

	if c.current == nil {
		c.mu.Unlock()
		c.logger.Debug("alarm deactivation with no active alarm")
		return Alarm{}, false
	}

	a := *c.current
	c.current = nil
	c.mu.Unlock()

	c.beeper.Stop()

	cleared := 0
	if c.devices != nil {
		cleared = c.devices.ClearAllEmergencies(ctx)
	}

	c.logger.Info("ward alarm deactivated",
		"alarm_id", a.ID,
		"duration", time.Since(a.TriggeredAt).String(),
		"emergencies_cleared", cleared,
	)

	c.notifier.AlarmStopped(a)
	return a, true
}

// State returns the current alarm state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		return StateActive
	}
	return StateIdle
}

// Current returns a copy of the active alarm, if any.
func (c *Coordinator) Current() (Alarm, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return Alarm{}, false
	}
	return *c.current, true
}
