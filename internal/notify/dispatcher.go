package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wardwatch/wardwatch-core/internal/alarm"
	"github.com/wardwatch/wardwatch-core/internal/device"
)

// Logger defines the logging interface used by the Dispatcher.
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

// Event types fanned out to sinks.
const (
	EventRegistrySnapshot = "registry_snapshot"
	EventAlarmTriggered   = "alarm_triggered"
	EventAlarmStopped     = "alarm_stopped"
)

// Event is one notification delivered to every sink.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// RegistrySnapshot is the payload of a registry_snapshot event.
type RegistrySnapshot struct {
	Devices   []device.Device `json:"devices"`
	Connected int             `json:"connected"`
}

// Sink consumes events. Delivery is at-most-once and ordered per
// dispatcher; a failing sink gets a log line and the next event.
type Sink interface {
	Name() string
	HandleEvent(ctx context.Context, e Event) error
}

// defaultQueueSize bounds the event backlog. Registry churn is a few
// events per second at worst; this absorbs a stalled sink for minutes.
const defaultQueueSize = 256

// Dispatcher decouples registry and alarm mutations from their
// observers. Producers enqueue without blocking; when the queue is
// full the event is dropped and counted, because a wedged dashboard
// must never slow down an emergency path.
//
// Dispatcher satisfies the registry's and coordinator's notifier
// interfaces directly.
type Dispatcher struct {
	mu    sync.Mutex
	sinks []Sink

	queue chan Event
	done  chan struct{}

	logger  Logger
	dropped atomic.Uint64
	closed  atomic.Bool

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewDispatcher creates a dispatcher with the default queue size.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		queue:  make(chan Event, defaultQueueSize),
		done:   make(chan struct{}),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// AddSink registers a sink. Call before Start.
func (d *Dispatcher) AddSink(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

// Start launches the delivery worker. Events enqueued before Start
// are delivered once it runs.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go d.worker(ctx)
}

// Close stops accepting events, drains the backlog and waits for the
// worker to finish.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
	})
	d.wg.Wait()

	if n := d.dropped.Load(); n > 0 {
		d.logger.Warn("events dropped during lifetime", "count", n)
	}
}

// Dropped returns the number of events lost to a full queue.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// RegistryChanged implements device.Notifier.
func (d *Dispatcher) RegistryChanged(devices []device.Device, connected int) {
	d.enqueue(Event{
		Type:      EventRegistrySnapshot,
		Timestamp: time.Now(),
		Payload:   RegistrySnapshot{Devices: devices, Connected: connected},
	})
}

// AlarmTriggered implements alarm.Notifier.
func (d *Dispatcher) AlarmTriggered(a alarm.Alarm) {
	d.enqueue(Event{
		Type:      EventAlarmTriggered,
		Timestamp: time.Now(),
		Payload:   a,
	})
}

// AlarmStopped implements alarm.Notifier.
func (d *Dispatcher) AlarmStopped(a alarm.Alarm) {
	d.enqueue(Event{
		Type:      EventAlarmStopped,
		Timestamp: time.Now(),
		Payload:   a,
	})
}

// enqueue adds an event without blocking. Events arriving after Close
// are dropped.
func (d *Dispatcher) enqueue(e Event) {
	if d.closed.Load() {
		d.dropped.Add(1)
		return
	}
	select {
	case d.queue <- e:
	default:
		d.dropped.Add(1)
		d.logger.Warn("event queue full, dropping", "type", e.Type)
	}
}

// worker delivers events to every sink in registration order.
func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case e := <-d.queue:
			d.deliver(ctx, e)
		case <-d.done:
			// Drain whatever producers managed to enqueue before
			// Close flipped the flag.
			for {
				select {
				case e := <-d.queue:
					d.deliver(ctx, e)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e Event) {
	d.mu.Lock()
	sinks := make([]Sink, len(d.sinks))
	copy(sinks, d.sinks)
	d.mu.Unlock()

	for _, s := range sinks {
		if err := s.HandleEvent(ctx, e); err != nil {
			d.logger.Error("sink delivery failed",
				"sink", s.Name(),
				"type", e.Type,
				"error", err,
			)
		}
	}
}
