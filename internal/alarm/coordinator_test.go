package alarm

import (
	"context"
	"sync"
	"testing"
)

// mockBeeper records sounder calls.
type mockBeeper struct {
	mu     sync.Mutex
	starts int
	stops  int
	freq   int
	dur    int
}

func (m *mockBeeper) Start(frequencyHz, durationMs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	m.freq = frequencyHz
	m.dur = durationMs
}

func (m *mockBeeper) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
}

// mockClearer counts emergency-clear sweeps.
type mockClearer struct {
	calls   int
	cleared int
}

func (m *mockClearer) ClearAllEmergencies(context.Context) int {
	m.calls++
	return m.cleared
}

// recordingNotifier captures alarm lifecycle events.
type recordingNotifier struct {
	mu        sync.Mutex
	triggered []Alarm
	stopped   []Alarm
}

func (n *recordingNotifier) AlarmTriggered(a Alarm) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.triggered = append(n.triggered, a)
}

func (n *recordingNotifier) AlarmStopped(a Alarm) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopped = append(n.stopped, a)
}

func TestCoordinator_Activate(t *testing.T) {
	beeper := &mockBeeper{}
	c := NewCoordinator(&mockClearer{}, beeper, 1000, 500)
	notifier := &recordingNotifier{}
	c.SetNotifier(notifier)

	a, started := c.Activate(Trigger{
		Source:      "bracelet",
		DeviceID:    "BRACELET_01",
		PatientName: "Siti Rahma",
		RoomNumber:  "A-12",
	})

	if !started {
		t.Fatal("Activate returned started=false on idle coordinator")
	}
	if a.ID == "" {
		t.Error("alarm ID not assigned")
	}
	if a.TriggeredAt.IsZero() {
		t.Error("TriggeredAt not set")
	}
	if c.State() != StateActive {
		t.Errorf("State = %s, want ACTIVE", c.State())
	}
	if beeper.starts != 1 || beeper.freq != 1000 || beeper.dur != 500 {
		t.Errorf("beeper starts=%d freq=%d dur=%d, want 1/1000/500", beeper.starts, beeper.freq, beeper.dur)
	}
	if len(notifier.triggered) != 1 {
		t.Errorf("notifier received %d triggers, want 1", len(notifier.triggered))
	}
}

func TestCoordinator_Activate_DuplicateIsNoOp(t *testing.T) {
	beeper := &mockBeeper{}
	c := NewCoordinator(&mockClearer{}, beeper, 1000, 500)
	notifier := &recordingNotifier{}
	c.SetNotifier(notifier)

	first, _ := c.Activate(Trigger{Source: "bracelet", DeviceID: "BRACELET_01", PatientName: "Siti Rahma"})
	second, started := c.Activate(Trigger{Source: "bracelet", DeviceID: "BRACELET_02", PatientName: "Budi Santoso"})

	if started {
		t.Error("second Activate returned started=true")
	}
	if second.ID != first.ID {
		t.Errorf("second activation returned alarm %s, want the running alarm %s", second.ID, first.ID)
	}
	if second.DeviceID != "BRACELET_01" {
		t.Errorf("alarm metadata = %s, first trigger must own it", second.DeviceID)
	}
	if beeper.starts != 1 {
		t.Errorf("beeper started %d times, want 1", beeper.starts)
	}
	if len(notifier.triggered) != 1 {
		t.Errorf("notifier received %d triggers, want 1", len(notifier.triggered))
	}
}

func TestCoordinator_Deactivate(t *testing.T) {
	beeper := &mockBeeper{}
	clearer := &mockClearer{cleared: 3}
	c := NewCoordinator(clearer, beeper, 1000, 500)
	notifier := &recordingNotifier{}
	c.SetNotifier(notifier)

	activated, _ := c.Activate(Trigger{Source: "bracelet", DeviceID: "BRACELET_01"})
	stopped, ok := c.Deactivate(context.Background())

	if !ok {
		t.Fatal("Deactivate returned ok=false on active coordinator")
	}
	if stopped.ID != activated.ID {
		t.Errorf("deactivated alarm %s, want %s", stopped.ID, activated.ID)
	}
	if c.State() != StateIdle {
		t.Errorf("State = %s, want IDLE", c.State())
	}
	if beeper.stops != 1 {
		t.Errorf("beeper stopped %d times, want 1", beeper.stops)
	}
	if clearer.calls != 1 {
		t.Errorf("emergencies cleared %d times, want 1", clearer.calls)
	}
	if len(notifier.stopped) != 1 {
		t.Errorf("notifier received %d stops, want 1", len(notifier.stopped))
	}
}

func TestCoordinator_Deactivate_IdleIsNoOp(t *testing.T) {
	beeper := &mockBeeper{}
	clearer := &mockClearer{}
	c := NewCoordinator(clearer, beeper, 1000, 500)
	notifier := &recordingNotifier{}
	c.SetNotifier(notifier)

	_, ok := c.Deactivate(context.Background())

	if ok {
		t.Error("Deactivate returned ok=true on idle coordinator")
	}
	if beeper.stops != 0 {
		t.Errorf("beeper stopped %d times, want 0", beeper.stops)
	}
	if clearer.calls != 0 {
		t.Errorf("emergencies cleared %d times, want 0", clearer.calls)
	}
	if len(notifier.stopped) != 0 {
		t.Errorf("notifier received %d stops, want 0", len(notifier.stopped))
	}
}

func TestCoordinator_ReactivateAfterDeactivate(t *testing.T) {
	c := NewCoordinator(&mockClearer{}, &mockBeeper{}, 1000, 500)

	first, _ := c.Activate(Trigger{Source: "bracelet"})
	c.Deactivate(context.Background())
	second, started := c.Activate(Trigger{Source: "manual"})

	if !started {
		t.Fatal("reactivation after deactivate failed")
	}
	if second.ID == first.ID {
		t.Error("reactivation reused the previous alarm ID")
	}
	if second.Source != "manual" {
		t.Errorf("Source = %s, want manual", second.Source)
	}
}

func TestCoordinator_Current(t *testing.T) {
	c := NewCoordinator(&mockClearer{}, &mockBeeper{}, 1000, 500)

	if _, ok := c.Current(); ok {
		t.Error("Current returned ok=true on idle coordinator")
	}

	activated, _ := c.Activate(Trigger{Source: "bracelet", RoomNumber: "A-12"})
	current, ok := c.Current()
	if !ok {
		t.Fatal("Current returned ok=false on active coordinator")
	}
	if current.ID != activated.ID || current.RoomNumber != "A-12" {
		t.Errorf("Current = %+v", current)
	}
}

func TestCoordinator_ConcurrentActivation(t *testing.T) {
	beeper := &mockBeeper{}
	c := NewCoordinator(&mockClearer{}, beeper, 1000, 500)

	var wg sync.WaitGroup
	startedCount := make(chan bool, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, started := c.Activate(Trigger{Source: "bracelet"})
			startedCount <- started
		}()
	}
	wg.Wait()
	close(startedCount)

	starts := 0
	for started := range startedCount {
		if started {
			starts++
		}
	}
	if starts != 1 {
		t.Errorf("%d activations reported started=true, want exactly 1", starts)
	}
	if beeper.starts != 1 {
		t.Errorf("beeper started %d times, want 1", beeper.starts)
	}
}

func TestConsoleBeeper_StartStopIdempotent(t *testing.T) {
	b := NewConsoleBeeper(discardWriter{})

	b.Start(1000, 10)
	b.Start(1000, 10) // second start is a no-op
	b.Stop()
	b.Stop() // second stop is a no-op

	// Restart after stop works.
	b.Start(1000, 10)
	b.Stop()
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
