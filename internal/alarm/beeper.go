package alarm

import (
	"io"
	"os"
	"sync"
	"time"
)

// ConsoleBeeper sounds the alarm through the terminal bell. The
// frequency parameter is carried for sounder hardware that honours it;
// a terminal only ever beeps at one pitch, so here it is ignored and
// only the duration shapes the beep cadence.
type ConsoleBeeper struct {
	mu     sync.Mutex
	out    io.Writer
	stop   chan struct{}
	logger Logger
}

// NewConsoleBeeper creates a beeper writing to out, or os.Stdout when
// out is nil.
func NewConsoleBeeper(out io.Writer) *ConsoleBeeper {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleBeeper{
		out:    out,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the beeper.
func (b *ConsoleBeeper) SetLogger(logger Logger) {
	b.logger = logger
}

// Start begins the beep loop. Calling Start while already sounding is
// a no-op.
func (b *ConsoleBeeper) Start(frequencyHz, durationMs int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stop != nil {
		return
	}

	if durationMs <= 0 {
		durationMs = 500
	}
	// One beep per cycle: sound for durationMs, rest for durationMs.
	period := 2 * time.Duration(durationMs) * time.Millisecond

	b.stop = make(chan struct{})
	go b.loop(b.stop, period)

	b.logger.Debug("sounder started", "frequency_hz", frequencyHz, "duration_ms", durationMs)
}

// Stop silences the beeper. Calling Stop while idle is a no-op.
func (b *ConsoleBeeper) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stop == nil {
		return
	}
	close(b.stop)
	b.stop = nil

	b.logger.Debug("sounder stopped")
}

func (b *ConsoleBeeper) loop(stop chan struct{}, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	// First beep immediately; an alarm that waits a cycle before
	// making noise is an alarm nobody hears.
	b.beep()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b.beep()
		}
	}
}

func (b *ConsoleBeeper) beep() {
	if _, err := b.out.Write([]byte("\a")); err != nil {
		b.logger.Error("writing bell character", "error", err)
	}
}
