package device

import (
	"context"
	"time"
)

// Sweeper periodically demotes silent devices. Bracelets send a line at
// least every few seconds while alive, so a device that has been quiet
// past the idle threshold has lost power or walked out of range without
// the socket noticing.
type Sweeper struct {
	registry *Registry
	interval time.Duration
	maxIdle  time.Duration
	logger   Logger
}

// NewSweeper creates a sweeper over the given registry.
func NewSweeper(registry *Registry, interval, maxIdle time.Duration) *Sweeper {
	return &Sweeper{
		registry: registry,
		interval: interval,
		maxIdle:  maxIdle,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the sweeper.
func (s *Sweeper) SetLogger(logger Logger) {
	s.logger = logger
}

// Run sweeps on the configured interval until the context is cancelled.
// Blocks; run in a goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("stale device sweeper started",
		"interval", s.interval.String(),
		"max_idle", s.maxIdle.String(),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stale device sweeper stopped")
			return
		case <-ticker.C:
			if swept := s.registry.SweepStale(ctx, s.maxIdle); swept > 0 {
				s.logger.Info("stale devices swept", "count", swept)
			}
		}
	}
}
