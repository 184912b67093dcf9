package background

import (
	"context"
	"log/slog"
	"time"
)

// Sweepable is any store that can drop entries that expired before now.
type Sweepable interface {
	Sweep(now time.Time) int
}

// Sweeper periodically reclaims expired revocation and rate-limit entries.
// It runs on its own schedule, independent of request traffic, and only
// exists to bound memory: request-path correctness never waits on it.
type Sweeper struct {
	registry Sweepable
	limiter  Sweepable
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewSweeper creates a sweeper over the given stores.
func NewSweeper(registry, limiter Sweepable, logger *slog.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		registry: registry,
		limiter:  limiter,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sweep loop. Blocks until Stop is called or ctx
// is cancelled; run it on its own goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on startup
	s.runSweep()

	for {
		select {
		case <-ticker.C:
			s.runSweep()
		case <-s.stopCh:
			s.logger.Info("sweeper stopped")
			return
		case <-ctx.Done():
			s.logger.Info("sweeper context cancelled")
			return
		}
	}
}

func (s *Sweeper) runSweep() {
	now := time.Now()

	revoked := s.registry.Sweep(now)
	attempts := s.limiter.Sweep(now)

	if revoked > 0 || attempts > 0 {
		s.logger.Info("sweep completed",
			slog.Int("revoked_entries_removed", revoked),
			slog.Int("rate_limit_entries_removed", attempts))
	}
}

// Stop signals the sweeper to stop.
func (s *Sweeper) Stop() {
	close(s.stopCh)
}
