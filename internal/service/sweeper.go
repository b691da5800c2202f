package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sweeper runs the orphan sweep on a fixed interval until stopped.
type Sweeper struct {
	cleanup  *CleanupService
	interval time.Duration
	minAge   int

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewSweeper returns a sweeper deleting orphans older than minAgeDays every
// interval.
func NewSweeper(cleanup *CleanupService, interval time.Duration, minAgeDays int) *Sweeper {
	return &Sweeper{
		cleanup:  cleanup,
		interval: interval,
		minAge:   minAgeDays,
	}
}

// Start launches the sweep loop. It returns immediately; the loop ends when
// ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("orphan sweeper started", "interval", s.interval, "min_age_days", s.minAge)
		for {
			select {
			case <-ctx.Done():
				slog.Info("orphan sweeper stopped")
				return
			case <-ticker.C:
				result := s.cleanup.CleanupOrphanedFiles(ctx, s.minAge)
				if !result.Success {
					slog.Error("scheduled orphan sweep failed", "error", result.Error)
				}
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-progress sweep to return.
func (s *Sweeper) Stop() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
	s.wg.Wait()
}
