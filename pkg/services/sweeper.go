package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically deletes long-expired lock rows. Lock expiry itself is
// evaluated lazily on every lock operation; the sweeper only keeps the table
// from accumulating dead rows.
type Sweeper struct {
	locks    *Locks
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
}

// NewSweeper creates a sweeper running on the given cron schedule.
func NewSweeper(locks *Locks, schedule string, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		locks:    locks,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		_, err := s.locks.SweepExpired(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "lock sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule lock sweep: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "lock sweeper started", "schedule", s.schedule)

	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}
