// Package scheduler runs periodic maintenance for the booking workflow.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

type checkoutExpirer interface {
	ExpireAbandoned(ctx context.Context) (int64, error)
}

// Scheduler drops pending checkouts that were never confirmed or cancelled.
type Scheduler struct {
	bookings checkoutExpirer
	interval time.Duration
	logger   *slog.Logger
}

func New(bookings checkoutExpirer, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	return &Scheduler{
		bookings: bookings,
		interval: interval,
		logger:   logger,
	}
}

// Start blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", slog.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	n, err := s.bookings.ExpireAbandoned(ctx)
	if err != nil {
		s.logger.Error("failed to expire abandoned checkouts", slog.Any("error", err))
		return
	}

	if n > 0 {
		s.logger.Info("abandoned checkouts expired", slog.Int64("count", n))
	}
}
