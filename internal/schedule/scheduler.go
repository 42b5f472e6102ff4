package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrCycleInProgress is returned when a trigger fires while the previous
// cycle is still running.
var ErrCycleInProgress = errors.New("scan cycle already in progress")

// Scheduler fires one job per day at a fixed wall-clock time. A run lock
// guarantees at most one concurrent cycle: if a cycle is still running
// when the next trigger fires, the trigger is skipped.
type Scheduler struct {
	hour    int
	minute  int
	job     func(context.Context) error
	running atomic.Bool
	logger  zerolog.Logger
}

func New(hour, minute int, job func(context.Context) error) *Scheduler {
	return &Scheduler{
		hour:   hour,
		minute: minute,
		job:    job,
		logger: log.With().Str("component", "scheduler").Logger(),
	}
}

// Run blocks until the context is cancelled, triggering the job daily.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		next := nextRun(time.Now(), s.hour, s.minute)
		s.logger.Info().Time("next_run", next).Msg("Waiting for next scan cycle")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if err := s.TryRun(ctx); err != nil {
			if errors.Is(err, ErrCycleInProgress) {
				s.logger.Warn().Msg("Previous cycle still running, skipping trigger")
				continue
			}
			s.logger.Error().Err(err).Msg("Scan cycle failed")
		}
	}
}

// TryRun executes the job unless one is already running.
func (s *Scheduler) TryRun(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrCycleInProgress
	}
	defer s.running.Store(false)
	return s.job(ctx)
}

// nextRun returns the next occurrence of hour:minute after now.
func nextRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
