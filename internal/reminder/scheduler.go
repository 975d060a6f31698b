package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Runner is satisfied by Job.
type Runner interface {
	Run(ctx context.Context) (Result, error)
}

// Scheduler fires the reminder job once a day at a fixed local time.
type Scheduler struct {
	runner Runner
	hour   int
	minute int
	loc    *time.Location
	logger *zerolog.Logger
	now    func() time.Time
}

func NewScheduler(runner Runner, at string, loc *time.Location, logger *zerolog.Logger) (*Scheduler, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(at, "%d:%d", &hour, &minute); err != nil || hour > 23 || minute > 59 || hour < 0 || minute < 0 {
		return nil, fmt.Errorf("invalid reminder time %q", at)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{runner: runner, hour: hour, minute: minute, loc: loc, logger: logger, now: time.Now}, nil
}

// Start blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	wait := s.untilNext()
	s.logger.Info().Dur("first_run_in", wait).Msg("Reminder scheduler started")

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if _, err := s.runner.Run(ctx); err != nil {
				s.logger.Error().Err(err).Msg("reminder run failed")
			}
			timer.Reset(s.untilNext())
		}
	}
}

func (s *Scheduler) untilNext() time.Duration {
	now := s.now().In(s.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
