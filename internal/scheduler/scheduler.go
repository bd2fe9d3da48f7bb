package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/usagereporter/internal/clock"
	"github.com/goodtune/usagereporter/internal/storage"
	"github.com/rs/zerolog"
)

const (
	// DailyReportJob is the unique name of the daily report registration.
	DailyReportJob = "daily_usage_report"

	// RetentionJob is the unique name of the usage retention registration.
	RetentionJob = "usage_retention"
)

// ErrSchedulerUnavailable is returned when the job runner cannot register
// or remove the daily job.
var ErrSchedulerUnavailable = errors.New("scheduler unavailable")

// Scheduler keeps the daily report job in step with the user's send time.
type Scheduler struct {
	runner   JobRunner
	clock    clock.Clock
	location *time.Location
	logger   zerolog.Logger
}

// New creates a scheduler. Send times are interpreted in loc.
func New(runner JobRunner, clk clock.Clock, loc *time.Location, logger zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		runner:   runner,
		clock:    clk,
		location: loc,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// NextOccurrence returns the first instant strictly after now whose local
// time is hour:minute. A time equal to now is treated as already passed.
func NextOccurrence(now time.Time, hour, minute int) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !today.After(now) {
		return time.Date(now.Year(), now.Month(), now.Day()+1, hour, minute, 0, 0, now.Location())
	}
	return today
}

// ScheduleOrUpdate registers the daily job to fire next at hour:minute,
// replacing any previous registration, and returns the next fire time.
func (s *Scheduler) ScheduleOrUpdate(ctx context.Context, hour, minute int) (time.Time, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("invalid send time %02d:%02d", hour, minute)
	}

	now := s.clock.Now().In(s.location)
	next := NextOccurrence(now, hour, minute)

	record, err := s.runner.Enqueue(ctx, JobDefinition{
		Name:            DailyReportJob,
		Interval:        day,
		InitialDelay:    next.Sub(now),
		RequiresNetwork: true,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrSchedulerUnavailable, err)
	}

	s.logger.Info().
		Str("send_time", fmt.Sprintf("%02d:%02d", hour, minute)).
		Time("next_fire", record.NextFire).
		Msg("Daily report scheduled")

	return record.NextFire, nil
}

// Cancel removes the daily job. It is safe to call when nothing is
// scheduled.
func (s *Scheduler) Cancel(ctx context.Context) error {
	if err := s.runner.Cancel(ctx, DailyReportJob); err != nil {
		return fmt.Errorf("%w: %w", ErrSchedulerUnavailable, err)
	}
	return nil
}

// NextFire reports when the daily job fires next, if it is scheduled.
func (s *Scheduler) NextFire(ctx context.Context) (time.Time, bool, error) {
	record, found, err := s.runner.Lookup(ctx, DailyReportJob)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %w", ErrSchedulerUnavailable, err)
	}
	if !found {
		return time.Time{}, false, nil
	}
	return record.NextFire.In(s.location), true, nil
}

// Apply schedules the daily job when sending is enabled and a webhook is
// configured, and cancels it otherwise. A registration already at the
// requested time of day is left alone so a deferred fire is not lost.
func (s *Scheduler) Apply(ctx context.Context, settings storage.ReportSettings) error {
	if settings.SendEnabled && settings.WebhookConfigured() {
		next, found, err := s.NextFire(ctx)
		if err != nil {
			return err
		}
		if found && next.Hour() == settings.SendHour && next.Minute() == settings.SendMinute {
			return nil
		}
		_, err = s.ScheduleOrUpdate(ctx, settings.SendHour, settings.SendMinute)
		return err
	}

	s.logger.Info().
		Bool("send_enabled", settings.SendEnabled).
		Bool("webhook_configured", settings.WebhookConfigured()).
		Msg("Daily report not scheduled")
	return s.Cancel(ctx)
}
