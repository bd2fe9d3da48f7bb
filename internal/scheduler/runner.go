package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/usagereporter/internal/clock"
	"github.com/goodtune/usagereporter/internal/metrics"
	"github.com/goodtune/usagereporter/internal/storage"
	"github.com/rs/zerolog"
)

// DefaultPollInterval is how often the runner checks for due jobs.
const DefaultPollInterval = 30 * time.Second

const day = 24 * time.Hour

// JobDefinition describes a periodic job. The first fire happens
// InitialDelay after registration and then every Interval.
type JobDefinition struct {
	Name            string
	Interval        time.Duration
	InitialDelay    time.Duration
	RequiresNetwork bool
}

// Handler is the work run when a job fires.
type Handler func(ctx context.Context) error

// JobRunner keeps at most one registration per job name. Enqueue replaces
// an existing registration.
type JobRunner interface {
	Enqueue(ctx context.Context, def JobDefinition) (storage.JobRecord, error)
	Lookup(ctx context.Context, name string) (storage.JobRecord, bool, error)
	Cancel(ctx context.Context, name string) error
}

// Runner is a persistent JobRunner. Registrations live in a JobStore so
// they survive restarts; a poll loop compares the wall clock with each
// job's next fire time.
type Runner struct {
	jobs         storage.JobStore
	clock        clock.Clock
	location     *time.Location
	probe        NetworkProbe
	pollInterval time.Duration
	logger       zerolog.Logger

	mu       sync.Mutex // guards registrations against concurrent poll writes
	handlers map[string]Handler
	running  map[string]bool

	ctx      context.Context
	cancel   context.CancelFunc
	stopChan chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
	started  bool
}

// RunnerConfig holds runner configuration
type RunnerConfig struct {
	PollInterval time.Duration
	Location     *time.Location // day-multiple intervals advance in this zone
	Probe        NetworkProbe
}

// NewRunner creates a runner over jobs.
func NewRunner(jobs storage.JobStore, clk clock.Clock, config RunnerConfig, logger zerolog.Logger) *Runner {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.Probe == nil {
		config.Probe = AlwaysOnline
	}

	return &Runner{
		jobs:         jobs,
		clock:        clk,
		location:     config.Location,
		probe:        config.Probe,
		pollInterval: config.PollInterval,
		logger:       logger.With().Str("component", "job-runner").Logger(),
		handlers:     make(map[string]Handler),
		running:      make(map[string]bool),
		stopChan:     make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Register binds a handler to a job name. Jobs without a handler are kept
// but never fired.
func (r *Runner) Register(name string, handler Handler) {
	r.mu.Lock()
	r.handlers[name] = handler
	r.mu.Unlock()
}

// Enqueue registers def, replacing any registration with the same name.
func (r *Runner) Enqueue(ctx context.Context, def JobDefinition) (storage.JobRecord, error) {
	if def.Name == "" {
		return storage.JobRecord{}, fmt.Errorf("job name is required")
	}
	if def.Interval <= 0 {
		return storage.JobRecord{}, fmt.Errorf("job %s: interval must be positive", def.Name)
	}
	if def.InitialDelay < 0 {
		def.InitialDelay = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	record := storage.JobRecord{
		Name:            def.Name,
		Interval:        def.Interval,
		NextFire:        now.Add(def.InitialDelay),
		RequiresNetwork: def.RequiresNetwork,
		UpdatedAt:       now,
	}
	if err := r.jobs.Upsert(ctx, record); err != nil {
		return storage.JobRecord{}, fmt.Errorf("failed to persist job %s: %w", def.Name, err)
	}

	metrics.NextFireTimestamp.WithLabelValues(def.Name).Set(float64(record.NextFire.Unix()))

	r.logger.Info().
		Str("job", def.Name).
		Time("next_fire", record.NextFire).
		Dur("interval", def.Interval).
		Bool("requires_network", def.RequiresNetwork).
		Msg("Job registered")

	return record, nil
}

// EnsureEnqueued registers def only when no registration exists yet.
func (r *Runner) EnsureEnqueued(ctx context.Context, def JobDefinition) (storage.JobRecord, error) {
	record, found, err := r.Lookup(ctx, def.Name)
	if err != nil {
		return storage.JobRecord{}, err
	}
	if found {
		return record, nil
	}
	return r.Enqueue(ctx, def)
}

// Lookup returns the registration for name.
func (r *Runner) Lookup(ctx context.Context, name string) (storage.JobRecord, bool, error) {
	record, err := r.jobs.Get(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.JobRecord{}, false, nil
	}
	if err != nil {
		return storage.JobRecord{}, false, fmt.Errorf("failed to read job %s: %w", name, err)
	}
	return *record, true, nil
}

// Cancel removes the registration for name. A missing job is not an error.
// A run already in progress is not interrupted.
func (r *Runner) Cancel(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.jobs.Delete(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete job %s: %w", name, err)
	}

	metrics.NextFireTimestamp.DeleteLabelValues(name)
	r.logger.Info().Str("job", name).Msg("Job cancelled")
	return nil
}

// List returns every registration.
func (r *Runner) List(ctx context.Context) ([]storage.JobRecord, error) {
	return r.jobs.List(ctx)
}

// Start begins polling. Jobs that fell due while the process was down fire
// on the first poll.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	go r.run()

	r.logger.Info().Dur("poll_interval", r.pollInterval).Msg("Job runner started")
}

// Stop ends polling and waits for running handlers to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	r.mu.Unlock()

	close(r.stopChan)
	<-r.done
	r.wg.Wait()
	r.cancel()

	r.logger.Info().Msg("Job runner stopped")
}

func (r *Runner) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.poll(r.ctx)
	for {
		select {
		case <-ticker.C:
			r.poll(r.ctx)
		case <-r.stopChan:
			return
		case <-r.ctx.Done():
			return
		}
	}
}

// poll fires every due job once. It is also driven directly by tests.
func (r *Runner) poll(ctx context.Context) {
	records, err := r.jobs.List(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to list jobs")
		return
	}

	now := r.clock.Now()
	for _, record := range records {
		if record.Interval <= 0 {
			continue
		}

		if rewound, ok := r.rewind(record.NextFire, now, record.Interval); ok {
			r.reanchor(ctx, record, rewound, now)
			continue
		}

		if now.Before(record.NextFire) {
			continue
		}

		if record.RequiresNetwork && !r.probe.Available(ctx) {
			metrics.JobFiresTotal.WithLabelValues(record.Name, "deferred").Inc()
			r.logger.Warn().
				Str("job", record.Name).
				Time("due", record.NextFire).
				Msg("Network unavailable, deferring job")
			continue
		}

		r.fireIfDue(ctx, record, now)
	}
}

// fireIfDue advances and persists the next fire before running the handler
// so each period runs at most once.
func (r *Runner) fireIfDue(ctx context.Context, seen storage.JobRecord, now time.Time) {
	r.mu.Lock()

	handler, ok := r.handlers[seen.Name]
	if !ok {
		r.mu.Unlock()
		r.logger.Debug().Str("job", seen.Name).Msg("Due job has no handler")
		return
	}
	if r.running[seen.Name] {
		r.mu.Unlock()
		r.logger.Warn().Str("job", seen.Name).Msg("Previous run still in progress, skipping")
		return
	}

	// The registration may have been replaced or cancelled since List.
	current, err := r.jobs.Get(ctx, seen.Name)
	if err != nil || !current.NextFire.Equal(seen.NextFire) || current.Interval != seen.Interval {
		r.mu.Unlock()
		return
	}

	next := r.advance(current.NextFire, now, current.Interval)
	updated := *current
	updated.NextFire = next
	updated.UpdatedAt = now
	if err := r.jobs.Upsert(ctx, updated); err != nil {
		r.mu.Unlock()
		r.logger.Error().Err(err).Str("job", seen.Name).Msg("Failed to advance job, not firing")
		return
	}

	r.running[seen.Name] = true
	r.wg.Add(1)
	r.mu.Unlock()

	metrics.NextFireTimestamp.WithLabelValues(seen.Name).Set(float64(next.Unix()))

	r.logger.Info().
		Str("job", seen.Name).
		Time("scheduled", seen.NextFire).
		Time("next_fire", next).
		Msg("Firing job")

	go r.execute(ctx, seen.Name, handler)
}

func (r *Runner) execute(ctx context.Context, name string, handler Handler) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		delete(r.running, name)
		r.mu.Unlock()
	}()
	defer func() {
		if p := recover(); p != nil {
			metrics.JobFiresTotal.WithLabelValues(name, "panic").Inc()
			r.logger.Error().Interface("panic", p).Str("job", name).Msg("Job panicked")
		}
	}()

	if err := handler(ctx); err != nil {
		metrics.JobFiresTotal.WithLabelValues(name, "error").Inc()
		r.logger.Error().Err(err).Str("job", name).Msg("Job failed")
		return
	}
	metrics.JobFiresTotal.WithLabelValues(name, "ok").Inc()
}

func (r *Runner) reanchor(ctx context.Context, seen storage.JobRecord, next, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.jobs.Get(ctx, seen.Name)
	if err != nil || !current.NextFire.Equal(seen.NextFire) {
		return
	}

	updated := *current
	updated.NextFire = next
	updated.UpdatedAt = now
	if err := r.jobs.Upsert(ctx, updated); err != nil {
		r.logger.Error().Err(err).Str("job", seen.Name).Msg("Failed to re-anchor job")
		return
	}

	metrics.NextFireTimestamp.WithLabelValues(seen.Name).Set(float64(next.Unix()))
	r.logger.Warn().
		Str("job", seen.Name).
		Time("was", seen.NextFire).
		Time("next_fire", next).
		Msg("Clock moved backwards, job re-anchored")
}

// advance moves next forward by whole intervals until it is after now.
// Day-multiple intervals step in calendar days so the local time of day
// holds across DST changes.
func (r *Runner) advance(next, now time.Time, interval time.Duration) time.Time {
	for !next.After(now) {
		next = r.step(next, interval, 1)
	}
	return next
}

// rewind pulls next back while the previous occurrence is still in the
// future, which only happens after the wall clock moved backwards.
func (r *Runner) rewind(next, now time.Time, interval time.Duration) (time.Time, bool) {
	moved := false
	for {
		prev := r.step(next, interval, -1)
		if !prev.After(now) {
			return next, moved
		}
		next = prev
		moved = true
	}
}

func (r *Runner) step(t time.Time, interval time.Duration, sign int) time.Time {
	if interval%day == 0 {
		days := int(interval / day)
		return t.In(r.location).AddDate(0, 0, sign*days)
	}
	return t.Add(time.Duration(sign) * interval)
}
