package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/usagereporter/internal/clock"
	"github.com/goodtune/usagereporter/internal/metrics"
	"github.com/goodtune/usagereporter/internal/report"
	"github.com/goodtune/usagereporter/internal/storage"
	"github.com/goodtune/usagereporter/internal/usage"
	"github.com/rs/zerolog"
)

// Trigger says what started a run.
type Trigger string

const (
	Scheduled Trigger = "scheduled"
	Manual    Trigger = "manual"
)

// Status classifies the result of a run.
type Status string

const (
	// StatusSkipped means sending is disabled or no webhook is set. It is a
	// successful no-op.
	StatusSkipped Status = "skipped"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
	// StatusUnavailable means usage data could not be read on a manual run.
	// Nothing is recorded; the caller has to restore access first.
	StatusUnavailable Status = "unavailable"
)

// Result is the classified outcome of one run.
type Result struct {
	Trigger Trigger   `json:"trigger"`
	Status  Status    `json:"status"`
	Reason  string    `json:"reason,omitempty"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
	Err     error     `json:"-"`
}

// OK reports whether the run ended without a failure.
func (r Result) OK() bool {
	return r.Status == StatusSent || r.Status == StatusSkipped
}

// SettingsReader returns a settings snapshot.
type SettingsReader interface {
	Read(ctx context.Context) (storage.ReportSettings, error)
}

// UsageReader returns today's usage from local midnight until now.
type UsageReader interface {
	Today(ctx context.Context) (*usage.Day, error)
}

// MessageComposer renders the report text.
type MessageComposer interface {
	Compose(entries []usage.Entry, date time.Time) string
	TestMessage() string
}

// Deliverer posts a message to the webhook.
type Deliverer interface {
	Deliver(ctx context.Context, destination, text string) error
}

// OutcomeRecorder persists the latest outcome.
type OutcomeRecorder interface {
	RecordSuccess(ctx context.Context, at time.Time) error
	RecordFailure(ctx context.Context, message string) error
}

// Pipeline reads settings, aggregates usage, filters and composes the
// report, delivers it and records the outcome.
type Pipeline struct {
	settings SettingsReader
	usage    UsageReader
	composer MessageComposer
	delivery Deliverer
	outcomes OutcomeRecorder
	notifier Notifier
	clock    clock.Clock
	logger   zerolog.Logger
}

// Deps groups the pipeline's collaborators.
type Deps struct {
	Settings SettingsReader
	Usage    UsageReader
	Composer MessageComposer
	Delivery Deliverer
	Outcomes OutcomeRecorder
	Notifier Notifier // optional
	Clock    clock.Clock
}

// New creates a pipeline.
func New(deps Deps, logger zerolog.Logger) *Pipeline {
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	return &Pipeline{
		settings: deps.Settings,
		usage:    deps.Usage,
		composer: deps.Composer,
		delivery: deps.Delivery,
		outcomes: deps.Outcomes,
		notifier: deps.Notifier,
		clock:    deps.Clock,
		logger:   logger.With().Str("component", "pipeline").Logger(),
	}
}

// Run executes the pipeline once. It never panics and every failure is
// converted into a Result.
func (p *Pipeline) Run(ctx context.Context, trigger Trigger) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = p.fail(ctx, trigger, fmt.Errorf("report pipeline panicked: %v", r))
		}
		metrics.PipelineRunsTotal.WithLabelValues(string(trigger), string(result.Status)).Inc()
		p.logResult(result)
	}()

	settings, err := p.settings.Read(ctx)
	if err != nil {
		return p.fail(ctx, trigger, err)
	}

	if !settings.SendEnabled || !settings.WebhookConfigured() {
		reason := "sending is disabled"
		if settings.SendEnabled {
			reason = "no webhook configured"
		}
		return Result{Trigger: trigger, Status: StatusSkipped, Reason: reason, At: p.clock.Now()}
	}

	day, err := p.usage.Today(ctx)
	if err != nil {
		if trigger == Manual && errors.Is(err, usage.ErrSourceUnavailable) {
			return Result{
				Trigger: trigger,
				Status:  StatusUnavailable,
				Reason:  err.Error(),
				At:      p.clock.Now(),
				Err:     err,
			}
		}
		return p.fail(ctx, trigger, err)
	}

	entries := report.Filter(day.Entries, settings.ExcludedApplicationIDs)
	text := p.composer.Compose(entries, day.End)

	if err := p.delivery.Deliver(ctx, settings.DestinationURL, text); err != nil {
		result := p.fail(ctx, trigger, err)
		result.Message = text
		return result
	}

	sentAt := p.clock.Now()
	if err := p.outcomes.RecordSuccess(ctx, sentAt); err != nil {
		p.logger.Error().Err(err).Msg("Failed to record successful send")
	}

	return Result{Trigger: trigger, Status: StatusSent, Message: text, At: sentAt}
}

// SendTest delivers the fixed test message to the configured webhook. The
// send outcome is not touched.
func (p *Pipeline) SendTest(ctx context.Context) Result {
	settings, err := p.settings.Read(ctx)
	if err != nil {
		return Result{Trigger: Manual, Status: StatusFailed, Reason: err.Error(), At: p.clock.Now(), Err: err}
	}

	text := p.composer.TestMessage()
	if err := p.delivery.Deliver(ctx, settings.DestinationURL, text); err != nil {
		p.logger.Warn().Err(err).Msg("Test message failed")
		return Result{Trigger: Manual, Status: StatusFailed, Reason: err.Error(), Message: text, At: p.clock.Now(), Err: err}
	}

	p.logger.Info().Msg("Test message delivered")
	return Result{Trigger: Manual, Status: StatusSent, Message: text, At: p.clock.Now()}
}

// Preview is what a run would send right now.
type Preview struct {
	Start    time.Time              `json:"start"`
	End      time.Time              `json:"end"`
	Entries  []usage.Entry          `json:"entries"`
	Excluded []string               `json:"excluded_application_ids"`
	Message  string                 `json:"message"`
	Settings storage.ReportSettings `json:"-"`
}

// Preview composes today's report without delivering it.
func (p *Pipeline) Preview(ctx context.Context) (*Preview, error) {
	settings, err := p.settings.Read(ctx)
	if err != nil {
		return nil, err
	}

	day, err := p.usage.Today(ctx)
	if err != nil {
		return nil, err
	}

	entries := report.Filter(day.Entries, settings.ExcludedApplicationIDs)
	return &Preview{
		Start:    day.Start,
		End:      day.End,
		Entries:  entries,
		Excluded: settings.ExcludedApplicationIDs,
		Message:  p.composer.Compose(entries, day.End),
		Settings: settings,
	}, nil
}

func (p *Pipeline) fail(ctx context.Context, trigger Trigger, err error) Result {
	result := Result{
		Trigger: trigger,
		Status:  StatusFailed,
		Reason:  err.Error(),
		At:      p.clock.Now(),
		Err:     err,
	}

	if recErr := p.outcomes.RecordFailure(ctx, result.Reason); recErr != nil {
		p.logger.Error().Err(recErr).Msg("Failed to record send failure")
	}

	if trigger == Scheduled {
		p.notifier.Notify(ctx, result)
	}
	return result
}

func (p *Pipeline) logResult(result Result) {
	event := p.logger.Info()
	if !result.OK() {
		event = p.logger.Warn().Err(result.Err)
	}
	event.
		Str("trigger", string(result.Trigger)).
		Str("status", string(result.Status)).
		Str("reason", result.Reason).
		Msg("Report pipeline finished")
}
