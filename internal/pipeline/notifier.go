package pipeline

import (
	"context"
	"errors"

	"github.com/goodtune/usagereporter/internal/systemd"
	"github.com/goodtune/usagereporter/internal/usage"
	"github.com/rs/zerolog"
)

// Notifier is told about scheduled runs that did not deliver, since no user
// is present to see them.
type Notifier interface {
	Notify(ctx context.Context, result Result)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, result Result)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, result Result) {
	f(ctx, result)
}

// NopNotifier drops notifications.
type NopNotifier struct{}

// Notify does nothing.
func (NopNotifier) Notify(context.Context, Result) {}

// StatusNotifier logs failed scheduled runs and publishes them as the
// systemd unit status. A usage source failure is reported as "cannot run"
// so it stands apart from delivery problems.
type StatusNotifier struct {
	logger zerolog.Logger
}

// NewStatusNotifier creates a StatusNotifier.
func NewStatusNotifier(logger zerolog.Logger) *StatusNotifier {
	return &StatusNotifier{logger: logger.With().Str("component", "notifier").Logger()}
}

// Notify implements Notifier.
func (n *StatusNotifier) Notify(_ context.Context, result Result) {
	status := "Daily report failed: " + result.Reason
	if errors.Is(result.Err, usage.ErrSourceUnavailable) {
		status = "Daily report cannot run, usage data unavailable: " + result.Reason
		n.logger.Error().Err(result.Err).Msg("Daily report cannot run, usage tracking must be re-enabled")
	} else {
		n.logger.Error().Err(result.Err).Msg("Daily report delivery failed")
	}

	if err := systemd.NotifyStatus(status); err != nil {
		n.logger.Debug().Err(err).Msg("Failed to publish systemd status")
	}
}
