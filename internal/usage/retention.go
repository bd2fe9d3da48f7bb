package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/usagereporter/internal/clock"
	"github.com/goodtune/usagereporter/internal/storage"
	"github.com/rs/zerolog"
)

// DefaultRetentionDays is how long finalized intervals are kept.
const DefaultRetentionDays = 90

// Retention removes usage intervals older than the retention window. It is
// run once a day by the job runner.
type Retention struct {
	store  storage.UsageStore
	clock  clock.Clock
	days   int
	logger zerolog.Logger
}

// NewRetention creates a retention job keeping days of history.
func NewRetention(store storage.UsageStore, clk clock.Clock, days int, logger zerolog.Logger) *Retention {
	if days <= 0 {
		days = DefaultRetentionDays
	}
	return &Retention{
		store:  store,
		clock:  clk,
		days:   days,
		logger: logger.With().Str("component", "usage-retention").Logger(),
	}
}

// Run deletes intervals that ended before the cutoff.
func (r *Retention) Run(ctx context.Context) error {
	cutoff := Midnight(r.clock.Now()).AddDate(0, 0, -r.days)

	deleted, err := r.store.DeleteIntervalsBefore(ctx, cutoff)
	if err != nil {
		r.logger.Error().Err(err).Time("cutoff", cutoff).Msg("Failed to clean up old usage intervals")
		return fmt.Errorf("delete usage intervals before %s: %w", cutoff.Format(time.DateOnly), err)
	}

	r.logger.Info().
		Int("intervals_deleted", deleted).
		Str("cutoff_date", cutoff.Format(time.DateOnly)).
		Msg("Old usage intervals cleaned up")

	return nil
}
