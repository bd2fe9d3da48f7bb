package usage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/goodtune/usagereporter/internal/clock"
)

// Aggregator turns raw per-application totals into an ordered report.
type Aggregator struct {
	source   Source
	clock    clock.Clock
	location *time.Location
}

// NewAggregator creates an aggregator reading from source. Days start at
// local midnight in loc.
func NewAggregator(source Source, clk clock.Clock, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{source: source, clock: clk, location: loc}
}

// Aggregate returns the non-zero entries for [start, end), longest first.
// Equal durations are ordered by application id.
func (a *Aggregator) Aggregate(ctx context.Context, start, end time.Time) ([]Entry, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("invalid usage window: end %s is before start %s", end, start)
	}

	totals, err := a.source.Query(ctx, start, end)
	if err != nil {
		if errors.Is(err, ErrSourceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	entries := make([]Entry, 0, len(totals))
	for id, millis := range totals {
		if millis <= 0 {
			continue
		}
		entries = append(entries, Entry{ApplicationID: id, DurationMillis: millis})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].DurationMillis != entries[j].DurationMillis {
			return entries[i].DurationMillis > entries[j].DurationMillis
		}
		return entries[i].ApplicationID < entries[j].ApplicationID
	})

	return entries, nil
}

// Today aggregates from local midnight to the current instant. The window
// is recomputed on every call.
func (a *Aggregator) Today(ctx context.Context) (*Day, error) {
	now := a.clock.Now().In(a.location)
	start := Midnight(now)

	entries, err := a.Aggregate(ctx, start, now)
	if err != nil {
		return nil, err
	}

	return &Day{Start: start, End: now, Entries: entries}, nil
}

// Midnight returns the start of the day containing t, in t's location.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
