package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Settings() SettingsStore
	Outcomes() OutcomeStore
	Usage() UsageStore
	Jobs() JobStore
}

// SettingsStore persists the user-editable report settings. Every setter
// changes exactly one field and leaves the others untouched; a setter called
// before anything was saved starts from the supplied defaults.
type SettingsStore interface {
	Get(ctx context.Context) (*ReportSettings, error)
	SetDestinationURL(ctx context.Context, defaults ReportSettings, url string) error
	SetSendEnabled(ctx context.Context, defaults ReportSettings, enabled bool) error
	SetSendTime(ctx context.Context, defaults ReportSettings, hour, minute int) error
	SetExcluded(ctx context.Context, defaults ReportSettings, ids []string) error
	AddExcluded(ctx context.Context, defaults ReportSettings, id string) error
	RemoveExcluded(ctx context.Context, defaults ReportSettings, id string) error
}

// OutcomeStore persists the single most recent send outcome.
type OutcomeStore interface {
	Get(ctx context.Context) (*SendOutcome, error)
	Put(ctx context.Context, outcome SendOutcome) error
}

// UsageStore manages finalized foreground usage intervals.
type UsageStore interface {
	AddInterval(ctx context.Context, interval UsageInterval) error
	// ListIntervals returns every interval overlapping [start, end).
	ListIntervals(ctx context.Context, start, end time.Time) ([]UsageInterval, error)
	DeleteIntervalsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// JobStore manages periodic job registrations keyed by unique name.
type JobStore interface {
	Get(ctx context.Context, name string) (*JobRecord, error)
	List(ctx context.Context) ([]JobRecord, error)
	Upsert(ctx context.Context, job JobRecord) error
	Delete(ctx context.Context, name string) error
}
