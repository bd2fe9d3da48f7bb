package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goodtune/usagereporter/internal/storage"
	"github.com/goodtune/usagereporter/internal/webhook"
	"github.com/rs/zerolog"
)

// ErrInvalidSetting is returned when a value is out of range or blank.
var ErrInvalidSetting = errors.New("invalid setting")

// ChangeFunc is called with the settings as they are after a write.
type ChangeFunc func(ctx context.Context, settings storage.ReportSettings) error

// Service reads and edits the report settings. Each setter changes one field
// and is visible to the next Read.
type Service struct {
	store    storage.SettingsStore
	defaults storage.ReportSettings
	logger   zerolog.Logger
	mu       sync.RWMutex
	onChange []ChangeFunc
}

// New creates a settings service. defaults apply until the first write.
func New(store storage.SettingsStore, defaults storage.ReportSettings, logger zerolog.Logger) *Service {
	defaults = defaults.Clone()
	if defaults.ExcludedApplicationIDs == nil {
		defaults.ExcludedApplicationIDs = []string{}
	}
	return &Service{
		store:    store,
		defaults: defaults,
		logger:   logger.With().Str("component", "settings").Logger(),
	}
}

// OnChange registers fn to run after every successful write.
func (s *Service) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Read returns a snapshot of the current settings.
func (s *Service) Read(ctx context.Context) (storage.ReportSettings, error) {
	current, err := s.store.Get(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return s.defaults.Clone(), nil
	}
	if err != nil {
		return storage.ReportSettings{}, fmt.Errorf("failed to read settings: %w", err)
	}

	snapshot := current.Clone()
	if snapshot.ExcludedApplicationIDs == nil {
		snapshot.ExcludedApplicationIDs = []string{}
	}
	return snapshot, nil
}

// SetDestinationURL stores the webhook URL. A blank value clears it; any
// other value must pass webhook validation.
func (s *Service) SetDestinationURL(ctx context.Context, raw string) (storage.ReportSettings, error) {
	url := strings.TrimSpace(raw)
	if url != "" {
		validated, err := webhook.Validate(url)
		if err != nil {
			return storage.ReportSettings{}, err
		}
		url = validated
	}

	return s.apply(ctx, "destination_url", func() error {
		return s.store.SetDestinationURL(ctx, s.defaults, url)
	})
}

// SetSendEnabled turns the daily send on or off.
func (s *Service) SetSendEnabled(ctx context.Context, enabled bool) (storage.ReportSettings, error) {
	return s.apply(ctx, "send_enabled", func() error {
		return s.store.SetSendEnabled(ctx, s.defaults, enabled)
	})
}

// SetSendTime sets the local wall-clock time of the daily send.
func (s *Service) SetSendTime(ctx context.Context, hour, minute int) (storage.ReportSettings, error) {
	if hour < 0 || hour > 23 {
		return storage.ReportSettings{}, fmt.Errorf("%w: hour must be between 0 and 23, got %d", ErrInvalidSetting, hour)
	}
	if minute < 0 || minute > 59 {
		return storage.ReportSettings{}, fmt.Errorf("%w: minute must be between 0 and 59, got %d", ErrInvalidSetting, minute)
	}

	return s.apply(ctx, "send_time", func() error {
		return s.store.SetSendTime(ctx, s.defaults, hour, minute)
	})
}

// SetExcluded replaces the exclusion set.
func (s *Service) SetExcluded(ctx context.Context, ids []string) (storage.ReportSettings, error) {
	return s.apply(ctx, "excluded_application_ids", func() error {
		return s.store.SetExcluded(ctx, s.defaults, ids)
	})
}

// AddExcluded excludes one application. Adding twice is a no-op.
func (s *Service) AddExcluded(ctx context.Context, id string) (storage.ReportSettings, error) {
	if strings.TrimSpace(id) == "" {
		return storage.ReportSettings{}, fmt.Errorf("%w: application id is required", ErrInvalidSetting)
	}
	return s.apply(ctx, "excluded_application_ids", func() error {
		return s.store.AddExcluded(ctx, s.defaults, id)
	})
}

// RemoveExcluded includes one application again. Removing an id that is not
// excluded is a no-op.
func (s *Service) RemoveExcluded(ctx context.Context, id string) (storage.ReportSettings, error) {
	if strings.TrimSpace(id) == "" {
		return storage.ReportSettings{}, fmt.Errorf("%w: application id is required", ErrInvalidSetting)
	}
	return s.apply(ctx, "excluded_application_ids", func() error {
		return s.store.RemoveExcluded(ctx, s.defaults, id)
	})
}

// ParseSendTime parses an HH:MM wall-clock time.
func ParseSendTime(value string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: send time %q, expected HH:MM", ErrInvalidSetting, value)
	}
	return t.Hour(), t.Minute(), nil
}

// Notify runs the change hooks against the current settings. The daemon
// calls it at startup and on reload.
func (s *Service) Notify(ctx context.Context) (storage.ReportSettings, error) {
	current, err := s.Read(ctx)
	if err != nil {
		return storage.ReportSettings{}, err
	}
	return current, s.runHooks(ctx, current)
}

func (s *Service) apply(ctx context.Context, field string, write func() error) (storage.ReportSettings, error) {
	if err := write(); err != nil {
		return storage.ReportSettings{}, fmt.Errorf("failed to update %s: %w", field, err)
	}

	current, err := s.Read(ctx)
	if err != nil {
		return storage.ReportSettings{}, err
	}

	s.logger.Info().
		Str("field", field).
		Bool("send_enabled", current.SendEnabled).
		Bool("webhook_configured", current.WebhookConfigured()).
		Str("send_time", fmt.Sprintf("%02d:%02d", current.SendHour, current.SendMinute)).
		Int("excluded", len(current.ExcludedApplicationIDs)).
		Msg("Settings updated")

	return current, s.runHooks(ctx, current)
}

func (s *Service) runHooks(ctx context.Context, current storage.ReportSettings) error {
	s.mu.RLock()
	hooks := append([]ChangeFunc(nil), s.onChange...)
	s.mu.RUnlock()

	var errs []error
	for _, hook := range hooks {
		if err := hook(ctx, current.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
