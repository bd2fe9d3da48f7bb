package bolt

import (
	"context"
	"slices"
	"strings"

	"github.com/goodtune/usagereporter/internal/storage"
	"go.etcd.io/bbolt"
)

type settingsStore struct {
	db *bbolt.DB
}

func (s *settingsStore) Get(ctx context.Context) (*storage.ReportSettings, error) {
	return getBucketValue[storage.ReportSettings](ctx, s.db, bucketSettings, keyCurrentSettings)
}

func (s *settingsStore) SetDestinationURL(ctx context.Context, defaults storage.ReportSettings, url string) error {
	return s.update(ctx, defaults, func(settings *storage.ReportSettings) {
		settings.DestinationURL = strings.TrimSpace(url)
	})
}

func (s *settingsStore) SetSendEnabled(ctx context.Context, defaults storage.ReportSettings, enabled bool) error {
	return s.update(ctx, defaults, func(settings *storage.ReportSettings) {
		settings.SendEnabled = enabled
	})
}

func (s *settingsStore) SetSendTime(ctx context.Context, defaults storage.ReportSettings, hour, minute int) error {
	return s.update(ctx, defaults, func(settings *storage.ReportSettings) {
		settings.SendHour = hour
		settings.SendMinute = minute
	})
}

func (s *settingsStore) SetExcluded(ctx context.Context, defaults storage.ReportSettings, ids []string) error {
	return s.update(ctx, defaults, func(settings *storage.ReportSettings) {
		settings.ExcludedApplicationIDs = storage.NormalizeIDs(ids)
	})
}

func (s *settingsStore) AddExcluded(ctx context.Context, defaults storage.ReportSettings, id string) error {
	return s.update(ctx, defaults, func(settings *storage.ReportSettings) {
		settings.ExcludedApplicationIDs = storage.NormalizeIDs(append(settings.ExcludedApplicationIDs, id))
	})
}

func (s *settingsStore) RemoveExcluded(ctx context.Context, defaults storage.ReportSettings, id string) error {
	id = strings.TrimSpace(id)
	return s.update(ctx, defaults, func(settings *storage.ReportSettings) {
		settings.ExcludedApplicationIDs = slices.DeleteFunc(settings.ExcludedApplicationIDs, func(existing string) bool {
			return existing == id
		})
	})
}

func (s *settingsStore) update(ctx context.Context, defaults storage.ReportSettings, mutate func(*storage.ReportSettings)) error {
	return updateBucketValue(ctx, s.db, bucketSettings, keyCurrentSettings, func(current *storage.ReportSettings) (storage.ReportSettings, error) {
		settings := defaults.Clone()
		if current != nil {
			settings = current.Clone()
		}
		mutate(&settings)
		if settings.ExcludedApplicationIDs == nil {
			settings.ExcludedApplicationIDs = []string{}
		}
		return settings, nil
	})
}
