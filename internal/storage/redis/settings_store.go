package redis

import (
	"context"
	"strconv"
	"strings"

	"github.com/goodtune/usagereporter/internal/storage"
	"github.com/redis/go-redis/v9"
)

const (
	settingsKey = keyPrefix + "settings"
	excludedKey = keyPrefix + "settings:excluded"
)

type settingsStore struct {
	client *redis.Client
}

func (s *settingsStore) Get(ctx context.Context) (*storage.ReportSettings, error) {
	pipe := s.client.Pipeline()
	hash := pipe.HGetAll(ctx, settingsKey)
	members := pipe.SMembers(ctx, excludedKey)

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	return parseSettings(hash.Val(), members.Val())
}

func (s *settingsStore) SetDestinationURL(ctx context.Context, defaults storage.ReportSettings, url string) error {
	return s.update(ctx, defaults, "hset", "destination_url", strings.TrimSpace(url))
}

func (s *settingsStore) SetSendEnabled(ctx context.Context, defaults storage.ReportSettings, enabled bool) error {
	return s.update(ctx, defaults, "hset", "send_enabled", formatBool(enabled))
}

func (s *settingsStore) SetSendTime(ctx context.Context, defaults storage.ReportSettings, hour, minute int) error {
	return s.update(ctx, defaults, "hset",
		"send_hour", strconv.Itoa(hour),
		"send_minute", strconv.Itoa(minute),
	)
}

func (s *settingsStore) SetExcluded(ctx context.Context, defaults storage.ReportSettings, ids []string) error {
	return s.update(ctx, defaults, "replace", storage.NormalizeIDs(ids)...)
}

func (s *settingsStore) AddExcluded(ctx context.Context, defaults storage.ReportSettings, id string) error {
	return s.update(ctx, defaults, "sadd", storage.NormalizeIDs([]string{id})...)
}

func (s *settingsStore) RemoveExcluded(ctx context.Context, defaults storage.ReportSettings, id string) error {
	return s.update(ctx, defaults, "srem", storage.NormalizeIDs([]string{id})...)
}

func (s *settingsStore) update(ctx context.Context, defaults storage.ReportSettings, op string, values ...string) error {
	script := redis.NewScript(updateSettingsScript)

	defaultExcluded := storage.NormalizeIDs(defaults.ExcludedApplicationIDs)
	args := make([]interface{}, 0, 6+len(defaultExcluded)+len(values))
	args = append(args,
		strings.TrimSpace(defaults.DestinationURL),
		formatBool(defaults.SendEnabled),
		strconv.Itoa(defaults.SendHour),
		strconv.Itoa(defaults.SendMinute),
		op,
		len(defaultExcluded),
	)
	for _, id := range defaultExcluded {
		args = append(args, id)
	}
	for _, v := range values {
		args = append(args, v)
	}

	return script.Run(ctx, s.client, []string{settingsKey, excludedKey}, args...).Err()
}
