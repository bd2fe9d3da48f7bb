package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/usagereporter/internal/storage"
	"github.com/redis/go-redis/v9"
)

const intervalsIndexKey = keyPrefix + "usage:intervals"

func intervalKey(id string) string {
	return fmt.Sprintf("%susage:interval:%s", keyPrefix, id)
}

type usageStore struct {
	client *redis.Client
}

// AddInterval stores a finalized usage interval
func (s *usageStore) AddInterval(ctx context.Context, interval storage.UsageInterval) error {
	if interval.ID == "" {
		return fmt.Errorf("usage interval id is required")
	}

	script := redis.NewScript(addIntervalScript)

	keys := []string{intervalKey(interval.ID), intervalsIndexKey}
	args := []interface{}{
		interval.ID,
		interval.ApplicationID,
		formatTime(interval.Start),
		formatTime(interval.End),
		scoreOf(interval.Start),
	}

	return script.Run(ctx, s.client, keys, args...).Err()
}

// ListIntervals returns every interval overlapping [start, end), ordered by start
func (s *usageStore) ListIntervals(ctx context.Context, start, end time.Time) ([]storage.UsageInterval, error) {
	candidates, err := s.startedBefore(ctx, end)
	if err != nil {
		return nil, err
	}

	intervals := make([]storage.UsageInterval, 0, len(candidates))
	for _, interval := range candidates {
		if interval.Start.Before(end) && interval.End.After(start) {
			intervals = append(intervals, interval)
		}
	}
	return intervals, nil
}

// DeleteIntervalsBefore removes intervals that ended before cutoff
func (s *usageStore) DeleteIntervalsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	candidates, err := s.startedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	stale := make([]storage.UsageInterval, 0, len(candidates))
	for _, interval := range candidates {
		if interval.End.Before(cutoff) {
			stale = append(stale, interval)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, interval := range stale {
			pipe.Del(ctx, intervalKey(interval.ID))
			pipe.ZRem(ctx, intervalsIndexKey, interval.ID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(stale), nil
}

// startedBefore loads intervals whose start score is at or below ts. The
// millisecond score is inclusive so callers filter on exact timestamps.
func (s *usageStore) startedBefore(ctx context.Context, ts time.Time) ([]storage.UsageInterval, error) {
	ids, err := s.client.ZRangeByScore(ctx, intervalsIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(ts.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return []storage.UsageInterval{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, intervalKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	intervals := make([]storage.UsageInterval, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		interval, err := parseInterval(data)
		if err != nil {
			return nil, err
		}
		intervals = append(intervals, *interval)
	}
	return intervals, nil
}
