package redis

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/goodtune/usagereporter/internal/storage"
	"github.com/redis/go-redis/v9"
)

const jobsSetKey = keyPrefix + "jobs"

func jobKey(name string) string {
	return fmt.Sprintf("%sjob:%s", keyPrefix, name)
}

type jobStore struct {
	client *redis.Client
}

func (s *jobStore) Get(ctx context.Context, name string) (*storage.JobRecord, error) {
	data, err := s.client.HGetAll(ctx, jobKey(name)).Result()
	if err != nil {
		return nil, err
	}
	return parseJob(data)
}

func (s *jobStore) List(ctx context.Context) ([]storage.JobRecord, error) {
	names, err := s.client.SMembers(ctx, jobsSetKey).Result()
	if err != nil {
		return nil, err
	}

	if len(names) == 0 {
		return []storage.JobRecord{}, nil
	}
	slices.Sort(names)

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(names))
	for i, name := range names {
		cmds[i] = pipe.HGetAll(ctx, jobKey(name))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	jobs := make([]storage.JobRecord, 0, len(names))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		job, err := parseJob(data)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

func (s *jobStore) Upsert(ctx context.Context, job storage.JobRecord) error {
	if job.Name == "" {
		return fmt.Errorf("job name is required")
	}

	updatedAt := job.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	script := redis.NewScript(upsertJobScript)
	keys := []string{jobKey(job.Name), jobsSetKey}
	args := []interface{}{
		job.Name,
		strconv.FormatInt(int64(job.Interval), 10),
		formatTime(job.NextFire),
		formatBool(job.RequiresNetwork),
		formatTime(updatedAt),
	}

	return script.Run(ctx, s.client, keys, args...).Err()
}

func (s *jobStore) Delete(ctx context.Context, name string) error {
	script := redis.NewScript(deleteJobScript)

	removed, err := script.Run(ctx, s.client, []string{jobKey(name), jobsSetKey}, name).Int()
	if err != nil {
		return err
	}
	if removed == 0 {
		return storage.ErrNotFound
	}
	return nil
}
