package redis

import (
	"context"

	"github.com/goodtune/usagereporter/internal/storage"
	"github.com/redis/go-redis/v9"
)

const outcomeKey = keyPrefix + "outcome"

type outcomeStore struct {
	client *redis.Client
}

func (s *outcomeStore) Get(ctx context.Context) (*storage.SendOutcome, error) {
	data, err := s.client.HGetAll(ctx, outcomeKey).Result()
	if err != nil {
		return nil, err
	}
	return parseOutcome(data)
}

// Put replaces the stored outcome. Fields absent from outcome are removed.
func (s *outcomeStore) Put(ctx context.Context, outcome storage.SendOutcome) error {
	status := outcome.Status
	if status == "" {
		status = storage.StatusNotSent
	}

	fields := []interface{}{"status", string(status)}
	if outcome.LastSentAt != nil {
		fields = append(fields, "last_sent_at", formatTime(*outcome.LastSentAt))
	}
	if outcome.ErrorMessage != "" {
		fields = append(fields, "error_message", outcome.ErrorMessage)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, outcomeKey)
		pipe.HSet(ctx, outcomeKey, fields...)
		return nil
	})
	return err
}
