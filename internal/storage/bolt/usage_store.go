package bolt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/goodtune/usagereporter/internal/storage"
	"go.etcd.io/bbolt"
)

type usageStore struct {
	db *bbolt.DB
}

func (s *usageStore) AddInterval(ctx context.Context, interval storage.UsageInterval) error {
	if interval.ID == "" {
		return fmt.Errorf("usage interval id is required")
	}
	return putBucketValue(ctx, s.db, bucketIntervals, intervalKey(interval.Start, interval.ID), interval)
}

func (s *usageStore) ListIntervals(ctx context.Context, start, end time.Time) ([]storage.UsageInterval, error) {
	intervals := make([]storage.UsageInterval, 0)
	upper := []byte(startPrefix(end))

	return intervals, s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketIntervals))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		// Keys sort by start time; anything starting at or after end cannot overlap.
		for k, v := c.First(); k != nil && bytes.Compare(k, upper) < 0; k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var interval storage.UsageInterval
			if err := unmarshal(v, &interval); err != nil {
				return err
			}
			if interval.End.After(start) {
				intervals = append(intervals, interval)
			}
		}
		return nil
	})
}

func (s *usageStore) DeleteIntervalsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketIntervals))
		if b == nil {
			return nil
		}
		upper := []byte(startPrefix(cutoff))
		var stale [][]byte
		c := b.Cursor()
		for k, v := c.First(); k != nil && bytes.Compare(k, upper) < 0; k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var interval storage.UsageInterval
			if err := unmarshal(v, &interval); err != nil {
				return err
			}
			if interval.End.Before(cutoff) {
				stale = append(stale, bytes.Clone(k))
			}
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

func startPrefix(ts time.Time) string {
	return fmt.Sprintf("%020d", ts.UnixNano())
}

func intervalKey(start time.Time, id string) string {
	return startPrefix(start) + "/" + id
}
