package bolt

import (
	"context"

	"github.com/goodtune/usagereporter/internal/storage"
	"go.etcd.io/bbolt"
)

type outcomeStore struct {
	db *bbolt.DB
}

func (s *outcomeStore) Get(ctx context.Context) (*storage.SendOutcome, error) {
	return getBucketValue[storage.SendOutcome](ctx, s.db, bucketOutcome, keyLatestOutcome)
}

// Put replaces the stored outcome in a single transaction.
func (s *outcomeStore) Put(ctx context.Context, outcome storage.SendOutcome) error {
	return putBucketValue(ctx, s.db, bucketOutcome, keyLatestOutcome, outcome)
}
