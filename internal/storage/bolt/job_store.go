package bolt

import (
	"context"

	"github.com/goodtune/usagereporter/internal/storage"
	"go.etcd.io/bbolt"
)

type jobStore struct {
	db *bbolt.DB
}

func (s *jobStore) Get(ctx context.Context, name string) (*storage.JobRecord, error) {
	return getBucketValue[storage.JobRecord](ctx, s.db, bucketJobs, name)
}

func (s *jobStore) List(ctx context.Context) ([]storage.JobRecord, error) {
	return listBucket[storage.JobRecord](ctx, s.db, bucketJobs)
}

func (s *jobStore) Upsert(ctx context.Context, job storage.JobRecord) error {
	return putBucketValue(ctx, s.db, bucketJobs, job.Name, job)
}

func (s *jobStore) Delete(ctx context.Context, name string) error {
	return deleteBucketValue(ctx, s.db, bucketJobs, name)
}
