package sendresult

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/usagereporter/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryOutcomes struct {
	mu      sync.Mutex
	outcome *storage.SendOutcome
	err     error
}

func (m *memoryOutcomes) Get(context.Context) (*storage.SendOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.outcome == nil {
		return nil, storage.ErrNotFound
	}
	copied := *m.outcome
	return &copied, nil
}

func (m *memoryOutcomes) Put(_ context.Context, outcome storage.SendOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.outcome = &outcome
	return nil
}

func TestCurrentDefaultsToNotSent(t *testing.T) {
	store := New(&memoryOutcomes{}, zerolog.Nop())

	outcome, err := store.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, storage.StatusNotSent, outcome.Status)
	assert.Nil(t, outcome.LastSentAt)
}

func TestRecordReplacesOutcome(t *testing.T) {
	store := New(&memoryOutcomes{}, zerolog.Nop())
	ctx := context.Background()
	at := time.Date(2024, 3, 4, 21, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordSuccess(ctx, at))
	outcome, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusSuccess, outcome.Status)
	require.NotNil(t, outcome.LastSentAt)
	assert.True(t, outcome.LastSentAt.Equal(at))

	require.NoError(t, store.RecordFailure(ctx, "webhook returned 404"))
	outcome, err = store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, outcome.Status)
	assert.Equal(t, "webhook returned 404", outcome.ErrorMessage)
	assert.Nil(t, outcome.LastSentAt, "a write replaces the whole record")
}

func TestSubscribersSeeLatestOutcome(t *testing.T) {
	store := New(&memoryOutcomes{}, zerolog.Nop())
	ctx := context.Background()

	updates, cancel := store.Subscribe()
	defer cancel()

	require.NoError(t, store.RecordFailure(ctx, "first"))
	require.NoError(t, store.RecordFailure(ctx, "second"))

	select {
	case outcome := <-updates:
		assert.Equal(t, "second", outcome.ErrorMessage)
	case <-time.After(time.Second):
		t.Fatal("expected an outcome update")
	}
}

func TestCancelClosesSubscription(t *testing.T) {
	store := New(&memoryOutcomes{}, zerolog.Nop())

	updates, cancel := store.Subscribe()
	cancel()
	cancel()

	_, open := <-updates
	assert.False(t, open)
	require.NoError(t, store.RecordSuccess(context.Background(), time.Now()))
}

func TestWriteErrorsAreReturned(t *testing.T) {
	boom := errors.New("disk full")
	store := New(&memoryOutcomes{err: boom}, zerolog.Nop())

	updates, cancel := store.Subscribe()
	defer cancel()

	assert.ErrorIs(t, store.RecordFailure(context.Background(), "x"), boom)
	_, err := store.Current(context.Background())
	assert.ErrorIs(t, err, boom)

	select {
	case <-updates:
		t.Fatal("failed writes must not be published")
	default:
	}
}

func TestConcurrentWritesLastWriterWins(t *testing.T) {
	store := New(&memoryOutcomes{}, zerolog.Nop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.RecordSuccess(ctx, time.Now())
		}()
	}
	wg.Wait()

	require.NoError(t, store.RecordFailure(ctx, "last"))
	outcome, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "last", outcome.ErrorMessage)
}
