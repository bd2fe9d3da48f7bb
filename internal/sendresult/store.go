package sendresult

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/usagereporter/internal/storage"
	"github.com/rs/zerolog"
)

// Store keeps the single most recent send outcome and notifies observers
// whenever it changes. Writes are serialized and the last writer wins.
type Store struct {
	outcomes    storage.OutcomeStore
	logger      zerolog.Logger
	writeMu     sync.Mutex
	subMu       sync.Mutex
	subscribers map[int]chan storage.SendOutcome
	nextID      int
}

// New creates a Store persisting through outcomes.
func New(outcomes storage.OutcomeStore, logger zerolog.Logger) *Store {
	return &Store{
		outcomes:    outcomes,
		logger:      logger.With().Str("component", "sendresult").Logger(),
		subscribers: make(map[int]chan storage.SendOutcome),
	}
}

// Current returns the persisted outcome, or NOT_SENT when nothing has been
// recorded yet.
func (s *Store) Current(ctx context.Context) (storage.SendOutcome, error) {
	outcome, err := s.outcomes.Get(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.SendOutcome{Status: storage.StatusNotSent}, nil
	}
	if err != nil {
		return storage.SendOutcome{}, fmt.Errorf("failed to read send outcome: %w", err)
	}
	if outcome.Status == "" {
		outcome.Status = storage.StatusNotSent
	}
	return *outcome, nil
}

// RecordSuccess replaces the outcome with SUCCESS at the given instant.
func (s *Store) RecordSuccess(ctx context.Context, at time.Time) error {
	return s.write(ctx, storage.SendOutcome{Status: storage.StatusSuccess, LastSentAt: &at})
}

// RecordFailure replaces the outcome with FAILED and message.
func (s *Store) RecordFailure(ctx context.Context, message string) error {
	return s.write(ctx, storage.SendOutcome{Status: storage.StatusFailed, ErrorMessage: message})
}

func (s *Store) write(ctx context.Context, outcome storage.SendOutcome) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.outcomes.Put(ctx, outcome); err != nil {
		return fmt.Errorf("failed to record send outcome: %w", err)
	}

	s.logger.Debug().
		Str("status", string(outcome.Status)).
		Str("error", outcome.ErrorMessage).
		Msg("Send outcome recorded")

	s.publish(outcome)
	return nil
}

// Subscribe returns a channel receiving every later outcome and a function
// that ends the subscription. Slow subscribers only see the latest value.
func (s *Store) Subscribe() (<-chan storage.SendOutcome, func()) {
	ch := make(chan storage.SendOutcome, 1)

	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (s *Store) publish(outcome storage.SendOutcome) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subscribers {
		// Drop a stale value so the buffer holds the newest outcome.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- outcome:
		default:
		}
	}
}
