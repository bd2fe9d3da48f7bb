package usage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/goodtune/usagereporter/internal/storage"
)

// memoryStore is an in-memory storage.UsageStore.
type memoryStore struct {
	mu        sync.Mutex
	intervals []storage.UsageInterval
	err       error
}

func (m *memoryStore) AddInterval(_ context.Context, interval storage.UsageInterval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.intervals = append(m.intervals, interval)
	return nil
}

func (m *memoryStore) ListIntervals(_ context.Context, start, end time.Time) ([]storage.UsageInterval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []storage.UsageInterval
	for _, interval := range m.intervals {
		if interval.Start.Before(end) && interval.End.After(start) {
			out = append(out, interval)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (m *memoryStore) DeleteIntervalsBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	kept := m.intervals[:0]
	deleted := 0
	for _, interval := range m.intervals {
		if interval.End.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, interval)
	}
	m.intervals = kept
	return deleted, nil
}

func (m *memoryStore) all() []storage.UsageInterval {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.UsageInterval(nil), m.intervals...)
}

var errStoreDown = errors.New("store down")
