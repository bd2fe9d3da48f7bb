package usage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goodtune/usagereporter/internal/clock"
	"github.com/goodtune/usagereporter/internal/metrics"
	"github.com/goodtune/usagereporter/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultInactivityTimeout is the duration after which a session is considered inactive
	DefaultInactivityTimeout = 2 * time.Minute

	// DefaultMinSessionDuration is the minimum duration to count a session
	DefaultMinSessionDuration = 10 * time.Second

	sweepInterval = time.Minute
)

// Tracker turns application heartbeats into usage intervals and answers
// usage queries. It implements Source.
type Tracker struct {
	store              storage.UsageStore
	clock              clock.Clock
	enabled            bool
	sessions           map[string]*Session // key: applicationID
	inactivityTimeout  time.Duration
	minSessionDuration time.Duration
	logger             zerolog.Logger
	mu                 sync.Mutex
	stopChan           chan struct{}
	stopOnce           sync.Once
	started            atomic.Bool
	done               chan struct{}
}

// Config holds tracker configuration
type Config struct {
	Enabled            bool
	InactivityTimeout  time.Duration
	MinSessionDuration time.Duration
}

// NewTracker creates a new usage tracker
func NewTracker(store storage.UsageStore, clk clock.Clock, config Config, logger zerolog.Logger) *Tracker {
	if config.InactivityTimeout == 0 {
		config.InactivityTimeout = DefaultInactivityTimeout
	}
	if config.MinSessionDuration == 0 {
		config.MinSessionDuration = DefaultMinSessionDuration
	}

	return &Tracker{
		store:              store,
		clock:              clk,
		enabled:            config.Enabled,
		sessions:           make(map[string]*Session),
		inactivityTimeout:  config.InactivityTimeout,
		minSessionDuration: config.MinSessionDuration,
		logger:             logger.With().Str("component", "usage-tracker").Logger(),
		stopChan:           make(chan struct{}),
		done:               make(chan struct{}),
	}
}

// Start begins the background sweep of idle sessions.
func (t *Tracker) Start() {
	if !t.started.CompareAndSwap(false, true) {
		return
	}
	go t.run()
	t.logger.Info().
		Bool("enabled", t.enabled).
		Dur("inactivity_timeout", t.inactivityTimeout).
		Msg("Usage tracker started")
}

// Stop halts the sweep and finalizes every open session.
func (t *Tracker) Stop(ctx context.Context) {
	t.stopOnce.Do(func() {
		close(t.stopChan)
		if t.started.Load() {
			<-t.done
		}
	})

	t.mu.Lock()
	defer t.mu.Unlock()
	for appID, session := range t.sessions {
		if err := t.finalizeSession(ctx, session); err != nil {
			t.logger.Error().Err(err).Str("session_id", session.ID).Msg("Failed to finalize session on shutdown")
		}
		delete(t.sessions, appID)
	}
	t.logger.Info().Msg("Usage tracker stopped")
}

func (t *Tracker) run() {
	defer close(t.done)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Sweep(context.Background())
		case <-t.stopChan:
			return
		}
	}
}

// RecordActivity records a heartbeat for an application. A heartbeat within
// the inactivity timeout extends the current session; otherwise the previous
// session is finalized and a new one begins.
func (t *Tracker) RecordActivity(ctx context.Context, applicationID string) error {
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return fmt.Errorf("application id is required")
	}
	if !t.enabled {
		return fmt.Errorf("%w: usage tracking is disabled", ErrSourceUnavailable)
	}

	metrics.ActivityHeartbeats.Inc()

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()

	if session, exists := t.sessions[applicationID]; exists {
		idle := now.Sub(session.LastActivity)
		if idle <= t.inactivityTimeout {
			if now.After(session.LastActivity) {
				session.LastActivity = now
			}

			t.logger.Debug().
				Str("session_id", session.ID).
				Str("application_id", applicationID).
				Dur("span", session.Span()).
				Msg("Activity recorded in existing session")

			return nil
		}

		t.logger.Debug().
			Str("session_id", session.ID).
			Str("application_id", applicationID).
			Dur("inactivity", idle).
			Msg("Session timed out")

		if err := t.finalizeSession(ctx, session); err != nil {
			t.logger.Error().Err(err).Str("session_id", session.ID).Msg("Failed to finalize timed-out session")
		}
	}

	session := &Session{
		ID:            uuid.NewString(),
		ApplicationID: applicationID,
		StartedAt:     now,
		LastActivity:  now,
	}
	t.sessions[applicationID] = session

	t.logger.Debug().
		Str("session_id", session.ID).
		Str("application_id", applicationID).
		Msg("Started new usage session")

	return nil
}

// Sweep finalizes sessions idle longer than the inactivity timeout and
// returns how many were closed.
func (t *Tracker) Sweep(ctx context.Context) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	closed := 0
	for appID, session := range t.sessions {
		if now.Sub(session.LastActivity) <= t.inactivityTimeout {
			continue
		}

		if err := t.finalizeSession(ctx, session); err != nil {
			// Keep the session so the next sweep retries the write.
			t.logger.Error().Err(err).Str("session_id", session.ID).Msg("Failed to finalize inactive session")
			continue
		}
		delete(t.sessions, appID)
		closed++
	}
	return closed
}

// ActiveSessions returns a copy of the open sessions ordered by application id.
func (t *Tracker) ActiveSessions() []Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	sessions := make([]Session, 0, len(t.sessions))
	for _, session := range t.sessions {
		sessions = append(sessions, *session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ApplicationID < sessions[j].ApplicationID
	})
	return sessions
}

// Query sums persisted intervals clipped to [start, end) plus the time of
// open sessions that are long enough to be kept.
func (t *Tracker) Query(ctx context.Context, start, end time.Time) (map[string]int64, error) {
	if !t.enabled {
		return nil, fmt.Errorf("%w: usage tracking is disabled", ErrSourceUnavailable)
	}

	intervals, err := t.store.ListIntervals(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: list usage intervals: %w", ErrSourceUnavailable, err)
	}

	totals := make(map[string]int64)
	for _, interval := range intervals {
		if overlap := interval.Overlap(start, end); overlap > 0 {
			totals[interval.ApplicationID] += overlap.Milliseconds()
		}
	}

	t.mu.Lock()
	for _, session := range t.sessions {
		if session.Span() < t.minSessionDuration {
			continue
		}
		inflight := storage.UsageInterval{Start: session.StartedAt, End: session.LastActivity}
		if overlap := inflight.Overlap(start, end); overlap > 0 {
			totals[session.ApplicationID] += overlap.Milliseconds()
		}
	}
	t.mu.Unlock()

	return totals, nil
}

// finalizeSession persists a session as an interval (must be called with lock held)
func (t *Tracker) finalizeSession(ctx context.Context, session *Session) error {
	span := session.Span()
	if span < t.minSessionDuration {
		t.logger.Debug().
			Str("session_id", session.ID).
			Dur("duration", span).
			Dur("min_duration", t.minSessionDuration).
			Msg("Session too short, not counting")

		metrics.UsageSessionsFinalized.WithLabelValues("discarded").Inc()
		return nil
	}

	interval := storage.UsageInterval{
		ID:            session.ID,
		ApplicationID: session.ApplicationID,
		Start:         session.StartedAt,
		End:           session.LastActivity,
	}
	if err := t.store.AddInterval(ctx, interval); err != nil {
		return fmt.Errorf("failed to store usage interval: %w", err)
	}

	metrics.UsageSessionsFinalized.WithLabelValues("recorded").Inc()

	t.logger.Info().
		Str("session_id", session.ID).
		Str("application_id", session.ApplicationID).
		Dur("duration", span).
		Msg("Finalized usage session")

	return nil
}
