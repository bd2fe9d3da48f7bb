package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/usagereporter/internal/clock"
	"github.com/goodtune/usagereporter/internal/report"
	"github.com/goodtune/usagereporter/internal/sendresult"
	"github.com/goodtune/usagereporter/internal/storage"
	"github.com/goodtune/usagereporter/internal/usage"
	"github.com/goodtune/usagereporter/internal/webhook"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testURL = "https://hooks.slack.com/services/T0/B0/X"

var testNow = time.Date(2024, 3, 4, 21, 0, 0, 0, time.UTC)

type staticSettings struct {
	settings storage.ReportSettings
	err      error
}

func (s staticSettings) Read(context.Context) (storage.ReportSettings, error) {
	return s.settings.Clone(), s.err
}

type fakeUsage struct {
	day   *usage.Day
	err   error
	panic bool
	calls int
}

func (f *fakeUsage) Today(context.Context) (*usage.Day, error) {
	f.calls++
	if f.panic {
		panic("usage exploded")
	}
	return f.day, f.err
}

type recordingDelivery struct {
	mu    sync.Mutex
	err   error
	sent  []string
	urls  []string
	calls int
}

func (r *recordingDelivery) Deliver(_ context.Context, destination, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.urls = append(r.urls, destination)
	r.sent = append(r.sent, text)
	return r.err
}

type memoryOutcomes struct {
	mu      sync.Mutex
	outcome *storage.SendOutcome
}

func (m *memoryOutcomes) Get(context.Context) (*storage.SendOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcome == nil {
		return nil, storage.ErrNotFound
	}
	copied := *m.outcome
	return &copied, nil
}

func (m *memoryOutcomes) Put(_ context.Context, outcome storage.SendOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcome = &outcome
	return nil
}

type harness struct {
	pipeline *Pipeline
	settings *staticSettings
	usage    *fakeUsage
	delivery *recordingDelivery
	results  *sendresult.Store
	notified []Result
}

func newHarness(settings storage.ReportSettings, entries ...usage.Entry) *harness {
	h := &harness{
		settings: &staticSettings{settings: settings},
		usage: &fakeUsage{day: &usage.Day{
			Start:   usage.Midnight(testNow),
			End:     testNow,
			Entries: entries,
		}},
		delivery: &recordingDelivery{},
		results:  sendresult.New(&memoryOutcomes{}, zerolog.Nop()),
	}
	h.pipeline = New(Deps{
		Settings: h.settings,
		Usage:    h.usage,
		Composer: report.NewComposer(report.DefaultTopN, report.DefaultTargetMinutes, nil),
		Delivery: h.delivery,
		Outcomes: h.results,
		Notifier: NotifierFunc(func(_ context.Context, result Result) {
			h.notified = append(h.notified, result)
		}),
		Clock: &clock.TestClock{CurrentTime: testNow},
	}, zerolog.Nop())
	return h
}

func enabled() storage.ReportSettings {
	return storage.ReportSettings{DestinationURL: testURL, SendEnabled: true, SendHour: 21}
}

func (h *harness) outcome(t *testing.T) storage.SendOutcome {
	t.Helper()
	outcome, err := h.results.Current(context.Background())
	require.NoError(t, err)
	return outcome
}

func TestRunSkipsWhenDisabledOrUnconfigured(t *testing.T) {
	tests := []struct {
		name     string
		settings storage.ReportSettings
		reason   string
	}{
		{"disabled", storage.ReportSettings{DestinationURL: testURL}, "sending is disabled"},
		{"empty url", storage.ReportSettings{SendEnabled: true}, "no webhook configured"},
		{"blank url", storage.ReportSettings{SendEnabled: true, DestinationURL: "   "}, "no webhook configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(tt.settings, usage.Entry{ApplicationID: "a", DurationMillis: 60_000})

			result := h.pipeline.Run(context.Background(), Scheduled)

			assert.Equal(t, StatusSkipped, result.Status)
			assert.Equal(t, tt.reason, result.Reason)
			assert.True(t, result.OK())
			assert.Zero(t, h.delivery.calls)
			assert.Zero(t, h.usage.calls)
			assert.Empty(t, h.notified)
			assert.Equal(t, storage.StatusNotSent, h.outcome(t).Status)
		})
	}
}

func TestRunDeliversAndRecordsSuccess(t *testing.T) {
	h := newHarness(enabled(),
		usage.Entry{ApplicationID: "com.example.a", DurationMillis: 45 * 60_000},
		usage.Entry{ApplicationID: "com.example.b", DurationMillis: 30 * 60_000},
	)

	result := h.pipeline.Run(context.Background(), Scheduled)

	require.Equal(t, StatusSent, result.Status)
	require.Len(t, h.delivery.sent, 1)
	assert.Equal(t, testURL, h.delivery.urls[0])
	assert.Equal(t, result.Message, h.delivery.sent[0])
	assert.Contains(t, result.Message, "2024/03/04 (Mon)")
	assert.Contains(t, result.Message, "• com.example.a - 45m")

	outcome := h.outcome(t)
	assert.Equal(t, storage.StatusSuccess, outcome.Status)
	require.NotNil(t, outcome.LastSentAt)
	assert.True(t, outcome.LastSentAt.Equal(testNow))
	assert.Empty(t, outcome.ErrorMessage)
}

func TestRunAppliesExclusions(t *testing.T) {
	settings := enabled()
	settings.ExcludedApplicationIDs = []string{"com.example.hidden"}
	h := newHarness(settings,
		usage.Entry{ApplicationID: "com.example.hidden", DurationMillis: 90 * 60_000},
		usage.Entry{ApplicationID: "com.example.shown", DurationMillis: 10 * 60_000},
	)

	result := h.pipeline.Run(context.Background(), Manual)

	require.Equal(t, StatusSent, result.Status)
	assert.NotContains(t, result.Message, "com.example.hidden")
	assert.Contains(t, result.Message, "com.example.shown")
}

func TestRunEmptyDayStillSends(t *testing.T) {
	h := newHarness(enabled())

	result := h.pipeline.Run(context.Background(), Scheduled)

	require.Equal(t, StatusSent, result.Status)
	assert.Contains(t, result.Message, "No usage detected today.")
}

func TestRunDeliveryFailure(t *testing.T) {
	for _, trigger := range []Trigger{Scheduled, Manual} {
		t.Run(string(trigger), func(t *testing.T) {
			h := newHarness(enabled(), usage.Entry{ApplicationID: "a", DurationMillis: 60_000})
			h.delivery.err = &webhook.DeliveryError{StatusCode: 500, Status: "500 Internal Server Error"}

			result := h.pipeline.Run(context.Background(), trigger)

			assert.Equal(t, StatusFailed, result.Status)
			assert.ErrorIs(t, result.Err, webhook.ErrDeliveryFailure)
			assert.False(t, result.OK())

			outcome := h.outcome(t)
			assert.Equal(t, storage.StatusFailed, outcome.Status)
			assert.Equal(t, result.Reason, outcome.ErrorMessage)
			assert.Nil(t, outcome.LastSentAt)

			if trigger == Scheduled {
				require.Len(t, h.notified, 1)
				assert.Equal(t, StatusFailed, h.notified[0].Status)
			} else {
				assert.Empty(t, h.notified)
			}
		})
	}
}

func TestRunSourceUnavailable(t *testing.T) {
	sourceErr := fmt.Errorf("%w: usage tracking is disabled", usage.ErrSourceUnavailable)

	t.Run("scheduled records failure and notifies", func(t *testing.T) {
		h := newHarness(enabled())
		h.usage.err = sourceErr

		result := h.pipeline.Run(context.Background(), Scheduled)

		assert.Equal(t, StatusFailed, result.Status)
		assert.ErrorIs(t, result.Err, usage.ErrSourceUnavailable)
		assert.Zero(t, h.delivery.calls)
		assert.Equal(t, storage.StatusFailed, h.outcome(t).Status)
		require.Len(t, h.notified, 1)
		assert.ErrorIs(t, h.notified[0].Err, usage.ErrSourceUnavailable)
	})

	t.Run("manual reports unavailable without recording", func(t *testing.T) {
		h := newHarness(enabled())
		h.usage.err = sourceErr

		result := h.pipeline.Run(context.Background(), Manual)

		assert.Equal(t, StatusUnavailable, result.Status)
		assert.ErrorIs(t, result.Err, usage.ErrSourceUnavailable)
		assert.Zero(t, h.delivery.calls)
		assert.Equal(t, storage.StatusNotSent, h.outcome(t).Status)
		assert.Empty(t, h.notified)
	})

	t.Run("other usage errors fail manual runs", func(t *testing.T) {
		h := newHarness(enabled())
		h.usage.err = errors.New("window inverted")

		result := h.pipeline.Run(context.Background(), Manual)

		assert.Equal(t, StatusFailed, result.Status)
		assert.Equal(t, storage.StatusFailed, h.outcome(t).Status)
	})
}

func TestRunSettingsReadFailure(t *testing.T) {
	h := newHarness(enabled())
	h.settings.err = errors.New("settings store offline")

	result := h.pipeline.Run(context.Background(), Scheduled)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "settings store offline", h.outcome(t).ErrorMessage)
	assert.Zero(t, h.usage.calls)
}

func TestRunRecoversPanics(t *testing.T) {
	h := newHarness(enabled())
	h.usage.panic = true

	var result Result
	require.NotPanics(t, func() {
		result = h.pipeline.Run(context.Background(), Scheduled)
	})

	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.Reason, "usage exploded")
	assert.Equal(t, storage.StatusFailed, h.outcome(t).Status)
	assert.Len(t, h.notified, 1)
}

func TestSendTest(t *testing.T) {
	t.Run("delivers test message without touching the outcome", func(t *testing.T) {
		settings := enabled()
		settings.SendEnabled = false
		h := newHarness(settings)

		result := h.pipeline.SendTest(context.Background())

		require.Equal(t, StatusSent, result.Status)
		require.Len(t, h.delivery.sent, 1)
		assert.Equal(t, report.NewComposer(0, 0, nil).TestMessage(), h.delivery.sent[0])
		assert.Equal(t, storage.StatusNotSent, h.outcome(t).Status)
	})

	t.Run("reports delivery errors", func(t *testing.T) {
		h := newHarness(enabled())
		h.delivery.err = &webhook.ValidationError{Reason: "webhook URL is empty"}

		result := h.pipeline.SendTest(context.Background())

		assert.Equal(t, StatusFailed, result.Status)
		assert.ErrorIs(t, result.Err, webhook.ErrInvalidDestination)
		assert.Equal(t, storage.StatusNotSent, h.outcome(t).Status)
	})
}

func TestPreview(t *testing.T) {
	settings := enabled()
	settings.SendEnabled = false
	settings.ExcludedApplicationIDs = []string{"b"}
	h := newHarness(settings,
		usage.Entry{ApplicationID: "a", DurationMillis: 5 * 60_000},
		usage.Entry{ApplicationID: "b", DurationMillis: 3 * 60_000},
	)

	preview, err := h.pipeline.Preview(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []usage.Entry{{ApplicationID: "a", DurationMillis: 5 * 60_000}}, preview.Entries)
	assert.Equal(t, []string{"b"}, preview.Excluded)
	assert.Contains(t, preview.Message, "• a - 5m")
	assert.Zero(t, h.delivery.calls)
	assert.Equal(t, storage.StatusNotSent, h.outcome(t).Status)
}
