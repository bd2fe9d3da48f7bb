package settings

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/goodtune/usagereporter/internal/storage"
	"github.com/goodtune/usagereporter/internal/storage/bolt"
	"github.com/goodtune/usagereporter/internal/webhook"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validURL = "https://hooks.slack.com/services/T000/B000/XXXX"

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := bolt.Open(filepath.Join(t.TempDir(), "settings.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return New(store.Settings(), storage.ReportSettings{SendHour: 21}, zerolog.Nop())
}

func TestReadReturnsDefaultsBeforeFirstWrite(t *testing.T) {
	svc := newTestService(t)

	got, err := svc.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 21, got.SendHour)
	assert.False(t, got.SendEnabled)
	assert.Empty(t, got.DestinationURL)
	assert.NotNil(t, got.ExcludedApplicationIDs)
}

func TestSettersAreIndependentAndVisible(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetDestinationURL(ctx, "  "+validURL+"  ")
	require.NoError(t, err)
	_, err = svc.SetSendTime(ctx, 7, 45)
	require.NoError(t, err)
	_, err = svc.SetSendEnabled(ctx, true)
	require.NoError(t, err)
	got, err := svc.AddExcluded(ctx, "com.example.a")
	require.NoError(t, err)

	assert.Equal(t, validURL, got.DestinationURL)
	assert.True(t, got.SendEnabled)
	assert.Equal(t, 7, got.SendHour)
	assert.Equal(t, 45, got.SendMinute)
	assert.Equal(t, []string{"com.example.a"}, got.ExcludedApplicationIDs)

	got, err = svc.RemoveExcluded(ctx, "com.example.a")
	require.NoError(t, err)
	assert.Empty(t, got.ExcludedApplicationIDs)

	got, err = svc.SetExcluded(ctx, []string{"b", "a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.ExcludedApplicationIDs)
}

func TestSetDestinationURLValidates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetDestinationURL(ctx, "http://hooks.slack.com/services/X")
	assert.ErrorIs(t, err, webhook.ErrInvalidDestination)

	_, err = svc.SetDestinationURL(ctx, validURL)
	require.NoError(t, err)

	got, err := svc.SetDestinationURL(ctx, "   ")
	require.NoError(t, err, "blank clears the destination")
	assert.False(t, got.WebhookConfigured())
}

func TestSetSendTimeRejectsOutOfRange(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetSendTime(ctx, 24, 0)
	assert.ErrorIs(t, err, ErrInvalidSetting)
	_, err = svc.SetSendTime(ctx, 0, 60)
	assert.Error(t, err)
	_, err = svc.SetSendTime(ctx, -1, 0)
	assert.Error(t, err)
}

func TestOnChangeRunsAfterWrites(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	var seen []storage.ReportSettings
	svc.OnChange(func(_ context.Context, s storage.ReportSettings) error {
		seen = append(seen, s)
		return nil
	})

	_, err := svc.SetSendEnabled(ctx, true)
	require.NoError(t, err)
	_, err = svc.SetSendTime(ctx, 6, 0)
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.True(t, seen[1].SendEnabled)
	assert.Equal(t, 6, seen[1].SendHour)

	_, err = svc.Notify(ctx)
	require.NoError(t, err)
	assert.Len(t, seen, 3)
}

func TestOnChangeErrorIsReturnedAfterPersisting(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	boom := errors.New("scheduler down")

	svc.OnChange(func(context.Context, storage.ReportSettings) error { return boom })

	_, err := svc.SetSendEnabled(ctx, true)
	assert.ErrorIs(t, err, boom)

	got, err := svc.Read(ctx)
	require.NoError(t, err)
	assert.True(t, got.SendEnabled)
}

func TestParseSendTime(t *testing.T) {
	hour, minute, err := ParseSendTime(" 07:05 ")
	require.NoError(t, err)
	assert.Equal(t, 7, hour)
	assert.Equal(t, 5, minute)

	for _, bad := range []string{"", "7", "25:00", "12:60", "noon"} {
		_, _, err := ParseSendTime(bad)
		assert.Error(t, err, bad)
	}
}
