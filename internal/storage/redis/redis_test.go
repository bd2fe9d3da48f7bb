package redis

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/usagereporter/internal/config"
	"github.com/goodtune/usagereporter/internal/storage"
)

var testDefaults = storage.ReportSettings{SendHour: 21, SendMinute: 0}

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	// miniredis.Addr() returns "host:port", so Port stays zero
	cfg := config.RedisConfig{
		Host:         mr.Addr(),
		Port:         0,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}

	return store, mr
}

func TestSettingsStore_NotFoundBeforeWrite(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	_, err := store.Settings().Get(context.Background())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestSettingsStore_DeltasAreIndependent(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	settings := store.Settings()

	if err := settings.SetSendTime(ctx, testDefaults, 7, 30); err != nil {
		t.Fatalf("SetSendTime failed: %v", err)
	}
	if err := settings.SetDestinationURL(ctx, testDefaults, " https://hooks.slack.com/services/T0/B0/X "); err != nil {
		t.Fatalf("SetDestinationURL failed: %v", err)
	}
	if err := settings.SetSendEnabled(ctx, testDefaults, true); err != nil {
		t.Fatalf("SetSendEnabled failed: %v", err)
	}

	got, err := settings.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got.DestinationURL != "https://hooks.slack.com/services/T0/B0/X" {
		t.Errorf("Expected trimmed url, got %q", got.DestinationURL)
	}
	if !got.SendEnabled {
		t.Error("Expected SendEnabled to be true")
	}
	if got.SendHour != 7 || got.SendMinute != 30 {
		t.Errorf("Expected 07:30, got %02d:%02d", got.SendHour, got.SendMinute)
	}
	if len(got.ExcludedApplicationIDs) != 0 {
		t.Errorf("Expected no exclusions, got %v", got.ExcludedApplicationIDs)
	}
}

func TestSettingsStore_FirstWriteSeedsDefaults(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	defaults := storage.ReportSettings{
		SendHour:               6,
		SendMinute:             15,
		ExcludedApplicationIDs: []string{"com.example.launcher"},
	}

	if err := store.Settings().SetSendEnabled(ctx, defaults, true); err != nil {
		t.Fatalf("SetSendEnabled failed: %v", err)
	}

	got, err := store.Settings().Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.SendHour != 6 || got.SendMinute != 15 {
		t.Errorf("Expected default 06:15, got %02d:%02d", got.SendHour, got.SendMinute)
	}
	if !reflect.DeepEqual(got.ExcludedApplicationIDs, []string{"com.example.launcher"}) {
		t.Errorf("Expected default exclusions, got %v", got.ExcludedApplicationIDs)
	}
}

func TestSettingsStore_Exclusions(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	settings := store.Settings()

	for _, id := range []string{"com.example.b", "com.example.a", "com.example.b"} {
		if err := settings.AddExcluded(ctx, testDefaults, id); err != nil {
			t.Fatalf("AddExcluded(%s) failed: %v", id, err)
		}
	}

	got, err := settings.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	want := []string{"com.example.a", "com.example.b"}
	if !reflect.DeepEqual(got.ExcludedApplicationIDs, want) {
		t.Fatalf("Expected %v, got %v", want, got.ExcludedApplicationIDs)
	}

	if err := settings.RemoveExcluded(ctx, testDefaults, "com.example.a"); err != nil {
		t.Fatalf("RemoveExcluded failed: %v", err)
	}
	if err := settings.SetExcluded(ctx, testDefaults, []string{"com.example.d", " com.example.c ", ""}); err != nil {
		t.Fatalf("SetExcluded failed: %v", err)
	}

	got, err = settings.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	want = []string{"com.example.c", "com.example.d"}
	if !reflect.DeepEqual(got.ExcludedApplicationIDs, want) {
		t.Fatalf("Expected %v, got %v", want, got.ExcludedApplicationIDs)
	}
}

func TestOutcomeStore_Overwrite(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	outcomes := store.Outcomes()

	if _, err := outcomes.Get(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	sentAt := time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC)
	if err := outcomes.Put(ctx, storage.SendOutcome{Status: storage.StatusSuccess, LastSentAt: &sentAt}); err != nil {
		t.Fatalf("Put success failed: %v", err)
	}

	got, err := outcomes.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != storage.StatusSuccess {
		t.Errorf("Expected SUCCESS, got %s", got.Status)
	}
	if got.LastSentAt == nil || !got.LastSentAt.Equal(sentAt) {
		t.Errorf("Expected LastSentAt %v, got %v", sentAt, got.LastSentAt)
	}

	if err := outcomes.Put(ctx, storage.SendOutcome{Status: storage.StatusFailed, ErrorMessage: "boom"}); err != nil {
		t.Fatalf("Put failure failed: %v", err)
	}

	got, err = outcomes.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != storage.StatusFailed || got.ErrorMessage != "boom" {
		t.Errorf("Unexpected outcome: %+v", got)
	}
	if got.LastSentAt != nil {
		t.Errorf("Expected LastSentAt cleared, got %v", got.LastSentAt)
	}
}

func TestUsageStore_Intervals(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	usageStore := store.Usage()
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	intervals := []storage.UsageInterval{
		{ID: "a", ApplicationID: "com.example.a", Start: day.Add(-30 * time.Minute), End: day.Add(15 * time.Minute)},
		{ID: "b", ApplicationID: "com.example.b", Start: day.Add(2 * time.Hour), End: day.Add(3 * time.Hour)},
		{ID: "c", ApplicationID: "com.example.c", Start: day.Add(-48 * time.Hour), End: day.Add(-47 * time.Hour)},
		{ID: "d", ApplicationID: "com.example.d", Start: day.Add(24 * time.Hour), End: day.Add(25 * time.Hour)},
	}
	for _, interval := range intervals {
		if err := usageStore.AddInterval(ctx, interval); err != nil {
			t.Fatalf("AddInterval(%s) failed: %v", interval.ID, err)
		}
	}

	got, err := usageStore.ListIntervals(ctx, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListIntervals failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 overlapping intervals, got %d", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("Expected intervals ordered by start, got %s, %s", got[0].ID, got[1].ID)
	}
	if got[1].ApplicationID != "com.example.b" || !got[1].End.Equal(day.Add(3*time.Hour)) {
		t.Errorf("Unexpected interval: %+v", got[1])
	}

	deleted, err := usageStore.DeleteIntervalsBefore(ctx, day)
	if err != nil {
		t.Fatalf("DeleteIntervalsBefore failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted interval, got %d", deleted)
	}

	remaining, err := usageStore.ListIntervals(ctx, day.Add(-72*time.Hour), day.Add(72*time.Hour))
	if err != nil {
		t.Fatalf("ListIntervals failed: %v", err)
	}
	if len(remaining) != 3 {
		t.Errorf("Expected 3 remaining intervals, got %d", len(remaining))
	}
}

func TestJobStore_UpsertAndDelete(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	jobs := store.Jobs()
	first := time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC)

	if err := jobs.Upsert(ctx, storage.JobRecord{Name: "daily", Interval: 24 * time.Hour, NextFire: first, RequiresNetwork: true}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := jobs.Upsert(ctx, storage.JobRecord{Name: "daily", Interval: 24 * time.Hour, NextFire: first.Add(time.Hour), RequiresNetwork: true}); err != nil {
		t.Fatalf("Upsert again failed: %v", err)
	}

	all, err := jobs.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("Expected 1 job, got %d", len(all))
	}
	if !all[0].NextFire.Equal(first.Add(time.Hour)) {
		t.Errorf("Expected latest next fire, got %v", all[0].NextFire)
	}
	if all[0].Interval != 24*time.Hour || !all[0].RequiresNetwork {
		t.Errorf("Unexpected job: %+v", all[0])
	}

	job, err := jobs.Get(ctx, "daily")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if job.Name != "daily" {
		t.Errorf("Expected name daily, got %s", job.Name)
	}

	if err := jobs.Delete(ctx, "daily"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := jobs.Delete(ctx, "daily"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := jobs.Get(ctx, "daily"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}
