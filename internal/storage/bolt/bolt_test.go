package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/goodtune/usagereporter/internal/storage"
)

var testDefaults = storage.ReportSettings{SendHour: 21, SendMinute: 0}

func TestSettingsStoreDeltasAreIndependent(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	settings := store.Settings()

	if _, err := settings.Get(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first write, got %v", err)
	}

	if err := settings.SetDestinationURL(ctx, testDefaults, "  https://hooks.slack.com/services/T0/B0/X  "); err != nil {
		t.Fatalf("set destination url: %v", err)
	}
	if err := settings.SetSendEnabled(ctx, testDefaults, true); err != nil {
		t.Fatalf("set send enabled: %v", err)
	}
	if err := settings.SetSendTime(ctx, testDefaults, 7, 30); err != nil {
		t.Fatalf("set send time: %v", err)
	}

	got, err := settings.Get(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if got.DestinationURL != "https://hooks.slack.com/services/T0/B0/X" {
		t.Errorf("expected trimmed url, got %q", got.DestinationURL)
	}
	if !got.SendEnabled {
		t.Error("expected send enabled")
	}
	if got.SendHour != 7 || got.SendMinute != 30 {
		t.Errorf("expected 07:30, got %02d:%02d", got.SendHour, got.SendMinute)
	}
}

func TestSettingsStoreFirstWriteUsesDefaults(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if err := store.Settings().SetSendEnabled(ctx, testDefaults, true); err != nil {
		t.Fatalf("set send enabled: %v", err)
	}

	got, err := store.Settings().Get(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if got.SendHour != 21 || got.SendMinute != 0 {
		t.Errorf("expected default 21:00, got %02d:%02d", got.SendHour, got.SendMinute)
	}
}

func TestSettingsStoreExclusions(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	settings := store.Settings()

	for _, id := range []string{"com.example.b", "com.example.a", "com.example.b"} {
		if err := settings.AddExcluded(ctx, testDefaults, id); err != nil {
			t.Fatalf("add excluded %s: %v", id, err)
		}
	}
	if err := settings.RemoveExcluded(ctx, testDefaults, "com.example.missing"); err != nil {
		t.Fatalf("remove missing excluded: %v", err)
	}

	got, err := settings.Get(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	want := []string{"com.example.a", "com.example.b"}
	if !reflect.DeepEqual(got.ExcludedApplicationIDs, want) {
		t.Fatalf("expected %v, got %v", want, got.ExcludedApplicationIDs)
	}

	if err := settings.RemoveExcluded(ctx, testDefaults, "com.example.a"); err != nil {
		t.Fatalf("remove excluded: %v", err)
	}
	if err := settings.SetExcluded(ctx, testDefaults, append([]string{" com.example.c "}, "")); err != nil {
		t.Fatalf("set excluded: %v", err)
	}
	got, err = settings.Get(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if !reflect.DeepEqual(got.ExcludedApplicationIDs, []string{"com.example.c"}) {
		t.Fatalf("expected exclusions replaced, got %v", got.ExcludedApplicationIDs)
	}
}

func TestOutcomeStoreOverwrite(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	outcomes := store.Outcomes()

	sentAt := time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC)
	if err := outcomes.Put(ctx, storage.SendOutcome{Status: storage.StatusSuccess, LastSentAt: &sentAt}); err != nil {
		t.Fatalf("put success: %v", err)
	}
	if err := outcomes.Put(ctx, storage.SendOutcome{Status: storage.StatusFailed, ErrorMessage: "boom"}); err != nil {
		t.Fatalf("put failure: %v", err)
	}

	got, err := outcomes.Get(ctx)
	if err != nil {
		t.Fatalf("get outcome: %v", err)
	}
	if got.Status != storage.StatusFailed || got.ErrorMessage != "boom" {
		t.Fatalf("unexpected outcome: %+v", got)
	}
	if got.LastSentAt != nil {
		t.Fatalf("expected previous timestamp to be replaced, got %v", got.LastSentAt)
	}
}

func TestUsageStoreIntervals(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	usageStore := store.Usage()
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	intervals := []storage.UsageInterval{
		{ID: "a", ApplicationID: "com.example.a", Start: day.Add(-30 * time.Minute), End: day.Add(15 * time.Minute)},
		{ID: "b", ApplicationID: "com.example.b", Start: day.Add(2 * time.Hour), End: day.Add(3 * time.Hour)},
		{ID: "c", ApplicationID: "com.example.c", Start: day.Add(-48 * time.Hour), End: day.Add(-47 * time.Hour)},
		{ID: "d", ApplicationID: "com.example.d", Start: day.Add(25 * time.Hour), End: day.Add(26 * time.Hour)},
	}
	for _, interval := range intervals {
		if err := usageStore.AddInterval(ctx, interval); err != nil {
			t.Fatalf("add interval %s: %v", interval.ID, err)
		}
	}

	got, err := usageStore.ListIntervals(ctx, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("list intervals: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 overlapping intervals, got %d", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("expected intervals ordered by start, got %s, %s", got[0].ID, got[1].ID)
	}

	deleted, err := usageStore.DeleteIntervalsBefore(ctx, day)
	if err != nil {
		t.Fatalf("delete intervals: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted interval, got %d", deleted)
	}
}

func TestJobStoreUpsertKeepsOneRecordPerName(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	jobs := store.Jobs()
	first := time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC)

	if err := jobs.Upsert(ctx, storage.JobRecord{Name: "daily", Interval: 24 * time.Hour, NextFire: first}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := jobs.Upsert(ctx, storage.JobRecord{Name: "daily", Interval: 24 * time.Hour, NextFire: first.Add(time.Hour)}); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	all, err := jobs.List(ctx)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 job, got %d", len(all))
	}
	if !all[0].NextFire.Equal(first.Add(time.Hour)) {
		t.Fatalf("expected latest next fire, got %v", all[0].NextFire)
	}

	if err := jobs.Delete(ctx, "daily"); err != nil {
		t.Fatalf("delete job: %v", err)
	}
	if err := jobs.Delete(ctx, "daily"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "usagereporter.bolt")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}
