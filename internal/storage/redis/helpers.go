package redis

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/goodtune/usagereporter/internal/storage"
)

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// scoreOf converts a timestamp into a sorted set score. Milliseconds keep the
// value inside float64 integer precision.
func scoreOf(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// parseSettings converts the settings hash and exclusion set to ReportSettings
func parseSettings(data map[string]string, excluded []string) (*storage.ReportSettings, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	enabled, err := strconv.ParseBool(data["send_enabled"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse send_enabled: %w", err)
	}

	hour, err := strconv.Atoi(data["send_hour"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse send_hour: %w", err)
	}

	minute, err := strconv.Atoi(data["send_minute"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse send_minute: %w", err)
	}

	ids := slices.Clone(excluded)
	slices.Sort(ids)
	if ids == nil {
		ids = []string{}
	}

	return &storage.ReportSettings{
		DestinationURL:         data["destination_url"],
		SendEnabled:            enabled,
		SendHour:               hour,
		SendMinute:             minute,
		ExcludedApplicationIDs: ids,
	}, nil
}

// parseOutcome converts a Redis hash to SendOutcome
func parseOutcome(data map[string]string) (*storage.SendOutcome, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	status, err := storage.ParseSendStatus(data["status"])
	if err != nil {
		return nil, err
	}

	outcome := &storage.SendOutcome{
		Status:       status,
		ErrorMessage: data["error_message"],
	}

	if raw := data["last_sent_at"]; raw != "" {
		sentAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last_sent_at: %w", err)
		}
		outcome.LastSentAt = &sentAt
	}

	return outcome, nil
}

// parseInterval converts a Redis hash to UsageInterval
func parseInterval(data map[string]string) (*storage.UsageInterval, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	start, err := time.Parse(time.RFC3339Nano, data["start"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse start: %w", err)
	}

	end, err := time.Parse(time.RFC3339Nano, data["end"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse end: %w", err)
	}

	return &storage.UsageInterval{
		ID:            data["id"],
		ApplicationID: data["application_id"],
		Start:         start,
		End:           end,
	}, nil
}

// parseJob converts a Redis hash to JobRecord
func parseJob(data map[string]string) (*storage.JobRecord, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	intervalNanos, err := strconv.ParseInt(data["interval"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse interval: %w", err)
	}

	nextFire, err := time.Parse(time.RFC3339Nano, data["next_fire"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse next_fire: %w", err)
	}

	requiresNetwork, err := strconv.ParseBool(data["requires_network"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse requires_network: %w", err)
	}

	job := &storage.JobRecord{
		Name:            data["name"],
		Interval:        time.Duration(intervalNanos),
		NextFire:        nextFire,
		RequiresNetwork: requiresNetwork,
	}

	if raw := data["updated_at"]; raw != "" {
		updatedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}
		job.UpdatedAt = updatedAt
	}

	return job, nil
}
