package api

import (
	"time"

	"github.com/goodtune/usagereporter/internal/storage"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// StatusResponse summarizes the reporter state.
type StatusResponse struct {
	Outcome           storage.SendOutcome `json:"outcome"`
	SendEnabled       bool                `json:"send_enabled"`
	WebhookConfigured bool                `json:"webhook_configured"`
	SendTime          string              `json:"send_time"`
	NextFire          *time.Time          `json:"next_fire,omitempty"`
}

// SettingsResponse is the settings view. The webhook URL is a secret and is
// only reported as configured or not.
type SettingsResponse struct {
	WebhookConfigured      bool     `json:"webhook_configured"`
	SendEnabled            bool     `json:"send_enabled"`
	SendTime               string   `json:"send_time"`
	ExcludedApplicationIDs []string `json:"excluded_application_ids"`
}

// WebhookRequest sets or clears the destination URL.
type WebhookRequest struct {
	URL string `json:"url"`
}

// EnabledRequest turns the daily send on or off.
type EnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// TimeRequest sets the daily send time as HH:MM.
type TimeRequest struct {
	Time string `json:"time"`
}

// ExclusionsRequest replaces the exclusion set.
type ExclusionsRequest struct {
	ApplicationIDs []string `json:"application_ids"`
}

// ActivityRequest is one foreground heartbeat.
type ActivityRequest struct {
	ApplicationID string `json:"application_id"`
}

// UsageEntry is one application in the usage view.
type UsageEntry struct {
	ApplicationID  string `json:"application_id"`
	Name           string `json:"name"`
	DurationMillis int64  `json:"duration_millis"`
}

// UsageResponse is today's usage and the message a send would deliver.
type UsageResponse struct {
	Start    time.Time    `json:"start"`
	End      time.Time    `json:"end"`
	Entries  []UsageEntry `json:"entries"`
	Excluded []string     `json:"excluded_application_ids"`
	Message  string       `json:"message"`
}

// AppResponse is one application in the exclusion picker.
type AppResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Excluded bool   `json:"excluded"`
}

func settingsResponse(s storage.ReportSettings) SettingsResponse {
	ids := s.ExcludedApplicationIDs
	if ids == nil {
		ids = []string{}
	}
	return SettingsResponse{
		WebhookConfigured:      s.WebhookConfigured(),
		SendEnabled:            s.SendEnabled,
		SendTime:               formatSendTime(s),
		ExcludedApplicationIDs: ids,
	}
}
