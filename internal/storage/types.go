package storage

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// SendStatus represents the outcome of the most recent delivery attempt.
type SendStatus string

const (
	StatusNotSent SendStatus = "NOT_SENT"
	StatusSuccess SendStatus = "SUCCESS"
	StatusFailed  SendStatus = "FAILED"
)

// UnmarshalJSON implements json.Unmarshaler to normalize status to uppercase.
func (s *SendStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return s.parse(raw)
}

func (s *SendStatus) parse(raw string) error {
	normalized := SendStatus(strings.ToUpper(raw))

	switch normalized {
	case StatusNotSent, StatusSuccess, StatusFailed:
		*s = normalized
		return nil
	case "":
		*s = StatusNotSent
		return nil
	default:
		return fmt.Errorf("invalid send status: %s (must be NOT_SENT, SUCCESS, or FAILED)", raw)
	}
}

// ParseSendStatus converts a stored string into a SendStatus.
func ParseSendStatus(raw string) (SendStatus, error) {
	var s SendStatus
	err := s.parse(raw)
	return s, err
}

// MarshalJSON implements json.Marshaler to ensure uppercase output.
func (s SendStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// ReportSettings is the user configuration read once per pipeline run.
type ReportSettings struct {
	DestinationURL         string   `json:"destination_url"`
	SendEnabled            bool     `json:"send_enabled"`
	SendHour               int      `json:"send_hour"`
	SendMinute             int      `json:"send_minute"`
	ExcludedApplicationIDs []string `json:"excluded_application_ids"`
}

// WebhookConfigured reports whether a non-blank destination is set.
func (r ReportSettings) WebhookConfigured() bool {
	return strings.TrimSpace(r.DestinationURL) != ""
}

// IsExcluded reports whether id is in the exclusion set.
func (r ReportSettings) IsExcluded(id string) bool {
	return slices.Contains(r.ExcludedApplicationIDs, id)
}

// Clone returns a copy that shares no slices with r.
func (r ReportSettings) Clone() ReportSettings {
	r.ExcludedApplicationIDs = slices.Clone(r.ExcludedApplicationIDs)
	return r
}

// SendOutcome is the single retained delivery result.
type SendOutcome struct {
	Status       SendStatus `json:"status"`
	LastSentAt   *time.Time `json:"last_sent_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// UsageInterval is one finalized foreground session of an application.
type UsageInterval struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
}

// Overlap returns the portion of the interval inside [start, end).
func (u UsageInterval) Overlap(start, end time.Time) time.Duration {
	from := u.Start
	if start.After(from) {
		from = start
	}
	to := u.End
	if end.Before(to) {
		to = end
	}
	if !to.After(from) {
		return 0
	}
	return to.Sub(from)
}

// JobRecord is a persisted periodic job registration.
type JobRecord struct {
	Name            string        `json:"name"`
	Interval        time.Duration `json:"interval"`
	NextFire        time.Time     `json:"next_fire"`
	RequiresNetwork bool          `json:"requires_network"`
	UpdatedAt       time.Time     `json:"updated_at"`
}
