package usage

import (
	"time"
)

// Entry is the foreground time of one application inside a report window.
type Entry struct {
	ApplicationID  string `json:"application_id"`
	DurationMillis int64  `json:"duration_millis"`
}

// Day is the usage of one local day, from midnight up to End.
type Day struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Entries []Entry   `json:"entries"`
}

// TotalMillis sums every entry of the day.
func (d Day) TotalMillis() int64 {
	var total int64
	for _, e := range d.Entries {
		total += e.DurationMillis
	}
	return total
}

// Session represents an in-flight foreground session of one application
type Session struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	StartedAt     time.Time `json:"started_at"`
	LastActivity  time.Time `json:"last_activity"`
}

// Span returns the time covered by the session so far.
func (s Session) Span() time.Duration {
	return s.LastActivity.Sub(s.StartedAt)
}
