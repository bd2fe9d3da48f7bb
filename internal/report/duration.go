package report

import (
	"fmt"
	"strconv"
)

const millisPerMinute = 60_000

// Minutes truncates a millisecond duration to whole minutes.
func Minutes(millis int64) int64 {
	return millis / millisPerMinute
}

// FormatMinutes renders minutes as "1h 5m", "2h", "45m" or "under 1 minute".
func FormatMinutes(minutes int64) string {
	if minutes < 1 {
		return "under 1 minute"
	}

	hours, rest := minutes/60, minutes%60
	switch {
	case hours == 0:
		return fmt.Sprintf("%dm", rest)
	case rest == 0:
		return fmt.Sprintf("%dh", hours)
	default:
		return fmt.Sprintf("%dh %dm", hours, rest)
	}
}

// FormatDelta renders a signed minute difference as "+45m" or "-12m".
func FormatDelta(minutes int64) string {
	if minutes < 0 {
		return "-" + strconv.FormatInt(-minutes, 10) + "m"
	}
	return "+" + strconv.FormatInt(minutes, 10) + "m"
}
