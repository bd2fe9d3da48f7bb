package usage

import (
	"context"
	"errors"
	"time"
)

// ErrSourceUnavailable is returned when usage data cannot be obtained, either
// because tracking is switched off or because the backing store failed.
var ErrSourceUnavailable = errors.New("usage source unavailable")

// Source reports per-application foreground time, in milliseconds, for the
// window [start, end).
type Source interface {
	Query(ctx context.Context, start, end time.Time) (map[string]int64, error)
}
