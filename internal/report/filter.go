package report

import (
	"github.com/goodtune/usagereporter/internal/usage"
)

// Filter drops entries whose application id is excluded. Order is kept and
// the input is not modified.
func Filter(entries []usage.Entry, excluded []string) []usage.Entry {
	out := make([]usage.Entry, 0, len(entries))
	if len(excluded) == 0 {
		return append(out, entries...)
	}

	skip := make(map[string]struct{}, len(excluded))
	for _, id := range excluded {
		skip[id] = struct{}{}
	}

	for _, entry := range entries {
		if _, ok := skip[entry.ApplicationID]; ok {
			continue
		}
		out = append(out, entry)
	}
	return out
}
