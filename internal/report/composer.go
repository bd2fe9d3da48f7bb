package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/goodtune/usagereporter/internal/usage"
)

const (
	// DefaultTopN is how many applications get their own line.
	DefaultTopN = 5

	// DefaultTargetMinutes is the daily screen time goal.
	DefaultTargetMinutes = 30

	headerFormat   = "📱 Screen time for %s: %s (%s vs. target)"
	dateLayout     = "2006/01/02 (Mon)"
	noUsageLine    = "No usage detected today."
	otherAppsLabel = "Other apps"
	bullet         = "• "

	testMessage = "✅ usagereporter test message. Daily reports will be delivered to this channel."
)

// NameResolver maps an application id to a display name. Implementations
// fall back to the id instead of failing.
type NameResolver interface {
	Resolve(applicationID string) string
}

// ResolverFunc adapts a function to NameResolver.
type ResolverFunc func(applicationID string) string

// Resolve calls f.
func (f ResolverFunc) Resolve(applicationID string) string {
	return f(applicationID)
}

// IdentityResolver renders raw application ids.
var IdentityResolver = ResolverFunc(func(id string) string { return id })

// Composer renders the daily usage message.
type Composer struct {
	TopN          int
	TargetMinutes int
	Names         NameResolver
}

// NewComposer creates a composer. Non-positive topN falls back to
// DefaultTopN and a nil resolver renders raw ids.
func NewComposer(topN, targetMinutes int, names NameResolver) *Composer {
	if topN <= 0 {
		topN = DefaultTopN
	}
	if names == nil {
		names = IdentityResolver
	}
	return &Composer{TopN: topN, TargetMinutes: targetMinutes, Names: names}
}

// Compose renders entries in the order given. The output depends only on
// the arguments and the resolved names.
func (c *Composer) Compose(entries []usage.Entry, date time.Time) string {
	var total int64
	for _, e := range entries {
		total += e.DurationMillis
	}
	totalMinutes := Minutes(total)
	delta := totalMinutes - int64(c.TargetMinutes)

	var b strings.Builder
	b.WriteString(header(date, totalMinutes, delta))
	b.WriteString("\n\n")

	if len(entries) == 0 {
		b.WriteString(noUsageLine)
		return b.String()
	}

	topN := c.TopN
	if topN > len(entries) {
		topN = len(entries)
	}

	lines := make([]string, 0, topN+1)
	for _, e := range entries[:topN] {
		lines = append(lines, line(c.resolve(e.ApplicationID), e.DurationMillis))
	}

	if len(entries) > topN {
		var rest int64
		for _, e := range entries[topN:] {
			rest += e.DurationMillis
		}
		lines = append(lines, line(otherAppsLabel, rest))
	}

	b.WriteString(strings.Join(lines, "\n"))
	return b.String()
}

// TestMessage is the fixed text sent when checking a webhook.
func (c *Composer) TestMessage() string {
	return testMessage
}

func (c *Composer) resolve(id string) string {
	name := strings.TrimSpace(c.Names.Resolve(id))
	if name == "" {
		return id
	}
	return name
}

func header(date time.Time, totalMinutes, delta int64) string {
	return fmt.Sprintf(headerFormat, date.Format(dateLayout), FormatMinutes(totalMinutes), FormatDelta(delta))
}

func line(name string, millis int64) string {
	return bullet + name + " - " + FormatMinutes(Minutes(millis))
}
