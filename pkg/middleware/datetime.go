package middleware

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ensemble-ai/ensemble/pkg/llms"
	"github.com/ensemble-ai/ensemble/pkg/protocol"
)

// DatetimeMode selects how much temporal context is injected.
type DatetimeMode string

const (
	// DatetimeMinimal is the specialist default: date, time and ISO stamp.
	DatetimeMinimal DatetimeMode = "minimal"
	// DatetimeFull adds the reference-date table and phrase guide used by
	// the supervisor for interpreting relative dates.
	DatetimeFull DatetimeMode = "full"
)

// Sentinels delimiting the injected block. They are HTML comments so the
// model ignores them while the middleware can find and replace the block.
const (
	datetimeStart = "<!-- datetime:start -->"
	datetimeEnd   = "<!-- datetime:end -->"
)

// DefaultPhraseGuide maps relative English phrases to the reference table.
const DefaultPhraseGuide = `Phrase guide:
- "today" means the current date above
- "yesterday" means the Yesterday reference date
- "last week" / "past week" means since the Last 7 days timestamp
- "last month" means since the Start of last month date
- "recently" / "lately" usually means the Last 7 days window`

// DatetimeContext appends a fresh temporal block to the end of the system
// message on every call. End placement keeps the static prefix cacheable
// by providers that cache system-message prefixes.
type DatetimeContext struct {
	Mode DatetimeMode
	// PhraseGuide replaces the default English phrase table in full mode.
	PhraseGuide string
	// Now and TTL exist for tests; zero values mean time.Now and 60s.
	Now func() time.Time
	TTL time.Duration

	cache atomic.Pointer[datetimeCache]
}

type datetimeCache struct {
	block   string
	expires time.Time
}

func NewDatetimeContext(mode DatetimeMode) *DatetimeContext {
	return &DatetimeContext{Mode: mode}
}

func (m *DatetimeContext) WrapModelCall(ctx context.Context, req *llms.Request, next Next) (*llms.Response, error) {
	block := m.block()

	var system string
	if req.SystemMessage != nil {
		system = req.SystemMessage.Text()
	}

	system = stripDatetimeBlock(system)
	if system != "" && !strings.HasSuffix(system, "\n") {
		system += "\n"
	}
	system += "\n" + block

	msg := protocol.CreateSystemMessage(system)
	req.SystemMessage = &msg

	return next(ctx, req)
}

// block returns the formatted datetime block, cached for TTL. The race to
// repopulate is benign: every winner writes an equivalent value.
func (m *DatetimeContext) block() string {
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	ttl := m.TTL
	if ttl == 0 {
		ttl = 60 * time.Second
	}

	current := now().UTC()
	if cached := m.cache.Load(); cached != nil && current.Before(cached.expires) {
		return cached.block
	}

	block := m.format(current)
	m.cache.Store(&datetimeCache{block: block, expires: current.Add(ttl)})
	return block
}

func (m *DatetimeContext) format(now time.Time) string {
	var sb strings.Builder
	sb.WriteString(datetimeStart + "\n")
	sb.WriteString("## Current DateTime Context\n")
	sb.WriteString(fmt.Sprintf("- Current UTC time: %s\n", now.Format("2006-01-02 15:04:05 UTC")))
	sb.WriteString(fmt.Sprintf("- Current date: %s\n", now.Format("Monday, January 2, 2006")))
	sb.WriteString(fmt.Sprintf("- ISO format: %s\n", now.Format(time.RFC3339)))

	if m.Mode == DatetimeFull {
		sb.WriteString("\nReference dates (ISO 8601 UTC):\n")
		for _, ref := range referenceDates(now) {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", ref.label, ref.value))
		}
		guide := m.PhraseGuide
		if guide == "" {
			guide = DefaultPhraseGuide
		}
		sb.WriteString("\n" + guide + "\n")
	}

	sb.WriteString("\nUse this when interpreting timestamps, logs, or relative dates in queries.\n")
	sb.WriteString(datetimeEnd)
	return sb.String()
}

type referenceDate struct {
	label string
	value string
}

func referenceDates(now time.Time) []referenceDate {
	day := 24 * time.Hour
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	// ISO weeks start on Monday.
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	startOfWeek := midnight.AddDate(0, 0, -(weekday - 1))

	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	startOfLastMonth := startOfMonth.AddDate(0, -1, 0)

	return []referenceDate{
		{label: "Yesterday", value: midnight.Add(-day).Format("2006-01-02")},
		{label: "Last 24 hours", value: now.Add(-day).Format(time.RFC3339)},
		{label: "Last 7 days", value: now.Add(-7 * day).Format(time.RFC3339)},
		{label: "Last 30 days", value: now.Add(-30 * day).Format(time.RFC3339)},
		{label: "Start of week", value: startOfWeek.Format("2006-01-02")},
		{label: "Start of month", value: startOfMonth.Format("2006-01-02")},
		{label: "Start of last month", value: startOfLastMonth.Format("2006-01-02")},
	}
}

// stripDatetimeBlock removes any existing delimited block so re-injection
// replaces rather than duplicates.
func stripDatetimeBlock(system string) string {
	start := strings.Index(system, datetimeStart)
	if start == -1 {
		return system
	}
	end := strings.Index(system[start:], datetimeEnd)
	if end == -1 {
		return strings.TrimRight(system[:start], "\n")
	}
	after := system[start+end+len(datetimeEnd):]
	return strings.TrimRight(system[:start], "\n") + strings.TrimRight(after, "\n")
}
