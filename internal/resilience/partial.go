package resilience

import (
	"fmt"
	"strings"
)

// DefaultFailureNotices maps a capability to the user-facing notice shown
// when every dispatch attempt for it failed.
var DefaultFailureNotices = map[string]string{
	"weather.get":  "Weather information is temporarily unavailable.",
	"stock.price":  "Stock price data is temporarily unavailable.",
	"travel.plan":  "Travel planning is temporarily unavailable.",
}

// NoticeFor returns the configured per-capability failure notice, or a
// generic fallback when none is configured.
func NoticeFor(notices map[string]string, capability string) string {
	if notices != nil {
		if n, ok := notices[capability]; ok {
			return n
		}
	}
	return fmt.Sprintf("The %s service is temporarily unavailable.", capability)
}

// Composition is the result of composing a plan's mixed outcomes into a
// single reply body.
type Composition struct {
	Body    string
	Partial bool
}

// ComposePartial lists successful results and enumerates a per-failure
// notice for every non-optional task that failed, marking the overall
// result partial whenever at least one required task failed.
func ComposePartial(outcomes []TaskOutcome, optional map[string]bool, notices map[string]string) Composition {
	var successLines []string
	var failureLines []string
	partial := false

	for _, o := range outcomes {
		if o.Success {
			successLines = append(successLines, fmt.Sprintf("%s: %v", o.Capability, o.Result))
			continue
		}
		if optional[o.Capability] {
			continue
		}
		partial = true
		failureLines = append(failureLines, NoticeFor(notices, o.Capability))
	}

	var b strings.Builder
	if len(successLines) > 0 {
		b.WriteString(strings.Join(successLines, "\n"))
	}
	if len(failureLines) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.Join(failureLines, "\n"))
	}

	return Composition{Body: b.String(), Partial: partial}
}
