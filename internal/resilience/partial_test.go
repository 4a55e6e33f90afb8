package resilience

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComposePartialMarksPartialOnRequiredFailure(t *testing.T) {
	outcomes := []TaskOutcome{
		{Capability: "weather.get", Success: true, Result: "sunny, 22C"},
		{Capability: "stock.price", Success: false},
	}
	comp := ComposePartial(outcomes, nil, DefaultFailureNotices)

	require.True(t, comp.Partial)
	require.Contains(t, comp.Body, "sunny, 22C")
	require.Contains(t, comp.Body, "Stock price data is temporarily unavailable.")
}

func TestComposePartialIgnoresOptionalFailures(t *testing.T) {
	outcomes := []TaskOutcome{
		{Capability: "weather.get", Success: true, Result: "sunny"},
		{Capability: "stock.price", Success: false},
	}
	comp := ComposePartial(outcomes, map[string]bool{"stock.price": true}, DefaultFailureNotices)

	require.False(t, comp.Partial)
	require.NotContains(t, comp.Body, "Stock")
}

func TestEmergencyResponseFallsBackToGeneral(t *testing.T) {
	require.Equal(t, emergencyTemplates[FailureGeneral], EmergencyResponse("unknown-category"))
	require.NotEmpty(t, EmergencyResponse(FailureLLM))
}

func TestRepromptPromptTruncatesLongOutput(t *testing.T) {
	long := make([]byte, maxSnippetLen+50)
	for i := range long {
		long[i] = 'x'
	}
	p := RepromptPrompt("plan my trip", string(long), 2)
	require.Contains(t, p, "...")
	require.Contains(t, p, "attempt 2")
}
