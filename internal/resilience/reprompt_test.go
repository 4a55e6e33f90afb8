package resilience

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmergencyResponseFallsBackToGeneralForUnknownCategory(t *testing.T) {
	require.Equal(t, emergencyTemplates[FailureGeneral], EmergencyResponse(FailureCategory("nonsense")))
}

func TestEmergencyResponseReturnsCategorySpecificTemplate(t *testing.T) {
	require.Equal(t, emergencyTemplates[FailureAgent], EmergencyResponse(FailureAgent))
}

func TestRepromptPromptTruncatesLongMalformedOutput(t *testing.T) {
	long := strings.Repeat("x", maxSnippetLen+50)
	prompt := RepromptPrompt("do the thing", long, 2)
	require.Contains(t, prompt, strings.Repeat("x", maxSnippetLen)+"...")
	require.NotContains(t, prompt, strings.Repeat("x", maxSnippetLen+1))
	require.Contains(t, prompt, "attempt 2")
	require.Contains(t, prompt, "do the thing")
}

func TestRepromptPromptLeavesShortOutputUntouched(t *testing.T) {
	prompt := RepromptPrompt("task", "not json", 1)
	require.Contains(t, prompt, `"not json"`)
	require.NotContains(t, prompt, "...")
}
