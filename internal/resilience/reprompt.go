package resilience

import "fmt"

// FailureCategory keys the emergency-response template map.
type FailureCategory string

const (
	FailureLLM           FailureCategory = "llm_failure"
	FailureOrchestration FailureCategory = "orchestration_failure"
	FailureAgent         FailureCategory = "agent_failure"
	FailureGeneral       FailureCategory = "general"
)

var emergencyTemplates = map[FailureCategory]string{
	FailureLLM:           "I wasn't able to understand that request well enough to act on it. Could you rephrase it?",
	FailureOrchestration: "Something went wrong while coordinating a response. Please try again shortly.",
	FailureAgent:         "One of the services needed to answer this is currently unavailable.",
	FailureGeneral:       "I couldn't complete that request right now. Please try again.",
}

// EmergencyResponse returns the canned reply for a failure category that
// has exhausted every repair/retry option.
func EmergencyResponse(cat FailureCategory) string {
	if tmpl, ok := emergencyTemplates[cat]; ok {
		return tmpl
	}
	return emergencyTemplates[FailureGeneral]
}

const maxSnippetLen = 200

// RepromptPrompt builds a stricter follow-up prompt after malformedOutput
// failed schema validation: it truncates the bad output, restates the
// structural rules, then re-asks the original task.
func RepromptPrompt(originalTask, malformedOutput string, attempt int) string {
	snippet := malformedOutput
	if len(snippet) > maxSnippetLen {
		snippet = snippet[:maxSnippetLen] + "..."
	}
	return fmt.Sprintf(
		"Your previous response could not be parsed as valid JSON (attempt %d).\n"+
			"Malformed output: %q\n\n"+
			"Respond with ONLY a JSON array of objects, each shaped as:\n"+
			`{"capability": string, "params": object, "dependencies"?: [string], "optional"?: bool}`+"\n"+
			"No prose, no markdown fences, no trailing commentary.\n\n"+
			"Original request: %s",
		attempt, snippet, originalTask,
	)
}
