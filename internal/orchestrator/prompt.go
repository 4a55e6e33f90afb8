package orchestrator

import (
	"fmt"
	"strings"

	"github.com/agentmeshio/meshcore/internal/memory"
	"github.com/agentmeshio/meshcore/internal/registry"
	"github.com/agentmeshio/meshcore/internal/resilience"
)

// buildPlanningPrompt assembles the user query, recent conversation
// context, and the capability catalogue into the prompt sent to the
// LLMProvider.
func buildPlanningPrompt(query string, ctx memory.Context, agents []registry.AgentRegistration) string {
	var b strings.Builder
	b.WriteString("You are the planning component of an agent orchestration system.\n")
	b.WriteString("Given the user request, the recent conversation, and the available capabilities,\n")
	b.WriteString("produce a plan as JSON: {\"confidence\": <0..1>, \"tasks\": [{\"capability\": string, \"params\": object, \"dependencies\"?: [string], \"optional\"?: bool}]}.\n\n")

	b.WriteString("User request:\n")
	b.WriteString(query)
	b.WriteString("\n\n")

	if len(ctx.Messages) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, m := range ctx.Messages {
			fmt.Fprintf(&b, "%s: %s\n", m.Sender, m.Content)
		}
		b.WriteString("\n")
	}

	b.WriteString("Available capabilities:\n")
	caps := make(map[string]struct{})
	for _, a := range agents {
		for cap := range a.Capabilities {
			caps[cap] = struct{}{}
		}
	}
	if len(caps) == 0 {
		b.WriteString("(none currently registered)\n")
	}
	for cap := range caps {
		fmt.Fprintf(&b, "- %s\n", cap)
	}

	return b.String()
}

// buildSynthesisPrompt embeds per-task results into a response prompt for
// the final natural-language reply.
func buildSynthesisPrompt(query string, outcomes []resilience.TaskOutcome) string {
	var b strings.Builder
	b.WriteString("Compose a concise natural-language reply to the user's request, using the task results below.\n\n")
	fmt.Fprintf(&b, "User request: %s\n\n", query)
	b.WriteString("Task results:\n")
	for _, o := range outcomes {
		if o.Success {
			fmt.Fprintf(&b, "- %s succeeded: %v\n", o.Capability, o.Result)
		} else {
			fmt.Fprintf(&b, "- %s failed: %v\n", o.Capability, o.Err)
		}
	}
	return b.String()
}
