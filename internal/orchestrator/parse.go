package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedPlan is returned by parsePlan when the LLM's output is
// neither a bare task array nor a {confidence, tasks} envelope.
var ErrMalformedPlan = errors.New("orchestrator: malformed plan output")

// parsePlan accepts either a bare JSON array of {capability, params, ...}
// tasks, or a {"confidence": x, "tasks": [...]} envelope, stripping a
// markdown code fence if the model wrapped its answer in one.
func parsePlan(raw string) (Plan, error) {
	raw = stripFence(raw)

	var tasks []rawPlanTask
	if err := json.Unmarshal([]byte(raw), &tasks); err == nil && len(tasks) > 0 {
		return Plan{Tasks: toTaskSpecs(tasks), Confidence: 1, Source: "llm"}, nil
	}

	var envelope rawPlanEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err == nil && len(envelope.Tasks) > 0 {
		return Plan{Tasks: toTaskSpecs(envelope.Tasks), Confidence: envelope.Confidence, Source: "llm"}, nil
	}

	return Plan{}, fmt.Errorf("%w: %s", ErrMalformedPlan, truncate(raw, 120))
}

func toTaskSpecs(raw []rawPlanTask) []TaskSpec {
	tasks := make([]TaskSpec, len(raw))
	for i, t := range raw {
		tasks[i] = TaskSpec{
			TaskID:       "t" + strconv.Itoa(i+1),
			Capability:   t.Capability,
			Params:       t.Params,
			Dependencies: t.Dependencies,
			Optional:     t.Optional,
		}
	}
	return tasks
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
