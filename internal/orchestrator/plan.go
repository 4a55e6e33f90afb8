package orchestrator

// TaskSpec is one task of a TaskPlan. validatePlan drops every task that
// sits on a dependency cycle, so a validated plan's dependency graph is a
// DAG. A dependency is not required to name an earlier TaskID: dispatchPlan
// waits for whichever task of the plan it names, and treats a dependency
// naming no task of the plan as already satisfied.
type TaskSpec struct {
	TaskID       string         `json:"task_id"`
	Capability   string         `json:"capability"`
	Params       map[string]any `json:"params"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Priority     int            `json:"priority,omitempty"`
	TimeoutMs    int            `json:"timeout_ms,omitempty"`
	Optional     bool           `json:"optional,omitempty"`
}

// Plan is an ordered TaskPlan plus the planner's self-reported confidence
// and a flag marking whether validation dropped or flagged anything.
type Plan struct {
	Tasks      []TaskSpec
	Confidence float64
	Source     string // "llm" or "keyword_router"
	Partial    bool
}

// rawPlanTask/rawPlan mirror the wire shape the planning prompt asks the
// LLM to emit: a bare JSON array of {capability, params}, with an optional
// envelope carrying confidence. Parsing accepts either shape.
type rawPlanTask struct {
	Capability   string         `json:"capability"`
	Params       map[string]any `json:"params"`
	Dependencies []string       `json:"dependencies"`
	Optional     bool           `json:"optional"`
}

type rawPlanEnvelope struct {
	Confidence float64       `json:"confidence"`
	Tasks      []rawPlanTask `json:"tasks"`
}
