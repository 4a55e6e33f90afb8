package orchestrator

import (
	"github.com/agentmeshio/meshcore/internal/registry"
)

// validatePlan checks every task's capability against the registry (spec
// §4.3 step 6). Unknown optional capabilities are dropped silently; an
// unknown required capability is kept (so dispatch can still report a
// per-task failure) but marks the plan partial. It then rejects any task
// caught in a dependency cycle, since the dependency graph must be a DAG:
// dispatchPlan waits on a channel per TaskID that a cyclic task never
// closes, so a cycle reaching dispatch would hang every task in it until
// the turn timeout instead of failing fast.
func validatePlan(plan Plan, reg *registry.Registry) Plan {
	known := make(map[string]struct{})
	for _, a := range reg.GetAll() {
		for cap := range a.Capabilities {
			known[cap] = struct{}{}
		}
	}

	var kept []TaskSpec
	for _, t := range plan.Tasks {
		_, ok := known[t.Capability]
		if !ok {
			if t.Optional {
				continue
			}
			plan.Partial = true
		}
		kept = append(kept, t)
	}

	if cyclic := cyclicTaskIDs(kept); len(cyclic) > 0 {
		plan.Partial = true
		acyclic := make([]TaskSpec, 0, len(kept))
		for _, t := range kept {
			if !cyclic[t.TaskID] {
				acyclic = append(acyclic, t)
			}
		}
		kept = acyclic
	}

	plan.Tasks = kept
	return plan
}

// cyclicTaskIDs returns the set of TaskIDs that sit on a dependency cycle,
// via a standard three-colour DFS over the plan's dependency graph.
// Dependencies naming a TaskID outside tasks are ignored here — dispatchPlan
// already treats an unresolvable dependency as satisfied immediately, so it
// can never contribute to a hang and isn't this function's concern.
func cyclicTaskIDs(tasks []TaskSpec) map[string]bool {
	const (
		white = iota
		gray
		black
	)

	byID := make(map[string]TaskSpec, len(tasks))
	for _, t := range tasks {
		byID[t.TaskID] = t
	}

	color := make(map[string]int, len(tasks))
	cyclic := make(map[string]bool)

	var visit func(id string, stack []string) bool
	visit = func(id string, stack []string) bool {
		switch color[id] {
		case gray:
			// Found a back-edge: everything from id's first occurrence in
			// stack onward is on the cycle.
			for i, sid := range stack {
				if sid == id {
					for _, cid := range stack[i:] {
						cyclic[cid] = true
					}
					break
				}
			}
			return true
		case black:
			return false
		}

		color[id] = gray
		stack = append(stack, id)
		found := false
		for _, depID := range byID[id].Dependencies {
			if _, ok := byID[depID]; !ok {
				continue
			}
			if visit(depID, stack) {
				found = true
			}
		}
		color[id] = black
		return found
	}

	for _, t := range tasks {
		if color[t.TaskID] == white {
			visit(t.TaskID, nil)
		}
	}
	return cyclic
}
