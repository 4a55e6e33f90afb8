package orchestrator

import (
	"context"
	"sync"

	"github.com/agentmeshio/meshcore/internal/resilience"
)

// dispatchPlan runs every task of a plan through the Dispatcher, honouring
// declared dependencies: a task is not dispatched until all of its
// dependencies have completed (successfully or not — a failed dependency
// simply lets a dependent task run and fail on its own terms, so no
// dependency blocks forever). Independent tasks run concurrently.
func dispatchPlan(ctx context.Context, dispatcher *resilience.Dispatcher, tasks []TaskSpec, correlationIDFor func(taskID string) string) []resilience.TaskOutcome {
	done := make(map[string]chan struct{}, len(tasks))
	for _, t := range tasks {
		done[t.TaskID] = make(chan struct{})
	}

	results := make([]resilience.TaskOutcome, len(tasks))
	var wg sync.WaitGroup
	wg.Add(len(tasks))

	for i, t := range tasks {
		i, t := i, t
		go func() {
			defer wg.Done()
			defer close(done[t.TaskID])

			for _, depID := range t.Dependencies {
				if ch, ok := done[depID]; ok {
					select {
					case <-ch:
					case <-ctx.Done():
						results[i] = resilience.TaskOutcome{TaskID: t.TaskID, Capability: t.Capability, Err: ctx.Err()}
						return
					}
				}
			}

			req := resilience.TaskRequest{
				TaskID:        t.TaskID,
				Capability:    t.Capability,
				Params:        t.Params,
				TimeoutMs:     t.TimeoutMs,
				CorrelationID: correlationIDFor(t.TaskID),
			}
			if req.TimeoutMs <= 0 {
				req.TimeoutMs = 15000
			}
			results[i] = dispatcher.Dispatch(ctx, req)
		}()
	}

	wg.Wait()
	return results
}
