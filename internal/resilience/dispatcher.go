package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/agentmeshio/meshcore/internal/correlation"
	"github.com/agentmeshio/meshcore/internal/eventbus"
	"github.com/agentmeshio/meshcore/internal/observability"
	"github.com/agentmeshio/meshcore/internal/registry"
)

// Per-task retry delay between attempts on the same agent.
const agentRetryDelay = time.Second

// ErrCapabilityMissing is returned when no viable agent exists for a
// capability, including after every alternate has been exhausted.
var ErrCapabilityMissing = errors.New("resilience: no viable agent for capability")

// TaskRequest is one task of a TaskPlan, ready for dispatch.
type TaskRequest struct {
	TaskID        string
	Capability    string
	Params        map[string]any
	TimeoutMs     int
	CorrelationID string
}

// TaskOutcome is the result of dispatching a single task, successful or not.
type TaskOutcome struct {
	TaskID     string
	Capability string
	Success    bool
	Result     any
	Err        error
	AgentID    string
}

// Dispatcher executes a retry-then-alternate-routing dispatch policy on
// top of the Event Bus, Registry and Correlation Tracker.
type Dispatcher struct {
	bus             *eventbus.Bus
	reg             *registry.Registry
	tracker         *correlation.Tracker
	breakers        *Breakers
	logger          *slog.Logger
	metrics         *observability.MetricsManager
	tracer          *observability.TraceManager
	maxAgentRetries int
}

// NewDispatcher constructs a Dispatcher. maxAgentRetries defaults to 2
// when negative. metrics and tracer may be nil.
func NewDispatcher(bus *eventbus.Bus, reg *registry.Registry, tracker *correlation.Tracker, breakers *Breakers, logger *slog.Logger, metrics *observability.MetricsManager, tracer *observability.TraceManager, maxAgentRetries int) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAgentRetries < 0 {
		maxAgentRetries = 2
	}
	return &Dispatcher{bus: bus, reg: reg, tracker: tracker, breakers: breakers, logger: logger, metrics: metrics, tracer: tracer, maxAgentRetries: maxAgentRetries}
}

// Dispatch sends req to the best available agent for req.Capability,
// retrying on the same agent up to maxAgentRetries times, then falling
// through to alternate agents (excluding every agent already tried) until
// one succeeds or none remain.
func (d *Dispatcher) Dispatch(ctx context.Context, req TaskRequest) TaskOutcome {
	tried := make(map[string]struct{})

	for {
		candidate, ok := d.reg.Select(req.Capability, d.breakers.PeekOpen, keys(tried)...)
		if !ok {
			return TaskOutcome{TaskID: req.TaskID, Capability: req.Capability, Success: false, Err: ErrCapabilityMissing}
		}

		outcome := d.dispatchToAgent(ctx, req, candidate)
		if outcome.Success {
			return outcome
		}

		tried[candidate.AgentID] = struct{}{}
		d.logger.Warn("resilience: task failed, trying alternate agent",
			"task_id", req.TaskID, "capability", req.Capability, "agent_id", candidate.AgentID, "error", outcome.Err)
	}
}

// dispatchToAgent retries the same agent up to maxAgentRetries times before
// giving up on it.
func (d *Dispatcher) dispatchToAgent(ctx context.Context, req TaskRequest, agent registry.AgentRegistration) TaskOutcome {
	var lastErr error

	for attempt := 0; attempt <= d.maxAgentRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(agentRetryDelay):
			case <-ctx.Done():
				return TaskOutcome{TaskID: req.TaskID, Capability: req.Capability, AgentID: agent.AgentID, Err: ctx.Err()}
			}
		}

		if !d.breakers.Allow(agent.AgentID) {
			lastErr = errors.New("resilience: circuit breaker open")
			break
		}

		corrID := req.CorrelationID
		if corrID == "" {
			corrID = req.TaskID
		}
		d.tracker.Create(corrID, req.Capability, req.TimeoutMs)

		var span trace.Span
		event := eventbus.NewEvent(agent.EndpointTopic, req.Params, "orchestrator", corrID, eventbus.AtLeastOnce)
		if d.tracer != nil {
			var spanCtx context.Context
			spanCtx, span = d.tracer.StartPublishSpan(ctx, agent.EndpointTopic, req.Capability)
			headers := make(map[string]string)
			d.tracer.InjectTraceContext(spanCtx, headers)
			event.TraceHeaders = headers
		}

		publishStart := time.Now()
		err := d.bus.Publish(event)
		if d.metrics != nil {
			d.metrics.RecordAgentDispatchDuration(ctx, agent.AgentID, time.Since(publishStart))
		}
		if span != nil {
			if err != nil {
				d.tracer.RecordError(span, err)
			} else {
				d.tracer.SetSpanSuccess(span)
			}
			span.End()
		}
		if err != nil {
			lastErr = err
			d.breakers.RecordFailure(agent.AgentID)
			if d.metrics != nil {
				d.metrics.IncrementAgentDispatchErrors(ctx, agent.AgentID)
			}
			continue
		}

		awaitStart := time.Now()
		resp, err := d.tracker.Await(ctx, corrID)
		if d.metrics != nil {
			d.metrics.RecordAgentAwaitDuration(ctx, agent.AgentID, time.Since(awaitStart))
		}
		if err != nil {
			lastErr = err
			d.breakers.RecordFailure(agent.AgentID)
			if d.metrics != nil {
				d.metrics.IncrementAgentDispatchErrors(ctx, agent.AgentID)
			}
			continue
		}

		d.breakers.RecordSuccess(agent.AgentID)
		return TaskOutcome{TaskID: req.TaskID, Capability: req.Capability, Success: true, Result: resp.Payload, AgentID: agent.AgentID}
	}

	return TaskOutcome{TaskID: req.TaskID, Capability: req.Capability, AgentID: agent.AgentID, Err: lastErr}
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
