// Package orchestrator turns a natural-language user query into a
// TaskPlan, dispatches it, aggregates the results, and synthesises a
// reply. Its turn pipeline uses the event bus (through the resilience
// dispatcher), the agent registry, the correlation tracker, the resilience
// layer, the response cache and conversation memory, which New receives
// already built.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/agentmeshio/meshcore/internal/cache"
	"github.com/agentmeshio/meshcore/internal/correlation"
	"github.com/agentmeshio/meshcore/internal/memory"
	"github.com/agentmeshio/meshcore/internal/observability"
	"github.com/agentmeshio/meshcore/internal/ports"
	"github.com/agentmeshio/meshcore/internal/registry"
	"github.com/agentmeshio/meshcore/internal/resilience"
)

// Config holds the orchestrator's tunables, mirroring config.OrchestratorConfig.
type Config struct {
	MaxRepromptAttempts         int
	PlanningTimeoutMs           int
	TurnTimeoutMs               int
	PlanningConfidenceThreshold float64
	PlanningModel               string
	SynthesisModel              string
	ContextWindowSize           int
}

func (c Config) withDefaults() Config {
	if c.MaxRepromptAttempts <= 0 {
		c.MaxRepromptAttempts = 3
	}
	if c.PlanningTimeoutMs <= 0 {
		c.PlanningTimeoutMs = 15000
	}
	if c.TurnTimeoutMs <= 0 {
		c.TurnTimeoutMs = 60000
	}
	if c.PlanningConfidenceThreshold <= 0 {
		c.PlanningConfidenceThreshold = 0.6
	}
	if c.PlanningModel == "" {
		c.PlanningModel = "planning-default"
	}
	if c.SynthesisModel == "" {
		c.SynthesisModel = c.PlanningModel
	}
	if c.ContextWindowSize <= 0 {
		c.ContextWindowSize = 20
	}
	return c
}

// Reply is the outcome of a single turn.
type Reply struct {
	SessionID string
	Text      string
	Partial   bool
	Plan      Plan
}

// Orchestrator wires the Registry, Correlation Tracker, Resilience
// Dispatcher, Response Cache and Conversation Memory into a single
// plan-dispatch-synthesise turn pipeline.
type Orchestrator struct {
	llm        ports.LLMProvider
	reg        *registry.Registry
	tracker    *correlation.Tracker
	dispatcher *resilience.Dispatcher
	respCache  *cache.Cache
	memory     *memory.Store
	breakers   *resilience.Breakers

	logger  *slog.Logger
	tracer  *observability.TraceManager
	metrics *observability.MetricsManager

	cfg Config
}

// New constructs an Orchestrator.
func New(
	llm ports.LLMProvider,
	reg *registry.Registry,
	tracker *correlation.Tracker,
	dispatcher *resilience.Dispatcher,
	breakers *resilience.Breakers,
	respCache *cache.Cache,
	mem *memory.Store,
	logger *slog.Logger,
	tracer *observability.TraceManager,
	metrics *observability.MetricsManager,
	cfg Config,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		llm:        llm,
		reg:        reg,
		tracker:    tracker,
		dispatcher: dispatcher,
		breakers:   breakers,
		respCache:  respCache,
		memory:     mem,
		logger:     logger,
		tracer:     tracer,
		metrics:    metrics,
		cfg:        cfg.withDefaults(),
	}
}

// HandleTurn runs the full per-turn pipeline: load context, plan, validate
// the plan (reprompting on malformed output), dispatch tasks, and
// synthesise a reply. If sessionID is empty, a new one is minted.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID, userID, query string) (Reply, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(o.cfg.TurnTimeoutMs)*time.Millisecond)
	defer cancel()

	start := time.Now()
	ctx, span := o.tracer.StartSpan(ctx, "orchestrator.turn",
		attribute.String("session_id", sessionID),
		attribute.String("user_id", userID),
	)
	defer span.End()
	o.tracer.AddComponentAttribute(span, "orchestrator")

	// Step 1-2: context window and registry catalogue. Fetched before the
	// current turn is appended, so memCtx.Messages never duplicates the
	// query the planning prompt already embeds separately.
	memCtx := o.memory.ContextFor(sessionID, o.cfg.ContextWindowSize)
	agents := o.reg.GetAll()
	o.tracer.AddSpanEvent(span, "context_gathered",
		attribute.Int("history_messages", len(memCtx.Messages)),
		attribute.Int("available_agents", len(agents)),
	)

	// Step 3-5: plan, with cache, LLM consult, reprompt loop and keyword
	// router fallback.
	plan, err := o.buildPlan(ctx, query, memCtx, agents)
	o.memory.AppendMessage(sessionID, userID, memory.Message{Sender: "user", Content: query, Timestamp: time.Now()})
	if err != nil {
		o.tracer.RecordError(span, err)
		if o.metrics != nil {
			o.metrics.IncrementPlansBuilt(ctx, "failed")
		}
		reply := Reply{SessionID: sessionID, Text: resilience.EmergencyResponse(resilience.FailureOrchestration), Partial: true}
		o.memory.AppendMessage(sessionID, userID, memory.Message{Sender: "assistant", Content: reply.Text, Timestamp: time.Now()})
		return reply, nil
	}
	if o.metrics != nil {
		o.metrics.IncrementPlansBuilt(ctx, plan.Source)
	}

	// Step 6: validate against the registry.
	plan = validatePlan(plan, o.reg)
	o.tracer.AddSpanEvent(span, "plan_validated",
		attribute.Int("task_count", len(plan.Tasks)),
		attribute.Bool("partial", plan.Partial),
	)

	if len(plan.Tasks) == 0 {
		reply := Reply{SessionID: sessionID, Text: "I don't have a capability registered that can help with that yet.", Partial: true, Plan: plan}
		o.memory.AppendMessage(sessionID, userID, memory.Message{Sender: "assistant", Content: reply.Text, Timestamp: time.Now()})
		if o.metrics != nil {
			o.metrics.RecordTurnDuration(ctx, "empty_plan", time.Since(start))
		}
		return reply, nil
	}

	// Step 7-8: dispatch honouring dependencies, then aggregate.
	outcomes := dispatchPlan(ctx, o.dispatcher, plan.Tasks, func(taskID string) string {
		return sessionID + ":" + taskID
	})

	optional := make(map[string]bool, len(plan.Tasks))
	for _, t := range plan.Tasks {
		optional[t.Capability] = t.Optional
	}
	composition := resilience.ComposePartial(outcomes, optional, resilience.DefaultFailureNotices)
	if composition.Partial {
		plan.Partial = true
	}

	// Step 9: synthesise the final reply.
	text, err := o.synthesise(ctx, query, outcomes, composition)
	if err != nil {
		o.logger.Warn("orchestrator: synthesis failed, falling back to composed body", "session_id", sessionID, "error", err)
		text = composition.Body
	}
	if text == "" {
		text = resilience.EmergencyResponse(resilience.FailureAgent)
	}

	// Step 10: append the assistant turn.
	o.memory.AppendMessage(sessionID, userID, memory.Message{Sender: "assistant", Content: text, Timestamp: time.Now()})

	outcome := "ok"
	if plan.Partial {
		outcome = "partial"
	}
	if o.metrics != nil {
		o.metrics.RecordTurnDuration(ctx, outcome, time.Since(start))
	}
	o.tracer.SetSpanSuccess(span)

	return Reply{SessionID: sessionID, Text: text, Partial: plan.Partial, Plan: plan}, nil
}

// buildPlan consults the Response Cache, then the LLM, with a reprompt
// loop on malformed output and a keyword-router fallback.
func (o *Orchestrator) buildPlan(ctx context.Context, query string, memCtx memory.Context, agents []registry.AgentRegistration) (Plan, error) {
	prompt := buildPlanningPrompt(query, memCtx, agents)
	fingerprint := cache.Fingerprint(prompt, o.cfg.PlanningModel, nil)

	if cached, ok := o.respCache.Get(ctx, fingerprint); ok {
		plan, err := parsePlan(cached.Response)
		if err == nil {
			return o.reconcileWithKeywordRouter(query, plan), nil
		}
		o.logger.Warn("orchestrator: cached plan failed to parse, re-planning", "error", err)
	}

	llmCtx, cancel := context.WithTimeout(ctx, time.Duration(o.cfg.PlanningTimeoutMs)*time.Millisecond)
	defer cancel()

	raw, err := o.llm.Generate(llmCtx, prompt, o.cfg.PlanningModel, nil)
	if err != nil {
		o.logger.Warn("orchestrator: planner unavailable, falling back to keyword router", "error", err)
		return keywordRoute(query), nil
	}

	plan, err := parsePlan(raw)
	if err != nil {
		plan, err = o.repromptLoop(llmCtx, prompt, raw, err)
		if err != nil {
			return keywordRoute(query), nil
		}
	}

	o.respCache.Put(ctx, fingerprint, prompt, o.cfg.PlanningModel, nil, raw)
	return o.reconcileWithKeywordRouter(query, plan), nil
}

// repromptLoop retries a malformed planning response up to
// MaxRepromptAttempts times with progressively stricter instructions.
func (o *Orchestrator) repromptLoop(ctx context.Context, originalPrompt, malformed string, parseErr error) (Plan, error) {
	lastErr := parseErr
	for attempt := 1; attempt <= o.cfg.MaxRepromptAttempts; attempt++ {
		if o.metrics != nil {
			o.metrics.IncrementPlanReprompts(ctx)
		}
		prompt := resilience.RepromptPrompt(originalPrompt, malformed, attempt)
		raw, err := o.llm.Generate(ctx, prompt, o.cfg.PlanningModel, nil)
		if err != nil {
			lastErr = err
			continue
		}
		plan, err := parsePlan(raw)
		if err == nil {
			return plan, nil
		}
		malformed = raw
		lastErr = err
	}
	return Plan{}, fmt.Errorf("orchestrator: reprompt loop exhausted: %w", lastErr)
}

// reconcileWithKeywordRouter applies the intent-confidence gate: below
// threshold, the keyword router is consulted; on disagreement its result
// wins.
func (o *Orchestrator) reconcileWithKeywordRouter(query string, plan Plan) Plan {
	if plan.Confidence >= o.cfg.PlanningConfidenceThreshold {
		return plan
	}
	kw := keywordRoute(query)
	if plansAgree(plan, kw) {
		return plan
	}
	return kw
}

func plansAgree(a, b Plan) bool {
	if len(a.Tasks) != len(b.Tasks) {
		return false
	}
	for i := range a.Tasks {
		if a.Tasks[i].Capability != b.Tasks[i].Capability {
			return false
		}
	}
	return true
}

// synthesise builds the response prompt from task results and calls the
// LLM for the final natural-language reply, caching under the response
// fingerprint.
func (o *Orchestrator) synthesise(ctx context.Context, query string, outcomes []resilience.TaskOutcome, composition resilience.Composition) (string, error) {
	if len(outcomes) == 0 {
		return composition.Body, nil
	}

	prompt := buildSynthesisPrompt(query, outcomes)
	fingerprint := cache.Fingerprint(prompt, o.cfg.SynthesisModel, nil)

	if cached, ok := o.respCache.Get(ctx, fingerprint); ok {
		return cached.Response, nil
	}

	text, err := o.llm.Generate(ctx, prompt, o.cfg.SynthesisModel, nil)
	if err != nil {
		if errors.Is(err, ports.ErrLLMUnavailable) || errors.Is(err, ports.ErrLLMTimeout) {
			return composition.Body, nil
		}
		return "", err
	}

	o.respCache.Put(ctx, fingerprint, prompt, o.cfg.SynthesisModel, nil, text)
	return text, nil
}
