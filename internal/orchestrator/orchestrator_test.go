package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentmeshio/meshcore/internal/cache"
	"github.com/agentmeshio/meshcore/internal/correlation"
	"github.com/agentmeshio/meshcore/internal/eventbus"
	"github.com/agentmeshio/meshcore/internal/llmprovider/mock"
	"github.com/agentmeshio/meshcore/internal/memory"
	"github.com/agentmeshio/meshcore/internal/observability"
	"github.com/agentmeshio/meshcore/internal/ports"
	"github.com/agentmeshio/meshcore/internal/registry"
	"github.com/agentmeshio/meshcore/internal/resilience"
)

// harness wires a minimal mesh (bus, registry, tracker, dispatcher, cache,
// memory) around a mock LLM, mirroring how internal/mesh composes the real one.
type harness struct {
	orch    *Orchestrator
	bus     *eventbus.Bus
	reg     *registry.Registry
	tracker *correlation.Tracker
}

func newHarness(t *testing.T, llm ports.LLMProvider) *harness {
	return newHarnessWithConfig(t, llm, Config{})
}

func newHarnessWithConfig(t *testing.T, llm ports.LLMProvider, cfg Config) *harness {
	t.Helper()
	tracer := observability.NewTraceManager("test")

	bus := eventbus.NewBus(nil)
	reg := registry.New(bus, nil, nil, time.Hour, time.Hour)
	tracker := correlation.New(nil, nil, 30*time.Second, time.Hour, time.Hour)
	breakers := resilience.NewBreakers(5, 30*time.Second, nil)
	dispatcher := resilience.NewDispatcher(bus, reg, tracker, breakers, nil, nil, nil, 0)
	respCache := cache.New(nil, 50, time.Hour, nil, nil)
	mem := memory.New(time.Hour, 100, nil)

	orch := New(llm, reg, tracker, dispatcher, breakers, respCache, mem, nil, tracer, nil, cfg)
	return &harness{orch: orch, bus: bus, reg: reg, tracker: tracker}
}

// registerEchoAgent registers an agent for capability whose endpoint
// handler immediately completes whatever correlation ID it receives.
func (h *harness) registerEchoAgent(t *testing.T, agentID, capability, result string) {
	t.Helper()
	topic := "agent." + agentID
	_, err := h.bus.Subscribe(agentID, topic, func(e eventbus.Event) error {
		return h.tracker.RecordResponse(e.CorrelationID, correlation.Response{SenderAgentID: agentID, Payload: result})
	})
	require.NoError(t, err)

	require.NoError(t, h.reg.Register(registry.AgentRegistration{
		AgentID:       agentID,
		AgentType:     "capability-agent",
		Capabilities:  map[string]struct{}{capability: {}},
		EndpointTopic: topic,
		Status:        registry.StatusActive,
		RegisteredAt:  time.Now(),
		LastHeartbeat: time.Now(),
	}))
}

func TestHandleTurnWithRegisteredAgentSucceeds(t *testing.T) {
	llm := mock.NewWithFunc(func(ctx context.Context, prompt, model string, params ports.GenerateParams) (string, error) {
		return `{"confidence": 0.9, "tasks": [{"capability": "weather.get", "params": {"city": "Paris"}}]}`, nil
	})
	h := newHarness(t, llm)
	h.registerEchoAgent(t, "weather-1", "weather.get", "sunny, 22C")

	reply, err := h.orch.HandleTurn(context.Background(), "", "alice", "what's the weather in Paris?")
	require.NoError(t, err)
	require.False(t, reply.Partial)
	require.NotEmpty(t, reply.SessionID)
}

func TestHandleTurnFallsBackToKeywordRouterOnMalformedPlan(t *testing.T) {
	llm := mock.NewWithFunc(func(ctx context.Context, prompt, model string, params ports.GenerateParams) (string, error) {
		return "not json at all", nil
	})
	h := newHarness(t, llm)
	h.registerEchoAgent(t, "weather-1", "weather.get", "sunny")

	reply, err := h.orch.HandleTurn(context.Background(), "", "bob", "tell me the weather forecast")
	require.NoError(t, err)
	require.Equal(t, "keyword_router", reply.Plan.Source)
}

func TestHandleTurnWithNoMatchingCapabilityReturnsPartialReply(t *testing.T) {
	llm := mock.NewWithFunc(func(ctx context.Context, prompt, model string, params ports.GenerateParams) (string, error) {
		return `{"confidence": 0.9, "tasks": [{"capability": "weather.get", "params": {}}]}`, nil
	})
	h := newHarness(t, llm)

	reply, err := h.orch.HandleTurn(context.Background(), "", "carol", "what's the weather?")
	require.NoError(t, err)
	require.True(t, reply.Partial)
}

func TestHandleTurnComposesPartialOnAgentFailure(t *testing.T) {
	llm := mock.NewWithFunc(func(ctx context.Context, prompt, model string, params ports.GenerateParams) (string, error) {
		return `{"confidence": 0.9, "tasks": [{"capability": "weather.get", "params": {}}]}`, nil
	})
	h := newHarnessWithConfig(t, llm, Config{TurnTimeoutMs: 300})
	// Register the capability but give it a handler that never completes the
	// correlation, forcing a timeout-driven failure.
	topic := "agent.broken"
	_, err := h.bus.Subscribe("broken", topic, func(e eventbus.Event) error { return nil })
	require.NoError(t, err)
	require.NoError(t, h.reg.Register(registry.AgentRegistration{
		AgentID:       "broken",
		AgentType:     "capability-agent",
		Capabilities:  map[string]struct{}{"weather.get": {}},
		EndpointTopic: topic,
		Status:        registry.StatusActive,
		RegisteredAt:  time.Now(),
		LastHeartbeat: time.Now(),
	}))

	reply, err := h.orch.HandleTurn(context.Background(), "", "dave", "what's the weather?")
	require.NoError(t, err)
	require.True(t, reply.Partial)
}

func TestHandleTurnAppendsBothTurnsToMemory(t *testing.T) {
	llm := mock.New()
	h := newHarness(t, llm)

	reply, err := h.orch.HandleTurn(context.Background(), "sess-1", "erin", "hello there")
	require.NoError(t, err)

	msgs := h.orch.memory.RecentMessages(reply.SessionID, 10)
	require.GreaterOrEqual(t, len(msgs), 2)
	require.Equal(t, "user", msgs[0].Sender)
}

func TestPlansAgreeHelper(t *testing.T) {
	a := Plan{Tasks: []TaskSpec{{Capability: "weather.get"}}}
	b := Plan{Tasks: []TaskSpec{{Capability: "weather.get"}}}
	require.True(t, plansAgree(a, b))

	c := Plan{Tasks: []TaskSpec{{Capability: "stock.price"}}}
	require.False(t, plansAgree(a, c))
}

func TestSynthesiseFallsBackToCompositionOnLLMFailure(t *testing.T) {
	llm := mock.NewWithFunc(func(ctx context.Context, prompt, model string, params ports.GenerateParams) (string, error) {
		return "", fmt.Errorf("wrap: %w", ports.ErrLLMUnavailable)
	})
	h := newHarness(t, llm)
	outcomes := []resilience.TaskOutcome{{TaskID: "t1", Capability: "weather.get", Success: true, Result: "sunny"}}
	text, err := h.orch.synthesise(context.Background(), "weather?", outcomes, resilience.Composition{Body: "weather.get: sunny"})
	require.NoError(t, err)
	require.Equal(t, "weather.get: sunny", text)
}
