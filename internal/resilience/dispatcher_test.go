package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentmeshio/meshcore/internal/correlation"
	"github.com/agentmeshio/meshcore/internal/eventbus"
	"github.com/agentmeshio/meshcore/internal/registry"
)

func setup(t *testing.T) (*eventbus.Bus, *registry.Registry, *correlation.Tracker, *Breakers) {
	t.Helper()
	bus := eventbus.NewBus(nil)
	reg := registry.New(bus, nil, nil, time.Minute, time.Hour)
	tracker := correlation.New(nil, nil, time.Minute, time.Hour, time.Hour)
	breakers := NewBreakers(2, 50*time.Millisecond, nil)
	return bus, reg, tracker, breakers
}

func registerAgent(t *testing.T, reg *registry.Registry, id, cap string) {
	t.Helper()
	require.NoError(t, reg.Register(registry.AgentRegistration{
		AgentID:       id,
		AgentType:     cap,
		Capabilities:  map[string]struct{}{cap: {}},
		EndpointTopic: "task.request." + cap + "." + id,
	}))
}

func TestDispatchSucceedsOnFirstAgent(t *testing.T) {
	bus, reg, tracker, breakers := setup(t)
	registerAgent(t, reg, "a1", "weather.get")

	_, err := bus.Subscribe("a1", "task.request.weather.get.a1", func(e eventbus.Event) error {
		return tracker.RecordResponse(e.CorrelationID, correlation.Response{SenderAgentID: "a1", Payload: "sunny"})
	})
	require.NoError(t, err)

	d := NewDispatcher(bus, reg, tracker, breakers, nil, nil, nil, 2)
	outcome := d.Dispatch(context.Background(), TaskRequest{TaskID: "t1", Capability: "weather.get", TimeoutMs: 2000, CorrelationID: "t1"})

	require.True(t, outcome.Success)
	require.Equal(t, "sunny", outcome.Result)
	require.Equal(t, "a1", outcome.AgentID)
}

func TestDispatchFallsThroughToAlternateAfterFailures(t *testing.T) {
	bus, reg, tracker, breakers := setup(t)
	registerAgent(t, reg, "bad-agent", "stock.price")
	time.Sleep(2 * time.Millisecond)
	registerAgent(t, reg, "good-agent", "stock.price")

	_, err := bus.Subscribe("bad-agent", "task.request.stock.price.bad-agent", func(e eventbus.Event) error {
		return nil // never responds -> correlation times out
	})
	require.NoError(t, err)
	_, err = bus.Subscribe("good-agent", "task.request.stock.price.good-agent", func(e eventbus.Event) error {
		return tracker.RecordResponse(e.CorrelationID, correlation.Response{SenderAgentID: "good-agent", Payload: 42})
	})
	require.NoError(t, err)

	d := NewDispatcher(bus, reg, tracker, breakers, nil, nil, nil, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	outcome := d.Dispatch(ctx, TaskRequest{TaskID: "t1", Capability: "stock.price", TimeoutMs: 50})

	require.True(t, outcome.Success)
	require.Equal(t, "good-agent", outcome.AgentID)
}

func TestDispatchReturnsCapabilityMissingWhenNoAgents(t *testing.T) {
	bus, reg, tracker, breakers := setup(t)
	d := NewDispatcher(bus, reg, tracker, breakers, nil, nil, nil, 0)

	outcome := d.Dispatch(context.Background(), TaskRequest{TaskID: "t1", Capability: "nonexistent.cap", TimeoutMs: 100})
	require.False(t, outcome.Success)
	require.ErrorIs(t, outcome.Err, ErrCapabilityMissing)
}
