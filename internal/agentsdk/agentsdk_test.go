package agentsdk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentmeshio/meshcore/internal/correlation"
	"github.com/agentmeshio/meshcore/internal/eventbus"
	"github.com/agentmeshio/meshcore/internal/registry"
)

func newTestAgent(t *testing.T, cfg Config) (*Agent, *eventbus.Bus, *registry.Registry, *correlation.Tracker) {
	t.Helper()
	bus := eventbus.NewBus(nil)
	reg := registry.New(bus, nil, nil, time.Hour, time.Hour)
	tracker := correlation.New(nil, nil, 30*time.Second, time.Hour, time.Hour)

	agent, err := New(cfg, bus, reg, tracker, nil, nil)
	require.NoError(t, err)
	return agent, bus, reg, tracker
}

func TestAddSkillRejectsDuplicateNames(t *testing.T) {
	agent, _, _, _ := newTestAgent(t, Config{AgentID: "a1", Name: "Weather"})
	require.NoError(t, agent.AddSkill("weather.get", "", func(ctx context.Context, params map[string]any) (any, error) { return nil, nil }))
	err := agent.AddSkill("weather.get", "", func(ctx context.Context, params map[string]any) (any, error) { return nil, nil })
	require.ErrorIs(t, err, ErrDuplicateSkill)
}

func TestRunWithNoSkillsFails(t *testing.T) {
	agent, _, _, _ := newTestAgent(t, Config{AgentID: "a1", Name: "Weather"})
	err := agent.Run(context.Background())
	require.ErrorIs(t, err, ErrNoSkills)
}

func TestRunRegistersSkillAndHandlesDispatchedTask(t *testing.T) {
	agent, bus, reg, tracker := newTestAgent(t, Config{AgentID: "weather-1", Name: "Weather", HeartbeatInterval: 10 * time.Millisecond})
	require.NoError(t, agent.AddSkill("weather.get", "current conditions", func(ctx context.Context, params map[string]any) (any, error) {
		return "sunny, 22C", nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- agent.Run(ctx) }()

	require.Eventually(t, func() bool {
		agents := reg.FindByCapability("weather.get")
		return len(agents) == 1
	}, time.Second, time.Millisecond)

	tracker.Create("corr-1", "weather.get", 5000)
	require.NoError(t, bus.Publish(eventbus.NewEvent("agent.weather-1", map[string]any{"city": "Paris"}, "orchestrator", "corr-1", eventbus.AtLeastOnce)))

	resp, err := tracker.Await(context.Background(), "corr-1")
	require.NoError(t, err)
	require.Equal(t, "sunny, 22C", resp.Payload)

	cancel()
	require.NoError(t, <-runDone)
	require.Empty(t, reg.FindByCapability("weather.get"))
}

func TestRunFailsCorrelationPromptlyOnHandlerError(t *testing.T) {
	agent, bus, reg, tracker := newTestAgent(t, Config{AgentID: "weather-1", Name: "Weather", HeartbeatInterval: 10 * time.Millisecond})
	handlerErr := errors.New("upstream unavailable")
	require.NoError(t, agent.AddSkill("weather.get", "current conditions", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, handlerErr
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agent.Run(ctx)

	require.Eventually(t, func() bool {
		return len(reg.FindByCapability("weather.get")) == 1
	}, time.Second, time.Millisecond)

	// Long enough that the test would time out well before a 30s correlation
	// timeout could be mistaken for this failure being reported promptly.
	tracker.Create("corr-1", "weather.get", 30000)
	require.NoError(t, bus.Publish(eventbus.NewEvent("agent.weather-1", map[string]any{"city": "Paris"}, "orchestrator", "corr-1", eventbus.AtLeastOnce)))

	awaitCtx, awaitCancel := context.WithTimeout(context.Background(), time.Second)
	defer awaitCancel()
	_, err := tracker.Await(awaitCtx, "corr-1")
	require.ErrorIs(t, err, correlation.ErrAgentFailure)

	entry, ok := tracker.Get("corr-1")
	require.True(t, ok)
	require.Equal(t, correlation.StateFailed, entry.State())
}

func TestRunCompletesCorrelationWithNoPayloadOnNilResult(t *testing.T) {
	agent, bus, reg, tracker := newTestAgent(t, Config{AgentID: "ack-1", Name: "Acker", HeartbeatInterval: 10 * time.Millisecond})
	require.NoError(t, agent.AddSkill("task.ack", "", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agent.Run(ctx)

	require.Eventually(t, func() bool {
		return len(reg.FindByCapability("task.ack")) == 1
	}, time.Second, time.Millisecond)

	tracker.Create("corr-2", "task.ack", 5000)
	require.NoError(t, bus.Publish(eventbus.NewEvent("agent.ack-1", nil, "orchestrator", "corr-2", eventbus.AtLeastOnce)))

	resp, err := tracker.Await(context.Background(), "corr-2")
	require.NoError(t, err)
	require.Nil(t, resp.Payload)

	entry, ok := tracker.Get("corr-2")
	require.True(t, ok)
	require.Empty(t, entry.Responses(), "Complete must not append to the response log")
}

func TestMultiSkillAgentRegistersOnePerSkill(t *testing.T) {
	agent, _, reg, _ := newTestAgent(t, Config{AgentID: "combo-1", Name: "Combo"})
	require.NoError(t, agent.AddSkill("weather.get", "", func(ctx context.Context, params map[string]any) (any, error) { return nil, nil }))
	require.NoError(t, agent.AddSkill("stock.price", "", func(ctx context.Context, params map[string]any) (any, error) { return nil, nil }))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agent.Run(ctx)

	require.Eventually(t, func() bool {
		return len(reg.FindByCapability("weather.get")) == 1 && len(reg.FindByCapability("stock.price")) == 1
	}, time.Second, time.Millisecond)

	weather := reg.FindByCapability("weather.get")[0]
	stock := reg.FindByCapability("stock.price")[0]
	require.NotEqual(t, weather.AgentID, stock.AgentID)
}
