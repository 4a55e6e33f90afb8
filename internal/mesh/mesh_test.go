package mesh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentmeshio/meshcore/internal/config"
)

func testConfig() *config.AppConfig {
	appCfg := config.Load()
	appCfg.Registry.StaleTimeoutMs = 60000
	appCfg.Registry.HeartbeatIntervalMs = 60000
	appCfg.Correlation.GraceWindowSec = 5
	appCfg.Correlation.CleanupIntervalMin = 60
	appCfg.Correlation.MaxAgeMs = 3600000
	return appCfg
}

func TestNewBuildsEveryComponentWithMemoryBackedCache(t *testing.T) {
	m, err := New(testConfig(), nil, nil, nil, "")
	require.NoError(t, err)
	require.NotNil(t, m.Bus)
	require.NotNil(t, m.Registry)
	require.NotNil(t, m.Tracker)
	require.NotNil(t, m.Breakers)
	require.NotNil(t, m.Dispatcher)
	require.NotNil(t, m.Cache)
	require.NotNil(t, m.Memory)
	require.NotNil(t, m.Orchestrator)
}

func TestStartAndShutdownDoNotError(t *testing.T) {
	m, err := New(testConfig(), nil, nil, nil, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Shutdown(ctx))
}

func TestOrchestratorHandlesATurnEndToEnd(t *testing.T) {
	m, err := New(testConfig(), nil, nil, nil, "")
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	reply, err := m.Orchestrator.HandleTurn(context.Background(), "", "alice", "hello there")
	require.NoError(t, err)
	require.NotEmpty(t, reply.SessionID)
}
