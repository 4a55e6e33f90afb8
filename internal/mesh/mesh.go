// Package mesh is the composition root: it builds the Event Bus, Agent
// Registry, Orchestrator, Correlation Tracker, Resilience layer, Response
// Cache and Conversation Memory in dependency order and wires them
// together.
package mesh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentmeshio/meshcore/internal/blobstore/filestore"
	"github.com/agentmeshio/meshcore/internal/blobstore/memstore"
	"github.com/agentmeshio/meshcore/internal/blobstore/sqlitestore"
	"github.com/agentmeshio/meshcore/internal/cache"
	"github.com/agentmeshio/meshcore/internal/config"
	"github.com/agentmeshio/meshcore/internal/correlation"
	"github.com/agentmeshio/meshcore/internal/eventbus"
	"github.com/agentmeshio/meshcore/internal/llmprovider/anthropic"
	"github.com/agentmeshio/meshcore/internal/llmprovider/mock"
	"github.com/agentmeshio/meshcore/internal/memory"
	"github.com/agentmeshio/meshcore/internal/meshserver"
	"github.com/agentmeshio/meshcore/internal/observability"
	"github.com/agentmeshio/meshcore/internal/orchestrator"
	"github.com/agentmeshio/meshcore/internal/ports"
	"github.com/agentmeshio/meshcore/internal/registry"
	"github.com/agentmeshio/meshcore/internal/resilience"
)

// Mesh holds every mesh component and the lifecycle methods that start and
// stop their background goroutines (registry sweep, correlation cleanup,
// the optional gRPC health server).
type Mesh struct {
	Bus          *eventbus.Bus
	Registry     *registry.Registry
	Tracker      *correlation.Tracker
	Breakers     *resilience.Breakers
	Dispatcher   *resilience.Dispatcher
	Cache        *cache.Cache
	Memory       *memory.Store
	Orchestrator *orchestrator.Orchestrator

	blobCloser func() error
	grpcServer *meshserver.Server

	logger *slog.Logger
}

// New builds a Mesh from an already-loaded AppConfig and a started
// Observability bundle (logger/tracer/metrics). grpcAddr may be empty to
// run without the optional gRPC health transport.
func New(appCfg *config.AppConfig, logger *slog.Logger, tracer *observability.TraceManager, metrics *observability.MetricsManager, grpcAddr string) (*Mesh, error) {
	if logger == nil {
		logger = slog.Default()
	}

	bus := eventbus.NewBus(logger, eventbus.WithMetrics(metrics), eventbus.WithTracer(tracer))

	reg := registry.New(bus, logger, metrics,
		time.Duration(appCfg.Registry.StaleTimeoutMs)*time.Millisecond,
		time.Duration(appCfg.Registry.HeartbeatIntervalMs)*time.Millisecond,
	)

	tracker := correlation.New(logger, metrics,
		time.Duration(appCfg.Correlation.GraceWindowSec)*time.Second,
		time.Duration(appCfg.Correlation.CleanupIntervalMin)*time.Minute,
		time.Duration(appCfg.Correlation.MaxAgeMs)*time.Millisecond,
	)

	breakers := resilience.NewBreakers(appCfg.Breaker.FailureThreshold,
		time.Duration(appCfg.Breaker.CooldownMs)*time.Millisecond, metrics)

	dispatcher := resilience.NewDispatcher(bus, reg, tracker, breakers, logger, metrics, tracer, appCfg.Breaker.MaxAgentRetries)

	blobStore, closer, err := buildBlobStore(appCfg)
	if err != nil {
		return nil, fmt.Errorf("mesh: build blob store: %w", err)
	}
	respCache := cache.New(blobStore, appCfg.Cache.MemoryCapacity,
		time.Duration(appCfg.Cache.TTLMs)*time.Millisecond, logger, metrics)

	mem := memory.New(
		time.Duration(appCfg.Memory.SessionTimeoutMin)*time.Minute,
		appCfg.Memory.MaxMessages,
		metrics,
	)

	llm := buildLLMProvider(appCfg.AnthropicAPIKey)

	orchCfg := orchestrator.Config{
		MaxRepromptAttempts:         appCfg.Orchestrator.MaxRepromptAttempts,
		PlanningTimeoutMs:           appCfg.Orchestrator.PlanningTimeoutMs,
		TurnTimeoutMs:               appCfg.Orchestrator.TurnTimeoutMs,
		PlanningConfidenceThreshold: appCfg.Orchestrator.PlanningConfidenceThreshold,
		ContextWindowSize:           appCfg.Memory.ContextWindowSize,
	}
	orch := orchestrator.New(llm, reg, tracker, dispatcher, breakers, respCache, mem, logger, tracer, metrics, orchCfg)

	m := &Mesh{
		Bus:          bus,
		Registry:     reg,
		Tracker:      tracker,
		Breakers:     breakers,
		Dispatcher:   dispatcher,
		Cache:        respCache,
		Memory:       mem,
		Orchestrator: orch,
		blobCloser:   closer,
		logger:       logger,
	}

	if grpcAddr != "" {
		srv, err := meshserver.New(meshserver.Config{ListenAddr: grpcAddr, ComponentName: appCfg.ServiceName}, logger)
		if err != nil {
			return nil, fmt.Errorf("mesh: build gRPC server: %w", err)
		}
		m.grpcServer = srv
	}

	return m, nil
}

// buildBlobStore selects the response cache's disk tier from
// AppConfig.Cache's driver knob. "memory" keeps everything in the process
// (the default, and the only option with no on-disk footprint); "file" and
// "sqlite" persist across restarts.
func buildBlobStore(appCfg *config.AppConfig) (ports.BlobStore, func() error, error) {
	switch appCfg.Cache.BlobDriver {
	case "file":
		store, err := filestore.New(appCfg.Cache.BlobPath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	case "sqlite":
		store, err := sqlitestore.Open(appCfg.Cache.BlobPath)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return memstore.New(), func() error { return nil }, nil
	}
}

// buildLLMProvider picks the Anthropic binding when an API key is
// configured via the environment, and falls back to the deterministic mock
// provider otherwise so the mesh remains runnable without external
// credentials (e.g. in tests or local development).
func buildLLMProvider(apiKey string) ports.LLMProvider {
	if apiKey != "" {
		return anthropic.New(apiKey)
	}
	return mock.New()
}

// Start launches every component's background goroutines: the registry's
// stale-agent sweep, the correlation tracker's expiry cleanup, the response
// cache's expired-entry sweep, and — if configured — the gRPC health
// server, which flips to SERVING once everything above is running.
func (m *Mesh) Start(ctx context.Context) error {
	m.Registry.StartSweep()
	m.Tracker.StartCleanup()
	m.Cache.StartSweep(0)

	if m.grpcServer != nil {
		go func() {
			if err := m.grpcServer.Serve(); err != nil {
				m.logger.Warn("mesh: gRPC server stopped", "error", err)
			}
		}()
		m.grpcServer.SetReady(true)
	}

	m.logger.Info("mesh: started")
	return nil
}

// Shutdown stops every background goroutine and releases the blob store,
// in the reverse of the order Start brought them up.
func (m *Mesh) Shutdown(ctx context.Context) error {
	if m.grpcServer != nil {
		m.grpcServer.Shutdown(ctx)
	}
	m.Cache.StopSweep()
	m.Tracker.StopCleanup()
	m.Registry.StopSweep()
	m.Bus.Stop(5 * time.Second)

	if m.blobCloser != nil {
		if err := m.blobCloser(); err != nil {
			return fmt.Errorf("mesh: close blob store: %w", err)
		}
	}
	m.logger.Info("mesh: stopped")
	return nil
}
