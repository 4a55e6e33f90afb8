// Command meshd runs the full mesh: Event Bus, Agent Registry, Correlation
// Tracker, Resilience layer, Response Cache, Conversation Memory, and the
// Orchestrator that ties them together behind a single process, with an
// optional gRPC health endpoint for operators and load balancers.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentmeshio/meshcore/internal/config"
	"github.com/agentmeshio/meshcore/internal/eventbus"
	"github.com/agentmeshio/meshcore/internal/mesh"
	"github.com/agentmeshio/meshcore/internal/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "meshd:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appCfg := config.Load()

	obs, err := observability.NewObservability(observability.DefaultConfig(appCfg.ServiceName))
	if err != nil {
		return fmt.Errorf("observability init: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			obs.Logger.ErrorContext(shutdownCtx, "observability shutdown failed", "error", err)
		}
	}()

	metrics, err := observability.NewMetricsManager(obs.Meter)
	if err != nil {
		return fmt.Errorf("metrics init: %w", err)
	}
	tracer := observability.NewTraceManager(appCfg.ServiceName)

	m, err := mesh.New(appCfg, obs.Logger, tracer, metrics, appCfg.GRPCListenAddr)
	if err != nil {
		return fmt.Errorf("mesh init: %w", err)
	}

	obs.Handler.SetEventPoster(func(event observability.EventData) error {
		return m.Bus.Publish(eventbus.NewEvent("system.log.entry", event, appCfg.ServiceName, "", eventbus.BestEffort))
	})

	health := observability.NewHealthServer(appCfg.HealthPort, appCfg.ServiceName, appCfg.ServiceVersion)
	health.AddChecker("event_bus", observability.NewBasicHealthChecker("event_bus", func(ctx context.Context) error {
		if m.Bus.Stopped() {
			return fmt.Errorf("event bus stopped")
		}
		return nil
	}))
	if appCfg.GRPCListenAddr != "" {
		health.AddChecker("grpc_server", observability.NewGRPCHealthChecker("grpc_server", appCfg.GRPCListenAddr, ""))
	}
	go func() {
		if err := health.Start(ctx); err != nil && err != http.ErrServerClosed {
			obs.Logger.ErrorContext(ctx, "health server stopped", "error", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.UpdateSystemMetrics(ctx)
			}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := health.Shutdown(shutdownCtx); err != nil {
			obs.Logger.ErrorContext(shutdownCtx, "health server shutdown failed", "error", err)
		}
	}()

	if err := m.Start(ctx); err != nil {
		return fmt.Errorf("mesh start: %w", err)
	}

	obs.Logger.InfoContext(ctx, "meshd ready",
		"service", appCfg.ServiceName,
		"environment", appCfg.Environment,
		"grpc_addr", appCfg.GRPCListenAddr,
		"prometheus_url", appCfg.GetPrometheusURL(),
		"grafana_url", appCfg.GetGrafanaURL(),
		"alertmanager_url", appCfg.GetAlertManagerURL(),
		"jaeger_url", appCfg.GetJaegerWebURL(),
	)

	<-ctx.Done()
	obs.Logger.InfoContext(context.Background(), "meshd shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return m.Shutdown(shutdownCtx)
}
