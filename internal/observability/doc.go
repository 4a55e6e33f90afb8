// Package observability provides comprehensive observability infrastructure including
// distributed tracing, metrics collection, structured logging, and health checks.
//
// # Overview
//
// The observability package implements OpenTelemetry-based observability with:
//   - Distributed tracing (OpenTelemetry/Jaeger)
//   - Metrics collection (Prometheus)
//   - Structured logging (log/slog)
//   - Health check endpoints
//   - Graceful shutdown with trace flushing
//
// This package is the foundation for observability across the mesh, providing
// consistent tracing, metrics, and logging for the event bus, the agent
// registry, the dispatcher, and the orchestrator.
//
// # Quick Start
//
// Initialize observability for your service:
//
//	config := observability.DefaultConfig("my_service")
//	obs, err := observability.NewObservability(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer obs.Shutdown(context.Background())
//
//	// Use the components
//	logger := obs.Logger
//	tracer := obs.Tracer
//	meter := obs.Meter
//
// This automatically sets up:
//   - OTLP trace exporter to Jaeger
//   - Prometheus metrics exporter
//   - Structured logger with trace context
//   - Proper resource attributes (service name, version, environment)
//
// # Architecture
//
// The package provides layered observability:
//
//	┌─────────────────────────────────────────────┐
//	│         Application Code                    │
//	│   (Event Bus, Registry, Dispatcher,         │
//	│    Orchestrator)                            │
//	├─────────────────────────────────────────────┤
//	│         TraceManager                        │
//	│   - Span creation & management              │
//	│   - Task/result span attributes             │
//	│   - Context propagation                     │
//	├─────────────────────────────────────────────┤
//	│         MetricsManager                      │
//	│   - Counter metrics (events, errors)        │
//	│   - Histogram metrics (durations)           │
//	│   - Gauge metrics (goroutines, memory)      │
//	├─────────────────────────────────────────────┤
//	│         Logger (slog)                       │
//	│   - Structured logging                      │
//	│   - Trace context injection                 │
//	│   - Configurable log levels                 │
//	├─────────────────────────────────────────────┤
//	│         OpenTelemetry SDK                   │
//	│   - OTLP trace exporter → Jaeger            │
//	│   - Prometheus metrics exporter             │
//	│   - Resource detection                      │
//	└─────────────────────────────────────────────┘
//
// # Configuration
//
// **Config** specifies observability settings:
//
//	config := observability.Config{
//	    ServiceName:    "my_service",
//	    ServiceVersion: "1.0.0",
//	    JaegerEndpoint: "localhost:4317",    // OTLP gRPC endpoint
//	    PrometheusPort: "9090",
//	    Environment:    "production",
//	    LogLevel:       "INFO",              // DEBUG, INFO, WARN, ERROR
//	}
//
// **DefaultConfig** reads from environment via internal/config:
//
//	config := observability.DefaultConfig("my_service")
//
// # Distributed Tracing
//
// Use TraceManager for creating and managing spans:
//
//	traceManager := observability.NewTraceManager("my_service")
//
//	// Start a span
//	ctx, span := traceManager.StartSpan(ctx, "process_request")
//	defer span.End()
//
//	// Add attributes
//	span.SetAttributes(
//	    attribute.String("user_id", "user123"),
//	    attribute.Int("items_count", 5),
//	)
//
//	// Record errors
//	if err != nil {
//	    traceManager.RecordError(span, err)
//	} else {
//	    traceManager.SetSpanSuccess(span)
//	}
//
// ## Event and Task Tracing
//
// TraceManager provides specialized methods for the event bus and the
// dispatcher's per-task lifecycle:
//
// **Publish / consume**:
//
//	ctx, span := traceManager.StartPublishSpan(ctx, agent.EndpointTopic, "task.dispatch")
//	defer span.End()
//
//	ctx, span = traceManager.StartConsumeSpan(ctx, "orchestrator", "task.dispatch")
//	defer span.End()
//
// **Task attributes and results**:
//
//	traceManager.AddTaskAttributes(span, task.TaskID, task.Capability, task.Params)
//	// ... dispatch the task ...
//	traceManager.AddTaskResult(span, "success", result, "")
//
// ## Context Propagation
//
// context.Context does not cross the channel handoff between Publish and a
// subscription's delivery goroutine, so the dispatcher injects the publish
// span into the event itself and the bus extracts it before starting the
// per-subscriber processing span:
//
//	headers := make(map[string]string)
//	traceManager.InjectTraceContext(spanCtx, headers)
//	event.TraceHeaders = headers
//
//	// ... on the delivery side, inside the bus ...
//	ctx = traceManager.ExtractTraceContext(ctx, e.TraceHeaders)
//
// # Metrics Collection
//
// Use MetricsManager for recording metrics:
//
//	metricsManager, err := observability.NewMetricsManager(meter)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// ## Event Metrics
//
// **Processed Events**:
//
//	metricsManager.IncrementEventsProcessed(ctx, "task.dispatch", "agent_weather", true)
//
// **Event Errors**:
//
//	metricsManager.IncrementEventErrors(ctx, "task.dispatch", "agent_weather", "delivery_exhausted")
//
// **Published Events**:
//
//	metricsManager.IncrementEventsPublished(ctx, "task.dispatch", "at_least_once")
//
// **Processing Duration**:
//
//	start := time.Now()
//	// ... do work ...
//	metricsManager.RecordEventProcessingDuration(ctx, "task.dispatch", "agent_weather", time.Since(start))
//
// ## System Metrics
//
// **Runtime Metrics**:
//
//	metricsManager.UpdateSystemMetrics(ctx)
//
// This records:
//   - go_goroutines: Current goroutine count
//   - go_memstats_alloc_bytes: Allocated memory
//   - process_resident_memory_bytes: Resident memory size
//
// ## Available Metrics
//
// The package provides these standard metrics:
//
// **Event Metrics**:
//   - events_processed_total: Counter with labels (event_type, source, success)
//   - event_processing_duration_seconds: Histogram with labels (event_type, source)
//   - event_errors_total: Counter with labels (event_type, source, error)
//   - events_published_total: Counter with labels (event_type, destination)
//
// **System Metrics**:
//   - process_cpu_seconds_total: CPU time counter
//   - process_resident_memory_bytes: Memory gauge
//   - go_goroutines: Goroutine count gauge
//   - go_memstats_alloc_bytes: Allocated memory gauge
//
// **Agent Dispatch Metrics**:
//   - agent_dispatch_publish_duration_seconds: Per-agent publish duration histogram
//   - agent_dispatch_await_duration_seconds: Per-agent correlation await duration histogram
//   - agent_dispatch_errors_total: Per-agent dispatch failure counter
//
// **Registry / Breaker / Cache / Correlation / Orchestrator / Memory Metrics**:
//   - registry_active_agents, registry_evictions_total
//   - breaker_trips_total, breaker_state_transitions_total
//   - cache_hits_total, cache_misses_total, cache_memory_entries
//   - correlation_timeouts_total, correlation_pending
//   - orchestrator_plans_built_total, orchestrator_plan_reprompts_total, orchestrator_turn_duration_seconds
//   - memory_compactions_total
//
// All metrics are exposed on the HealthServer's /metrics endpoint, which
// cmd/meshd serves on AppConfig.HealthPort. PrometheusPort serves nothing; it
// is only used to build the Prometheus URL logged at startup.
//
// # Structured Logging
//
// The package provides slog-based structured logging with trace context:
//
//	logger := obs.Logger
//
//	// Context-aware logging (includes trace ID if present)
//	logger.InfoContext(ctx, "Processing task",
//	    "task_id", taskID,
//	    "agent_id", agentID,
//	)
//
//	logger.ErrorContext(ctx, "Task failed",
//	    "task_id", taskID,
//	    "error", err,
//	)
//
// ## Log Levels
//
// Configure via LogLevel in config:
//   - DEBUG: Verbose logging + stdout output
//   - INFO: Standard operation logging
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//
// DEBUG mode enables dual output (observability handler + stdout).
//
// # Health Checks
//
// The package includes health check infrastructure (see healthcheck.go):
//
//	healthServer := observability.NewHealthServer(port, serviceName, version)
//
//	// Add health checkers
//	healthServer.AddChecker("self", observability.NewBasicHealthChecker("self", func(ctx context.Context) error {
//	    return nil  // Always healthy
//	}))
//
//	healthServer.AddChecker("event_bus", observability.NewBasicHealthChecker("event_bus", func(ctx context.Context) error {
//	    if bus.Stopped() {
//	        return fmt.Errorf("event bus stopped")
//	    }
//	    return nil
//	}))
//
//	// Start server (exposes /health and /metrics endpoints)
//	healthServer.Start(ctx)
//
// Health endpoints:
//   - GET /health: Overall health status
//   - GET /metrics: Prometheus metrics
//
// # Complete Example
//
// Here's a full example setting up observability for the mesh process:
//
//	func main() {
//	    // 1. Initialize observability
//	    config := observability.DefaultConfig("meshcore-service")
//	    obs, err := observability.NewObservability(config)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer obs.Shutdown(context.Background())
//
//	    // 2. Create managers
//	    traceManager := observability.NewTraceManager(config.ServiceName)
//	    metricsManager, err := observability.NewMetricsManager(obs.Meter)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    // 3. Setup health checks
//	    healthServer := observability.NewHealthServer("8080", config.ServiceName, config.ServiceVersion)
//	    healthServer.AddChecker("self", observability.NewBasicHealthChecker("self", func(ctx context.Context) error {
//	        return nil
//	    }))
//	    go healthServer.Start(context.Background())
//
//	    // 4. Use in application
//	    ctx := context.Background()
//	    ctx, span := traceManager.StartSpan(ctx, "process_turn")
//	    defer span.End()
//
//	    start := time.Now()
//	    defer func() {
//	        metricsManager.RecordEventProcessingDuration(ctx, "turn", config.ServiceName, time.Since(start))
//	    }()
//
//	    obs.Logger.InfoContext(ctx, "Processing turn", "session_id", "s1")
//
//	    // ... do work ...
//
//	    metricsManager.IncrementEventsProcessed(ctx, "turn", config.ServiceName, true)
//	    traceManager.SetSpanSuccess(span)
//	}
//
// # Graceful Shutdown
//
// Always shut down observability to flush traces and metrics:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//
//	if err := obs.Shutdown(ctx); err != nil {
//	    log.Printf("Observability shutdown error: %v", err)
//	}
//
// Shutdown:
//  1. Flushes all pending traces to Jaeger
//  2. Exports final metrics to Prometheus
//  3. Closes all exporters
//  4. Releases resources
//
// Without shutdown, recent traces may be lost!
//
// # Integration Points
//
// The observability package is wired into every mesh component:
//
// **internal/mesh.New**: builds one MetricsManager/TraceManager and threads
// them into the event bus, the registry, the correlation tracker, the
// breakers, the dispatcher, the response cache, conversation memory, and the
// orchestrator.
//
// **cmd/meshd**: owns the top-level Observability bundle and the HTTP health
// server, and shuts both down on SIGINT/SIGTERM.
//
// **internal/agentsdk**: wraps every registered skill handler's invocation
// in a consume span that records the task's attributes and its outcome.
//
// # Trace Visualization
//
// View traces in Jaeger UI:
//
//	http://localhost:16686
//
// Search by:
//   - Service name (e.g., "meshcore-service")
//   - Operation name (e.g., "process_turn", "publish_event")
//   - Tags (e.g., "task.id=task123")
//
// Trace structure for a typical turn:
//
//	orchestrator.turn (Orchestrator.HandleTurn)
//	  └─ publish_event (Dispatcher publishes to an agent's endpoint topic)
//	      └─ process_event (the bus delivers the event to a subscription)
//
// The Agent SDK's consume_event span is started from a fresh context, so it
// begins a trace of its own rather than nesting under process_event.
//
// # Metrics Dashboard
//
// View metrics in Prometheus:
//
//	http://localhost:9090
//
// Example queries:
//
//	# Event processing rate
//	rate(events_processed_total[1m])
//
//	# Event error rate by type
//	rate(event_errors_total[1m])
//
//	# P95 agent dispatch await duration
//	histogram_quantile(0.95, rate(agent_dispatch_await_duration_seconds_bucket[5m]))
//
//	# Active goroutines
//	go_goroutines
//
// # Custom Span Attributes
//
// Add custom attributes to spans:
//
//	span.SetAttributes(
//	    attribute.String("custom.key", "value"),
//	    attribute.Int("custom.count", 42),
//	    attribute.Bool("custom.flag", true),
//	)
//
// Or use TraceManager helpers:
//
//	traceManager.AddComponentAttribute(span, "orchestrator")
//	traceManager.AddSpanEvent(span, "plan_built",
//	    attribute.String("source", "llm"),
//	    attribute.Int("task_count", len(plan.Tasks)),
//	)
//
// # Error Handling
//
// Observability initialization errors:
//   - OTLP endpoint unreachable: Logged but doesn't fail startup
//   - Invalid configuration: Returns error from NewObservability()
//   - Metrics creation failure: Returns error from NewMetricsManager()
//
// Runtime errors:
//   - Trace export failures: Logged via OpenTelemetry error handler
//   - Metric recording failures: Silently ignored (non-blocking)
//
// # Performance Considerations
//
// The observability package is designed for production:
//   - Asynchronous trace export (non-blocking)
//   - Efficient span attribute storage
//   - Metric aggregation before export
//   - Minimal overhead (<1ms per span)
//   - Batch trace export to reduce network calls
//   - Sampling support (currently AlwaysSample)
//
// # Thread Safety
//
// All components are thread-safe:
//   - TraceManager can be used from multiple goroutines
//   - MetricsManager is safe for concurrent use
//   - Logger is safe for concurrent use
//   - Shutdown can be called once safely
//
// # Best Practices
//
// **Always use context**:
//
//	ctx, span := traceManager.StartSpan(ctx, "operation")
//	defer span.End()
//	// Pass ctx to child operations
//
// **End spans with defer**:
//
//	ctx, span := traceManager.StartSpan(ctx, "operation")
//	defer span.End()  // Always ends, even on panic
//
// **Record errors**:
//
//	if err != nil {
//	    traceManager.RecordError(span, err)
//	    return err
//	}
//
// **Use structured logging**:
//
//	logger.InfoContext(ctx, "Message", "key", value)  // Not: fmt.Sprintf
//
// **Shutdown gracefully**:
//
//	defer obs.Shutdown(context.Background())
//
// **Name spans consistently**:
//
//	// Good: component.operation
//	"orchestrator.handle_turn"
//	"dispatcher.dispatch_task"
//	"registry.select_agent"
//
//	// Bad: Inconsistent naming
//	"handleTask"
//	"RouteEvent"
//	"decide"
//
// # Related Packages
//
//   - internal/mesh: Composition root wiring one Observability bundle into every component
//   - internal/agentsdk: Wraps skill handlers with automatic observability
//   - internal/config: Provides configuration for observability settings
package observability
