package observability

import (
	"context"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type MetricsManager struct {
	meter metric.Meter

	// Event metrics
	eventsProcessedTotal    metric.Int64Counter
	eventProcessingDuration metric.Float64Histogram
	eventErrorsTotal        metric.Int64Counter
	eventsPublishedTotal    metric.Int64Counter

	// System metrics
	processCPUSecondsTotal     metric.Float64Counter
	processResidentMemoryBytes metric.Int64UpDownCounter
	goGoroutines               metric.Int64UpDownCounter
	goMemstatsAllocBytes       metric.Int64UpDownCounter

	// Agent dispatch metrics
	agentDispatchDuration    metric.Float64Histogram
	agentAwaitDuration       metric.Float64Histogram
	agentDispatchErrorsTotal metric.Int64Counter

	// Registry metrics
	registrySize          metric.Int64UpDownCounter
	registryEvictionsTotal metric.Int64Counter

	// Circuit breaker metrics
	breakerTripsTotal       metric.Int64Counter
	breakerStateTransitions metric.Int64Counter

	// Cache metrics
	cacheHitsTotal   metric.Int64Counter
	cacheMissesTotal metric.Int64Counter
	cacheSize        metric.Int64UpDownCounter

	// Correlation metrics
	correlationTimeoutsTotal metric.Int64Counter
	correlationPending       metric.Int64UpDownCounter

	// Orchestrator metrics
	plansBuiltTotal       metric.Int64Counter
	planRepromptsTotal    metric.Int64Counter
	turnDuration          metric.Float64Histogram

	// Memory metrics
	memoryCompactionsTotal metric.Int64Counter
}

func NewMetricsManager(meter metric.Meter) (*MetricsManager, error) {
	mm := &MetricsManager{meter: meter}

	var err error

	// Event metrics
	mm.eventsProcessedTotal, err = meter.Int64Counter(
		"events_processed_total",
		metric.WithDescription("Total number of events processed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.eventProcessingDuration, err = meter.Float64Histogram(
		"event_processing_duration_seconds",
		metric.WithDescription("Event processing duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mm.eventErrorsTotal, err = meter.Int64Counter(
		"event_errors_total",
		metric.WithDescription("Total number of event processing errors"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.eventsPublishedTotal, err = meter.Int64Counter(
		"events_published_total",
		metric.WithDescription("Total number of events published"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	// System metrics
	mm.processCPUSecondsTotal, err = meter.Float64Counter(
		"process_cpu_seconds_total",
		metric.WithDescription("Total user and system CPU time spent in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mm.processResidentMemoryBytes, err = meter.Int64UpDownCounter(
		"process_resident_memory_bytes",
		metric.WithDescription("Resident memory size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	mm.goGoroutines, err = meter.Int64UpDownCounter(
		"go_goroutines",
		metric.WithDescription("Number of goroutines that currently exist"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.goMemstatsAllocBytes, err = meter.Int64UpDownCounter(
		"go_memstats_alloc_bytes",
		metric.WithDescription("Number of bytes allocated and still in use"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	// Agent dispatch metrics
	mm.agentDispatchDuration, err = meter.Float64Histogram(
		"agent_dispatch_publish_duration_seconds",
		metric.WithDescription("Time to publish a task event to an agent's endpoint topic"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mm.agentAwaitDuration, err = meter.Float64Histogram(
		"agent_dispatch_await_duration_seconds",
		metric.WithDescription("Time spent awaiting a correlated agent response"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mm.agentDispatchErrorsTotal, err = meter.Int64Counter(
		"agent_dispatch_errors_total",
		metric.WithDescription("Total number of task dispatch failures (publish or await)"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.registrySize, err = meter.Int64UpDownCounter(
		"registry_active_agents",
		metric.WithDescription("Number of agents currently registered as active"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.registryEvictionsTotal, err = meter.Int64Counter(
		"registry_evictions_total",
		metric.WithDescription("Total number of agents evicted for a stale heartbeat"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.breakerTripsTotal, err = meter.Int64Counter(
		"breaker_trips_total",
		metric.WithDescription("Total number of circuit breaker trips to OPEN"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.breakerStateTransitions, err = meter.Int64Counter(
		"breaker_state_transitions_total",
		metric.WithDescription("Total number of circuit breaker state transitions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.cacheHitsTotal, err = meter.Int64Counter(
		"cache_hits_total",
		metric.WithDescription("Total number of response cache hits"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.cacheMissesTotal, err = meter.Int64Counter(
		"cache_misses_total",
		metric.WithDescription("Total number of response cache misses"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.cacheSize, err = meter.Int64UpDownCounter(
		"cache_memory_entries",
		metric.WithDescription("Number of entries currently held in the in-memory cache tier"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.correlationTimeoutsTotal, err = meter.Int64Counter(
		"correlation_timeouts_total",
		metric.WithDescription("Total number of correlation contexts that timed out"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.correlationPending, err = meter.Int64UpDownCounter(
		"correlation_pending",
		metric.WithDescription("Number of correlation contexts currently pending"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.plansBuiltTotal, err = meter.Int64Counter(
		"orchestrator_plans_built_total",
		metric.WithDescription("Total number of task plans built"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.planRepromptsTotal, err = meter.Int64Counter(
		"orchestrator_plan_reprompts_total",
		metric.WithDescription("Total number of LLM reprompt attempts issued for plan repair"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.turnDuration, err = meter.Float64Histogram(
		"orchestrator_turn_duration_seconds",
		metric.WithDescription("End-to-end duration of an orchestrator turn in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mm.memoryCompactionsTotal, err = meter.Int64Counter(
		"memory_compactions_total",
		metric.WithDescription("Total number of conversation memory compactions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return mm, nil
}

// Event metrics methods
func (mm *MetricsManager) IncrementEventsProcessed(ctx context.Context, eventType, source string, success bool) {
	mm.eventsProcessedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("source", source),
		attribute.Bool("success", success),
	))
}

func (mm *MetricsManager) RecordEventProcessingDuration(ctx context.Context, eventType, source string, duration time.Duration) {
	mm.eventProcessingDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("source", source),
	))
}

func (mm *MetricsManager) IncrementEventErrors(ctx context.Context, eventType, source, errorType string) {
	mm.eventErrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("source", source),
		attribute.String("error", errorType),
	))
}

func (mm *MetricsManager) IncrementEventsPublished(ctx context.Context, eventType, destination string) {
	mm.eventsPublishedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("destination", destination),
	))
}

// System metrics methods
func (mm *MetricsManager) UpdateSystemMetrics(ctx context.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mm.goGoroutines.Add(ctx, int64(runtime.NumGoroutine()))
	mm.goMemstatsAllocBytes.Add(ctx, int64(m.Alloc))
	mm.processResidentMemoryBytes.Add(ctx, int64(m.Sys))
}

// Agent dispatch metrics methods
func (mm *MetricsManager) RecordAgentDispatchDuration(ctx context.Context, agentID string, duration time.Duration) {
	mm.agentDispatchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("agent_id", agentID),
	))
}

func (mm *MetricsManager) RecordAgentAwaitDuration(ctx context.Context, agentID string, duration time.Duration) {
	mm.agentAwaitDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("agent_id", agentID),
	))
}

func (mm *MetricsManager) IncrementAgentDispatchErrors(ctx context.Context, agentID string) {
	mm.agentDispatchErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("agent_id", agentID)))
}

// Registry metrics methods
func (mm *MetricsManager) SetRegistrySize(ctx context.Context, delta int64) {
	mm.registrySize.Add(ctx, delta)
}

func (mm *MetricsManager) IncrementRegistryEvictions(ctx context.Context) {
	mm.registryEvictionsTotal.Add(ctx, 1)
}

// Circuit breaker metrics methods
func (mm *MetricsManager) IncrementBreakerTrips(ctx context.Context, agentID string) {
	mm.breakerTripsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("agent_id", agentID)))
}

func (mm *MetricsManager) IncrementBreakerStateTransitions(ctx context.Context, agentID, from, to string) {
	mm.breakerStateTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent_id", agentID),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// Cache metrics methods
func (mm *MetricsManager) IncrementCacheHits(ctx context.Context, tier string) {
	mm.cacheHitsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier)))
}

func (mm *MetricsManager) IncrementCacheMisses(ctx context.Context) {
	mm.cacheMissesTotal.Add(ctx, 1)
}

func (mm *MetricsManager) SetCacheSize(ctx context.Context, delta int64) {
	mm.cacheSize.Add(ctx, delta)
}

// Correlation metrics methods
func (mm *MetricsManager) IncrementCorrelationTimeouts(ctx context.Context) {
	mm.correlationTimeoutsTotal.Add(ctx, 1)
}

func (mm *MetricsManager) SetCorrelationPending(ctx context.Context, delta int64) {
	mm.correlationPending.Add(ctx, delta)
}

// Orchestrator metrics methods
func (mm *MetricsManager) IncrementPlansBuilt(ctx context.Context, source string) {
	mm.plansBuiltTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

func (mm *MetricsManager) IncrementPlanReprompts(ctx context.Context) {
	mm.planRepromptsTotal.Add(ctx, 1)
}

func (mm *MetricsManager) RecordTurnDuration(ctx context.Context, outcome string, duration time.Duration) {
	mm.turnDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Memory metrics methods
func (mm *MetricsManager) IncrementMemoryCompactions(ctx context.Context) {
	mm.memoryCompactionsTotal.Add(ctx, 1)
}
