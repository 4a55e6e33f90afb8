// Package config provides centralized configuration management for the
// mesh runtime through environment variables with sensible defaults.
//
// # Overview
//
// The config package loads application configuration from environment
// variables, providing a single source of truth for the mesh process and
// every component it wires together:
//   - Observability stack endpoints (Jaeger, Prometheus, Grafana, AlertManager)
//   - The HTTP health/readiness port and the optional gRPC listen address
//   - Per-component tuning (orchestrator, registry, correlation, breaker,
//     cache, memory)
//   - Service metadata (name, version, environment)
//
// All configuration values have sensible defaults, so the mesh can run
// without any environment variable configuration.
//
// # Quick Start
//
//	appCfg := config.Load()
//	fmt.Printf("Jaeger: %s\n", appCfg.JaegerEndpoint)
//	fmt.Printf("Environment: %s\n", appCfg.Environment)
//
// # Configuration Fields
//
// **Observability Stack**:
//   - JAEGER_ENDPOINT: Jaeger OTLP endpoint (default: "127.0.0.1:4317")
//   - PROMETHEUS_PORT: Prometheus port (default: "9090")
//   - GRAFANA_PORT: Grafana port (default: "3333")
//   - ALERTMANAGER_PORT: AlertManager port (default: "9093")
//   - HEALTH_PORT: HTTP health/readiness server port (default: "8080")
//
// **OpenTelemetry Collector**:
//   - OTLP_GRPC_PORT: OTLP gRPC receiver port (default: "4320")
//   - OTLP_HTTP_PORT: OTLP HTTP receiver port (default: "4321")
//
// **Service Metadata**:
//   - SERVICE_NAME: Service name for observability (default: "meshcore-service")
//   - SERVICE_VERSION: Service version (default: "1.0.0")
//   - ENVIRONMENT: Deployment environment (default: "development")
//   - LOG_LEVEL: Logging level - DEBUG, INFO, WARN, ERROR (default: "INFO")
//
// **Orchestrator**: ORCHESTRATOR_MAX_REPROMPT_ATTEMPTS,
// ORCHESTRATOR_PLANNING_TIMEOUT_MS, ORCHESTRATOR_TURN_TIMEOUT_MS,
// ORCHESTRATOR_CONFIDENCE_THRESHOLD.
//
// **Registry**: REGISTRY_HEARTBEAT_INTERVAL_MS, REGISTRY_STALE_TIMEOUT_MS.
//
// **Correlation**: CORRELATION_DEFAULT_TIMEOUT_SEC,
// CORRELATION_CLEANUP_INTERVAL_MIN, CORRELATION_MAX_AGE_MS,
// CORRELATION_GRACE_WINDOW_SEC.
//
// **Breaker**: BREAKER_FAILURE_THRESHOLD, BREAKER_COOLDOWN_MS,
// BREAKER_MAX_AGENT_RETRIES.
//
// **Cache**: CACHE_MEMORY_CAPACITY, CACHE_TTL_MS, CACHE_BLOB_DRIVER
// ("memory", "file" or "sqlite"), CACHE_BLOB_PATH.
//
// **Memory**: MEMORY_CONTEXT_WINDOW_SIZE, MEMORY_SESSION_TIMEOUT_MIN,
// MEMORY_MAX_MESSAGES.
//
// **LLM / transport**: ANTHROPIC_API_KEY (selects the Anthropic binding;
// falls back to the mock provider when unset), MESH_GRPC_ADDR (optional
// gRPC health listen address; empty disables the gRPC surface entirely).
//
// # Usage Examples
//
// **Observability URLs**:
//
//	appCfg := config.Load()
//	jaegerUI := appCfg.GetJaegerWebURL()     // "http://localhost:16686"
//	grafana := appCfg.GetGrafanaURL()        // "http://localhost:3333"
//	prometheus := appCfg.GetPrometheusURL()  // "http://localhost:9090"
//	alertMgr := appCfg.GetAlertManagerURL()  // "http://localhost:9093"
//
// # Configuration Precedence
//
// Configuration is loaded in this order:
//  1. Environment variables (if set)
//  2. Default values (if not set)
//
// # Integration with Other Packages
//
// **observability.DefaultConfig()**:
//
//	func DefaultConfig(serviceName string) observability.Config {
//	    appConfig := config.Load()
//	    return observability.Config{
//	        ServiceName:    serviceName,
//	        ServiceVersion: appConfig.ServiceVersion,
//	        JaegerEndpoint: appConfig.JaegerEndpoint,
//	        // ...
//	    }
//	}
//
// **mesh.New()**: consumes the Orchestrator/Registry/Correlation/Breaker/
// Cache/Memory sub-structs directly when constructing each component.
//
// # Best Practices
//
// **Use Load() once per process**:
//
//	// In main.go
//	appCfg := config.Load()
//	// Pass to components that need it
//
// **Don't mutate AppConfig**:
//
//	// AppConfig is a read-only snapshot of environment at startup
//	appCfg := config.Load()
//	// Don't modify config fields after loading
//
// # Thread Safety
//
// AppConfig is safe to read from multiple goroutines once loaded.
// Do not modify AppConfig fields after calling Load().
package config
