package config

import (
	"os"
	"strconv"
)

// AppConfig holds all application configuration
type AppConfig struct {
	// Observability Configuration
	JaegerEndpoint   string
	PrometheusPort   string
	GrafanaPort      string
	AlertManagerPort string

	// HealthPort is the port the process's HTTP health/readiness server
	// listens on.
	HealthPort string

	// OpenTelemetry Collector Ports
	OTLPGRPCPort string
	OTLPHTTPPort string

	// Service Configuration
	ServiceName    string
	ServiceVersion string
	Environment    string
	LogLevel       string

	Orchestrator OrchestratorConfig
	Registry     RegistryConfig
	Correlation  CorrelationConfig
	Breaker      BreakerConfig
	Cache        CacheConfig
	Memory       MemoryConfig

	// AnthropicAPIKey selects the Anthropic LLM binding when set; the mesh
	// falls back to the deterministic mock provider when empty.
	AnthropicAPIKey string

	// GRPCListenAddr is the optional gRPC health transport's listen
	// address; empty disables it.
	GRPCListenAddr string
}

// OrchestratorConfig controls the planning/dispatch/synthesis pipeline.
type OrchestratorConfig struct {
	MaxRepromptAttempts         int
	PlanningTimeoutMs           int
	TurnTimeoutMs               int
	PlanningConfidenceThreshold float64
}

// RegistryConfig controls the agent registry's heartbeat sweep.
type RegistryConfig struct {
	HeartbeatIntervalMs int
	StaleTimeoutMs      int
}

// CorrelationConfig controls the correlation tracker's timeout/cleanup.
type CorrelationConfig struct {
	DefaultTimeoutSec int
	CleanupIntervalMin int
	MaxAgeMs          int
	GraceWindowSec    int
}

// BreakerConfig controls the per-agent circuit breaker.
type BreakerConfig struct {
	FailureThreshold int
	CooldownMs       int
	MaxAgentRetries  int
}

// CacheConfig controls the two-tier response cache.
type CacheConfig struct {
	MemoryCapacity int
	TTLMs          int

	// BlobDriver selects the disk tier's backing: "memory" (default, no
	// on-disk footprint), "file", or "sqlite".
	BlobDriver string
	BlobPath   string
}

// MemoryConfig controls conversation memory retention.
type MemoryConfig struct {
	ContextWindowSize int
	SessionTimeoutMin int
	MaxMessages       int
}

// Load loads configuration from environment variables with defaults
func Load() *AppConfig {
	return &AppConfig{
		// Observability Stack
		JaegerEndpoint:   getEnv("JAEGER_ENDPOINT", "127.0.0.1:4317"),
		PrometheusPort:   getEnv("PROMETHEUS_PORT", "9090"),
		GrafanaPort:      getEnv("GRAFANA_PORT", "3333"),
		AlertManagerPort: getEnv("ALERTMANAGER_PORT", "9093"),

		HealthPort: getEnv("HEALTH_PORT", "8080"),

		// OpenTelemetry Collector Ports
		OTLPGRPCPort: getEnv("OTLP_GRPC_PORT", "4320"),
		OTLPHTTPPort: getEnv("OTLP_HTTP_PORT", "4321"),

		// Service Configuration
		ServiceName:    getEnv("SERVICE_NAME", "meshcore-service"),
		ServiceVersion: getEnv("SERVICE_VERSION", "1.0.0"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "INFO"),

		Orchestrator: OrchestratorConfig{
			MaxRepromptAttempts:         getEnvAsInt("ORCHESTRATOR_MAX_REPROMPT_ATTEMPTS", 3),
			PlanningTimeoutMs:           getEnvAsInt("ORCHESTRATOR_PLANNING_TIMEOUT_MS", 15000),
			TurnTimeoutMs:               getEnvAsInt("ORCHESTRATOR_TURN_TIMEOUT_MS", 60000),
			PlanningConfidenceThreshold: getEnvAsFloat("ORCHESTRATOR_CONFIDENCE_THRESHOLD", 0.6),
		},
		Registry: RegistryConfig{
			HeartbeatIntervalMs: getEnvAsInt("REGISTRY_HEARTBEAT_INTERVAL_MS", 30000),
			StaleTimeoutMs:      getEnvAsInt("REGISTRY_STALE_TIMEOUT_MS", 300000),
		},
		Correlation: CorrelationConfig{
			DefaultTimeoutSec:  getEnvAsInt("CORRELATION_DEFAULT_TIMEOUT_SEC", 30),
			CleanupIntervalMin: getEnvAsInt("CORRELATION_CLEANUP_INTERVAL_MIN", 5),
			MaxAgeMs:           getEnvAsInt("CORRELATION_MAX_AGE_MS", 3600000),
			GraceWindowSec:     getEnvAsInt("CORRELATION_GRACE_WINDOW_SEC", 30),
		},
		Breaker: BreakerConfig{
			FailureThreshold: getEnvAsInt("BREAKER_FAILURE_THRESHOLD", 5),
			CooldownMs:       getEnvAsInt("BREAKER_COOLDOWN_MS", 30000),
			MaxAgentRetries:  getEnvAsInt("BREAKER_MAX_AGENT_RETRIES", 2),
		},
		Cache: CacheConfig{
			MemoryCapacity: getEnvAsInt("CACHE_MEMORY_CAPACITY", 500),
			TTLMs:          getEnvAsInt("CACHE_TTL_MS", 86400000),
			BlobDriver:     getEnv("CACHE_BLOB_DRIVER", "memory"),
			BlobPath:       getEnv("CACHE_BLOB_PATH", "./meshcore-cache"),
		},
		Memory: MemoryConfig{
			ContextWindowSize: getEnvAsInt("MEMORY_CONTEXT_WINDOW_SIZE", 20),
			SessionTimeoutMin: getEnvAsInt("MEMORY_SESSION_TIMEOUT_MIN", 60),
			MaxMessages:       getEnvAsInt("MEMORY_MAX_MESSAGES", 100),
		},

		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		GRPCListenAddr:  getEnv("MESH_GRPC_ADDR", ""),
	}
}

// GetJaegerWebURL returns the Jaeger web interface URL
func (c *AppConfig) GetJaegerWebURL() string {
	return "http://localhost:16686"
}

// GetGrafanaURL returns the Grafana web interface URL
func (c *AppConfig) GetGrafanaURL() string {
	return "http://localhost:" + c.GrafanaPort
}

// GetPrometheusURL returns the Prometheus web interface URL
func (c *AppConfig) GetPrometheusURL() string {
	return "http://localhost:" + c.PrometheusPort
}

// GetAlertManagerURL returns the AlertManager web interface URL
func (c *AppConfig) GetAlertManagerURL() string {
	return "http://localhost:" + c.AlertManagerPort
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as integer with a default fallback
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as boolean with a default fallback
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsFloat gets an environment variable as float64 with a default fallback
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
