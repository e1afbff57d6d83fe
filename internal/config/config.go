// Package config loads the control plane's configuration from environment
// variables, following the env-first, typed-default pattern used
// throughout this codebase (§6 "Configuration").
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every configurable value the coordinator and its
// components need at startup.
type Config struct {
	Port      int
	Version   string
	Telemetry TelemetryConfig
	Engine    EngineConfig
	Gateway   GatewayConfig
	Policy    PolicyConfig
	Catalog   CatalogConfig
	RateLimit RateLimitConfig
	Router    RouterConfig
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// EngineConfig configures the Engine Client's connection and credentials.
type EngineConfig struct {
	BaseURL         string
	APIKey          string
	SessionUsername string
	SessionPassword string
}

// GatewayConfig configures the validation gateway's optional layers and
// deadline.
type GatewayConfig struct {
	DryRunEnabled   bool
	SemanticEnabled bool
	StrictMode      bool
	Deadline        time.Duration
	CacheTTL        time.Duration
}

// PolicyConfig configures the node restriction policy filter (Layer 0).
type PolicyConfig struct {
	CommunityNodesAllowed bool
	AllowList             []string
	CustomRule            string
}

// CatalogConfig configures the node catalog's refresh cadence.
type CatalogConfig struct {
	RefreshInterval time.Duration
	FetchDeadline   time.Duration
}

// RateLimitConfig overrides individual endpoint buckets. A zero value for
// a field leaves that endpoint at its package default.
type RateLimitConfig struct {
	WriteWorkflowRatePerSecond   float64
	WriteWorkflowBurst           int
	DeleteWorkflowRatePerSecond  float64
	DeleteWorkflowBurst          int
	ReadWorkflowRatePerSecond    float64
	ReadWorkflowBurst            int
	ReadExecutionRatePerSecond   float64
	ReadExecutionBurst           int
	CreateExecutionRatePerSecond float64
	CreateExecutionBurst         int
	DefaultRatePerSecond         float64
	DefaultBurst                 int
}

// RouterConfig configures the Smart Execution Router's history-based
// decision threshold and telemetry retention.
type RouterConfig struct {
	MinHistorySize  int
	MetricRetention time.Duration
}

// Load reads configuration from environment variables with the defaults
// named in §6.
func Load() *Config {
	return &Config{
		Port:    envInt("COPILOT_PORT", 8080),
		Version: envStr("COPILOT_VERSION", "0.1.0"),
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", true),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "workflow-copilot"),
		},
		Engine: EngineConfig{
			BaseURL:         envStr("ENGINE_BASE_URL", "http://localhost:5678"),
			APIKey:          envStr("ENGINE_API_KEY", ""),
			SessionUsername: envStr("ENGINE_SESSION_USERNAME", ""),
			SessionPassword: envStr("ENGINE_SESSION_PASSWORD", ""),
		},
		Gateway: GatewayConfig{
			DryRunEnabled:   envBool("GATEWAY_DRY_RUN_ENABLED", true),
			SemanticEnabled: envBool("GATEWAY_SEMANTIC_ENABLED", false),
			StrictMode:      envBool("GATEWAY_STRICT_MODE", false),
			Deadline:        envDuration("GATEWAY_VALIDATION_DEADLINE", 60*time.Second),
			CacheTTL:        envDuration("GATEWAY_CACHE_TTL", 24*time.Hour),
		},
		Policy: PolicyConfig{
			CommunityNodesAllowed: envBool("POLICY_COMMUNITY_NODES_ALLOWED", false),
			AllowList:             envStrList("POLICY_ALLOW_LIST", nil),
			CustomRule:            envStr("POLICY_CUSTOM_RULE", ""),
		},
		Catalog: CatalogConfig{
			RefreshInterval: envDuration("CATALOG_REFRESH_INTERVAL", 5*time.Minute),
			FetchDeadline:   envDuration("CATALOG_FETCH_DEADLINE", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			WriteWorkflowRatePerSecond:   envFloat("RATE_WRITE_WORKFLOW_RPS", 2),
			WriteWorkflowBurst:           envInt("RATE_WRITE_WORKFLOW_BURST", 5),
			DeleteWorkflowRatePerSecond:  envFloat("RATE_DELETE_WORKFLOW_RPS", 1),
			DeleteWorkflowBurst:          envInt("RATE_DELETE_WORKFLOW_BURST", 3),
			ReadWorkflowRatePerSecond:    envFloat("RATE_READ_WORKFLOW_RPS", 5),
			ReadWorkflowBurst:            envInt("RATE_READ_WORKFLOW_BURST", 10),
			ReadExecutionRatePerSecond:   envFloat("RATE_READ_EXECUTION_RPS", 5),
			ReadExecutionBurst:           envInt("RATE_READ_EXECUTION_BURST", 10),
			CreateExecutionRatePerSecond: envFloat("RATE_CREATE_EXECUTION_RPS", 3),
			CreateExecutionBurst:         envInt("RATE_CREATE_EXECUTION_BURST", 8),
			DefaultRatePerSecond:         envFloat("RATE_DEFAULT_RPS", 2),
			DefaultBurst:                 envInt("RATE_DEFAULT_BURST", 5),
		},
		Router: RouterConfig{
			MinHistorySize:  envInt("ROUTER_MIN_HISTORY_SIZE", 5),
			MetricRetention: envDuration("ROUTER_METRIC_RETENTION", 30*24*time.Hour),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envStrList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
