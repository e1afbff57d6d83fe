package config_test

import (
	"testing"
	"time"

	"github.com/agentoven/workflow-copilot/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := config.Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.Gateway.DryRunEnabled)
	assert.False(t, cfg.Gateway.SemanticEnabled)
	assert.Equal(t, 60*time.Second, cfg.Gateway.Deadline)
	assert.Equal(t, 5, cfg.Router.MinHistorySize)
	assert.Equal(t, 30*24*time.Hour, cfg.Router.MetricRetention)
	assert.Equal(t, 2.0, cfg.RateLimit.WriteWorkflowRatePerSecond)
	assert.Equal(t, 5, cfg.RateLimit.WriteWorkflowBurst)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("COPILOT_PORT", "9090")
	t.Setenv("GATEWAY_STRICT_MODE", "true")
	t.Setenv("POLICY_ALLOW_LIST", "a, b ,c")

	cfg := config.Load()

	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.Gateway.StrictMode)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Policy.AllowList)
}

func TestLoad_InvalidEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("COPILOT_PORT", "not-a-number")

	cfg := config.Load()

	assert.Equal(t, 8080, cfg.Port)
}
