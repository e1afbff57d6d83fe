// Workflow Co-Pilot Control Plane — the single entry point wiring the
// Engine Client, Node Catalog, Shared Memory, Validation Gateway, Smart
// Execution Router, and Coordinator together behind a reference HTTP
// adapter.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/agentoven/workflow-copilot/internal/api"
	"github.com/agentoven/workflow-copilot/internal/auth"
	"github.com/agentoven/workflow-copilot/internal/catalog"
	"github.com/agentoven/workflow-copilot/internal/config"
	"github.com/agentoven/workflow-copilot/internal/coordinator"
	"github.com/agentoven/workflow-copilot/internal/enginecli"
	"github.com/agentoven/workflow-copilot/internal/ratelimit"
	"github.com/agentoven/workflow-copilot/internal/router"
	"github.com/agentoven/workflow-copilot/internal/semantic"
	"github.com/agentoven/workflow-copilot/internal/sharedmem"
	"github.com/agentoven/workflow-copilot/internal/telemetry"
	"github.com/agentoven/workflow-copilot/internal/validation"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	log.Info().Msg("workflow copilot control plane starting")

	cfg := config.Load()
	ctx := context.Background()

	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer shutdownTelemetry(ctx)

	limiter := ratelimit.New(buckets(cfg.RateLimit))
	engine := enginecli.New(enginecli.Config{
		BaseURL:         cfg.Engine.BaseURL,
		APIKey:          cfg.Engine.APIKey,
		SessionUsername: cfg.Engine.SessionUsername,
		SessionPassword: cfg.Engine.SessionPassword,
	}, limiter)

	policy, err := catalog.NewPolicy(nil, cfg.Policy.CommunityNodesAllowed, cfg.Policy.AllowList, cfg.Policy.CustomRule)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid node restriction policy")
	}
	cat := catalog.New(engine, policy,
		catalog.WithRefreshInterval(cfg.Catalog.RefreshInterval),
		catalog.WithFetchDeadline(cfg.Catalog.FetchDeadline),
	)

	store := buildStore()

	gateway := validation.New(cat, store, engine, semantic.NoopAdvisor{}, validation.Config{
		DryRunEnabled:   cfg.Gateway.DryRunEnabled,
		SemanticEnabled: cfg.Gateway.SemanticEnabled,
		StrictMode:      cfg.Gateway.StrictMode,
		Deadline:        cfg.Gateway.Deadline,
		CacheTTL:        cfg.Gateway.CacheTTL,
	})

	rtr := router.New(store, cfg.Router.MinHistorySize, cfg.Router.MetricRetention)

	c := coordinator.New(engine, cat, store, gateway, rtr)
	c.Start(ctx)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := c.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("coordinator shutdown reported an error")
		}
	}()

	authChain := auth.NewChain(auth.NewAPIKeyProvider(apiKeys()))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.NewRouter(c, authChain, cfg.Version),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().Int("port", cfg.Port).Msg("workflow copilot control plane ready")

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func buckets(rl config.RateLimitConfig) map[ratelimit.Endpoint]ratelimit.BucketConfig {
	cfg := map[ratelimit.Endpoint]ratelimit.BucketConfig{
		ratelimit.EndpointWriteWorkflow:   {RatePerSecond: rl.WriteWorkflowRatePerSecond, Burst: rl.WriteWorkflowBurst},
		ratelimit.EndpointDeleteWorkflow:  {RatePerSecond: rl.DeleteWorkflowRatePerSecond, Burst: rl.DeleteWorkflowBurst},
		ratelimit.EndpointReadWorkflow:    {RatePerSecond: rl.ReadWorkflowRatePerSecond, Burst: rl.ReadWorkflowBurst},
		ratelimit.EndpointReadExecution:   {RatePerSecond: rl.ReadExecutionRatePerSecond, Burst: rl.ReadExecutionBurst},
		ratelimit.EndpointCreateExecution: {RatePerSecond: rl.CreateExecutionRatePerSecond, Burst: rl.CreateExecutionBurst},
		ratelimit.EndpointDefault:         {RatePerSecond: rl.DefaultRatePerSecond, Burst: rl.DefaultBurst},
	}
	defaults := ratelimit.DefaultBuckets()
	for ep, bc := range cfg {
		if bc.RatePerSecond == 0 {
			bc.RatePerSecond = defaults[ep].RatePerSecond
		}
		if bc.Burst == 0 {
			bc.Burst = defaults[ep].Burst
		}
		cfg[ep] = bc
	}
	return cfg
}

// buildStore selects the Postgres-backed Shared Memory implementation
// when COPILOT_POSTGRES_URL is set, otherwise the in-memory one, which
// persists snapshots only when COPILOT_SNAPSHOT_PATH is set.
func buildStore() sharedmem.Store {
	if dsn := os.Getenv("COPILOT_POSTGRES_URL"); dsn != "" {
		store, err := sharedmem.NewPostgresStore(context.Background(), dsn)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect Postgres shared memory store")
		}
		log.Info().Msg("shared memory backed by Postgres")
		return store
	}
	opts := []sharedmem.MemoryOption{}
	if path := os.Getenv("COPILOT_SNAPSHOT_PATH"); path != "" {
		opts = append(opts, sharedmem.WithSnapshotPath(path))
	}
	return sharedmem.NewMemoryStore(opts...)
}

func apiKeys() []string {
	v := os.Getenv("COPILOT_API_KEYS")
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			keys = append(keys, p)
		}
	}
	return keys
}
