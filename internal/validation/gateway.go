package validation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentoven/workflow-copilot/internal/catalog"
	"github.com/agentoven/workflow-copilot/internal/enginecli"
	"github.com/agentoven/workflow-copilot/internal/semantic"
	"github.com/agentoven/workflow-copilot/internal/sharedmem"
	"github.com/agentoven/workflow-copilot/internal/telemetry"
	"github.com/agentoven/workflow-copilot/internal/wf"
	"github.com/rs/zerolog/log"
)

// Config tunes which optional layers run and how long the whole pipeline
// is allowed to take (§6 "Configuration").
type Config struct {
	DryRunEnabled      bool
	SemanticEnabled    bool
	StrictMode         bool
	Deadline           time.Duration
	CacheTTL           time.Duration
}

func (c Config) withDefaults() Config {
	if c.Deadline <= 0 {
		c.Deadline = 60 * time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = sharedmem.ValidationCacheTTL
	}
	return c
}

// Gateway runs a workflow document through every validation layer in
// order, stopping at the first layer that produces a blocking error
// (§4.4).
type Gateway struct {
	catalog *catalog.Catalog
	store   sharedmem.Store
	engine  *enginecli.Client
	advisor semantic.Advisor
	cfg     Config
}

// New builds a Gateway. advisor may be semantic.NoopAdvisor{} when no
// semantic backend is configured.
func New(cat *catalog.Catalog, store sharedmem.Store, engine *enginecli.Client, advisor semantic.Advisor, cfg Config) *Gateway {
	if advisor == nil {
		advisor = semantic.NoopAdvisor{}
	}
	return &Gateway{catalog: cat, store: store, engine: engine, advisor: advisor, cfg: cfg.withDefaults()}
}

// Validate runs raw through the full gateway. opts overrides the
// Gateway's defaults for this call only.
func (g *Gateway) Validate(ctx context.Context, raw map[string]any, opts Options) Result {
	ctx, span := telemetry.Tracer().Start(ctx, "validation.Validate")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Deadline)
	defer cancel()

	cacheKey := g.cacheKey(raw)
	if !opts.SkipCache {
		if entry, ok, err := g.store.Get(ctx, cacheKey); err == nil && ok {
			cached, ok := entry.Value.(Result)
			if !ok {
				// Persistent stores hand values back JSON-decoded.
				raw, err := json.Marshal(entry.Value)
				ok = err == nil && json.Unmarshal(raw, &cached) == nil
			}
			if ok {
				cached.CacheHit = true
				return cached
			}
		}
	}

	result := g.run(ctx, raw, opts)
	if !opts.SkipCache {
		if err := g.store.Set(ctx, cacheKey, result, "validation-gateway", g.cfg.CacheTTL); err != nil {
			log.Warn().Err(err).Msg("validation result cache write failed")
		}
	}
	return result
}

func (g *Gateway) run(ctx context.Context, raw map[string]any, opts Options) Result {
	start := time.Now()
	result := Result{Valid: true}
	done := func() Result {
		result.ElapsedMs = time.Since(start).Milliseconds()
		return result
	}

	if errs := layerPolicy(g.catalog.Policy(), raw); len(errs) > 0 {
		result.Errors = errs
		result.Valid = false
		result.StoppedAt = "policy"
		return done()
	}
	result.PassedLayers = append(result.PassedLayers, "policy")

	workflow, errs, warns := layerSchema(raw)
	result.Warnings = append(result.Warnings, warns...)
	if len(errs) > 0 {
		result.Errors = errs
		result.Valid = false
		result.StoppedAt = "schema"
		return done()
	}
	result.Workflow = workflow
	result.PassedLayers = append(result.PassedLayers, "schema")

	if errs, warns := layerExistence(g.catalog, workflow); len(errs) > 0 {
		result.Errors = errs
		result.Warnings = append(result.Warnings, warns...)
		result.Valid = false
		result.StoppedAt = "existence"
		return done()
	} else {
		result.Warnings = append(result.Warnings, warns...)
	}
	result.PassedLayers = append(result.PassedLayers, "existence")

	if errs, warns := layerConnections(workflow); len(errs) > 0 {
		result.Errors = errs
		result.Warnings = append(result.Warnings, warns...)
		result.Valid = false
		result.StoppedAt = "connections"
		return done()
	} else {
		result.Warnings = append(result.Warnings, warns...)
	}
	result.PassedLayers = append(result.PassedLayers, "connections")

	if errs, warns := layerCredentials(g.catalog, workflow); len(errs) > 0 {
		result.Errors = errs
		result.Warnings = append(result.Warnings, warns...)
		result.Valid = false
		result.StoppedAt = "credentials"
		return done()
	} else {
		result.Warnings = append(result.Warnings, warns...)
	}
	result.PassedLayers = append(result.PassedLayers, "credentials")

	if opts.SemanticCheck || (g.cfg.SemanticEnabled && !opts.SkipCache) {
		errs, warns := layerSemantic(ctx, g.advisor, raw)
		result.Warnings = append(result.Warnings, warns...)
		if len(errs) > 0 {
			result.Errors = errs
			result.Valid = false
			result.StoppedAt = "semantic"
			return done()
		}
		result.PassedLayers = append(result.PassedLayers, "semantic")
	}

	runDryRun := opts.DryRun
	if !opts.DryRun && g.cfg.DryRunEnabled {
		runDryRun = true
	}
	if runDryRun && g.engine != nil {
		errs, cleanupWarn, dryRunID := layerDryRun(ctx, g.engine, workflow)
		if len(errs) > 0 {
			result.Errors = errs
			result.Valid = false
			result.StoppedAt = "dry-run"
			return done()
		}
		result.DryRunID = dryRunID
		if cleanupWarn != nil {
			result.Warnings = append(result.Warnings, *cleanupWarn)
		}
		result.PassedLayers = append(result.PassedLayers, "dry-run")
	}

	strict := opts.Strict || g.cfg.StrictMode
	if strict && len(result.Warnings) > 0 {
		for _, w := range result.Warnings {
			result.Errors = append(result.Errors, Error{Code: CodeValidationException, Layer: w.Layer, Path: w.Path, Message: w.Message})
		}
		result.Valid = false
		result.StoppedAt = "strict-mode"
	}

	return done()
}

// cacheKey derives a stable cache key from the workflow's structural
// fingerprint when it parses cleanly, falling back to a hash of the raw
// payload otherwise so malformed documents still get a cache key
// instead of bypassing the cache entirely.
func (g *Gateway) cacheKey(raw map[string]any) string {
	parsed := schemaOnlyParse(raw)
	if parsed != nil {
		return "validation-cache:" + strings.Join(parsed.Fingerprint(), "|")
	}
	h := sha256.Sum256([]byte(rawDigestInput(raw)))
	return "validation-cache:raw:" + hex.EncodeToString(h[:])
}

// schemaOnlyParse returns the parsed workflow, or nil if raw fails
// structural validation.
func schemaOnlyParse(raw map[string]any) *wf.Workflow {
	parsed := wf.ParseWorkflow(raw)
	if len(parsed.Errors) > 0 {
		return nil
	}
	return parsed.Workflow
}

// rawDigestInput renders raw deterministically enough for a cache-key
// hash; malformed documents only need a stable key, not a canonical one.
func rawDigestInput(raw map[string]any) string {
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Sprintf("%v", raw)
	}
	return string(b)
}
