// Package coordinator owns the lifecycle of every core component (the
// Engine Client, the Node Catalog, Shared Memory, the Validation Gateway,
// and the Smart Execution Router) and exposes the stable,
// transport-agnostic operations a protocol adapter maps requests onto
// (§6 "Exposed Coordinator operations").
package coordinator

import (
	"context"
	"fmt"

	"github.com/agentoven/workflow-copilot/internal/catalog"
	"github.com/agentoven/workflow-copilot/internal/enginecli"
	"github.com/agentoven/workflow-copilot/internal/router"
	"github.com/agentoven/workflow-copilot/internal/sharedmem"
	"github.com/agentoven/workflow-copilot/internal/validation"
	"github.com/agentoven/workflow-copilot/internal/wf"
	"github.com/rs/zerolog/log"
)

// SubmitResult is the outcome of either submit operation: either the
// workflow was accepted (and, for SubmitWithDeploy, persisted to the
// Engine) or validation failed and Validation explains why.
type SubmitResult struct {
	OK         bool
	WorkflowID string
	Validation validation.Result
}

// Coordinator is the single entry point every protocol adapter (HTTP,
// gRPC, an in-process caller) drives.
type Coordinator struct {
	engine  *enginecli.Client
	catalog *catalog.Catalog
	store   sharedmem.Store
	gateway *validation.Gateway
	router  *router.Router
}

// New wires a Coordinator from its already-constructed components. It
// does not start the catalog's background refresh loop; call Start for
// that.
func New(engine *enginecli.Client, cat *catalog.Catalog, store sharedmem.Store, gateway *validation.Gateway, rtr *router.Router) *Coordinator {
	return &Coordinator{engine: engine, catalog: cat, store: store, gateway: gateway, router: rtr}
}

// Start begins background work (the catalog refresh loop).
func (c *Coordinator) Start(ctx context.Context) {
	c.catalog.Start(ctx)
}

// Shutdown stops all background work owned by the Coordinator.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.catalog.Stop()
	return c.store.Close()
}

// SubmitForValidationOnly runs raw through the validation gateway without
// ever contacting the Engine to persist it.
func (c *Coordinator) SubmitForValidationOnly(ctx context.Context, raw map[string]any, opts validation.Options) SubmitResult {
	result := c.gateway.Validate(ctx, raw, opts)
	return SubmitResult{OK: result.Valid, Validation: result}
}

// SubmitWithDeploy validates raw and, only if it passes, creates it on the
// Engine.
func (c *Coordinator) SubmitWithDeploy(ctx context.Context, raw map[string]any, opts validation.Options) (SubmitResult, error) {
	result := c.gateway.Validate(ctx, raw, opts)
	if !result.Valid {
		return SubmitResult{OK: false, Validation: result}, nil
	}
	if c.engine == nil {
		return SubmitResult{}, fmt.Errorf("no Engine configured, cannot deploy")
	}
	created, err := c.engine.CreateWorkflow(ctx, raw)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("deploy workflow: %w", err)
	}
	return SubmitResult{OK: true, WorkflowID: created.ID, Validation: result}, nil
}

// GetWorkflow fetches a workflow by id from the Engine.
func (c *Coordinator) GetWorkflow(ctx context.Context, id string) (*wf.Workflow, error) {
	return c.engine.GetWorkflow(ctx, id)
}

// DeleteWorkflow removes a workflow from the Engine.
func (c *Coordinator) DeleteWorkflow(ctx context.Context, id string) error {
	return c.engine.DeleteWorkflow(ctx, id)
}

// ListWorkflows lists workflows known to the Engine.
func (c *Coordinator) ListWorkflows(ctx context.Context, filters enginecli.ListFilters) ([]wf.Workflow, error) {
	return c.engine.ListWorkflows(ctx, filters)
}

// ActivateWorkflow marks a workflow active.
func (c *Coordinator) ActivateWorkflow(ctx context.Context, id string) error {
	return c.engine.SetActive(ctx, id, true)
}

// DeactivateWorkflow marks a workflow inactive.
func (c *Coordinator) DeactivateWorkflow(ctx context.Context, id string) error {
	return c.engine.SetActive(ctx, id, false)
}

// TriggerExecution starts a run of workflow id. It records nothing in the
// router's history; the outcome is reported via RecordExecutionOutcome.
func (c *Coordinator) TriggerExecution(ctx context.Context, id string, data map[string]any) (*enginecli.Execution, error) {
	return c.engine.Run(ctx, id, data)
}

// RecordExecutionOutcome feeds an execution result back into the router's
// success-rate history. Callers observing an execution's terminal status
// (via polling or a webhook) report it here.
func (c *Coordinator) RecordExecutionOutcome(ctx context.Context, path router.Path, success bool, latencyMs int64) {
	if err := c.router.RecordOutcome(ctx, path, success, latencyMs); err != nil {
		log.Warn().Err(err).Msg("failed to record execution outcome")
	}
}

// GetExecution fetches one execution's status and (optionally) its data.
func (c *Coordinator) GetExecution(ctx context.Context, id string, includeData bool) (*enginecli.Execution, error) {
	return c.engine.GetExecution(ctx, id, includeData)
}

// ListExecutions lists executions known to the Engine.
func (c *Coordinator) ListExecutions(ctx context.Context, filters enginecli.ListFilters) ([]enginecli.Execution, error) {
	return c.engine.ListExecutions(ctx, filters)
}

// StopExecution cancels a running execution.
func (c *Coordinator) StopExecution(ctx context.Context, id string) error {
	return c.engine.StopExecution(ctx, id)
}

// ForceCatalogResync runs the acquisition ladder immediately, bypassing
// the scheduled refresh tick.
func (c *Coordinator) ForceCatalogResync(ctx context.Context) error {
	return c.catalog.Refresh(ctx)
}

// GetStatistics returns the current catalog statistics.
func (c *Coordinator) GetStatistics() catalog.Stats {
	return c.catalog.Stats()
}

// GetRouterStatistics returns the router's aggregate success/latency view.
func (c *Coordinator) GetRouterStatistics(ctx context.Context) (router.Statistics, error) {
	return c.router.Statistics(ctx)
}

// Decide exposes the router's path decision for a classified request, so
// an adapter can route a single incoming task without duplicating the
// router's arbitration logic.
func (c *Coordinator) Decide(ctx context.Context, goal string, hasWorkflow bool, force *router.Path) (router.Decision, error) {
	class := router.Classify(goal, hasWorkflow)
	return c.router.Decide(ctx, class, force)
}
