// Package router implements the Smart Execution Router: given a
// classified request, it decides whether the agent path or the
// deterministic handler path should execute it, using recent per-path
// success-rate history once enough samples exist (§4.6).
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/agentoven/workflow-copilot/internal/sharedmem"
	"github.com/google/uuid"
)

// Classification is the coarse shape of an incoming request, derived from
// whether it carries a natural-language goal, an explicit workflow
// document, both, or neither.
type Classification string

const (
	ClassGoalOnly     Classification = "goal-only"
	ClassWorkflowOnly Classification = "workflow-only"
	ClassBoth         Classification = "both"
	ClassUnknown      Classification = "unknown"
)

// Classify derives a Classification from the presence of a goal string
// and/or a workflow document.
func Classify(goal string, hasWorkflow bool) Classification {
	switch {
	case goal != "" && hasWorkflow:
		return ClassBoth
	case goal != "" && !hasWorkflow:
		return ClassGoalOnly
	case goal == "" && hasWorkflow:
		return ClassWorkflowOnly
	default:
		return ClassUnknown
	}
}

// Path is one of the two execution strategies the router arbitrates
// between.
type Path string

const (
	PathAgent   Path = "agent"
	PathHandler Path = "handler"
)

// Decision is the router's verdict for a single request.
type Decision struct {
	Path       Path
	Confidence float64
	Reason     string
}

// Metric is one recorded execution outcome, persisted to shared memory so
// the router's history survives process restarts within its retention
// window.
type Metric struct {
	Path      Path      `json:"path"`
	Success   bool      `json:"success"`
	LatencyMs int64     `json:"latencyMs"`
	At        time.Time `json:"at"`
}

const metricKeyPrefix = "execution-metrics:"

// Router arbitrates between the agent and handler execution paths.
type Router struct {
	store           sharedmem.Store
	minHistorySize  int
	metricRetention time.Duration
}

// New builds a Router. minHistorySize defaults to 5 and metricRetention
// to 30 days when zero-valued (§6 "Configuration").
func New(store sharedmem.Store, minHistorySize int, metricRetention time.Duration) *Router {
	if minHistorySize <= 0 {
		minHistorySize = 5
	}
	if metricRetention <= 0 {
		metricRetention = sharedmem.ExecutionMetricTTL
	}
	return &Router{store: store, minHistorySize: minHistorySize, metricRetention: metricRetention}
}

// Decide chooses an execution path for a classified request. force, when
// non-nil, bypasses classification and history-based reasoning entirely
// and is echoed back at full confidence. Only ClassBoth is
// history-dependent: goal-only and workflow-only requests are
// unconditionally deterministic, and an unknown request always leans on
// the agent path at low confidence (§4.6 "Decision rules").
func (r *Router) Decide(ctx context.Context, class Classification, force *Path) (Decision, error) {
	if force != nil {
		return Decision{Path: *force, Confidence: 1.0, Reason: "caller forced path"}, nil
	}

	switch class {
	case ClassGoalOnly:
		return Decision{Path: PathAgent, Confidence: 1.0, Reason: "goal-only request"}, nil
	case ClassWorkflowOnly:
		return Decision{Path: PathHandler, Confidence: 1.0, Reason: "workflow-only request"}, nil
	case ClassUnknown:
		return Decision{Path: PathAgent, Confidence: 0.2, Reason: "unknown request shape"}, nil
	}

	history, err := r.history(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("load execution history: %w", err)
	}

	agentStats := summarize(history, PathAgent)
	handlerStats := summarize(history, PathHandler)

	if agentStats.count >= r.minHistorySize && handlerStats.count >= r.minHistorySize {
		delta := agentStats.successRate - handlerStats.successRate
		confidence := clampConfidence(math.Abs(delta) + 0.5)
		if delta >= 0 {
			return Decision{Path: PathAgent, Confidence: confidence, Reason: "higher recent success rate"}, nil
		}
		return Decision{Path: PathHandler, Confidence: confidence, Reason: "higher recent success rate"}, nil
	}

	return Decision{Path: PathAgent, Confidence: 0.5, Reason: "insufficient history"}, nil
}

func clampConfidence(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	return v
}

// RecordOutcome persists one execution outcome for future Decide calls.
func (r *Router) RecordOutcome(ctx context.Context, path Path, success bool, latencyMs int64) error {
	m := Metric{Path: path, Success: success, LatencyMs: latencyMs, At: time.Now()}
	key := fmt.Sprintf("%s%d:%s", metricKeyPrefix, m.At.UnixNano(), uuid.NewString())
	return r.store.Set(ctx, key, m, "router", r.metricRetention)
}

func (r *Router) history(ctx context.Context) ([]Metric, error) {
	entries, err := r.store.Query(ctx, metricKeyPrefix+"%")
	if err != nil {
		return nil, err
	}
	metrics := make([]Metric, 0, len(entries))
	for _, e := range entries {
		if m, ok := e.Value.(Metric); ok {
			metrics = append(metrics, m)
			continue
		}
		// Persistent stores (Postgres, a restored snapshot) hand values back
		// JSON-decoded rather than as a Metric.
		var m Metric
		if raw, err := json.Marshal(e.Value); err == nil && json.Unmarshal(raw, &m) == nil && m.Path != "" {
			metrics = append(metrics, m)
		}
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].At.Before(metrics[j].At) })
	return metrics, nil
}

type pathStats struct {
	count       int
	successRate float64
	avgLatency  float64
}

func summarize(history []Metric, path Path) pathStats {
	var count, successes int
	var totalLatency int64
	for _, m := range history {
		if m.Path != path {
			continue
		}
		count++
		if m.Success {
			successes++
		}
		totalLatency += m.LatencyMs
	}
	stats := pathStats{count: count}
	if count > 0 {
		stats.successRate = float64(successes) / float64(count)
		stats.avgLatency = float64(totalLatency) / float64(count)
	}
	return stats
}

// Statistics summarizes router behavior across both paths (§6 "get router
// statistics").
type Statistics struct {
	TotalExecutions      int
	AgentSuccessRate     float64
	AgentAvgLatencyMs    float64
	HandlerSuccessRate   float64
	HandlerAvgLatencyMs  float64
	PreferredPath        Path
}

// Statistics computes the current aggregate view over retained history.
func (r *Router) Statistics(ctx context.Context) (Statistics, error) {
	history, err := r.history(ctx)
	if err != nil {
		return Statistics{}, fmt.Errorf("load execution history: %w", err)
	}
	agentStats := summarize(history, PathAgent)
	handlerStats := summarize(history, PathHandler)

	preferred := PathHandler
	if agentStats.successRate > handlerStats.successRate {
		preferred = PathAgent
	}

	return Statistics{
		TotalExecutions:     len(history),
		AgentSuccessRate:    agentStats.successRate,
		AgentAvgLatencyMs:   agentStats.avgLatency,
		HandlerSuccessRate:  handlerStats.successRate,
		HandlerAvgLatencyMs: handlerStats.avgLatency,
		PreferredPath:       preferred,
	}, nil
}
