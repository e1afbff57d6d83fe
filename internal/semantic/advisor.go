// Package semantic defines the narrow, optional interface Layer 5 of the
// validation gateway consumes for logic-level workflow review (§4.7). A
// deployment that has no semantic backend wires NoopAdvisor and the layer
// degrades to "skipped with warning" rather than failing.
package semantic

import "context"

// Issue is one semantic-level observation about a workflow that structural
// validation cannot express (e.g. "this branch can never fire").
type Issue struct {
	Path     string
	Message  string
	Severity string // "info", "warning", "error"
}

// Advisor is the interface the validation gateway depends on. Only
// AnalyzeWorkflowLogic is required; a concrete advisor may additionally
// satisfy IntentParser, NodeRecommender, FixSuggester, or Embedder, each
// checked for separately via a type assertion where useful.
type Advisor interface {
	AnalyzeWorkflowLogic(ctx context.Context, workflow map[string]any) ([]Issue, error)
}

// IntentParser extracts a structured goal from free-form operator intent.
// Optional: advisors that don't implement it simply aren't consulted for
// goal classification hints.
type IntentParser interface {
	ParseIntent(ctx context.Context, text string) (map[string]any, error)
}

// NodeRecommender suggests node types likely to satisfy a described goal.
type NodeRecommender interface {
	RecommendNodes(ctx context.Context, goal string) ([]string, error)
}

// FixSuggester proposes a remediation for a reported Issue.
type FixSuggester interface {
	SuggestFix(ctx context.Context, issue Issue) (string, error)
}

// Embedder produces a vector embedding for similarity search over past
// workflows or issues.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NoopAdvisor is the default Advisor: it raises no issues and declines
// every optional capability. Layer 5 treats its empty result as "semantic
// review skipped", not as a clean bill of health.
type NoopAdvisor struct{}

// AnalyzeWorkflowLogic implements Advisor.
func (NoopAdvisor) AnalyzeWorkflowLogic(ctx context.Context, workflow map[string]any) ([]Issue, error) {
	return nil, nil
}

// Available reports whether a is a real advisor rather than a NoopAdvisor, the signal the gateway
// uses to emit a "semantic check skipped" warning instead of silently
// treating the empty result as a pass.
func Available(a Advisor) bool {
	_, isNoop := a.(NoopAdvisor)
	return !isNoop
}
