package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentoven/workflow-copilot/internal/catalog"
	"github.com/agentoven/workflow-copilot/internal/enginecli"
	"github.com/agentoven/workflow-copilot/internal/semantic"
	"github.com/agentoven/workflow-copilot/internal/wf"
	"github.com/google/uuid"
)

// layerPolicy is Layer 0: Node Restriction Policy. It inspects every
// node's declared type against the catalog's policy before anything else
// runs, so a disallowed node type is rejected even if the catalog has
// never seen it.
func layerPolicy(policy *catalog.Policy, raw map[string]any) []Error {
	nodesRaw, _ := raw["nodes"].([]any)
	var errs []Error
	for i, n := range nodesRaw {
		node, ok := n.(map[string]any)
		if !ok {
			continue
		}
		typeID, _ := node["type"].(string)
		if typeID == "" {
			continue
		}
		decision := policy.Evaluate(typeID)
		if !decision.Allowed {
			errs = append(errs, Error{
				Code:        CodeNodeNotAllowed,
				Layer:       "policy",
				Path:        fmt.Sprintf("nodes[%d].type", i),
				Message:     decision.Reason,
				Suggestions: decision.Suggestions,
			})
		}
	}
	return errs
}

// layerSchema is Layer 1: structural validation, delegated entirely to
// wf.ParseWorkflow — this layer owns the untyped-to-typed boundary.
func layerSchema(raw map[string]any) (*wf.Workflow, []Error, []Warning) {
	parsed := wf.ParseWorkflow(raw)
	var errs []Error
	for _, e := range parsed.Errors {
		errs = append(errs, Error{Code: CodeSchemaError, Layer: "schema", Path: e.Path, Message: e.Message})
	}
	var warns []Warning
	for _, w := range parsed.Warnings {
		warns = append(warns, Warning{Layer: "schema", Path: w.Path, Message: w.Message})
	}
	if len(errs) > 0 {
		return nil, errs, warns
	}
	return parsed.Workflow, nil, warns
}

// sentinelNodeTypes are Engine-internal node types that never appear in
// the introspectable catalog and are exempt from Layer 2 existence
// checks (§4.4 Layer 2).
var sentinelNodeTypes = map[string]bool{
	"pkg-base.noOp":  true,
	"pkg-base.start": true,
}

// layerExistence is Layer 2: every referenced node type must be present
// in the catalog. An empty catalog is reported as a cause-level warning,
// not as NODE_NOT_FOUND against every node.
func layerExistence(cat *catalog.Catalog, w *wf.Workflow) ([]Error, []Warning) {
	if cat.IsEmpty() {
		return nil, []Warning{{Layer: "existence", Message: "node catalog is empty, node-existence checks were skipped"}}
	}
	var errs []Error
	for _, n := range w.Nodes {
		if sentinelNodeTypes[n.Type] {
			continue
		}
		if _, ok := cat.Lookup(n.Type); ok {
			continue
		}
		errs = append(errs, Error{
			Code:        CodeNodeNotFound,
			Layer:       "existence",
			Path:        fmt.Sprintf("nodes[%s].type", n.Name),
			Message:     fmt.Sprintf("node type %q is not in the catalog", n.Type),
			Suggestions: cat.SuggestFor(n.Type, 3),
		})
	}
	return errs, nil
}

// layerConnections is Layer 3: every connection endpoint must resolve to
// a node that exists in the workflow, and every non-trigger node should
// be reachable from at least one connection.
func layerConnections(w *wf.Workflow) ([]Error, []Warning) {
	var errs []Error
	for sourceName, channels := range w.Connections {
		if _, ok := w.NodeByName(sourceName); !ok {
			errs = append(errs, Error{
				Code:    CodeConnectionSourceMissing,
				Layer:   "connections",
				Path:    fmt.Sprintf("connections[%s]", sourceName),
				Message: fmt.Sprintf("connection source %q does not reference a node in this workflow", sourceName),
			})
			continue
		}
		for channel, outputs := range channels {
			for outIdx, endpoints := range outputs {
				for epIdx, ep := range endpoints {
					if _, ok := w.NodeByName(ep.Node); !ok {
						errs = append(errs, Error{
							Code:  CodeConnectionTargetMissing,
							Layer: "connections",
							Path:  fmt.Sprintf("connections[%s][%s][%d][%d]", sourceName, channel, outIdx, epIdx),
							Message: fmt.Sprintf("connection target %q does not reference a node in this workflow",
								ep.Node),
						})
					}
				}
			}
		}
	}

	reachable := map[string]bool{}
	for sourceName, channels := range w.Connections {
		reachable[sourceName] = true
		for _, outputs := range channels {
			for _, endpoints := range outputs {
				for _, ep := range endpoints {
					reachable[ep.Node] = true
				}
			}
		}
	}
	var warns []Warning
	for _, n := range w.Nodes {
		if reachable[n.Name] || looksLikeEntryPoint(n) {
			continue
		}
		warns = append(warns, Warning{
			Layer:   "connections",
			Path:    fmt.Sprintf("nodes[%s]", n.Name),
			Message: fmt.Sprintf("node %q is not connected to any other node in the workflow", n.Name),
		})
	}
	return errs, warns
}

func looksLikeEntryPoint(n wf.Node) bool {
	lower := strings.ToLower(n.Type)
	return strings.Contains(lower, "trigger") || strings.Contains(lower, "webhook")
}

// layerCredentials is Layer 4: every node whose catalog entry declares
// required credential types must carry a credential reference for each.
// A required slot whose credential type isn't in the catalog is a
// CREDENTIAL_TYPE_UNKNOWN warning, not a blocking error (§4.4 Layer 4).
func layerCredentials(cat *catalog.Catalog, w *wf.Workflow) ([]Error, []Warning) {
	var errs []Error
	var warns []Warning
	for _, n := range w.Nodes {
		nt, ok := cat.Lookup(n.Type)
		if !ok {
			continue
		}
		for _, required := range nt.RequiredCredentials {
			if _, ok := cat.LookupCredential(required); !ok {
				warns = append(warns, Warning{
					Code:    CodeCredentialTypeUnknown,
					Layer:   "credentials",
					Path:    fmt.Sprintf("nodes[%s].credentials.%s", n.Name, required),
					Message: fmt.Sprintf("credential type %q required by node %q is not in the catalog", required, n.Name),
				})
				continue
			}
			if ref, has := n.Credentials[required]; !has || (ref.ID == "" && ref.Name == "") {
				errs = append(errs, Error{
					Code:    CodeCredentialMissing,
					Layer:   "credentials",
					Path:    fmt.Sprintf("nodes[%s].credentials.%s", n.Name, required),
					Message: fmt.Sprintf("node %q requires a %q credential", n.Name, required),
				})
			}
		}
	}
	return errs, warns
}

// layerSemantic is Layer 5: an optional logic-level review. A NoopAdvisor
// degrades this to a single skip warning rather than a silent pass.
func layerSemantic(ctx context.Context, advisor semantic.Advisor, raw map[string]any) ([]Error, []Warning) {
	if !semantic.Available(advisor) {
		return nil, []Warning{{Layer: "semantic", Message: "semantic check skipped, no advisor configured"}}
	}
	issues, err := advisor.AnalyzeWorkflowLogic(ctx, raw)
	if err != nil {
		return nil, []Warning{{Layer: "semantic", Message: fmt.Sprintf("semantic check failed: %v", err)}}
	}
	var errs []Error
	var warns []Warning
	for _, issue := range issues {
		if issue.Severity == "error" {
			errs = append(errs, Error{Code: CodeSemanticIssue, Layer: "semantic", Path: issue.Path, Message: issue.Message})
		} else {
			warns = append(warns, Warning{Layer: "semantic", Path: issue.Path, Message: issue.Message})
		}
	}
	return errs, warns
}

// layerDryRun is Layer 6: create the workflow under a throwaway name,
// confirm the Engine accepts it, then delete it. It is the only layer
// that talks to the Engine. A create rejection is a blocking
// DRY_RUN_ERROR; a cleanup-delete failure is a non-blocking
// CLEANUP_FAILED warning, since the dry-run itself already succeeded
// (§4.4 Layer 6).
func layerDryRun(ctx context.Context, engine *enginecli.Client, w *wf.Workflow) ([]Error, *Warning, string) {
	tempName := fmt.Sprintf("%s-dry-run-%s", w.Name, uuid.NewString())
	doc := map[string]any{
		"name":        tempName,
		"nodes":       w.Nodes,
		"connections": w.Connections,
		"settings":    w.Settings,
	}
	created, err := engine.CreateWorkflow(ctx, doc)
	if err != nil {
		return []Error{{Code: CodeDryRunError, Layer: "dry-run", Message: fmt.Sprintf("Engine rejected dry-run workflow: %v", err)}}, nil, ""
	}

	if err := engine.DeleteWorkflow(ctx, created.ID); err != nil {
		return nil, &Warning{
			Code:    CodeCleanupFailed,
			Layer:   "dry-run",
			Message: fmt.Sprintf("dry-run workflow %q could not be cleaned up: %v", created.ID, err),
		}, created.ID
	}
	return nil, nil, created.ID
}
