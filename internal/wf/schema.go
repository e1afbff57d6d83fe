package wf

import (
	"fmt"
	"strings"
)

// StructuralError is one blocking defect found while converting untyped
// input into the canonical Workflow shape.
type StructuralError struct {
	Path    string
	Message string
}

// StructuralWarning is a non-blocking observation about the shape of the
// submitted document.
type StructuralWarning struct {
	Path    string
	Message string
}

// ParseResult is the outcome of converting untyped agent input into the
// canonical Workflow. Errors are non-empty exactly when Workflow is nil.
type ParseResult struct {
	Workflow *Workflow
	Errors   []StructuralError
	Warnings []StructuralWarning
}

// ParseWorkflow is the sole untyped-to-typed boundary in the pipeline
// (§9 design note on "any"-typed documents). It accepts the loosely typed
// shape an agent is likely to submit — JSON decoded into map[string]any —
// and either produces a canonical Workflow or a list of structural errors.
func ParseWorkflow(raw map[string]any) ParseResult {
	var errs []StructuralError
	var warns []StructuralWarning

	name, _ := raw["name"].(string)
	if name == "" {
		errs = append(errs, StructuralError{Path: "name", Message: "workflow name is required"})
	}

	rawNodes, _ := raw["nodes"].([]any)
	if len(rawNodes) == 0 {
		errs = append(errs, StructuralError{Path: "nodes", Message: "workflow must contain at least one node"})
	}

	nodes := make([]Node, 0, len(rawNodes))
	seenNames := map[string]bool{}
	for i, rn := range rawNodes {
		rm, ok := rn.(map[string]any)
		if !ok {
			errs = append(errs, StructuralError{Path: fmt.Sprintf("nodes[%d]", i), Message: "node must be an object"})
			continue
		}
		n, nodeErrs := parseNode(i, rm)
		errs = append(errs, nodeErrs...)
		if n.Name != "" {
			if seenNames[n.Name] {
				errs = append(errs, StructuralError{
					Path:    fmt.Sprintf("nodes[%d].name", i),
					Message: fmt.Sprintf("duplicate node name %q", n.Name),
				})
			}
			seenNames[n.Name] = true
		}
		nodes = append(nodes, n)
	}

	connections, connErrs := parseConnections(raw["connections"])
	errs = append(errs, connErrs...)

	settings, settingsErrs := parseSettings(raw["settings"])
	errs = append(errs, settingsErrs...)

	if len(errs) > 0 {
		return ParseResult{Errors: errs, Warnings: warns}
	}

	w := &Workflow{
		Name:        name,
		Nodes:       nodes,
		Connections: connections,
		Settings:    settings,
	}
	if active, ok := raw["active"].(bool); ok {
		w.Active = active
	}
	if id, ok := raw["id"].(string); ok {
		w.ID = id
	}
	if tags, ok := raw["tags"].([]any); ok {
		for _, t := range tags {
			if s, ok := t.(string); ok {
				w.Tags = append(w.Tags, s)
			}
		}
	}
	if sd, ok := raw["staticData"].(map[string]any); ok {
		w.StaticData = sd
	}
	if pd, ok := raw["pinData"].(map[string]any); ok {
		w.PinData = pd
	}

	warns = append(warns, structuralWarnings(w)...)

	return ParseResult{Workflow: w, Warnings: warns}
}

func parseNode(index int, rm map[string]any) (Node, []StructuralError) {
	var errs []StructuralError
	path := fmt.Sprintf("nodes[%d]", index)

	name, _ := rm["name"].(string)
	if name == "" {
		errs = append(errs, StructuralError{Path: path + ".name", Message: "node name is required"})
	}
	typ, _ := rm["type"].(string)
	if typ == "" {
		errs = append(errs, StructuralError{Path: path + ".type", Message: "node type is required"})
	}

	n := Node{Name: name, Type: typ}
	if tv, ok := rm["typeVersion"].(float64); ok {
		n.TypeVersion = tv
	}
	if id, ok := rm["id"].(string); ok {
		n.ID = id
	}
	if disabled, ok := rm["disabled"].(bool); ok {
		n.Disabled = disabled
	}
	if v, ok := rm["retryOnFail"].(bool); ok {
		n.RetryOnFail = v
	}
	if v, ok := rm["continueOnFail"].(bool); ok {
		n.ContinueOnFail = v
	}
	if v, ok := rm["executeOnce"].(bool); ok {
		n.ExecuteOnce = v
	}
	if params, ok := rm["parameters"].(map[string]any); ok {
		n.Parameters = params
	}

	pos, posErr := parsePosition(rm["position"])
	if posErr != "" {
		errs = append(errs, StructuralError{Path: path + ".position", Message: posErr})
	} else {
		n.Position = pos
	}

	if rawCreds, ok := rm["credentials"].(map[string]any); ok {
		n.Credentials = map[string]CredentialRef{}
		for slot, v := range rawCreds {
			switch cv := v.(type) {
			case string:
				n.Credentials[slot] = CredentialRef{ID: cv}
			case map[string]any:
				ref := CredentialRef{}
				if id, ok := cv["id"].(string); ok {
					ref.ID = id
				}
				if name, ok := cv["name"].(string); ok {
					ref.Name = name
				}
				n.Credentials[slot] = ref
			}
		}
	}

	return n, errs
}

// parsePosition accepts either a [x, y] tuple or a {x, y} object. Absence
// is not an error — position is optional per §3.
func parsePosition(raw any) (Position, string) {
	if raw == nil {
		return Position{}, ""
	}
	switch v := raw.(type) {
	case []any:
		if len(v) != 2 {
			return Position{}, "position tuple must have exactly 2 elements"
		}
		x, xok := v[0].(float64)
		y, yok := v[1].(float64)
		if !xok || !yok {
			return Position{}, "position tuple elements must be numbers"
		}
		return Position{X: x, Y: y}, ""
	case map[string]any:
		x, xok := v["x"].(float64)
		y, yok := v["y"].(float64)
		if !xok || !yok {
			return Position{}, "position object requires numeric x and y"
		}
		return Position{X: x, Y: y}, ""
	default:
		return Position{}, "position must be a [x,y] tuple or {x,y} object"
	}
}

func parseConnections(raw any) (ConnectionSet, []StructuralError) {
	if raw == nil {
		return nil, nil
	}
	rm, ok := raw.(map[string]any)
	if !ok {
		return nil, []StructuralError{{Path: "connections", Message: "connections must be an object keyed by source node name"}}
	}

	var errs []StructuralError
	out := ConnectionSet{}
	for source, byChannelRaw := range rm {
		channels, ok := byChannelRaw.(map[string]any)
		if !ok {
			errs = append(errs, StructuralError{Path: "connections." + source, Message: "must be an object keyed by channel"})
			continue
		}
		out[source] = map[Channel][][]ConnectionEndpoint{}
		for chanKey, byIndexRaw := range channels {
			ch := Channel(chanKey)
			if !IsValidChannel(ch) {
				errs = append(errs, StructuralError{
					Path:    fmt.Sprintf("connections.%s.%s", source, chanKey),
					Message: fmt.Sprintf("unknown connection channel %q", chanKey),
				})
				continue
			}
			byIndex, ok := byIndexRaw.([]any)
			if !ok {
				errs = append(errs, StructuralError{
					Path:    fmt.Sprintf("connections.%s.%s", source, chanKey),
					Message: "channel value must be a list of lists of endpoints",
				})
				continue
			}
			var outputs [][]ConnectionEndpoint
			for i, endpointsRaw := range byIndex {
				endpointList, ok := endpointsRaw.([]any)
				if !ok {
					errs = append(errs, StructuralError{
						Path:    fmt.Sprintf("connections.%s.%s[%d]", source, chanKey, i),
						Message: "expected a list of endpoints",
					})
					continue
				}
				var endpoints []ConnectionEndpoint
				for j, epRaw := range endpointList {
					epMap, ok := epRaw.(map[string]any)
					if !ok {
						errs = append(errs, StructuralError{
							Path:    fmt.Sprintf("connections.%s.%s[%d][%d]", source, chanKey, i, j),
							Message: "endpoint must be an object with a 'node' field",
						})
						continue
					}
					ep := ConnectionEndpoint{Type: ChannelMain}
					if n, ok := epMap["node"].(string); ok {
						ep.Node = n
					} else {
						errs = append(errs, StructuralError{
							Path:    fmt.Sprintf("connections.%s.%s[%d][%d].node", source, chanKey, i, j),
							Message: "endpoint requires a 'node' field",
						})
						continue
					}
					if t, ok := epMap["type"].(string); ok && t != "" {
						ep.Type = Channel(t)
					}
					if idx, ok := epMap["index"].(float64); ok {
						ep.Index = int(idx)
					}
					endpoints = append(endpoints, ep)
				}
				outputs = append(outputs, endpoints)
			}
			out[source][ch] = outputs
		}
	}
	return out, errs
}

var validExecOrderStrings = map[string]bool{"v0": true, "v1": true, "": true}

func parseSettings(raw any) (Settings, []StructuralError) {
	if raw == nil {
		return Settings{}, nil
	}
	rm, ok := raw.(map[string]any)
	if !ok {
		return Settings{}, []StructuralError{{Path: "settings", Message: "settings must be an object"}}
	}
	var s Settings
	var errs []StructuralError
	if eo, ok := rm["executionOrder"].(string); ok {
		if !validExecOrderStrings[eo] {
			errs = append(errs, StructuralError{Path: "settings.executionOrder", Message: fmt.Sprintf("unknown executionOrder %q", eo)})
		} else {
			s.ExecutionOrder = ExecutionOrder(eo)
		}
	}
	if tz, ok := rm["timezone"].(string); ok {
		s.Timezone = tz
	}
	if ew, ok := rm["errorWorkflow"].(string); ok {
		s.ErrorWorkflow = ew
	}
	if t, ok := rm["executionTimeout"].(float64); ok {
		s.TimeoutSeconds = int(t)
	}
	if smr, ok := rm["saveManualExecutions"].(bool); ok {
		s.SaveManualRuns = smr
	}
	return s, errs
}

// structuralWarnings computes the two non-blocking observations §4.3 names:
// no trigger-like node present, and only one non-webhook node.
func structuralWarnings(w *Workflow) []StructuralWarning {
	var warns []StructuralWarning

	hasTrigger := false
	nonWebhookCount := 0
	for _, n := range w.Nodes {
		if looksLikeTrigger(n.Type) {
			hasTrigger = true
		}
		if !looksLikeWebhook(n.Type) {
			nonWebhookCount++
		}
	}
	if !hasTrigger {
		warns = append(warns, StructuralWarning{Path: "nodes", Message: "no node looks like a trigger"})
	}
	if nonWebhookCount == 1 {
		warns = append(warns, StructuralWarning{Path: "nodes", Message: "only one non-webhook node"})
	}
	return warns
}

func looksLikeTrigger(nodeType string) bool {
	return strings.Contains(strings.ToLower(nodeType), "trigger") || strings.Contains(strings.ToLower(nodeType), "webhook")
}

func looksLikeWebhook(nodeType string) bool {
	return strings.Contains(strings.ToLower(nodeType), "webhook")
}
