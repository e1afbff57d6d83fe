package wf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWorkflow_Minimal(t *testing.T) {
	raw := map[string]any{
		"name": "demo",
		"nodes": []any{
			map[string]any{"name": "Start", "type": "pkg-base.start"},
		},
	}
	res := ParseWorkflow(raw)
	require.Empty(t, res.Errors)
	require.NotNil(t, res.Workflow)
	assert.Equal(t, "demo", res.Workflow.Name)
	assert.Len(t, res.Workflow.Nodes, 1)
}

func TestParseWorkflow_DuplicateNodeNameIsRejected(t *testing.T) {
	raw := map[string]any{
		"name": "demo",
		"nodes": []any{
			map[string]any{"name": "A", "type": "pkg-base.start"},
			map[string]any{"name": "A", "type": "pkg-base.set"},
		},
	}
	res := ParseWorkflow(raw)
	require.Nil(t, res.Workflow)
	found := false
	for _, e := range res.Errors {
		if e.Message == `duplicate node name "A"` {
			found = true
		}
	}
	assert.True(t, found, "expected a duplicate node name structural error")
}

func TestParseWorkflow_MissingNameAndNodes(t *testing.T) {
	res := ParseWorkflow(map[string]any{})
	require.Nil(t, res.Workflow)
	assert.Len(t, res.Errors, 2)
}

func TestParseWorkflow_PositionTuple(t *testing.T) {
	raw := map[string]any{
		"name": "demo",
		"nodes": []any{
			map[string]any{"name": "A", "type": "t", "position": []any{float64(10), float64(20)}},
		},
	}
	res := ParseWorkflow(raw)
	require.Empty(t, res.Errors)
	assert.Equal(t, Position{X: 10, Y: 20}, res.Workflow.Nodes[0].Position)
}

func TestParseWorkflow_PositionObject(t *testing.T) {
	raw := map[string]any{
		"name": "demo",
		"nodes": []any{
			map[string]any{"name": "A", "type": "t", "position": map[string]any{"x": float64(1), "y": float64(2)}},
		},
	}
	res := ParseWorkflow(raw)
	require.Empty(t, res.Errors)
	assert.Equal(t, Position{X: 1, Y: 2}, res.Workflow.Nodes[0].Position)
}

func TestParseWorkflow_InvalidPosition(t *testing.T) {
	raw := map[string]any{
		"name": "demo",
		"nodes": []any{
			map[string]any{"name": "A", "type": "t", "position": "bogus"},
		},
	}
	res := ParseWorkflow(raw)
	require.NotEmpty(t, res.Errors)
}

func TestParseWorkflow_UnknownChannel(t *testing.T) {
	raw := map[string]any{
		"name": "demo",
		"nodes": []any{
			map[string]any{"name": "A", "type": "t"},
			map[string]any{"name": "B", "type": "t"},
		},
		"connections": map[string]any{
			"A": map[string]any{
				"not_a_channel": []any{
					[]any{map[string]any{"node": "B"}},
				},
			},
		},
	}
	res := ParseWorkflow(raw)
	require.NotEmpty(t, res.Errors)
}

func TestParseWorkflow_ExecutionOrderInvalid(t *testing.T) {
	raw := map[string]any{
		"name": "demo",
		"nodes": []any{
			map[string]any{"name": "A", "type": "t"},
		},
		"settings": map[string]any{"executionOrder": "v999"},
	}
	res := ParseWorkflow(raw)
	require.NotEmpty(t, res.Errors)
}

func TestParseWorkflow_NoTriggerWarning(t *testing.T) {
	raw := map[string]any{
		"name": "demo",
		"nodes": []any{
			map[string]any{"name": "A", "type": "pkg-base.set"},
			map[string]any{"name": "B", "type": "pkg-base.set"},
		},
	}
	res := ParseWorkflow(raw)
	require.Empty(t, res.Errors)
	found := false
	for _, w := range res.Warnings {
		if w.Message == "no node looks like a trigger" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestWorkflowFingerprint_IgnoresParameters(t *testing.T) {
	w1 := &Workflow{Name: "a", Nodes: []Node{{Name: "A", Type: "t", Parameters: map[string]any{"x": 1}}}}
	w2 := &Workflow{Name: "a", Nodes: []Node{{Name: "A", Type: "t", Parameters: map[string]any{"x": 2}}}}
	assert.Equal(t, w1.Fingerprint(), w2.Fingerprint())
}
