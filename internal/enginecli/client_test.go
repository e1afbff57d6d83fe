package enginecli_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agentoven/workflow-copilot/internal/enginecli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *enginecli.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return enginecli.New(enginecli.Config{BaseURL: server.URL, APIKey: "test-key"}, nil)
}

func TestClient_CreateWorkflowDecodesCanonicalShape(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":   "wf-1",
			"name": "demo",
			"nodes": []map[string]any{
				{"id": "1", "name": "Webhook", "type": "pkg-base.webhookTrigger"},
			},
		})
	})

	wf, err := c.CreateWorkflow(t.Context(), map[string]any{"name": "demo"})
	require.NoError(t, err)
	assert.Equal(t, "wf-1", wf.ID)
	assert.Len(t, wf.Nodes, 1)
}

func TestClient_GetWorkflowNotFoundMapsToKindNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"not found"}`))
	})

	_, err := c.GetWorkflow(t.Context(), "missing")
	require.Error(t, err)
	var apiErr *enginecli.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, enginecli.KindNotFound, apiErr.Kind)
	assert.False(t, apiErr.Retryable)
}

func TestClient_RateLimitedResponseCapturesRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)
	c := enginecli.New(enginecli.Config{BaseURL: server.URL, APIKey: "test-key", MaxRetryElapsed: 1500 * time.Millisecond}, nil)

	_, err := c.GetWorkflow(t.Context(), "any")
	require.Error(t, err)
	var apiErr *enginecli.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, enginecli.KindRateLimited, apiErr.Kind)
	assert.True(t, apiErr.Retryable)
	assert.Equal(t, 1, apiErr.RetryAfter)
}

func TestClient_EstablishSessionNoCredentialsIsNotAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not contact the Engine when no session credentials are configured")
	})

	ok, err := c.EstablishSession(t.Context())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_UpdateWorkflowFallsBackToPatchOn405(t *testing.T) {
	var methods []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		if r.Method == http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "wf-1", "name": "demo", "nodes": []map[string]any{
				{"id": "n1", "name": "Webhook", "type": "pkg-base.webhookTrigger"},
			},
		})
	})

	_, err := c.UpdateWorkflow(t.Context(), "wf-1", map[string]any{"name": "demo"})
	require.NoError(t, err)
	assert.Equal(t, []string{http.MethodPut, http.MethodPatch}, methods)
}

func TestClient_ScanWorkflowsForTypesCollectsHighestTypeVersion(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/workflows":
			calls++
			if calls == 1 {
				_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{{"id": "1", "name": "a", "nodes": []map[string]any{{"id": "n1", "name": "Set", "type": "pkg-base.set"}}}}})
			} else {
				_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{}})
			}
		case r.URL.Path == "/workflows/1":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": "1", "name": "a",
				"nodes": []map[string]any{
					{"id": "n1", "name": "Set", "type": "pkg-base.set", "typeVersion": 2},
				},
			})
		}
	})

	pairs, err := c.ScanWorkflowsForTypes(t.Context(), 250)
	require.NoError(t, err)
	assert.Equal(t, 2.0, pairs["pkg-base.set"])
}
