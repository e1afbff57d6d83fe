package coordinator_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agentoven/workflow-copilot/internal/catalog"
	"github.com/agentoven/workflow-copilot/internal/coordinator"
	"github.com/agentoven/workflow-copilot/internal/enginecli"
	"github.com/agentoven/workflow-copilot/internal/router"
	"github.com/agentoven/workflow-copilot/internal/semantic"
	"github.com/agentoven/workflow-copilot/internal/sharedmem"
	"github.com/agentoven/workflow-copilot/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct{}

func (fakeEngine) EstablishSession(ctx context.Context) (bool, error) { return false, nil }
func (fakeEngine) FetchNodeTypesSession(ctx context.Context) ([]map[string]any, error) {
	return nil, nil
}
func (fakeEngine) FetchNodeTypesIntrospection(ctx context.Context) ([]map[string]any, error) {
	return []map[string]any{{"id": "pkg-base.webhookTrigger"}, {"id": "pkg-base.set"}}, nil
}
func (fakeEngine) FetchNodeTypesAlternate(ctx context.Context) ([]map[string]any, error) {
	return nil, nil
}
func (fakeEngine) FetchCredentialTypes(ctx context.Context) ([]map[string]any, error) {
	return nil, nil
}
func (fakeEngine) ScanWorkflowsForTypes(ctx context.Context, pageSize int) (map[string]float64, error) {
	return nil, nil
}

func buildCoordinator(t *testing.T, engine *enginecli.Client) *coordinator.Coordinator {
	t.Helper()
	policy, err := catalog.NewPolicy(nil, true, nil, "")
	require.NoError(t, err)
	cat := catalog.New(fakeEngine{}, policy)
	require.NoError(t, cat.Refresh(context.Background()))

	store := sharedmem.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	gateway := validation.New(cat, store, engine, semantic.NoopAdvisor{}, validation.Config{})
	rtr := router.New(store, 5, time.Hour)
	return coordinator.New(engine, cat, store, gateway, rtr)
}

func TestCoordinator_SubmitForValidationOnlyRejectsBadWorkflow(t *testing.T) {
	c := buildCoordinator(t, nil)
	raw := map[string]any{"name": "", "nodes": []any{}}
	result := c.SubmitForValidationOnly(context.Background(), raw, validation.Options{SkipCache: true})
	assert.False(t, result.OK)
	assert.NotEmpty(t, result.Validation.Errors)
}

func TestCoordinator_SubmitWithDeployCreatesWorkflow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":   "wf-1",
			"name": "demo",
			"nodes": []map[string]any{
				{"id": "1", "name": "Webhook", "type": "pkg-base.webhookTrigger"},
			},
		})
	}))
	t.Cleanup(server.Close)
	engine := enginecli.New(enginecli.Config{BaseURL: server.URL, APIKey: "test"}, nil)
	c := buildCoordinator(t, engine)

	raw := map[string]any{
		"name": "demo",
		"nodes": []any{
			map[string]any{"id": "1", "name": "Webhook", "type": "pkg-base.webhookTrigger"},
		},
	}
	result, err := c.SubmitWithDeploy(context.Background(), raw, validation.Options{SkipCache: true})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, "wf-1", result.WorkflowID)
}

func TestCoordinator_GetStatisticsReflectsCatalog(t *testing.T) {
	c := buildCoordinator(t, nil)
	stats := c.GetStatistics()
	assert.Equal(t, 2, stats.TotalNodes)
}

func TestCoordinator_DecideDelegatesToRouter(t *testing.T) {
	c := buildCoordinator(t, nil)
	decision, err := c.Decide(context.Background(), "do something", false, nil)
	require.NoError(t, err)
	assert.Equal(t, router.PathAgent, decision.Path)
}
