package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agentoven/workflow-copilot/internal/api"
	"github.com/agentoven/workflow-copilot/internal/auth"
	"github.com/agentoven/workflow-copilot/internal/catalog"
	"github.com/agentoven/workflow-copilot/internal/coordinator"
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
	return []map[string]any{{"id": "pkg-base.webhookTrigger"}}, nil
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

func buildTestCoordinator(t *testing.T) *coordinator.Coordinator {
	t.Helper()
	policy, err := catalog.NewPolicy(nil, true, nil, "")
	require.NoError(t, err)
	cat := catalog.New(fakeEngine{}, policy)
	require.NoError(t, cat.Refresh(context.Background()))

	store := sharedmem.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	gateway := validation.New(cat, store, nil, semantic.NoopAdvisor{}, validation.Config{})
	rtr := router.New(store, 5, time.Hour)
	return coordinator.New(nil, cat, store, gateway, rtr)
}

func TestRouter_Health(t *testing.T) {
	c := buildTestCoordinator(t)
	srv := httptest.NewServer(api.NewRouter(c, nil, "0.1.0"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_SubmitWorkflowRejectsInvalid(t *testing.T) {
	c := buildTestCoordinator(t)
	srv := httptest.NewServer(api.NewRouter(c, nil, "0.1.0"))
	defer srv.Close()

	body := strings.NewReader(`{"name":"","nodes":[]}`)
	resp, err := http.Post(srv.URL+"/workflows?skipCache=true", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestRouter_CatalogStats(t *testing.T) {
	c := buildTestCoordinator(t)
	srv := httptest.NewServer(api.NewRouter(c, nil, "0.1.0"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/catalog/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stats catalog.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.TotalNodes)
}

func TestRouter_AuthRejectsMissingKey(t *testing.T) {
	c := buildTestCoordinator(t)
	chain := auth.NewChain(auth.NewAPIKeyProvider([]string{"secret"}))
	srv := httptest.NewServer(api.NewRouter(c, chain, "0.1.0"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/catalog/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRouter_RouterDecide(t *testing.T) {
	c := buildTestCoordinator(t)
	srv := httptest.NewServer(api.NewRouter(c, nil, "0.1.0"))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/router/decide", "application/json", strings.NewReader(`{"goal":"build something"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
