package router_test

import (
	"context"
	"testing"
	"time"

	"github.com/agentoven/workflow-copilot/internal/router"
	"github.com/agentoven/workflow-copilot/internal/sharedmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, router.ClassBoth, router.Classify("do a thing", true))
	assert.Equal(t, router.ClassGoalOnly, router.Classify("do a thing", false))
	assert.Equal(t, router.ClassWorkflowOnly, router.Classify("", true))
	assert.Equal(t, router.ClassUnknown, router.Classify("", false))
}

func newRouter(t *testing.T) (*router.Router, *sharedmem.MemoryStore) {
	t.Helper()
	store := sharedmem.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	return router.New(store, 5, time.Hour), store
}

func TestRouter_ForceBypassesHistory(t *testing.T) {
	r, _ := newRouter(t)
	forced := router.PathAgent
	decision, err := r.Decide(context.Background(), router.ClassBoth, &forced)
	require.NoError(t, err)
	assert.Equal(t, router.PathAgent, decision.Path)
	assert.Equal(t, 1.0, decision.Confidence)
}

func TestRouter_DefaultsBeforeMinHistory(t *testing.T) {
	r, _ := newRouter(t)

	decision, err := r.Decide(context.Background(), router.ClassGoalOnly, nil)
	require.NoError(t, err)
	assert.Equal(t, router.PathAgent, decision.Path)

	decision, err = r.Decide(context.Background(), router.ClassWorkflowOnly, nil)
	require.NoError(t, err)
	assert.Equal(t, router.PathHandler, decision.Path)
}

func TestRouter_PrefersHigherSuccessRateOnceHistoryIsSufficient(t *testing.T) {
	r, _ := newRouter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, r.RecordOutcome(ctx, router.PathAgent, true, 100))
		require.NoError(t, r.RecordOutcome(ctx, router.PathHandler, i < 2, 50))
	}

	decision, err := r.Decide(ctx, router.ClassBoth, nil)
	require.NoError(t, err)
	assert.Equal(t, router.PathAgent, decision.Path)
	assert.InDelta(t, 1.0, decision.Confidence, 0.01)
}

func TestRouter_Statistics(t *testing.T) {
	r, _ := newRouter(t)
	ctx := context.Background()

	require.NoError(t, r.RecordOutcome(ctx, router.PathAgent, true, 100))
	require.NoError(t, r.RecordOutcome(ctx, router.PathHandler, false, 200))

	stats, err := r.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalExecutions)
	assert.Equal(t, 1.0, stats.AgentSuccessRate)
	assert.Equal(t, 0.0, stats.HandlerSuccessRate)
}
