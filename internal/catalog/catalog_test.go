package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	sessionOK       bool
	sessionErr      error
	sessionEntries  []map[string]any
	introEntries    []map[string]any
	altEntries      []map[string]any
	credEntries     []map[string]any
	scanPairs       map[string]float64
	scanErr         error
}

func (f *fakeEngine) EstablishSession(ctx context.Context) (bool, error) {
	return f.sessionOK, f.sessionErr
}
func (f *fakeEngine) FetchNodeTypesSession(ctx context.Context) ([]map[string]any, error) {
	return f.sessionEntries, nil
}
func (f *fakeEngine) FetchNodeTypesIntrospection(ctx context.Context) ([]map[string]any, error) {
	return f.introEntries, nil
}
func (f *fakeEngine) FetchNodeTypesAlternate(ctx context.Context) ([]map[string]any, error) {
	return f.altEntries, nil
}
func (f *fakeEngine) FetchCredentialTypes(ctx context.Context) ([]map[string]any, error) {
	return f.credEntries, nil
}
func (f *fakeEngine) ScanWorkflowsForTypes(ctx context.Context, pageSize int) (map[string]float64, error) {
	return f.scanPairs, f.scanErr
}

func mustPolicy(t *testing.T) *Policy {
	t.Helper()
	p, err := NewPolicy(nil, true, nil, "")
	require.NoError(t, err)
	return p
}

func TestCatalog_RefreshUsesIntrospectionRung(t *testing.T) {
	engine := &fakeEngine{
		introEntries: []map[string]any{
			{"id": "pkg-base.httpRequest", "displayName": "HTTP Request"},
		},
	}
	c := New(engine, mustPolicy(t))
	require.NoError(t, c.Refresh(context.Background()))

	nt, ok := c.Lookup("pkg-base.httpRequest")
	require.True(t, ok)
	assert.Equal(t, "HTTP Request", nt.DisplayName)
	assert.Equal(t, SourceAPIKeyIntrospection, c.Stats().SyncSource)
}

func TestCatalog_FallsBackToWorkflowScan(t *testing.T) {
	engine := &fakeEngine{
		scanPairs: map[string]float64{"pkg-base.set": 1},
	}
	c := New(engine, mustPolicy(t))
	require.NoError(t, c.Refresh(context.Background()))

	_, ok := c.Lookup("pkg-base.set")
	require.True(t, ok)
	assert.Equal(t, SourceWorkflowScan, c.Stats().SyncSource)
}

func TestCatalog_EmptyAllRungsIsNotAnError(t *testing.T) {
	engine := &fakeEngine{scanPairs: map[string]float64{}}
	c := New(engine, mustPolicy(t))
	require.NoError(t, c.Refresh(context.Background()))
	assert.True(t, c.IsEmpty())
}

func TestCatalog_PolicyFiltersDisallowedTypes(t *testing.T) {
	policy, err := NewPolicy(nil, false, nil, "")
	require.NoError(t, err)
	engine := &fakeEngine{
		introEntries: []map[string]any{
			{"id": "pkg-base.httpRequest"},
			{"id": "community-pkg.weird"},
		},
	}
	c := New(engine, policy)
	require.NoError(t, c.Refresh(context.Background()))

	_, ok := c.Lookup("pkg-base.httpRequest")
	assert.True(t, ok)
	_, ok = c.Lookup("community-pkg.weird")
	assert.False(t, ok)
}

func TestCatalog_SearchReturnsOnlyMatchingTypes(t *testing.T) {
	engine := &fakeEngine{
		introEntries: []map[string]any{
			{"id": "pkg-base.httpRequest", "displayName": "HTTP Request"},
			{"id": "pkg-base.webhookTrigger", "displayName": "Webhook Trigger"},
		},
	}
	c := New(engine, mustPolicy(t))
	require.NoError(t, c.Refresh(context.Background()))

	hits := c.Search("http")
	require.Len(t, hits, 1)
	assert.Equal(t, "pkg-base.httpRequest", hits[0].ID)
}

func TestCatalog_SuggestForExcludesExactMissingID(t *testing.T) {
	engine := &fakeEngine{
		introEntries: []map[string]any{
			{"id": "pkg-base.httpRequest"},
			{"id": "pkg-base.httpRequestV2"},
		},
	}
	c := New(engine, mustPolicy(t))
	require.NoError(t, c.Refresh(context.Background()))

	suggestions := c.SuggestFor("legacy-pkg.httpRequest", 5)
	assert.Contains(t, suggestions, "pkg-base.httpRequest")
	assert.Contains(t, suggestions, "pkg-base.httpRequestV2")
	assert.NotContains(t, suggestions, "legacy-pkg.httpRequest")
}

func TestCatalog_StatsCountsTriggersAndActions(t *testing.T) {
	engine := &fakeEngine{
		introEntries: []map[string]any{
			{"id": "pkg-base.webhookTrigger"},
			{"id": "pkg-base.set"},
		},
	}
	c := New(engine, mustPolicy(t))
	require.NoError(t, c.Refresh(context.Background()))

	stats := c.Stats()
	assert.Equal(t, 1, stats.TriggerCount)
	assert.Equal(t, 1, stats.ActionCount)
}

type recordingListener struct {
	events []Event
}

func (r *recordingListener) OnCatalogEvent(e Event) {
	r.events = append(r.events, e)
}

func TestCatalog_EmitsSyncedEvent(t *testing.T) {
	engine := &fakeEngine{introEntries: []map[string]any{{"id": "pkg-base.set"}}}
	listener := &recordingListener{}
	c := New(engine, mustPolicy(t), WithListener(listener))
	require.NoError(t, c.Refresh(context.Background()))

	require.Len(t, listener.events, 1)
	assert.Equal(t, EventSynced, listener.events[0].Kind)
}
