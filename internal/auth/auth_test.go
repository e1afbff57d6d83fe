package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentoven/workflow-copilot/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyProvider_NoKeyIsNotAnError(t *testing.T) {
	p := auth.NewAPIKeyProvider([]string{"valid-key"})
	req := httptest.NewRequest(http.MethodGet, "/workflows", nil)
	identity, err := p.Authenticate(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, identity)
}

func TestAPIKeyProvider_ValidBearerKey(t *testing.T) {
	p := auth.NewAPIKeyProvider([]string{"valid-key"})
	req := httptest.NewRequest(http.MethodGet, "/workflows", nil)
	req.Header.Set("Authorization", "Bearer valid-key")

	identity, err := p.Authenticate(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, "apikey", identity.Provider)
}

func TestAPIKeyProvider_ValidXAPIKeyHeader(t *testing.T) {
	p := auth.NewAPIKeyProvider([]string{"valid-key"})
	req := httptest.NewRequest(http.MethodGet, "/workflows", nil)
	req.Header.Set("X-API-Key", "valid-key")

	identity, err := p.Authenticate(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, identity)
}

func TestAPIKeyProvider_InvalidKeyRejects(t *testing.T) {
	p := auth.NewAPIKeyProvider([]string{"valid-key"})
	req := httptest.NewRequest(http.MethodGet, "/workflows", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")

	_, err := p.Authenticate(context.Background(), req)
	assert.Error(t, err)
}

func TestAPIKeyProvider_EmptyKeyListIsDisabled(t *testing.T) {
	p := auth.NewAPIKeyProvider(nil)
	assert.False(t, p.Enabled())
}

func TestChain_AnonymousWhenNoProviderClaims(t *testing.T) {
	chain := auth.NewChain(auth.NewAPIKeyProvider([]string{"k"}))
	req := httptest.NewRequest(http.MethodGet, "/workflows", nil)

	identity, err := chain.Authenticate(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, identity)
}

func TestChain_RejectsOnFirstProviderError(t *testing.T) {
	chain := auth.NewChain(auth.NewAPIKeyProvider([]string{"k"}))
	req := httptest.NewRequest(http.MethodGet, "/workflows", nil)
	req.Header.Set("X-API-Key", "wrong")

	_, err := chain.Authenticate(context.Background(), req)
	assert.Error(t, err)
}

func TestChain_AnyEnabled(t *testing.T) {
	empty := auth.NewChain(auth.NewAPIKeyProvider(nil))
	assert.False(t, empty.AnyEnabled())

	withKeys := auth.NewChain(auth.NewAPIKeyProvider([]string{"k"}))
	assert.True(t, withKeys.AnyEnabled())
}
