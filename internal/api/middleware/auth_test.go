package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentoven/workflow-copilot/internal/api/middleware"
	"github.com/agentoven/workflow-copilot/internal/auth"
	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth_PassesThroughWhenNoProviderEnabled(t *testing.T) {
	chain := auth.NewChain(auth.NewAPIKeyProvider(nil))
	handler := middleware.Auth(chain)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/workflows", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_PublicPathsBypassAuth(t *testing.T) {
	chain := auth.NewChain(auth.NewAPIKeyProvider([]string{"valid-key"}))
	handler := middleware.Auth(chain)(okHandler())

	for _, path := range []string{"/health", "/version"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestAuth_MissingKeyIsRejected(t *testing.T) {
	chain := auth.NewChain(auth.NewAPIKeyProvider([]string{"valid-key"}))
	handler := middleware.Auth(chain)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/workflows", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_ValidKeyIsAccepted(t *testing.T) {
	chain := auth.NewChain(auth.NewAPIKeyProvider([]string{"valid-key"}))
	handler := middleware.Auth(chain)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/workflows", nil)
	req.Header.Set("X-API-Key", "valid-key")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
