package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
)

// APIKeyProvider validates keys from the Authorization: Bearer <key> or
// X-API-Key headers (or an api_key query parameter, for long-lived SSE
// connections that can't set headers).
type APIKeyProvider struct {
	mu   sync.RWMutex
	keys map[string]bool
}

// NewAPIKeyProvider builds a provider from an explicit key list (the
// caller reads COPILOT_API_KEYS and splits it before calling this, so the
// provider itself stays free of environment access).
func NewAPIKeyProvider(keys []string) *APIKeyProvider {
	p := &APIKeyProvider{keys: make(map[string]bool, len(keys))}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k != "" {
			p.keys[k] = true
		}
	}
	return p
}

func (p *APIKeyProvider) Name() string { return "apikey" }

func (p *APIKeyProvider) Enabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.keys) > 0
}

// Authenticate returns (nil, nil) when the request carries no key at all,
// so a future provider in the chain gets a chance to claim it.
func (p *APIKeyProvider) Authenticate(_ context.Context, r *http.Request) (*Identity, error) {
	key := extractKey(r)
	if key == "" {
		return nil, nil
	}
	if !p.validate(key) {
		return nil, errInvalidAPIKey
	}
	sum := sha256.Sum256([]byte(key))
	return &Identity{Subject: "apikey:" + hex.EncodeToString(sum[:])[:16], Provider: "apikey"}, nil
}

func (p *APIKeyProvider) validate(candidate string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for k := range p.keys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(k)) == 1 {
			return true
		}
	}
	return false
}

func extractKey(r *http.Request) string {
	if v := r.Header.Get("Authorization"); strings.HasPrefix(v, "Bearer ") {
		return strings.TrimPrefix(v, "Bearer ")
	}
	if v := r.Header.Get("X-API-Key"); v != "" {
		return v
	}
	return r.URL.Query().Get("api_key")
}

type apiKeyError string

func (e apiKeyError) Error() string { return string(e) }

const errInvalidAPIKey = apiKeyError("invalid API key")
