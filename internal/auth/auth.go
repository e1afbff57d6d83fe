// Package auth provides the pluggable authentication provider chain used
// by the reference HTTP adapter (§10 "internal/auth"). It ships one
// provider — API keys read from the environment — behind the same
// interfaces an OIDC or session-based provider would implement later,
// mirroring the priority-ladder shape the Engine Client uses for its own
// session-vs-API-key authentication.
package auth

import (
	"context"
	"net/http"
)

// Identity is the authenticated caller a provider produces. It carries
// just enough to log and audit a request; this control plane has no
// role or tenant model of its own.
type Identity struct {
	Subject  string
	Provider string
}

// Provider authenticates one HTTP request.
//
// Contract:
//   - (*Identity, nil)  → authenticated, stop walking the chain
//   - (nil, nil)        → this provider doesn't apply, try the next one
//   - (nil, error)      → authentication was attempted and failed, reject
type Provider interface {
	Name() string
	Enabled() bool
	Authenticate(ctx context.Context, r *http.Request) (*Identity, error)
}

// Chain tries its providers in registration order until one produces an
// Identity or rejects the request outright.
type Chain struct {
	providers []Provider
}

// NewChain builds a Chain from zero or more providers.
func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

// Register appends a provider to the chain.
func (c *Chain) Register(p Provider) {
	c.providers = append(c.providers, p)
}

// Authenticate walks the chain. A nil, nil result means the request is
// anonymous — the caller decides whether that's acceptable.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) (*Identity, error) {
	for _, p := range c.providers {
		if !p.Enabled() {
			continue
		}
		identity, err := p.Authenticate(ctx, r)
		if err != nil {
			return nil, err
		}
		if identity != nil {
			return identity, nil
		}
	}
	return nil, nil
}

// AnyEnabled reports whether at least one provider in the chain is
// configured, which the HTTP adapter uses to decide whether to enforce
// authentication at all.
func (c *Chain) AnyEnabled() bool {
	for _, p := range c.providers {
		if p.Enabled() {
			return true
		}
	}
	return false
}
