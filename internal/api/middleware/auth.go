package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/agentoven/workflow-copilot/internal/auth"
	"github.com/rs/zerolog/log"
)

// Auth authenticates every request through chain except the always-public
// paths (health, version). When chain has no enabled provider, requests
// pass through unauthenticated — this control plane ships closed only
// when an operator actually configures a key.
func Auth(chain *auth.Chain) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) || !chain.AnyEnabled() {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := chain.Authenticate(r.Context(), r)
			if err != nil {
				unauthorized(w, err.Error())
				return
			}
			if identity == nil {
				unauthorized(w, "API key required: set Authorization: Bearer <key> or X-API-Key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isPublicPath(path string) bool {
	return path == "/health" || path == "/version" || strings.HasPrefix(path, "/health/")
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="workflow-copilot"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized", "message": msg})
	log.Debug().Str("reason", msg).Msg("request rejected by auth middleware")
}
