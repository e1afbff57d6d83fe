// Package api is a thin, transport-only reference adapter exposing the
// Coordinator's operations over HTTP. It holds no business logic: every
// handler decodes a request, calls one Coordinator method, and encodes
// the result.
package api

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/agentoven/workflow-copilot/internal/api/middleware"
	"github.com/agentoven/workflow-copilot/internal/auth"
	"github.com/agentoven/workflow-copilot/internal/coordinator"
	"github.com/agentoven/workflow-copilot/internal/enginecli"
	"github.com/agentoven/workflow-copilot/internal/router"
	"github.com/agentoven/workflow-copilot/internal/validation"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
)

// NewRouter builds the HTTP surface over c. version is reported by
// /version. authChain may be nil, in which case auth middleware is
// omitted entirely rather than installed disabled.
func NewRouter(c *coordinator.Coordinator, authChain *auth.Chain, version string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)

	if authChain != nil {
		r.Use(middleware.Auth(authChain))
	}

	corsOrigins := parseCORSOrigins()
	isWildcard := len(corsOrigins) == 1 && corsOrigins[0] == "*"
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id", "X-API-Key"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: !isWildcard, // wildcard origins must never carry credentials
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(version))

	h := &handlers{c: c}

	r.Route("/workflows", func(r chi.Router) {
		r.Get("/", h.listWorkflows)
		r.Post("/", h.submitWorkflow)
		r.Get("/{id}", h.getWorkflow)
		r.Delete("/{id}", h.deleteWorkflow)
		r.Post("/{id}/activate", h.activateWorkflow)
		r.Post("/{id}/deactivate", h.deactivateWorkflow)
		r.Post("/{id}/executions", h.triggerExecution)
	})

	r.Route("/executions", func(r chi.Router) {
		r.Get("/", h.listExecutions)
		r.Get("/{id}", h.getExecution)
		r.Post("/{id}/stop", h.stopExecution)
	})

	r.Route("/catalog", func(r chi.Router) {
		r.Get("/stats", h.catalogStats)
		r.Post("/resync", h.catalogResync)
	})

	r.Route("/router", func(r chi.Router) {
		r.Get("/stats", h.routerStats)
		r.Post("/decide", h.routerDecide)
	})

	return r
}

type handlers struct {
	c *coordinator.Coordinator
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "workflow-copilot"})
}

func versionHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": version, "service": "workflow-copilot"})
	}
}

func (h *handlers) submitWorkflow(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeRaw(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	opts := parseValidationOptions(r)

	if r.URL.Query().Get("deploy") == "true" {
		result, err := h.c.SubmitWithDeploy(r.Context(), raw, opts)
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		status := http.StatusCreated
		if !result.OK {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, result)
		return
	}

	result := h.c.SubmitForValidationOnly(r.Context(), raw, opts)
	status := http.StatusOK
	if !result.OK {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

func (h *handlers) getWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.c.GetWorkflow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (h *handlers) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := h.c.DeleteWorkflow(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := h.c.ListWorkflows(r.Context(), parseListFilters(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workflows)
}

func (h *handlers) activateWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := h.c.ActivateWorkflow(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) deactivateWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := h.c.DeactivateWorkflow(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) triggerExecution(w http.ResponseWriter, r *http.Request) {
	var data map[string]any
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	exec, err := h.c.TriggerExecution(r.Context(), chi.URLParam(r, "id"), data)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, exec)
}

func (h *handlers) getExecution(w http.ResponseWriter, r *http.Request) {
	includeData := r.URL.Query().Get("includeData") == "true"
	exec, err := h.c.GetExecution(r.Context(), chi.URLParam(r, "id"), includeData)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (h *handlers) listExecutions(w http.ResponseWriter, r *http.Request) {
	execs, err := h.c.ListExecutions(r.Context(), parseListFilters(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, execs)
}

func (h *handlers) stopExecution(w http.ResponseWriter, r *http.Request) {
	if err := h.c.StopExecution(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) catalogStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.c.GetStatistics())
}

func (h *handlers) catalogResync(w http.ResponseWriter, r *http.Request) {
	if err := h.c.ForceCatalogResync(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) routerStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.c.GetRouterStatistics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type decideRequest struct {
	Goal        string       `json:"goal"`
	HasWorkflow bool         `json:"hasWorkflow"`
	Force       *router.Path `json:"force,omitempty"`
}

func (h *handlers) routerDecide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	decision, err := h.c.Decide(r.Context(), req.Goal, req.HasWorkflow, req.Force)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func decodeRaw(r *http.Request) (map[string]any, error) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func parseValidationOptions(r *http.Request) validation.Options {
	q := r.URL.Query()
	return validation.Options{
		DryRun:        q.Get("dryRun") == "true",
		SemanticCheck: q.Get("semantic") == "true",
		Strict:        q.Get("strict") == "true",
		SkipCache:     q.Get("skipCache") == "true",
	}
}

func parseListFilters(r *http.Request) enginecli.ListFilters {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return enginecli.ListFilters{Limit: limit, Offset: offset}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response body")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeEngineError maps the Engine Client's closed error taxonomy onto
// HTTP status codes instead of collapsing every failure to 502.
func writeEngineError(w http.ResponseWriter, err error) {
	engErr, ok := err.(*enginecli.Error)
	if !ok {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	status := http.StatusBadGateway
	switch engErr.Kind {
	case enginecli.KindNotFound:
		status = http.StatusNotFound
	case enginecli.KindUnauthenticated, enginecli.KindSessionAuth:
		status = http.StatusUnauthorized
	case enginecli.KindValidationBadReq:
		status = http.StatusBadRequest
	case enginecli.KindRateLimited:
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, map[string]any{
		"error":       engErr.Error(),
		"kind":        engErr.Kind,
		"retryable":   engErr.Retryable,
		"suggestions": engErr.RecoverySteps,
	})
}

// parseCORSOrigins reads allowed CORS origins from the environment.
// Default: wildcard (open access, credentials disabled).
func parseCORSOrigins() []string {
	originsEnv := os.Getenv("COPILOT_CORS_ORIGINS")
	if originsEnv == "" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(originsEnv, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
