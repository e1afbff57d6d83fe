// Package enginecli is a stateless typed wrapper over the Engine's HTTP
// API (§4.1). It owns request authentication, the closed error taxonomy,
// per-endpoint rate limiting, and retry-with-backoff for retryable
// failures. It holds no workflow state of its own.
package enginecli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/agentoven/workflow-copilot/internal/ratelimit"
	"github.com/agentoven/workflow-copilot/internal/telemetry"
	"github.com/agentoven/workflow-copilot/internal/wf"
	"github.com/rs/zerolog/log"
)

// Config configures a Client.
type Config struct {
	BaseURL         string
	APIKey          string
	APIKeyHeader    string // default "X-API-Key"
	SessionUsername string
	SessionPassword string
	HealthDeadline  time.Duration
	DefaultDeadline time.Duration
	WebhookDeadline time.Duration // relaxed timeout per §4.1
	MaxRetryElapsed time.Duration
}

func (c Config) withDefaults() Config {
	if c.APIKeyHeader == "" {
		c.APIKeyHeader = "X-API-Key"
	}
	if c.HealthDeadline == 0 {
		c.HealthDeadline = 5 * time.Second
	}
	if c.DefaultDeadline == 0 {
		c.DefaultDeadline = 30 * time.Second
	}
	if c.WebhookDeadline == 0 {
		c.WebhookDeadline = 2 * time.Minute
	}
	if c.MaxRetryElapsed == 0 {
		c.MaxRetryElapsed = 30 * time.Second
	}
	return c
}

// Client is a stateless wrapper over one Engine's HTTP surface.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *ratelimit.Limiter
	retry   retryPolicy

	sessionToken string // set by EstablishSession, read by introspection calls
}

// New builds a Client. limiter may be nil, in which case calls are not
// throttled (used in tests).
func New(cfg Config, limiter *ratelimit.Limiter) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:     cfg,
		http:    &http.Client{},
		limiter: limiter,
		retry:   newRetryPolicy(cfg.MaxRetryElapsed),
	}
}

func (c *Client) throttle(ctx context.Context, ep ratelimit.Endpoint) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx, ep)
}

// Health tries the primary health endpoint and falls back to a
// bounded-result workflow list call. It never blocks longer than the
// configured health deadline.
func (c *Client) Health(ctx context.Context) (*HealthResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HealthDeadline)
	defer cancel()

	if res, err := c.doJSON(ctx, "GET", "/health", nil, nil); err == nil {
		var body struct {
			OK      bool   `json:"ok"`
			Version string `json:"version"`
		}
		_ = json.Unmarshal(res, &body)
		return &HealthResult{OK: true, Version: body.Version}, nil
	}
	if res, err := c.doJSON(ctx, "GET", "/healthz", nil, nil); err == nil {
		var body struct {
			Version string `json:"version"`
		}
		_ = json.Unmarshal(res, &body)
		return &HealthResult{OK: true, Version: body.Version}, nil
	}

	// Fallback: a bounded workflow list call proves the API surface is up
	// even when no dedicated health endpoint exists.
	if err := c.throttle(ctx, ratelimit.EndpointReadWorkflow); err != nil {
		return nil, err
	}
	if _, err := c.doJSON(ctx, "GET", "/workflows?limit=1", nil, nil); err != nil {
		return &HealthResult{OK: false}, err
	}
	return &HealthResult{OK: true}, nil
}

// CreateWorkflow posts doc to the Engine and decodes the created resource
// into the canonical Workflow shape via the Layer-1 parse boundary.
func (c *Client) CreateWorkflow(ctx context.Context, doc map[string]any) (*wf.Workflow, error) {
	if err := c.throttle(ctx, ratelimit.EndpointWriteWorkflow); err != nil {
		return nil, err
	}
	var result *wf.Workflow
	err := c.retry.do(ctx, "createWorkflow", func() error {
		raw, err := c.doJSON(ctx, "POST", "/workflows", doc, nil)
		if err != nil {
			return err
		}
		result, err = decodeWorkflow(raw)
		return err
	})
	return result, err
}

// GetWorkflow fetches a workflow by id.
func (c *Client) GetWorkflow(ctx context.Context, id string) (*wf.Workflow, error) {
	if err := c.throttle(ctx, ratelimit.EndpointReadWorkflow); err != nil {
		return nil, err
	}
	var result *wf.Workflow
	err := c.retry.do(ctx, "getWorkflow", func() error {
		raw, err := c.doJSON(ctx, "GET", "/workflows/"+url.PathEscape(id), nil, nil)
		if err != nil {
			return err
		}
		result, err = decodeWorkflow(raw)
		return err
	})
	return result, err
}

// UpdateWorkflow attempts replacement (PUT) semantics first; if the
// server responds method-not-allowed, it retries once with a
// merge-style (PATCH) update (§4.1, and §9 Open Question #2).
func (c *Client) UpdateWorkflow(ctx context.Context, id string, doc map[string]any) (*wf.Workflow, error) {
	if err := c.throttle(ctx, ratelimit.EndpointWriteWorkflow); err != nil {
		return nil, err
	}
	path := "/workflows/" + url.PathEscape(id)
	var result *wf.Workflow
	err := c.retry.do(ctx, "updateWorkflow", func() error {
		raw, err := c.doJSON(ctx, "PUT", path, doc, nil)
		if apiErr, ok := err.(*Error); ok && apiErr.HTTPStatus == http.StatusMethodNotAllowed {
			log.Debug().Str("id", id).Msg("PUT not allowed, retrying update with PATCH merge")
			raw, err = c.doJSON(ctx, "PATCH", path, doc, nil)
		}
		if err != nil {
			return err
		}
		result, err = decodeWorkflow(raw)
		return err
	})
	return result, err
}

// DeleteWorkflow removes a workflow by id.
func (c *Client) DeleteWorkflow(ctx context.Context, id string) error {
	if err := c.throttle(ctx, ratelimit.EndpointDeleteWorkflow); err != nil {
		return err
	}
	return c.retry.do(ctx, "deleteWorkflow", func() error {
		_, err := c.doJSON(ctx, "DELETE", "/workflows/"+url.PathEscape(id), nil, nil)
		return err
	})
}

// ListWorkflows returns a page of workflows matching filters.
func (c *Client) ListWorkflows(ctx context.Context, filters ListFilters) ([]wf.Workflow, error) {
	if err := c.throttle(ctx, ratelimit.EndpointReadWorkflow); err != nil {
		return nil, err
	}
	path := "/workflows" + encodeFilters(filters)
	var items []wf.Workflow
	err := c.retry.do(ctx, "listWorkflows", func() error {
		raw, err := c.doJSON(ctx, "GET", path, nil, nil)
		if err != nil {
			return err
		}
		var body struct {
			Data []map[string]any `json:"data"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return newError(KindUnknown, "decode workflow list: "+err.Error(), 0, false, err)
		}
		items = nil
		for _, d := range body.Data {
			w, err := decodeWorkflow(mustMarshal(d))
			if err != nil {
				continue
			}
			items = append(items, *w)
		}
		return nil
	})
	return items, err
}

// SetActive toggles the workflow's activation flag via PATCH.
func (c *Client) SetActive(ctx context.Context, id string, active bool) error {
	if err := c.throttle(ctx, ratelimit.EndpointWriteWorkflow); err != nil {
		return err
	}
	return c.retry.do(ctx, "setActive", func() error {
		_, err := c.doJSON(ctx, "PATCH", "/workflows/"+url.PathEscape(id), map[string]any{"active": active}, nil)
		return err
	})
}

// Run triggers execution of workflow id with optional input data.
func (c *Client) Run(ctx context.Context, id string, data map[string]any) (*Execution, error) {
	if err := c.throttle(ctx, ratelimit.EndpointCreateExecution); err != nil {
		return nil, err
	}
	var exec Execution
	err := c.retry.do(ctx, "run", func() error {
		raw, err := c.doJSON(ctx, "POST", "/workflows/"+url.PathEscape(id)+"/run", data, nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, &exec)
	})
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

// TriggerWebhook invokes an arbitrary webhook URL the workflow exposes,
// using a relaxed timeout per §4.1.
func (c *Client) TriggerWebhook(ctx context.Context, webhookURL, method string, data map[string]any, headers map[string]string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.WebhookDeadline)
	defer cancel()

	var body io.Reader
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, newError(KindUnknown, "encode webhook body: "+err.Error(), 0, false, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, webhookURL, body)
	if err != nil {
		return nil, newError(KindUnknown, "build webhook request: "+err.Error(), 0, false, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		kind, retryable := classifyStatus(resp.StatusCode)
		return nil, newError(kind, string(respBody), resp.StatusCode, retryable, nil)
	}
	return respBody, nil
}

// GetExecution fetches one execution, optionally including full run data.
func (c *Client) GetExecution(ctx context.Context, id string, includeData bool) (*Execution, error) {
	if err := c.throttle(ctx, ratelimit.EndpointReadExecution); err != nil {
		return nil, err
	}
	path := "/executions/" + url.PathEscape(id)
	if includeData {
		path += "?includeData=true"
	}
	var exec Execution
	err := c.retry.do(ctx, "getExecution", func() error {
		raw, err := c.doJSON(ctx, "GET", path, nil, nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, &exec)
	})
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

// ListExecutions returns a page of executions matching filters.
func (c *Client) ListExecutions(ctx context.Context, filters ListFilters) ([]Execution, error) {
	if err := c.throttle(ctx, ratelimit.EndpointReadExecution); err != nil {
		return nil, err
	}
	path := "/executions" + encodeFilters(filters)
	var items []Execution
	err := c.retry.do(ctx, "listExecutions", func() error {
		raw, err := c.doJSON(ctx, "GET", path, nil, nil)
		if err != nil {
			return err
		}
		var body struct {
			Data []Execution `json:"data"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return newError(KindUnknown, "decode execution list: "+err.Error(), 0, false, err)
		}
		items = body.Data
		return nil
	})
	return items, err
}

// StopExecution cancels a running execution.
func (c *Client) StopExecution(ctx context.Context, id string) error {
	if err := c.throttle(ctx, ratelimit.EndpointDefault); err != nil {
		return err
	}
	return c.retry.do(ctx, "stopExecution", func() error {
		_, err := c.doJSON(ctx, "POST", "/executions/"+url.PathEscape(id)+"/stop", nil, nil)
		return err
	})
}

// ListCredentials returns credential summaries (never secret material).
func (c *Client) ListCredentials(ctx context.Context, filters ListFilters) ([]CredentialSummary, error) {
	if err := c.throttle(ctx, ratelimit.EndpointDefault); err != nil {
		return nil, err
	}
	path := "/credentials" + encodeFilters(filters)
	var items []CredentialSummary
	err := c.retry.do(ctx, "listCredentials", func() error {
		raw, err := c.doJSON(ctx, "GET", path, nil, nil)
		if err != nil {
			return err
		}
		var body struct {
			Data []CredentialSummary `json:"data"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return newError(KindUnknown, "decode credential list: "+err.Error(), 0, false, err)
		}
		items = body.Data
		return nil
	})
	return items, err
}

// GetCredential fetches one credential summary by id.
func (c *Client) GetCredential(ctx context.Context, id string) (*CredentialSummary, error) {
	if err := c.throttle(ctx, ratelimit.EndpointDefault); err != nil {
		return nil, err
	}
	var cred CredentialSummary
	err := c.retry.do(ctx, "getCredential", func() error {
		raw, err := c.doJSON(ctx, "GET", "/credentials/"+url.PathEscape(id), nil, nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, &cred)
	})
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// EstablishSession logs in with the configured session credentials,
// caching the resulting token for subsequent session-introspection calls.
// Returns false (no error) when no session credentials are configured —
// the catalog's acquisition ladder treats that as "rung unavailable", not
// a failure.
func (c *Client) EstablishSession(ctx context.Context) (bool, error) {
	if c.cfg.SessionUsername == "" || c.cfg.SessionPassword == "" {
		return false, nil
	}
	raw, err := c.doJSON(ctx, "POST", "/login", map[string]any{
		"email":    c.cfg.SessionUsername,
		"password": c.cfg.SessionPassword,
	}, nil)
	if err != nil {
		return false, newError(KindSessionAuth, "session login failed: "+err.Error(), 0, false, err)
	}
	var body struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(raw, &body)
	c.sessionToken = body.Token
	return c.sessionToken != "", nil
}

// FetchNodeTypesSession fetches the richest node-type listing via the
// session-authenticated introspection endpoint. Rung 1 of §4.2.
func (c *Client) FetchNodeTypesSession(ctx context.Context) ([]map[string]any, error) {
	if c.sessionToken == "" {
		return nil, nil
	}
	raw, err := c.doJSON(ctx, "GET", "/rest/node-types", nil, map[string]string{"Cookie": "session=" + c.sessionToken})
	if err != nil {
		return nil, err
	}
	return decodeEntryList(raw)
}

// FetchNodeTypesIntrospection is rung 2: the API-key introspection
// endpoint, often rejected but tried anyway to remain version-agnostic.
func (c *Client) FetchNodeTypesIntrospection(ctx context.Context) ([]map[string]any, error) {
	raw, err := c.doJSON(ctx, "GET", "/rest/node-types", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeEntryList(raw)
}

// FetchNodeTypesAlternate is rung 3: the same data via a different shape.
func (c *Client) FetchNodeTypesAlternate(ctx context.Context) ([]map[string]any, error) {
	raw, err := c.doJSON(ctx, "GET", "/types/nodes.json", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeEntryList(raw)
}

// FetchCredentialTypes fetches the credential-type catalog. Failure here
// is non-fatal to the caller (§4.2: "leaves credential-type checks as
// soft warnings").
func (c *Client) FetchCredentialTypes(ctx context.Context) ([]map[string]any, error) {
	raw, err := c.doJSON(ctx, "GET", "/types/credentials.json", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeEntryList(raw)
}

// ScanWorkflowsForTypes is rung 4: paginate all stored workflows and
// collect distinct (type, typeVersion) pairs when introspection endpoints
// yield nothing.
func (c *Client) ScanWorkflowsForTypes(ctx context.Context, pageSize int) (map[string]float64, error) {
	if pageSize <= 0 {
		pageSize = 250
	}
	pairs := map[string]float64{}
	offset := 0
	for {
		page, err := c.ListWorkflows(ctx, ListFilters{Limit: pageSize, Offset: offset})
		if err != nil {
			return pairs, err
		}
		if len(page) == 0 {
			break
		}
		for _, w := range page {
			full, err := c.GetWorkflow(ctx, w.ID)
			if err != nil {
				continue
			}
			for _, n := range full.Nodes {
				if existing, ok := pairs[n.Type]; !ok || n.TypeVersion > existing {
					pairs[n.Type] = n.TypeVersion
				}
			}
		}
		if len(page) < pageSize {
			break
		}
		offset += pageSize
	}
	return pairs, nil
}

// ── internal HTTP plumbing ────────────────────────────────────

func (c *Client) doJSON(ctx context.Context, method, path string, body any, extraHeaders map[string]string) ([]byte, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "enginecli."+method+" "+path)
	defer span.End()

	select {
	case <-ctx.Done():
		return nil, newError(KindDeadlineExceeded, ctx.Err().Error(), 0, false, ctx.Err())
	default:
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, newError(KindUnknown, "encode request: "+err.Error(), 0, false, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, newError(KindUnknown, "build request: "+err.Error(), 0, false, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(c.cfg.APIKeyHeader, c.cfg.APIKey)
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		kind, retryable := classifyStatus(resp.StatusCode)
		apiErr := newError(kind, string(respBody), resp.StatusCode, retryable, nil)
		if resp.StatusCode == http.StatusTooManyRequests {
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					apiErr.RetryAfter = secs
				}
			}
		}
		return respBody, apiErr
	}
	return respBody, nil
}

func classifyTransportErr(err error) *Error {
	if err == context.DeadlineExceeded {
		return newError(KindDeadlineExceeded, err.Error(), 0, false, err)
	}
	return newError(KindNetwork, err.Error(), 0, true, err)
}

func decodeWorkflow(raw []byte) (*wf.Workflow, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, newError(KindUnknown, "decode workflow: "+err.Error(), 0, false, err)
	}
	res := wf.ParseWorkflow(m)
	if res.Workflow == nil {
		return nil, newError(KindUnknown, fmt.Sprintf("engine returned a malformed workflow (%d structural errors)", len(res.Errors)), 0, false, nil)
	}
	return res.Workflow, nil
}

func decodeEntryList(raw []byte) ([]map[string]any, error) {
	var list []map[string]any
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var obj struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Data, nil
	}
	var keyed map[string]map[string]any
	if err := json.Unmarshal(raw, &keyed); err == nil {
		out := make([]map[string]any, 0, len(keyed))
		for id, entry := range keyed {
			entry["id"] = id
			out = append(out, entry)
		}
		return out, nil
	}
	return nil, nil
}

func encodeFilters(f ListFilters) string {
	v := url.Values{}
	if f.Limit > 0 {
		v.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		v.Set("offset", strconv.Itoa(f.Offset))
	}
	for k, val := range f.Extra {
		v.Set(k, val)
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

func mustMarshal(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
