package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// EngineFetcher is the narrow slice of the Engine Client the catalog's
// acquisition ladder needs. Defined here, rather than depending on the
// concrete enginecli.Client, so the catalog can be exercised without an
// HTTP stack.
type EngineFetcher interface {
	EstablishSession(ctx context.Context) (bool, error)
	FetchNodeTypesSession(ctx context.Context) ([]map[string]any, error)
	FetchNodeTypesIntrospection(ctx context.Context) ([]map[string]any, error)
	FetchNodeTypesAlternate(ctx context.Context) ([]map[string]any, error)
	FetchCredentialTypes(ctx context.Context) ([]map[string]any, error)
	ScanWorkflowsForTypes(ctx context.Context, pageSize int) (map[string]float64, error)
}

// snapshot is the atomically-replaced, read-only view of the catalog.
type snapshot struct {
	nodeTypes       map[string]NodeType
	credentialTypes map[string]CredentialType
	stats           Stats
}

// Catalog maintains the periodically refreshed node-type and
// credential-type index (§4.2).
type Catalog struct {
	engine   EngineFetcher
	policy   *Policy
	listener Listener

	refreshInterval time.Duration
	fetchDeadline   time.Duration

	snap atomic.Pointer[snapshot]
	sf   singleflight.Group

	stopCh    chan struct{}
	doneCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// Option configures a Catalog at construction time.
type Option func(*Catalog)

// WithListener attaches a narrow event listener (§9: typed listener, not
// an untyped broadcaster).
func WithListener(l Listener) Option {
	return func(c *Catalog) { c.listener = l }
}

// WithRefreshInterval overrides the default 5-minute refresh tick.
func WithRefreshInterval(d time.Duration) Option {
	return func(c *Catalog) { c.refreshInterval = d }
}

// WithFetchDeadline overrides the default 30s per-refresh deadline.
func WithFetchDeadline(d time.Duration) Option {
	return func(c *Catalog) { c.fetchDeadline = d }
}

// New builds a Catalog. It performs no I/O until Start or Refresh is
// called.
func New(engine EngineFetcher, policy *Policy, opts ...Option) *Catalog {
	c := &Catalog{
		engine:          engine,
		policy:          policy,
		listener:        NoopListener{},
		refreshInterval: 5 * time.Minute,
		fetchDeadline:   30 * time.Second,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
	c.snap.Store(&snapshot{
		nodeTypes:       map[string]NodeType{},
		credentialTypes: map[string]CredentialType{},
		stats:           Stats{SyncSource: SourceNone},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins the periodic refresh loop. It performs one synchronous
// refresh before returning so callers observe a populated (or explicitly
// empty) catalog immediately.
func (c *Catalog) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		if err := c.Refresh(ctx); err != nil {
			log.Warn().Err(err).Msg("initial catalog refresh failed, starting with empty snapshot")
		}
		go c.refreshLoop()
	})
}

func (c *Catalog) refreshLoop() {
	defer close(c.doneCh)
	ticker := time.NewTicker(c.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.fetchDeadline)
			if err := c.Refresh(ctx); err != nil {
				log.Warn().Err(err).Msg("catalog refresh failed, keeping previous snapshot")
			}
			cancel()
		}
	}
}

// Stop halts the background refresh loop. Safe to call once; a second
// call is a no-op.
func (c *Catalog) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		<-c.doneCh
	})
}

// Refresh runs the acquisition ladder once. Overlapping calls are
// coalesced via a single-flight guard so only one refresh is ever
// in-flight (§5 "Concurrency").
func (c *Catalog) Refresh(ctx context.Context) error {
	_, err, _ := c.sf.Do("refresh", func() (any, error) {
		return nil, c.doRefresh(ctx)
	})
	return err
}

func (c *Catalog) doRefresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.fetchDeadline)
	defer cancel()

	entries, source, err := c.acquireNodeTypes(ctx)
	if err != nil {
		c.emit(Event{Kind: EventSyncError, Err: err, At: time.Now()})
		return err
	}

	nodeTypes := map[string]NodeType{}
	for _, e := range entries {
		id := stringField(e, "id", "name")
		if id == "" {
			continue
		}
		if decision := c.policy.Evaluate(id); !decision.Allowed {
			continue
		}
		nodeTypes[id] = mapNodeType(id, e)
	}

	credTypes := map[string]CredentialType{}
	if credEntries, err := c.engine.FetchCredentialTypes(ctx); err != nil {
		log.Warn().Err(err).Msg("credential-type fetch failed, soft warning only")
	} else {
		for _, e := range credEntries {
			id := stringField(e, "id", "name")
			if id == "" {
				continue
			}
			credTypes[id] = mapCredentialType(id, e)
		}
	}

	stats := computeStats(nodeTypes, credTypes, source)
	c.snap.Store(&snapshot{nodeTypes: nodeTypes, credentialTypes: credTypes, stats: stats})
	c.emit(Event{Kind: EventSynced, Source: source, At: time.Now()})
	return nil
}

// acquireNodeTypes walks the 4-rung fallback ladder (§4.2), stopping at
// the first source that returns a non-empty list.
func (c *Catalog) acquireNodeTypes(ctx context.Context) ([]map[string]any, Source, error) {
	if ok, err := c.engine.EstablishSession(ctx); err == nil && ok {
		if entries, err := c.engine.FetchNodeTypesSession(ctx); err == nil && len(entries) > 0 {
			return entries, SourceSessionIntrospection, nil
		}
	}

	if entries, err := c.engine.FetchNodeTypesIntrospection(ctx); err == nil && len(entries) > 0 {
		return entries, SourceAPIKeyIntrospection, nil
	}

	if entries, err := c.engine.FetchNodeTypesAlternate(ctx); err == nil && len(entries) > 0 {
		return entries, SourceAPIKeyAlternate, nil
	}

	pairs, err := c.engine.ScanWorkflowsForTypes(ctx, 0)
	if err != nil {
		return nil, SourceNone, fmt.Errorf("all catalog sources exhausted, workflow scan failed: %w", err)
	}
	if len(pairs) == 0 {
		// Every rung came back empty; a successful connect with an empty
		// catalog is not itself an error.
		return nil, SourceNone, nil
	}
	entries := make([]map[string]any, 0, len(pairs))
	for typeID, version := range pairs {
		entries = append(entries, map[string]any{
			"id":          typeID,
			"displayName": typeID,
			"version":     version,
			"outputs":     []string{"main"},
			"inputs":      []string{"main"},
		})
	}
	return entries, SourceWorkflowScan, nil
}

func stringField(e map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := e[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func mapNodeType(id string, e map[string]any) NodeType {
	nt := NodeType{ID: id, DisplayName: id}
	if dn, ok := e["displayName"].(string); ok && dn != "" {
		nt.DisplayName = dn
	}
	if d, ok := e["description"].(string); ok {
		nt.Description = d
	}
	if v, ok := e["version"].(float64); ok {
		nt.Versions = []float64{v}
	}
	if group, ok := e["group"].([]any); ok {
		for _, g := range group {
			if s, ok := g.(string); ok {
				nt.Group = append(nt.Group, s)
			}
		}
	}
	if cat, ok := e["category"].(string); ok {
		nt.Category = cat
	}
	if reqCreds, ok := e["requiredCredentials"].([]any); ok {
		for _, rc := range reqCreds {
			if s, ok := rc.(string); ok {
				nt.RequiredCredentials = append(nt.RequiredCredentials, s)
			}
		}
	}
	return nt
}

func mapCredentialType(id string, e map[string]any) CredentialType {
	ct := CredentialType{ID: id, DisplayName: id}
	if dn, ok := e["displayName"].(string); ok && dn != "" {
		ct.DisplayName = dn
	}
	if scheme, ok := e["authScheme"].(string); ok {
		ct.AuthScheme = scheme
	}
	return ct
}

func computeStats(nodeTypes map[string]NodeType, credTypes map[string]CredentialType, source Source) Stats {
	stats := Stats{
		TotalNodes:       len(nodeTypes),
		TotalCredentials: len(credTypes),
		LastRefresh:      time.Now(),
		SyncSource:       source,
	}
	for id, nt := range nodeTypes {
		if isTriggerLike(id, nt) {
			stats.TriggerCount++
		} else {
			stats.ActionCount++
		}
		if isAICapable(id, nt) {
			stats.AINodeCount++
		}
	}
	return stats
}

func isTriggerLike(id string, nt NodeType) bool {
	for _, g := range nt.Group {
		if g == "trigger" {
			return true
		}
	}
	lower := strings.ToLower(id)
	return strings.Contains(lower, "trigger") || strings.Contains(lower, "webhook")
}

func isAICapable(id string, nt NodeType) bool {
	for _, g := range nt.Group {
		if g == "ai" {
			return true
		}
	}
	if strings.Contains(nt.Category, "AI") {
		return true
	}
	return strings.Contains(strings.ToLower(id), "langchain")
}

func (c *Catalog) emit(e Event) {
	c.listener.OnCatalogEvent(e)
}

// ── Query API ───────────────────────────────────────────────────

// Lookup returns the node type for an exact identifier match.
func (c *Catalog) Lookup(id string) (NodeType, bool) {
	nt, ok := c.snap.Load().nodeTypes[id]
	return nt, ok
}

// LookupCredential returns the credential type for an exact identifier.
func (c *Catalog) LookupCredential(id string) (CredentialType, bool) {
	ct, ok := c.snap.Load().credentialTypes[id]
	return ct, ok
}

// Search performs a case-insensitive substring search over identifier,
// display name, and description, ordered by match position then display
// name (§4.2 "Query API").
func (c *Catalog) Search(query string) []NodeType {
	s := c.snap.Load()
	q := strings.ToLower(query)

	type scored struct {
		nt  NodeType
		pos int
	}
	var hits []scored
	for _, nt := range s.nodeTypes {
		if pos := bestMatchPosition(q, nt); pos >= 0 {
			hits = append(hits, scored{nt: nt, pos: pos})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].pos != hits[j].pos {
			return hits[i].pos < hits[j].pos
		}
		return hits[i].nt.DisplayName < hits[j].nt.DisplayName
	})
	out := make([]NodeType, len(hits))
	for i, h := range hits {
		out[i] = h.nt
	}
	return out
}

func bestMatchPosition(q string, nt NodeType) int {
	best := -1
	consider := func(field string) {
		if idx := strings.Index(strings.ToLower(field), q); idx >= 0 {
			if best == -1 || idx < best {
				best = idx
			}
		}
	}
	consider(nt.ID)
	consider(nt.DisplayName)
	consider(nt.Description)
	return best
}

// SuggestFor returns up to limit identifiers matching the last dotted
// segment of a missing type identifier, used by Layer 2 to populate
// NODE_NOT_FOUND suggestions.
func (c *Catalog) SuggestFor(missingTypeID string, limit int) []string {
	parts := strings.Split(missingTypeID, ".")
	segment := parts[len(parts)-1]
	matches := c.Search(segment)
	out := make([]string, 0, limit)
	for _, nt := range matches {
		if nt.ID == missingTypeID {
			continue
		}
		out = append(out, nt.ID)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// ListTriggers returns every node type that looks like a trigger.
func (c *Catalog) ListTriggers() []NodeType {
	s := c.snap.Load()
	var out []NodeType
	for id, nt := range s.nodeTypes {
		if isTriggerLike(id, nt) {
			out = append(out, nt)
		}
	}
	return out
}

// ListAICapable returns every AI-capable node type.
func (c *Catalog) ListAICapable() []NodeType {
	s := c.snap.Load()
	var out []NodeType
	for id, nt := range s.nodeTypes {
		if isAICapable(id, nt) {
			out = append(out, nt)
		}
	}
	return out
}

// Stats returns the current snapshot's statistics.
func (c *Catalog) Stats() Stats {
	return c.snap.Load().stats
}

// Policy returns the node restriction policy this catalog was built with,
// so callers (the validation gateway's Layer 0) can evaluate a declared
// node type against the same rules the catalog applies to its own
// snapshot.
func (c *Catalog) Policy() *Policy {
	return c.policy
}

// IsEmpty reports whether the current snapshot has no node types, the
// signal Layer 2 uses to treat the catalog as unavailable rather than
// failing every lookup as NODE_NOT_FOUND.
func (c *Catalog) IsEmpty() bool {
	return len(c.snap.Load().nodeTypes) == 0
}
