// Package catalog maintains the in-memory, periodically refreshed index of
// the Engine's node types and credential types (§4.2). It owns the
// acquisition fallback ladder, the node restriction policy filter, and the
// catalog's query/statistics surface.
package catalog

import "time"

// PropertyDescriptor describes one configurable field on a node type or
// credential type.
type PropertyDescriptor struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Default     any      `json:"default,omitempty"`
	Required    bool     `json:"required,omitempty"`
	DisplayWhen map[string]any `json:"displayOptions,omitempty"`
	Options     []string `json:"options,omitempty"`
}

// NodeType is one catalog entry for a node the Engine can execute.
type NodeType struct {
	ID                 string               `json:"id"`
	DisplayName        string               `json:"displayName"`
	Description        string               `json:"description,omitempty"`
	Versions           []float64            `json:"versions,omitempty"`
	DefaultParameters  map[string]any       `json:"defaultParameters,omitempty"`
	InputChannels      []string             `json:"inputs,omitempty"`
	OutputChannels     []string             `json:"outputs,omitempty"`
	Properties         []PropertyDescriptor `json:"properties,omitempty"`
	RequiredCredentials []string            `json:"requiredCredentials,omitempty"`
	Group              []string             `json:"group,omitempty"`
	Category           string               `json:"category,omitempty"`
}

// CredentialType is one catalog entry describing a storable credential
// kind a node may require.
type CredentialType struct {
	ID         string               `json:"id"`
	DisplayName string              `json:"displayName"`
	Properties []PropertyDescriptor `json:"properties,omitempty"`
	AuthScheme string               `json:"authScheme,omitempty"`
}

// Source identifies which rung of the acquisition ladder produced the
// current snapshot.
type Source string

const (
	SourceSessionIntrospection Source = "session-introspection"
	SourceAPIKeyIntrospection  Source = "apikey-introspection"
	SourceAPIKeyAlternate      Source = "apikey-alternate"
	SourceWorkflowScan         Source = "workflow-scan"
	SourceNone                 Source = "none"
)

// Stats summarizes the current snapshot per §4.2 "Statistics".
type Stats struct {
	TotalNodes       int
	TotalCredentials int
	TriggerCount     int
	ActionCount      int
	AINodeCount      int
	LastRefresh      time.Time
	EngineVersion    string
	SyncSource       Source
}

// Event is emitted to attached listeners on catalog lifecycle transitions.
type Event struct {
	Kind   EventKind
	Source Source
	Err    error
	At     time.Time
}

// EventKind enumerates the catalog's narrow listener events (§9: no
// untyped broadcast — a typed Listener interface instead).
type EventKind string

const (
	EventSynced       EventKind = "synced"
	EventSyncError    EventKind = "syncError"
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
)

// Listener receives catalog lifecycle events. Attach at wire-up time;
// there is no ad-hoc broadcast.
type Listener interface {
	OnCatalogEvent(Event)
}

// NoopListener discards every event. It is the default when the caller
// does not need to observe catalog lifecycle transitions.
type NoopListener struct{}

// OnCatalogEvent implements Listener.
func (NoopListener) OnCatalogEvent(Event) {}
