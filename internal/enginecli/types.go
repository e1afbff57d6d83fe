package enginecli

import "time"

// HealthResult is the outcome of Client.Health.
type HealthResult struct {
	OK      bool
	Version string
}

// Execution mirrors the Engine's execution resource.
type Execution struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflowId"`
	Status     string         `json:"status"`
	StartedAt  time.Time      `json:"startedAt"`
	StoppedAt  *time.Time     `json:"stoppedAt,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// CredentialSummary mirrors the Engine's credential listing shape. The
// core never sees credential secret material, only identifiers and type.
type CredentialSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// ListFilters is a generic filter/pagination bag passed through to the
// Engine's listing endpoints.
type ListFilters struct {
	Limit  int
	Offset int
	Extra  map[string]string
}

// Page is a bounded result page.
type Page[T any] struct {
	Items      []T
	NextCursor string
}
