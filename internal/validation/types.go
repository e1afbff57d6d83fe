// Package validation implements the ordered, short-circuiting validation
// gateway every workflow passes through before it is accepted or deployed
// (§4.4). Each layer owns one closed slice of the failure space.
package validation

import "github.com/agentoven/workflow-copilot/internal/wf"

// Code is the closed machine-readable error-code taxonomy (§7).
type Code string

const (
	CodeNodeNotAllowed          Code = "NODE_NOT_ALLOWED"
	CodeSchemaError             Code = "SCHEMA_ERROR"
	CodeNodeNotFound            Code = "NODE_NOT_FOUND"
	CodeConnectionSourceMissing Code = "CONNECTION_SOURCE_MISSING"
	CodeConnectionTargetMissing Code = "CONNECTION_TARGET_MISSING"
	CodeCredentialMissing       Code = "CREDENTIAL_MISSING"
	CodeSemanticIssue           Code = "SEMANTIC_ISSUE"
	CodeN8nRejected             Code = "N8N_REJECTED"
	CodeDryRunError             Code = "DRY_RUN_ERROR"
	CodeValidationException     Code = "VALIDATION_EXCEPTION"
	CodeCleanupFailed           Code = "CLEANUP_FAILED"
	CodeCredentialTypeUnknown   Code = "CREDENTIAL_TYPE_UNKNOWN"
)

// Error is one failure raised by a gateway layer.
type Error struct {
	Code        Code
	Layer       string
	Path        string
	Message     string
	Suggestions []string
}

// Warning is a non-blocking observation a layer wants surfaced. Code is
// set when the warning corresponds to a named taxonomy entry (e.g.
// CodeCleanupFailed, CodeCredentialTypeUnknown); it is empty for
// free-form layer observations.
type Warning struct {
	Code    Code
	Layer   string
	Path    string
	Message string
}

// Options tunes a single Validate call without touching Gateway-wide
// configuration.
type Options struct {
	DryRun        bool
	SemanticCheck bool
	Strict        bool // when true, warnings are promoted to errors
	SkipCache     bool
}

// Result is the outcome of running a workflow through the gateway (§4.4
// "Result contract").
type Result struct {
	Valid        bool
	Errors       []Error
	Warnings     []Warning
	CacheHit     bool
	StoppedAt    string // the layer name that short-circuited the pipeline, if any
	PassedLayers []string
	DryRunID     string
	ElapsedMs    int64
	Workflow     *wf.Workflow
}
