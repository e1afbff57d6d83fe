// Package wf holds the canonical Workflow representation and the
// structural validator that converts arbitrary agent-submitted input into
// it. Layer 1 of the validation pipeline is the only boundary that
// performs this conversion; every other layer operates on the types below.
package wf

import "strconv"

// Channel enumerates the connection channel kinds the Engine understands.
type Channel string

const (
	ChannelMain             Channel = "main"
	ChannelAITool           Channel = "ai_tool"
	ChannelAIAgent          Channel = "ai_agent"
	ChannelAIMemory         Channel = "ai_memory"
	ChannelAIOutputParser   Channel = "ai_outputParser"
	ChannelAILanguageModel  Channel = "ai_languageModel"
	ChannelAIDocument       Channel = "ai_document"
	ChannelAIEmbedding      Channel = "ai_embedding"
	ChannelAIRetriever      Channel = "ai_retriever"
	ChannelAITextSplitter   Channel = "ai_textSplitter"
	ChannelAIVectorStore    Channel = "ai_vectorStore"
)

var validChannels = map[Channel]bool{
	ChannelMain: true, ChannelAITool: true, ChannelAIAgent: true,
	ChannelAIMemory: true, ChannelAIOutputParser: true, ChannelAILanguageModel: true,
	ChannelAIDocument: true, ChannelAIEmbedding: true, ChannelAIRetriever: true,
	ChannelAITextSplitter: true, ChannelAIVectorStore: true,
}

// IsValidChannel reports whether ch is one of the enumerated channel kinds.
func IsValidChannel(ch Channel) bool { return validChannels[ch] }

// ExecutionOrder is the workflow-level execution ordering policy.
type ExecutionOrder string

const (
	ExecutionOrderV0     ExecutionOrder = "v0"
	ExecutionOrderV1     ExecutionOrder = "v1"
	ExecutionOrderNative ExecutionOrder = ""
)

var validExecutionOrders = map[ExecutionOrder]bool{
	ExecutionOrderV0: true, ExecutionOrderV1: true, ExecutionOrderNative: true,
}

// Position is a 2D canvas coordinate. It accepts both `[x, y]` tuples and
// `{x, y}` objects on the untyped boundary (see ParseWorkflow).
type Position struct {
	X float64
	Y float64
}

// CredentialRef is a reference to a stored credential, keyed by the slot
// name the node type declares (e.g. "httpBasicAuth" -> credential id).
type CredentialRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Node is one operator instance inside a Workflow.
type Node struct {
	ID               string                   `json:"id,omitempty"`
	Name             string                   `json:"name"`
	Type             string                   `json:"type"`
	TypeVersion      float64                  `json:"typeVersion"`
	Position         Position                 `json:"position"`
	Parameters       map[string]any           `json:"parameters,omitempty"`
	Credentials      map[string]CredentialRef `json:"credentials,omitempty"`
	Disabled         bool                     `json:"disabled,omitempty"`
	RetryOnFail      bool                     `json:"retryOnFail,omitempty"`
	ContinueOnFail   bool                     `json:"continueOnFail,omitempty"`
	ExecuteOnce      bool                     `json:"executeOnce,omitempty"`
}

// ConnectionEndpoint names one side of a directed edge.
type ConnectionEndpoint struct {
	Node  string `json:"node"`
	Type  Channel `json:"type,omitempty"`
	Index int    `json:"index,omitempty"`
}

// ConnectionSet maps a source node name to its outgoing edges, grouped by
// channel and then by output index, mirroring the Engine's own wire shape.
type ConnectionSet map[string]map[Channel][][]ConnectionEndpoint

// Settings holds optional workflow-level execution configuration.
type Settings struct {
	ExecutionOrder   ExecutionOrder `json:"executionOrder,omitempty"`
	Timezone         string         `json:"timezone,omitempty"`
	ErrorWorkflow    string         `json:"errorWorkflow,omitempty"`
	TimeoutSeconds   int            `json:"executionTimeout,omitempty"`
	SaveManualRuns   bool           `json:"saveManualExecutions,omitempty"`
}

// Workflow is the canonical in-memory representation every validation
// layer beyond Layer 1 operates on.
type Workflow struct {
	ID          string        `json:"id,omitempty"`
	Name        string        `json:"name"`
	Active      bool          `json:"active,omitempty"`
	Nodes       []Node        `json:"nodes"`
	Connections ConnectionSet `json:"connections,omitempty"`
	Settings    Settings      `json:"settings,omitempty"`
	Tags        []string      `json:"tags,omitempty"`
	StaticData  map[string]any `json:"staticData,omitempty"`
	PinData     map[string]any `json:"pinData,omitempty"`
}

// NodeByName returns the node with the given name, or false if absent.
// Callers rely on Layer 1 having already rejected duplicate names.
func (w *Workflow) NodeByName(name string) (Node, bool) {
	for _, n := range w.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

// Fingerprint returns the stable reduction used as the validation-cache
// key: the ordered (name, type) pairs plus node/connection counts. It does
// not include parameters or positions, matching the cache contract that a
// cosmetic edit does not invalidate a validation result.
func (w *Workflow) Fingerprint() []string {
	connCount := 0
	for _, byChannel := range w.Connections {
		for _, byIndex := range byChannel {
			for _, endpoints := range byIndex {
				connCount += len(endpoints)
			}
		}
	}
	pairs := make([]string, 0, len(w.Nodes)+2)
	for _, n := range w.Nodes {
		pairs = append(pairs, n.Name+"|"+n.Type)
	}
	pairs = append(pairs,
		"nodeCount="+strconv.Itoa(len(w.Nodes)),
		"connCount="+strconv.Itoa(connCount),
	)
	return pairs
}
