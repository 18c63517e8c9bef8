// Package model defines the data contracts shared across the audit core:
// the inbound request envelope, the normalized working document, findings,
// policy decisions, history turns, and the evidence package schema.
package model

// Source classifies the provenance of a fragment of prompt text.
type Source string

const (
	SourceUser      Source = "user"
	SourceSystem    Source = "system"
	SourceDeveloper Source = "developer"
	SourceRetrieval Source = "retrieval"
	SourceTool      Source = "tool"
	SourceAssistant Source = "assistant"
	SourceUnknown   Source = "unknown"
)

// ValidSources lists every recognized provenance tag.
var ValidSources = map[Source]bool{
	SourceUser: true, SourceSystem: true, SourceDeveloper: true,
	SourceRetrieval: true, SourceTool: true, SourceAssistant: true, SourceUnknown: true,
}

// Actor identifies the caller behind a request, when known.
type Actor struct {
	UserID    string `json:"userId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	IP        string `json:"ip,omitempty"`
}

// PromptChunk is a single provenance-tagged fragment of the prompt, e.g. a
// retrieved document or a system preamble.
type PromptChunk struct {
	Source Source `json:"source"`
	Text   string `json:"text"`
}

// ToolCall is one tool invocation the model emitted.
type ToolCall struct {
	ToolName string      `json:"toolName"`
	Args     interface{} `json:"args"`
}

// ToolResult is the outcome of executing a ToolCall.
type ToolResult struct {
	ToolName  string      `json:"toolName"`
	OK        bool        `json:"ok"`
	Result    interface{} `json:"result"`
	LatencyMs *float64    `json:"latencyMs,omitempty"`
}

// AuditRequest is the immutable input envelope for a single audited turn.
// Callers must not mutate it after construction; Normalize copies out of it
// and never writes back.
type AuditRequest struct {
	RequestID    string                 `json:"requestId"`
	Timestamp    float64                `json:"timestamp"`
	Actor        *Actor                 `json:"actor,omitempty"`
	Model        string                 `json:"model,omitempty"`
	Prompt       string                 `json:"prompt"`
	PromptChunks []PromptChunk          `json:"promptChunks,omitempty"`
	ToolCalls    []ToolCall             `json:"toolCalls,omitempty"`
	ToolResults  []ToolResult           `json:"toolResults,omitempty"`
	ResponseText string                 `json:"responseText,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// MaxRequestIDLen is the upper bound on AuditRequest.RequestID length.
const MaxRequestIDLen = 255

// MaxPromptBytes is the absolute upper bound on prompt size (1 MiB), applied
// regardless of any caller-supplied maxPromptLength.
const MaxPromptBytes = 1 << 20
