package model

import "github.com/Taep/schnabel-open-audit-sdk/pkg/viewset"

// LanguageHint is a coarse language classification used by a handful of
// locale-limited detectors (tool_result_fact_mismatch's claim aliases).
type LanguageHint string

const (
	LangKorean  LanguageHint = "ko"
	LangEnglish LanguageHint = "en"
	LangUnknown LanguageHint = "unknown"
)

// Canonical holds the trimmed / canonicalized text views of a request that
// scanners read from and rewrite as they mutate the working document.
type Canonical struct {
	Prompt                string        `json:"prompt"`
	PromptChunksCanonical []PromptChunk `json:"promptChunksCanonical"`
	ToolCallsJSON         string        `json:"toolCallsJson"`
	ToolResultsJSON       string        `json:"toolResultsJson"`
	ResponseText          *string       `json:"responseText,omitempty"`
}

// Features is a compact derived-facts summary of the request, recomputed
// whenever sanitizers change prompt length.
type Features struct {
	HasToolCalls   bool         `json:"hasToolCalls"`
	HasToolResults bool         `json:"hasToolResults"`
	ToolNames      []string     `json:"toolNames"`
	LanguageHint   LanguageHint `json:"languageHint"`
	PromptLength   int          `json:"promptLength"`
}

// NormalizedInput is the working document threaded through the scanner
// chain. It is created once by Normalize, then replaced by value after each
// scanner runs, and frozen once the chain completes.
type NormalizedInput struct {
	RequestID string              `json:"requestId"`
	Canonical Canonical           `json:"canonical"`
	Features  Features            `json:"features"`
	Views     *viewset.InputViews `json:"views,omitempty"`

	// Raw preserves the original request by reference. It must never be
	// mutated by any scanner.
	Raw *AuditRequest `json:"-"`
}

// Clone returns a shallow value-copy of the NormalizedInput suitable for
// handing to the next scanner in the chain ("replaced by value"). The
// canonical chunk and tool-name slices are copied so a scanner can rewrite
// them without aliasing its predecessor's output; Views stays shared, since
// scanners mutate the view payload in place and the chain carries it forward.
func (n NormalizedInput) Clone() NormalizedInput {
	out := n
	out.Canonical.PromptChunksCanonical = append([]PromptChunk(nil), n.Canonical.PromptChunksCanonical...)
	out.Features.ToolNames = append([]string(nil), n.Features.ToolNames...)
	return out
}
