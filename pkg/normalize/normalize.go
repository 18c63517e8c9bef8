// Package normalize builds the deterministic NormalizedInput working
// document from a raw AuditRequest: field validation, trimming, tool-name
// deduplication, and a lightweight language hint.
package normalize

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/canonicalize"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
)

// Options configures Normalize. MaxPromptLength, when non-zero, is enforced
// in addition to the absolute MaxPromptBytes cap.
type Options struct {
	MaxPromptLength int
}

// Normalize validates req and produces its NormalizedInput. It is
// deterministic for equal inputs and never mutates req.
func Normalize(req *model.AuditRequest, opts Options) (*model.NormalizedInput, error) {
	if req == nil {
		return nil, invalid("", "request is nil")
	}
	if strings.TrimSpace(req.RequestID) == "" {
		return nil, invalid("requestId", "requestId is required")
	}
	if len(req.RequestID) > model.MaxRequestIDLen {
		return nil, invalid("requestId", "requestId exceeds %d characters", model.MaxRequestIDLen)
	}
	if math.IsNaN(req.Timestamp) || math.IsInf(req.Timestamp, 0) || req.Timestamp < 0 {
		return nil, invalid("timestamp", "timestamp must be a finite number >= 0")
	}
	if len(req.Prompt) > model.MaxPromptBytes {
		return nil, invalid("prompt", "prompt exceeds the %d byte absolute cap", model.MaxPromptBytes)
	}
	if opts.MaxPromptLength > 0 && len([]rune(req.Prompt)) > opts.MaxPromptLength {
		return nil, invalid("prompt", "prompt exceeds configured maxPromptLength %d", opts.MaxPromptLength)
	}

	trimmedPrompt := strings.TrimSpace(req.Prompt)

	chunks := make([]model.PromptChunk, 0, len(req.PromptChunks))
	for i, c := range req.PromptChunks {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		source := c.Source
		if source == "" {
			source = model.SourceUnknown
		}
		if !model.ValidSources[source] {
			return nil, invalid("promptChunks", "chunk %d has unrecognized source %q", i, c.Source)
		}
		chunks = append(chunks, model.PromptChunk{Source: source, Text: text})
	}

	toolCallsJSON := canonicalize.Canonicalize(canonicalize.ToAnySlice(req.ToolCalls))
	toolResultsJSON := canonicalize.Canonicalize(canonicalize.ToAnySlice(req.ToolResults))

	var responseText *string
	if req.ResponseText != "" {
		trimmed := strings.TrimSpace(req.ResponseText)
		responseText = &trimmed
	}

	toolNames := dedupSortedToolNames(req.ToolCalls)

	features := model.Features{
		HasToolCalls:   len(req.ToolCalls) > 0,
		HasToolResults: len(req.ToolResults) > 0,
		ToolNames:      toolNames,
		LanguageHint:   languageHint(trimmedPrompt),
		PromptLength:   len([]rune(trimmedPrompt)),
	}

	canonical := model.Canonical{
		Prompt:                trimmedPrompt,
		PromptChunksCanonical: chunks,
		ToolCallsJSON:         toolCallsJSON,
		ToolResultsJSON:       toolResultsJSON,
		ResponseText:          responseText,
	}

	return &model.NormalizedInput{
		RequestID: req.RequestID,
		Canonical: canonical,
		Features:  features,
		Raw:       req,
	}, nil
}


func dedupSortedToolNames(calls []model.ToolCall) []string {
	set := make(map[string]bool, len(calls))
	for _, c := range calls {
		if c.ToolName != "" {
			set[c.ToolName] = true
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// languageHint applies a coarse Hangul-vs-Latin script majority heuristic.
// Locales beyond English/Korean are left unguessed: anything without a
// Hangul or Latin majority reports "unknown".
func languageHint(text string) model.LanguageHint {
	if text == "" {
		return model.LangUnknown
	}
	var hangul, latin, letters int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		switch {
		case unicode.Is(unicode.Hangul, r):
			hangul++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}
	if letters == 0 {
		return model.LangUnknown
	}
	if float64(hangul)/float64(letters) > 0.3 {
		return model.LangKorean
	}
	if float64(latin)/float64(letters) > 0.5 {
		return model.LangEnglish
	}
	return model.LangUnknown
}
