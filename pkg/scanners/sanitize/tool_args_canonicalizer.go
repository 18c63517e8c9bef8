package sanitize

import (
	"context"
	"encoding/json"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/canonicalize"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/toolargs"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/viewset"
)

// ToolArgsCanonicalizerScanner deep-walks the decoded tool-call argument
// trees and applies the Unicode-cleanup text transform to every string
// leaf, then re-canonicalizes toolCallsJson. Leaves are not trimmed:
// leading/trailing whitespace in a tool arg may be semantic.
type ToolArgsCanonicalizerScanner struct{}

func NewToolArgsCanonicalizerScanner() *ToolArgsCanonicalizerScanner {
	return &ToolArgsCanonicalizerScanner{}
}

func (s *ToolArgsCanonicalizerScanner) Name() string            { return "tool_args_canonicalizer" }
func (s *ToolArgsCanonicalizerScanner) Kind() model.FindingKind { return model.KindSanitize }

func (s *ToolArgsCanonicalizerScanner) Run(_ context.Context, in model.NormalizedInput) (model.NormalizedInput, []model.Finding, error) {
	out := in.Clone()
	if out.Canonical.ToolCallsJSON == "" {
		return out, nil, nil
	}

	var calls []map[string]interface{}
	if err := json.Unmarshal([]byte(out.Canonical.ToolCallsJSON), &calls); err != nil {
		// Malformed tool-call JSON: leave untouched per the no-throw contract.
		return out, nil, nil
	}

	changed := false
	for i, call := range calls {
		args, ok := call["args"]
		if !ok {
			continue
		}
		cleaned := toolargs.WalkStrings(args, func(_ []string, leaf string) string {
			res := cleanText(leaf)
			if res.Text != leaf {
				changed = true
			}
			return res.Text
		})
		calls[i]["args"] = cleaned
	}

	if !changed {
		return out, nil, nil
	}

	out.Canonical.ToolCallsJSON = canonicalize.Canonicalize(calls)

	target := model.FindingTarget{Field: model.FieldPrompt, View: viewset.Raw}
	finding := model.NewFinding(
		model.KindSanitize, s.Name(), in.RequestID, "toolCalls", 0.3, model.RiskLow,
		"tool call argument strings contained invisible or bidi-control characters",
		target,
		nil,
	)
	return out, []model.Finding{finding}, nil
}
