package detect

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/toolargs"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/viewset"
)

var traversalPattern = regexp.MustCompile(`(^|/)\.\.(/|$)`)

var encodedTraversalMarkers = []string{"%2e%2e", "%2f", "%5c"}

var sensitivePathPrefixes = []string{
	"/etc/passwd", "/etc/shadow", "/proc/", "/sys/", "/root/", ".ssh", "id_rsa", ".env",
	"c:/windows/system32", "c:/users/", "c:/windows/",
}

// ToolArgsPathTraversalScanner deep-walks decoded tool-call args for
// directory-traversal sequences and references to well-known sensitive
// filesystem paths.
type ToolArgsPathTraversalScanner struct{}

func NewToolArgsPathTraversalScanner() *ToolArgsPathTraversalScanner {
	return &ToolArgsPathTraversalScanner{}
}

func (s *ToolArgsPathTraversalScanner) Name() string            { return "tool_args_path_traversal" }
func (s *ToolArgsPathTraversalScanner) Kind() model.FindingKind { return model.KindDetect }

func (s *ToolArgsPathTraversalScanner) Run(_ context.Context, in model.NormalizedInput) (model.NormalizedInput, []model.Finding, error) {
	out := in.Clone()
	if out.Canonical.ToolCallsJSON == "" {
		return out, nil, nil
	}

	var calls []struct {
		ToolName string      `json:"toolName"`
		Args     interface{} `json:"args"`
	}
	if err := json.Unmarshal([]byte(out.Canonical.ToolCallsJSON), &calls); err != nil {
		return out, nil, nil
	}

	var findings []model.Finding
	for i, call := range calls {
		toolargs.Visit(call.Args, func(path []string, leaf string) {
			if !looksLikePath(leaf) {
				return
			}

			decoded := doubleDecode(leaf)
			normalized := strings.ToLower(strings.ReplaceAll(decoded, "\\", "/"))

			risk, reason := classifyPath(leaf, normalized)
			if risk == model.RiskNone {
				return
			}

			argPath := strings.Join(path, ".")
			key := "toolCall:" + chunkKey(i) + ":" + argPath
			target := model.FindingTarget{Field: model.FieldPrompt, View: viewset.Raw}
			score := 0.5
			if risk == model.RiskHigh {
				score = 0.8
			}
			findings = append(findings, model.NewFinding(
				model.KindDetect, s.Name(), in.RequestID, key, score, risk, reason, target,
				map[string]interface{}{
					"toolName": call.ToolName,
					"argPath":  argPath,
					"value":    leaf,
					"reason":   reason,
				},
			))
		})
	}

	return out, findings, nil
}

func looksLikePath(s string) bool {
	return strings.ContainsAny(s, "/\\") || strings.Contains(s, "..")
}

// doubleDecode applies percent-decoding twice to catch doubly-encoded
// traversal sequences like "%252e%252e".
func doubleDecode(s string) string {
	once, err := url.PathUnescape(s)
	if err != nil {
		once = s
	}
	twice, err := url.PathUnescape(once)
	if err != nil {
		return once
	}
	return twice
}

func classifyPath(original, normalized string) (model.RiskLevel, string) {
	for _, prefix := range sensitivePathPrefixes {
		if strings.Contains(normalized, prefix) {
			return model.RiskHigh, "reference to sensitive path " + prefix
		}
	}

	lowerOriginal := strings.ToLower(original)
	for _, marker := range encodedTraversalMarkers {
		if strings.Contains(lowerOriginal, marker) {
			return model.RiskMedium, "encoded path traversal marker " + marker
		}
	}
	if traversalPattern.MatchString(normalized) {
		return model.RiskMedium, "directory traversal sequence"
	}
	return model.RiskNone, ""
}
