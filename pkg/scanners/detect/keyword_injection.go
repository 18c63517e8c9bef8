package detect

import (
	"context"
	"regexp"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/viewset"
)

type builtinPattern struct {
	re       *regexp.Regexp
	category string
	risk     model.RiskLevel
	score    float64
	summary  string
}

// builtinPatterns is the scanner's fixed, non-hot-reloadable injection
// keyword list: override attempts and system-prompt disclosure probes.
var builtinPatterns = []builtinPattern{
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions?`), "override_attempt", model.RiskHigh, 0.8, "instruction override attempt"},
	{regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)`), "override_attempt", model.RiskHigh, 0.8, "instruction override attempt"},
	{regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|in)\b`), "role_override", model.RiskMedium, 0.6, "role reassignment attempt"},
	{regexp.MustCompile(`(?i)pretend\s+(that\s+)?you\s+are`), "role_override", model.RiskMedium, 0.6, "role reassignment attempt"},
	{regexp.MustCompile(`(?i)act\s+as\s+if\s+you`), "role_override", model.RiskMedium, 0.55, "role reassignment attempt"},
	{regexp.MustCompile(`(?i)(reveal|print|show|repeat)\s+(your\s+)?(system\s+prompt|initial\s+instructions)`), "system_prompt_disclosure", model.RiskHigh, 0.85, "system prompt disclosure probe"},
	{regexp.MustCompile(`(?i)what\s+(are|were)\s+your\s+(original\s+)?instructions`), "system_prompt_disclosure", model.RiskMedium, 0.65, "system prompt disclosure probe"},
	{regexp.MustCompile(`(?i)developer\s+mode\s+(enabled|on|activated)`), "jailbreak", model.RiskHigh, 0.75, "jailbreak activation phrase"},
}

// KeywordInjectionScanner matches a small built-in regex list across all
// four views, independent of any loaded rule pack.
type KeywordInjectionScanner struct{}

func NewKeywordInjectionScanner() *KeywordInjectionScanner { return &KeywordInjectionScanner{} }

func (s *KeywordInjectionScanner) Name() string            { return "keyword_injection" }
func (s *KeywordInjectionScanner) Kind() model.FindingKind { return model.KindDetect }

func (s *KeywordInjectionScanner) Run(_ context.Context, in model.NormalizedInput) (model.NormalizedInput, []model.Finding, error) {
	out := in.Clone()
	if out.Views == nil {
		return out, nil, nil
	}

	var findings []model.Finding

	scan := func(field model.FindingField, source model.Source, chunkIdx *int, key string, vs *viewset.ViewSet) {
		for _, p := range builtinPatterns {
			var matched []viewset.View
			for _, v := range viewset.All {
				if p.re.MatchString(vs.Get(v)) {
					matched = append(matched, v)
				}
			}
			if len(matched) == 0 {
				continue
			}
			preferred := viewset.Preferred(matched)
			text := vs.Get(preferred)
			loc := p.re.FindStringIndex(text)
			start, end := 0, 0
			if loc != nil {
				start = len([]rune(text[:loc[0]]))
				end = start + len([]rune(text[loc[0]:loc[1]]))
			}
			target := model.FindingTarget{Field: field, View: preferred, Source: source, ChunkIndex: chunkIdx}
			findings = append(findings, model.NewFinding(
				model.KindDetect, s.Name(), in.RequestID, key+":"+p.category,
				p.score, p.risk, p.summary, target,
				map[string]interface{}{
					"category":     p.category,
					"matchedViews": matchedViewStrings(matched),
					"snippet":      centeredSnippet(text, start, end),
				},
			))
		}
	}

	scan(model.FieldPrompt, "", nil, "prompt", &out.Views.Prompt)
	for i := range out.Views.Chunks {
		idx := i
		src := model.SourceUnknown
		if i < len(in.Canonical.PromptChunksCanonical) {
			src = in.Canonical.PromptChunksCanonical[i].Source
		}
		scan(model.FieldPromptChunk, src, &idx, chunkKey(i), &out.Views.Chunks[i].Views)
	}
	if out.Views.Response != nil {
		scan(model.FieldResponse, "", nil, "response", out.Views.Response)
	}

	return out, findings, nil
}
