package sanitize

import (
	"context"
	"strings"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/viewset"
)

func isCollapsibleSeparator(r rune) bool {
	switch r {
	case '|', '.', '_', '-', '+':
		return true
	default:
		return false
	}
}

// SeparatorCollapseScanner removes separator characters inserted between
// letters/digits to defeat substring matching, e.g. "i.g.n.o.r.e" ->
// "ignore".
type SeparatorCollapseScanner struct{}

func NewSeparatorCollapseScanner() *SeparatorCollapseScanner { return &SeparatorCollapseScanner{} }

func (s *SeparatorCollapseScanner) Name() string            { return "separator_collapse" }
func (s *SeparatorCollapseScanner) Kind() model.FindingKind { return model.KindSanitize }

func (s *SeparatorCollapseScanner) Run(_ context.Context, in model.NormalizedInput) (model.NormalizedInput, []model.Finding, error) {
	out := in.Clone()
	if out.Views == nil {
		return out, nil, nil
	}

	var findings []model.Finding

	applyTo := func(field model.FindingField, sourceTag model.Source, chunkIdx *int, vs *viewset.ViewSet, key string) {
		collapsed, removed := collapseSeparators(vs.Sanitized)
		if removed == 0 {
			return
		}
		vs.Sanitized = collapsed
		vs.Revealed, _ = collapseSeparators(vs.Revealed)

		risk := model.RiskLow
		score := 0.35
		if removed >= 6 {
			risk = model.RiskMedium
			score = 0.5
		}
		target := model.FindingTarget{Field: field, View: viewset.Sanitized, Source: sourceTag, ChunkIndex: chunkIdx}
		findings = append(findings, model.NewFinding(
			model.KindSanitize, s.Name(), in.RequestID, key, score, risk,
			"separator characters collapsed between letters/digits",
			target,
			map[string]interface{}{"removedSeparatorCount": removed},
		))
	}

	applyTo(model.FieldPrompt, "", nil, &out.Views.Prompt, "prompt")
	for i := range out.Views.Chunks {
		idx := i
		src := model.SourceUnknown
		if i < len(out.Canonical.PromptChunksCanonical) {
			src = out.Canonical.PromptChunksCanonical[i].Source
		}
		applyTo(model.FieldPromptChunk, src, &idx, &out.Views.Chunks[i].Views, chunkKey(i))
	}
	if out.Views.Response != nil {
		applyTo(model.FieldResponse, "", nil, out.Views.Response, "response")
	}

	syncCanonicalFromRevealed(&out)
	return out, findings, nil
}

// collapseSeparators removes a collapsible separator whenever it sits
// between two letter/number code points, or at a letter boundary's leading
// or trailing edge, and reports how many were removed.
func collapseSeparators(s string) (string, int) {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	removed := 0

	for i, r := range runes {
		if !isCollapsibleSeparator(r) {
			b.WriteRune(r)
			continue
		}
		prevLetter := i > 0 && isLetterOrNumber(runes[i-1])
		nextLetter := i+1 < len(runes) && isLetterOrNumber(runes[i+1])
		if prevLetter && nextLetter {
			removed++
			continue
		}
		if (prevLetter && !nextLetter) || (!prevLetter && nextLetter) {
			removed++
			continue
		}
		b.WriteRune(r)
	}
	return b.String(), removed
}
