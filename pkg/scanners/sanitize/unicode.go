package sanitize

import (
	"context"
	"strconv"
	"strings"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/viewset"
)

// UnicodeScanner runs NFKC normalization and strips invisible/bidi control
// code points from the sanitized and revealed views. It is the first sanitizer in any
// recommended chain.
type UnicodeScanner struct{}

func NewUnicodeScanner() *UnicodeScanner { return &UnicodeScanner{} }

func (s *UnicodeScanner) Name() string            { return "unicode_sanitizer" }
func (s *UnicodeScanner) Kind() model.FindingKind { return model.KindSanitize }

func (s *UnicodeScanner) Run(_ context.Context, in model.NormalizedInput) (model.NormalizedInput, []model.Finding, error) {
	out := in.Clone()
	if out.Views == nil {
		return out, nil, nil
	}

	var findings []model.Finding

	applyTo := func(field model.FindingField, sourceTag model.Source, chunkIdx *int, vs *viewset.ViewSet, key string) {
		res := cleanText(vs.Sanitized)
		vs.Sanitized = strings.TrimSpace(res.Text)
		revealed := cleanText(vs.Revealed)
		vs.Revealed = strings.TrimSpace(revealed.Text)

		total := res.RemovedInvisible + res.RemovedBidi
		if total == 0 && !res.NFKCChanged {
			return
		}
		risk := model.RiskLow
		if res.RemovedInvisible > 0 || res.RemovedBidi > 0 {
			risk = model.RiskMedium
		}
		score := 0.4
		if risk == model.RiskMedium {
			score = 0.55
		}
		target := model.FindingTarget{Field: field, View: viewset.Sanitized, Source: sourceTag, ChunkIndex: chunkIdx}
		findings = append(findings, model.NewFinding(
			model.KindSanitize, s.Name(), in.RequestID, key, score, risk,
			"unicode normalization removed invisible or bidi-control characters",
			target,
			map[string]interface{}{
				"removedInvisibleCount": res.RemovedInvisible,
				"removedBidiCount":      res.RemovedBidi,
				"nfkcChanged":           res.NFKCChanged,
			},
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

func chunkKey(i int) string {
	return "chunk:" + strconv.Itoa(i)
}

// syncCanonicalFromRevealed propagates the most informative view (revealed)
// back into canonical.prompt / promptChunksCanonical / responseText, and
// recomputes features.promptLength, so detectors that read canonical
// directly still benefit from sanitization.
func syncCanonicalFromRevealed(in *model.NormalizedInput) {
	if in.Views == nil {
		return
	}
	in.Canonical.Prompt = in.Views.Prompt.Revealed
	for i := range in.Views.Chunks {
		if i < len(in.Canonical.PromptChunksCanonical) {
			in.Canonical.PromptChunksCanonical[i].Text = in.Views.Chunks[i].Views.Revealed
		}
	}
	if in.Views.Response != nil && in.Canonical.ResponseText != nil {
		revealed := in.Views.Response.Revealed
		in.Canonical.ResponseText = &revealed
	}
	in.Features.PromptLength = len([]rune(in.Canonical.Prompt))
}
