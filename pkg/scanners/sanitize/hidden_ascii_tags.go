package sanitize

import (
	"context"
	"strings"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/viewset"
)

const (
	tagRangeStart = 0xE0000
	tagRangeEnd   = 0xE007F
)

// HiddenAsciiTagsScanner decodes the Unicode TAG block (U+E0000..U+E007F),
// a range originally defined for deprecated language tags but repurposed by
// jailbreak payloads to smuggle invisible ASCII instructions.
type HiddenAsciiTagsScanner struct{}

func NewHiddenAsciiTagsScanner() *HiddenAsciiTagsScanner { return &HiddenAsciiTagsScanner{} }

func (s *HiddenAsciiTagsScanner) Name() string            { return "hidden_ascii_tags" }
func (s *HiddenAsciiTagsScanner) Kind() model.FindingKind { return model.KindSanitize }

func (s *HiddenAsciiTagsScanner) Run(_ context.Context, in model.NormalizedInput) (model.NormalizedInput, []model.Finding, error) {
	out := in.Clone()
	if out.Views == nil {
		return out, nil, nil
	}

	var findings []model.Finding

	applyTo := func(field model.FindingField, sourceTag model.Source, chunkIdx *int, vs *viewset.ViewSet, key string) {
		sanitized, decoded, count := decodeTags(vs.Sanitized)
		vs.Sanitized = sanitized
		if count == 0 {
			return
		}
		revealedBase, _, _ := decodeTags(vs.Revealed)
		vs.Revealed = strings.TrimSpace(revealedBase + "\n" + decoded)

		target := model.FindingTarget{Field: field, View: viewset.Revealed, Source: sourceTag, ChunkIndex: chunkIdx}
		findings = append(findings, model.NewFinding(
			model.KindSanitize, s.Name(), in.RequestID, key, 0.85, model.RiskHigh,
			"hidden Unicode TAG characters decoded to ASCII payload",
			target,
			map[string]interface{}{
				"tagCount": count,
				"decoded":  decoded,
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

// decodeTags removes every TAG code point from s and returns the cleaned
// string, the decoded ASCII payload (printable tag code points only), and
// the total number of tag code points seen.
func decodeTags(s string) (sanitized string, decoded string, count int) {
	var clean strings.Builder
	var ascii strings.Builder
	clean.Grow(len(s))

	for _, r := range s {
		if r >= tagRangeStart && r <= tagRangeEnd {
			count++
			code := r - tagRangeStart
			if code >= 0x20 && code <= 0x7E {
				ascii.WriteRune(code)
			}
			continue
		}
		clean.WriteRune(r)
	}
	return clean.String(), ascii.String(), count
}
