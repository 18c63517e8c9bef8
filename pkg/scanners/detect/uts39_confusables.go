package detect

import (
	"context"
	"unicode"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/viewset"
	"golang.org/x/text/unicode/norm"
)

// Uts39ConfusablesScanner flags text that mixes scripts known to carry
// visually confusable code points, or whose UTS#39 skeleton differs from
// its plain NFKC form at all (a weaker but still notable signal).
type Uts39ConfusablesScanner struct{}

func NewUts39ConfusablesScanner() *Uts39ConfusablesScanner { return &Uts39ConfusablesScanner{} }

func (s *Uts39ConfusablesScanner) Name() string            { return "uts39_confusables" }
func (s *Uts39ConfusablesScanner) Kind() model.FindingKind { return model.KindDetect }

func (s *Uts39ConfusablesScanner) Run(_ context.Context, in model.NormalizedInput) (model.NormalizedInput, []model.Finding, error) {
	out := in.Clone()
	if out.Views == nil {
		return out, nil, nil
	}

	var findings []model.Finding

	check := func(field model.FindingField, source model.Source, chunkIdx *int, key string, vs *viewset.ViewSet) {
		if f := s.evaluate(in.RequestID, key, field, source, chunkIdx, vs); f != nil {
			findings = append(findings, *f)
		}
	}

	check(model.FieldPrompt, "", nil, "prompt", &out.Views.Prompt)
	for i := range out.Views.Chunks {
		idx := i
		src := model.SourceUnknown
		if i < len(in.Canonical.PromptChunksCanonical) {
			src = in.Canonical.PromptChunksCanonical[i].Source
		}
		check(model.FieldPromptChunk, src, &idx, chunkKey(i), &out.Views.Chunks[i].Views)
	}

	return out, findings, nil
}

func (s *Uts39ConfusablesScanner) evaluate(requestID, key string, field model.FindingField, source model.Source, chunkIdx *int, vs *viewset.ViewSet) *model.Finding {
	nfkcText := norm.NFKC.String(vs.Revealed)
	scripts := scriptsIn(nfkcText)

	target := model.FindingTarget{Field: field, View: viewset.Skeleton, Source: source, ChunkIndex: chunkIdx}

	if countNotableScripts(scripts) > 1 {
		f := model.NewFinding(
			model.KindDetect, s.Name(), requestID, key, 0.75, model.RiskHigh,
			"text spans multiple scripts commonly used for confusable substitution",
			target, map[string]interface{}{"scripts": scriptNames(scripts)},
		)
		return &f
	}

	if vs.Skeleton != "" && vs.Skeleton != nfkcText {
		f := model.NewFinding(
			model.KindDetect, s.Name(), requestID, key, 0.5, model.RiskMedium,
			"UTS#39 skeleton differs from the NFKC-normalized text",
			target, map[string]interface{}{"skeleton": vs.Skeleton},
		)
		return &f
	}

	return nil
}

var notableScripts = []string{"Latin", "Cyrillic", "Greek"}

func scriptsIn(text string) map[string]bool {
	found := make(map[string]bool)
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Latin, r):
			found["Latin"] = true
		case unicode.Is(unicode.Cyrillic, r):
			found["Cyrillic"] = true
		case unicode.Is(unicode.Greek, r):
			found["Greek"] = true
		}
	}
	return found
}

func countNotableScripts(found map[string]bool) int {
	n := 0
	for _, s := range notableScripts {
		if found[s] {
			n++
		}
	}
	return n
}

func scriptNames(found map[string]bool) []string {
	var out []string
	for _, s := range notableScripts {
		if found[s] {
			out = append(out, s)
		}
	}
	return out
}
