package normalize

import (
	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/viewset"
)

// EnsureViews initializes the multi-view payload on in if absent. It is
// idempotent: if Views is already populated, the input is returned
// unchanged. Chunk views are reconstructed in the order of
// Canonical.PromptChunksCanonical.
func EnsureViews(in model.NormalizedInput) model.NormalizedInput {
	if in.Views != nil {
		return in
	}

	chunks := make([]viewset.ChunkViews, len(in.Canonical.PromptChunksCanonical))
	for i, c := range in.Canonical.PromptChunksCanonical {
		chunks[i] = viewset.ChunkViews{
			Source: string(c.Source),
			Views:  viewset.New(c.Text),
		}
	}

	views := &viewset.InputViews{
		Prompt: viewset.New(in.Canonical.Prompt),
		Chunks: chunks,
	}
	if in.Canonical.ResponseText != nil {
		resp := viewset.New(*in.Canonical.ResponseText)
		views.Response = &resp
	}

	in.Views = views
	return in
}
