// Package enrich implements L2 enrich scanners: stages that derive new view
// data without themselves scoring risk. Today this is the single UTS#39
// skeleton view builder consumed by the confusables detect scanner.
package enrich

import (
	"context"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/confusables"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
)

// Uts39SkeletonScanner writes views.*.skeleton = skeletonize(views.*.revealed)
// for the prompt, every chunk, and the response. It emits no findings;
// detection of confusable spans is the Uts39Confusables detect scanner's job.
type Uts39SkeletonScanner struct {
	table *confusables.Table
}

func NewUts39SkeletonScanner(table *confusables.Table) *Uts39SkeletonScanner {
	return &Uts39SkeletonScanner{table: table}
}

func (s *Uts39SkeletonScanner) Name() string            { return "uts39_skeleton" }
func (s *Uts39SkeletonScanner) Kind() model.FindingKind { return model.KindEnrich }

func (s *Uts39SkeletonScanner) Run(_ context.Context, in model.NormalizedInput) (model.NormalizedInput, []model.Finding, error) {
	out := in.Clone()
	if out.Views == nil || s.table == nil {
		return out, nil, nil
	}

	out.Views.Prompt.Skeleton = s.table.Skeletonize(out.Views.Prompt.Revealed)
	for i := range out.Views.Chunks {
		out.Views.Chunks[i].Views.Skeleton = s.table.Skeletonize(out.Views.Chunks[i].Views.Revealed)
	}
	if out.Views.Response != nil {
		out.Views.Response.Skeleton = s.table.Skeletonize(out.Views.Response.Revealed)
	}

	return out, nil, nil
}
