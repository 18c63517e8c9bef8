package detect

import (
	"context"
	"strings"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/history"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/viewset"
)

// HistoryFlipFlopScanner flags a response claiming success immediately
// after a turn whose own evidence (a failed tool, or a failure-claim
// snippet) indicated failure.
type HistoryFlipFlopScanner struct {
	store history.Store
}

func NewHistoryFlipFlopScanner(store history.Store) *HistoryFlipFlopScanner {
	return &HistoryFlipFlopScanner{store: store}
}

func (s *HistoryFlipFlopScanner) Name() string            { return "history_flipflop" }
func (s *HistoryFlipFlopScanner) Kind() model.FindingKind { return model.KindDetect }

func (s *HistoryFlipFlopScanner) Run(ctx context.Context, in model.NormalizedInput) (model.NormalizedInput, []model.Finding, error) {
	out := in.Clone()
	if s.store == nil || out.Raw == nil || out.Raw.Actor == nil || out.Raw.Actor.SessionID == "" {
		return out, nil, nil
	}
	if out.Canonical.ResponseText == nil || out.Views == nil || out.Views.Response == nil {
		return out, nil, nil
	}

	response := strings.ToLower(out.Views.Response.Revealed)
	if !containsAny(response, successClaims) {
		return out, nil, nil
	}

	turns, err := s.store.GetRecent(ctx, out.Raw.Actor.SessionID, 1)
	if err != nil || len(turns) == 0 {
		return out, nil, nil
	}
	prev := turns[len(turns)-1]

	prevFailed := len(prev.FailedTools) > 0 || containsAny(strings.ToLower(prev.ResponseSnippet), failureClaims)
	if !prevFailed {
		return out, nil, nil
	}

	target := model.FindingTarget{Field: model.FieldResponse, View: viewset.Revealed}
	f := model.NewFinding(
		model.KindDetect, s.Name(), in.RequestID, "response", 0.8, model.RiskHigh,
		"response claims success immediately after a turn with failure evidence",
		target,
		map[string]interface{}{"previousRequestId": prev.RequestID},
	)
	return out, []model.Finding{f}, nil
}
