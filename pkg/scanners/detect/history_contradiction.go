package detect

import (
	"context"
	"strings"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/history"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/viewset"
)

// DefaultHistoryWindow is the number of recent turns HistoryContradictionScanner
// consults when constructed with a non-positive window.
const DefaultHistoryWindow = 5

// HistoryContradictionScanner flags a response claiming prior success when
// no turn in the session's recent history actually recorded one.
type HistoryContradictionScanner struct {
	store  history.Store
	window int
}

func NewHistoryContradictionScanner(store history.Store, window int) *HistoryContradictionScanner {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	return &HistoryContradictionScanner{store: store, window: window}
}

func (s *HistoryContradictionScanner) Name() string            { return "history_contradiction" }
func (s *HistoryContradictionScanner) Kind() model.FindingKind { return model.KindDetect }

func (s *HistoryContradictionScanner) Run(ctx context.Context, in model.NormalizedInput) (model.NormalizedInput, []model.Finding, error) {
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

	turns, err := s.store.GetRecent(ctx, out.Raw.Actor.SessionID, s.window)
	if err != nil {
		return out, nil, nil
	}

	for _, t := range turns {
		if len(t.SucceededTools) > 0 {
			return out, nil, nil
		}
	}

	target := model.FindingTarget{Field: model.FieldResponse, View: viewset.Revealed}
	f := model.NewFinding(
		model.KindDetect, s.Name(), in.RequestID, "response", 0.6, model.RiskMedium,
		"response claims prior success but no recent session turn recorded one",
		target,
		map[string]interface{}{"windowTurns": len(turns)},
	)
	return out, []model.Finding{f}, nil
}
