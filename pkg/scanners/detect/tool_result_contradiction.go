package detect

import (
	"context"
	"strings"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/viewset"
)

// successClaims / failureClaims are locale-limited to English and Korean.
// Other languages produce no claims rather than guesses.
var successClaims = []string{
	"successfully", "succeeded", "completed successfully", "done", "worked",
	"성공", "완료했습니다", "완료되었습니다",
}

var failureClaims = []string{
	"failed", "did not work", "could not", "unable to", "error occurred",
	"실패", "할 수 없습니다", "오류가 발생했습니다",
}

// ToolResultContradictionScanner flags a response that claims success when
// a tool actually failed, or claims failure (without any success claim)
// when a tool actually succeeded.
type ToolResultContradictionScanner struct{}

func NewToolResultContradictionScanner() *ToolResultContradictionScanner {
	return &ToolResultContradictionScanner{}
}

func (s *ToolResultContradictionScanner) Name() string            { return "tool_result_contradiction" }
func (s *ToolResultContradictionScanner) Kind() model.FindingKind { return model.KindDetect }

func (s *ToolResultContradictionScanner) Run(_ context.Context, in model.NormalizedInput) (model.NormalizedInput, []model.Finding, error) {
	out := in.Clone()
	if out.Canonical.ResponseText == nil || out.Views == nil || out.Views.Response == nil || out.Raw == nil {
		return out, nil, nil
	}

	response := strings.ToLower(out.Views.Response.Revealed)
	hasSuccessClaim := containsAny(response, successClaims)
	hasFailureClaim := containsAny(response, failureClaims)

	var anyFailed, anySucceeded bool
	for _, tr := range in.Raw.ToolResults {
		if tr.OK {
			anySucceeded = true
		} else {
			anyFailed = true
		}
	}

	target := model.FindingTarget{Field: model.FieldResponse, View: viewset.Revealed}

	if anyFailed && hasSuccessClaim {
		f := model.NewFinding(
			model.KindDetect, s.Name(), in.RequestID, "response", 0.8, model.RiskHigh,
			"response claims success despite a failed tool result", target,
			map[string]interface{}{"anyToolFailed": true, "hasSuccessClaim": true},
		)
		return out, []model.Finding{f}, nil
	}

	if anySucceeded && hasFailureClaim && !hasSuccessClaim {
		f := model.NewFinding(
			model.KindDetect, s.Name(), in.RequestID, "response", 0.55, model.RiskMedium,
			"response claims failure despite a successful tool result", target,
			map[string]interface{}{"anyToolSucceeded": true, "hasFailureClaim": true},
		)
		return out, []model.Finding{f}, nil
	}

	return out, nil, nil
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
