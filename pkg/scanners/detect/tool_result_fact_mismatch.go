package detect

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/viewset"
)

// allowedNumericKeys / allowedBooleanKeys are the only tool-result object
// keys this scanner will extract facts from, a deliberately conservative
// list to avoid false positives on arbitrary result shapes.
var allowedNumericKeys = map[string]bool{
	"balance": true, "total": true, "count": true, "amount": true, "score": true,
}

var allowedBooleanKeys = map[string]bool{
	"found": true, "exists": true, "success": true,
}

// aliasesEN / aliasesKO map a fact key to the phrases a response might use
// to refer to it in a claim. English and Korean only; other locales
// produce no claims rather than guesses.
var aliasesEN = map[string][]string{
	"balance": {"balance"},
	"total":   {"total"},
	"count":   {"count", "number of"},
	"amount":  {"amount"},
	"score":   {"score"},
	"found":   {"found"},
	"exists":  {"exists", "exist"},
	"success": {"success", "successful", "succeeded"},
}

var aliasesKO = map[string][]string{
	"balance": {"잔액"},
	"total":   {"합계", "총액"},
	"count":   {"개수", "수"},
	"amount":  {"금액"},
	"score":   {"점수"},
	"found":   {"찾았습니다"},
	"exists":  {"존재합니다"},
	"success": {"성공"},
}

// ToolResultFactMismatchScanner extracts a small allow-listed set of
// numeric/boolean facts from tool results and flags when the response's
// textual claim about that fact contradicts the actual value.
type ToolResultFactMismatchScanner struct{}

func NewToolResultFactMismatchScanner() *ToolResultFactMismatchScanner {
	return &ToolResultFactMismatchScanner{}
}

func (s *ToolResultFactMismatchScanner) Name() string            { return "tool_result_fact_mismatch" }
func (s *ToolResultFactMismatchScanner) Kind() model.FindingKind { return model.KindDetect }

func (s *ToolResultFactMismatchScanner) Run(_ context.Context, in model.NormalizedInput) (model.NormalizedInput, []model.Finding, error) {
	out := in.Clone()
	if out.Raw == nil || out.Canonical.ResponseText == nil || out.Views == nil || out.Views.Response == nil {
		return out, nil, nil
	}

	response := out.Views.Response.Revealed
	var findings []model.Finding

	for ti, tr := range in.Raw.ToolResults {
		facts := extractFacts(tr.Result)
		for key, val := range facts {
			switch v := val.(type) {
			case float64:
				if claim, ok := findNumericClaim(response, key); ok && claim != v {
					findings = append(findings, s.finding(in.RequestID, ti, key, response,
						0.85, model.RiskHigh,
						"response claims a numeric value that contradicts the tool result",
						map[string]interface{}{"key": key, "toolValue": v, "claimedValue": claim}))
				}
			case bool:
				positive, negative := findBooleanClaim(response, key)
				if !v && positive {
					findings = append(findings, s.finding(in.RequestID, ti, key, response,
						0.85, model.RiskHigh,
						"response makes a positive claim contradicting a false tool result",
						map[string]interface{}{"key": key, "toolValue": v, "claim": "positive"}))
				} else if v && negative {
					findings = append(findings, s.finding(in.RequestID, ti, key, response,
						0.55, model.RiskMedium,
						"response makes a negative claim contradicting a true tool result",
						map[string]interface{}{"key": key, "toolValue": v, "claim": "negative"}))
				}
			}
		}
	}

	return out, findings, nil
}

func (s *ToolResultFactMismatchScanner) finding(requestID string, toolIdx int, key, response string, score float64, risk model.RiskLevel, summary string, evidence map[string]interface{}) model.Finding {
	target := model.FindingTarget{Field: model.FieldResponse, View: viewset.Revealed}
	return model.NewFinding(
		model.KindDetect, s.Name(), requestID, "tool:"+strconv.Itoa(toolIdx)+":"+key,
		score, risk, summary, target, evidence,
	)
}

// extractFacts pulls allow-listed numeric/boolean keys out of an object
// result, plus an array result's length as "count".
func extractFacts(result interface{}) map[string]interface{} {
	facts := make(map[string]interface{})
	switch v := result.(type) {
	case map[string]interface{}:
		for key, val := range v {
			if !allowedNumericKeys[key] && !allowedBooleanKeys[key] {
				continue
			}
			switch n := val.(type) {
			case float64:
				if allowedNumericKeys[key] {
					facts[key] = n
				}
			case bool:
				if allowedBooleanKeys[key] {
					facts[key] = n
				}
			}
		}
	case []interface{}:
		facts["count"] = float64(len(v))
	}
	return facts
}

var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// findNumericClaim looks for "<alias>[ is|=|:]? <number>" near an alias of
// key in response and returns the claimed number if found.
func findNumericClaim(response, key string) (float64, bool) {
	for _, alias := range aliasSet(key) {
		idx := strings.Index(strings.ToLower(response), strings.ToLower(alias))
		if idx < 0 {
			continue
		}
		tail := response[idx+len(alias):]
		tail = strings.TrimLeft(tail, " \t")
		tail = strings.TrimPrefix(tail, "is")
		tail = strings.TrimPrefix(tail, "=")
		tail = strings.TrimPrefix(tail, ":")
		tail = strings.TrimLeft(tail, " \t")
		loc := numberPattern.FindString(tail)
		if loc == "" {
			continue
		}
		f, err := strconv.ParseFloat(loc, 64)
		if err != nil {
			continue
		}
		return f, true
	}
	return 0, false
}

func findBooleanClaim(response, key string) (positive, negative bool) {
	lower := strings.ToLower(response)
	for _, alias := range aliasSet(key) {
		a := strings.ToLower(alias)
		if !strings.Contains(lower, a) {
			continue
		}
		idx := strings.Index(lower, a)
		window := lower[max0(idx-20) : min(len(lower), idx+len(a)+20)]
		if strings.Contains(window, "not "+a) || strings.Contains(window, "no "+a) || strings.Contains(window, "doesn't") || strings.Contains(window, "does not") {
			negative = true
		} else {
			positive = true
		}
	}
	return positive, negative
}

func aliasSet(key string) []string {
	out := append([]string(nil), aliasesEN[key]...)
	out = append(out, aliasesKO[key]...)
	return out
}

func max0(i int) int {
	if i < 0 {
		return 0
	}
	return i
}
