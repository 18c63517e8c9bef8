// Package policy renders the four-way audit verdict (allow /
// allow_with_warning / challenge / block) from a finding set, then applies
// two post-hoc escalation rules that consult recent session history.
package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/history"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
)

// Config is the evaluator's threshold configuration. Evaluate and
// EvaluateWithHistory replace each zero-valued field with DefaultConfig's
// value for that field.
type Config struct {
	PolicyID            string
	BlockAt             model.RiskLevel
	ChallengeAt         model.RiskLevel
	ChallengeScoreSumAt float64
	WarnScoreSumAt      float64
	MaxReasons          int
	HistoryWindow       int
}

// DefaultConfig returns the stock threshold configuration.
func DefaultConfig() Config {
	return Config{
		PolicyID:            "default",
		BlockAt:             model.RiskCritical,
		ChallengeAt:         model.RiskHigh,
		ChallengeScoreSumAt: 0.9,
		WarnScoreSumAt:      0.4,
		MaxReasons:          5,
		HistoryWindow:       5,
	}
}

var confidenceByRisk = map[model.RiskLevel]float64{
	model.RiskCritical: 0.9,
	model.RiskHigh:     0.75,
	model.RiskMedium:   0.6,
	model.RiskLow:      0.55,
	model.RiskNone:     0.7,
}

// contradictionScanners are the scanner names the repetition-escalation
// rule counts across session history.
var contradictionScanners = map[string]bool{
	"history_contradiction":     true,
	"history_flipflop":          true,
	"tool_result_contradiction": true,
	"tool_result_fact_mismatch": true,
}

// Evaluate is the pure base evaluation: a function of (findings, config)
// alone, with no history or side effects.
func Evaluate(findings []model.Finding, cfg Config) model.PolicyDecision {
	cfg = withDefaults(cfg)

	stats := model.PolicyStats{ByRisk: map[model.RiskLevel]int{}}
	var maxRisk model.RiskLevel = model.RiskNone
	for _, f := range findings {
		stats.TotalFindings++
		stats.ScoreSum += f.Score
		if f.Score > stats.MaxScore {
			stats.MaxScore = f.Score
		}
		stats.ByRisk[f.Risk]++
		maxRisk = model.MaxRisk(maxRisk, f.Risk)
	}

	action := classify(maxRisk, stats.ScoreSum, cfg)
	risk := maxRisk
	if action == model.ActionAllow && risk.Rank() < model.RiskNone.Rank() {
		risk = model.RiskNone
	}

	return model.PolicyDecision{
		PolicyID:   cfg.PolicyID,
		Action:     action,
		Risk:       risk,
		Confidence: confidenceFor(risk),
		Reasons:    reasonsFor(findings, cfg.MaxReasons),
		FindingIDs: findingIDs(findings),
		Stats:      stats,
	}
}

// EvaluateWithHistory runs Evaluate and then applies the two session-aware
// escalation rules: a fact-mismatch finding forces an immediate block, and
// repeated contradiction findings across recent turns raise the action.
// sessionID may be empty; the repetition rule is skipped in that case but
// the fact-mismatch rule still applies.
func EvaluateWithHistory(ctx context.Context, findings []model.Finding, cfg Config, store history.Store, sessionID string) model.PolicyDecision {
	cfg = withDefaults(cfg)
	decision := Evaluate(findings, cfg)

	if forceFactMismatchBlock(findings) {
		return escalate(decision, model.ActionBlock, model.RiskCritical, 0.9,
			"fact_mismatch", "a tool_result_fact_mismatch finding at high or above forces a block")
	}

	if store == nil || sessionID == "" {
		return decision
	}

	count := countInCurrentTurn(findings)
	turns, err := store.GetRecent(ctx, sessionID, cfg.HistoryWindow)
	if err == nil {
		for _, t := range turns {
			count += countContradictionScanners(t)
		}
	}

	switch {
	case count >= 3:
		return escalate(decision, model.ActionBlock, model.RiskCritical, 0.85,
			"repetition_escalation", fmt.Sprintf("%d contradiction-scanner occurrences across window", count))
	case count >= 2:
		return escalate(decision, model.ActionChallenge, model.RiskHigh, 0.75,
			"repetition_escalation", fmt.Sprintf("%d contradiction-scanner occurrences across window", count))
	default:
		return decision
	}
}

func withDefaults(cfg Config) Config {
	d := DefaultConfig()
	if cfg.PolicyID == "" {
		cfg.PolicyID = d.PolicyID
	}
	if cfg.BlockAt == "" {
		cfg.BlockAt = d.BlockAt
	}
	if cfg.ChallengeAt == "" {
		cfg.ChallengeAt = d.ChallengeAt
	}
	if cfg.ChallengeScoreSumAt == 0 {
		cfg.ChallengeScoreSumAt = d.ChallengeScoreSumAt
	}
	if cfg.WarnScoreSumAt == 0 {
		cfg.WarnScoreSumAt = d.WarnScoreSumAt
	}
	if cfg.MaxReasons == 0 {
		cfg.MaxReasons = d.MaxReasons
	}
	if cfg.HistoryWindow == 0 {
		cfg.HistoryWindow = d.HistoryWindow
	}
	return cfg
}

func classify(maxRisk model.RiskLevel, scoreSum float64, cfg Config) model.Action {
	if maxRisk.AtLeast(cfg.BlockAt) {
		return model.ActionBlock
	}
	if maxRisk.AtLeast(cfg.ChallengeAt) || scoreSum >= cfg.ChallengeScoreSumAt {
		return model.ActionChallenge
	}
	if scoreSum >= cfg.WarnScoreSumAt {
		return model.ActionAllowWithWarning
	}
	return model.ActionAllow
}

func confidenceFor(risk model.RiskLevel) float64 {
	if c, ok := confidenceByRisk[risk]; ok {
		return c
	}
	return confidenceByRisk[model.RiskNone]
}

func reasonsFor(findings []model.Finding, maxReasons int) []string {
	ordered := append([]model.Finding(nil), findings...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		return ordered[i].Risk.Rank() > ordered[j].Risk.Rank()
	})
	if len(ordered) > maxReasons {
		ordered = ordered[:maxReasons]
	}
	reasons := make([]string, len(ordered))
	for i, f := range ordered {
		reasons[i] = fmt.Sprintf("[%s|%s] %s: %s", strings.ToUpper(string(f.Risk)), f.Scanner, f.Target.Field, f.Summary)
	}
	return reasons
}

func findingIDs(findings []model.Finding) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.ID
	}
	return out
}

func forceFactMismatchBlock(findings []model.Finding) bool {
	for _, f := range findings {
		if f.Scanner == "tool_result_fact_mismatch" && f.Risk.AtLeast(model.RiskHigh) {
			return true
		}
	}
	return false
}

func countInCurrentTurn(findings []model.Finding) int {
	n := 0
	for _, f := range findings {
		if contradictionScanners[f.Scanner] {
			n++
		}
	}
	return n
}

func countContradictionScanners(t model.HistoryTurn) int {
	n := 0
	for _, s := range t.DetectScanners {
		if contradictionScanners[s] {
			n++
		}
	}
	return n
}

// escalate forces decision to at least the given action/risk/confidence,
// prepending a policy-synthesized reason describing the trigger. The
// original decision's action/risk/confidence is never lowered; escalate is
// only ever called to raise it.
func escalate(decision model.PolicyDecision, action model.Action, risk model.RiskLevel, minConfidence float64, _, detail string) model.PolicyDecision {
	decision.Action = model.MaxAction(decision.Action, action)
	decision.Risk = model.MaxRisk(decision.Risk, risk)
	if decision.Confidence < minConfidence {
		decision.Confidence = minConfidence
	}
	reason := fmt.Sprintf("[%s|policy] escalation: %s", strings.ToUpper(string(risk)), detail)
	decision.Reasons = append([]string{reason}, decision.Reasons...)
	return decision
}
