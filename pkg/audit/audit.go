// Package audit wires the full pipeline (normalize, ensure-views, scan,
// evaluate policy, package evidence, append history) into the single
// runAudit entry point the CLI and any embedding host call.
package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/chain"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/evidence"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/history"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/normalize"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/policy"
)

// Options configures a single runAudit invocation.
type Options struct {
	Scanners          []chain.Scanner
	ScanOptions       chain.Options
	PolicyConfig      policy.Config
	History           history.Store
	MaxPromptLength   int
	DumpEvidence      func(model.EvidencePackage)
	DumpPolicy        func(model.PolicyDecision)
	AutoCloseScanners bool
	IncludeViews      bool
	// Now supplies the wall-clock timestamp stamped into the evidence
	// package's generatedAtMs and the history turn's createdAtMs. It exists
	// so callers (and tests) control time explicitly rather than the
	// package reaching for time.Now() itself mid-pipeline.
	Now func() time.Time
}

// Error is a fatal runAudit failure, always naming the stage it occurred
// in. A failed audit produces no evidence package and the history store is
// not appended to.
type Error struct {
	Stage   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("audit: %s: %s: %v", e.Stage, e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// RunAudit executes the full pipeline for a single request and returns its
// evidence package. On any fatal error, no evidence is produced and the
// history store is left untouched.
func RunAudit(ctx context.Context, req *model.AuditRequest, opts Options) (*model.EvidencePackage, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	in, err := normalize.Normalize(req, normalize.Options{MaxPromptLength: opts.MaxPromptLength})
	if err != nil {
		return nil, &Error{Stage: "normalize", Message: "request failed validation", Cause: err}
	}

	working := normalize.EnsureViews(*in)

	result, err := chain.Run(ctx, working, opts.Scanners, opts.ScanOptions)
	if err != nil {
		return nil, &Error{Stage: "scan", Message: "scanner chain aborted", Cause: err}
	}

	sessionID := ""
	if req.Actor != nil {
		sessionID = req.Actor.SessionID
	}

	decision := policy.EvaluateWithHistory(ctx, result.Findings, opts.PolicyConfig, opts.History, sessionID)

	scannerInfos := make([]model.ScannerInfo, len(opts.Scanners))
	for i, s := range opts.Scanners {
		scannerInfos[i] = model.ScannerInfo{Name: s.Name(), Kind: s.Kind()}
	}

	pkg := evidence.Package(result.Input, result.Findings, decision, scannerInfos, evidence.Options{
		IncludeViews:  opts.IncludeViews,
		GeneratedAtMs: now().UnixMilli(),
	})

	if opts.History != nil && sessionID != "" {
		turn := historyTurn(req, result.Findings, decision, now())
		if err := opts.History.Append(ctx, sessionID, turn); err != nil {
			return nil, &Error{Stage: "history", Message: "failed to append history turn", Cause: err}
		}
	}

	if opts.DumpEvidence != nil {
		opts.DumpEvidence(pkg)
	}
	if opts.DumpPolicy != nil {
		opts.DumpPolicy(decision)
	}

	if opts.AutoCloseScanners {
		closeScanners(opts.Scanners)
	}

	return &pkg, nil
}

func closeScanners(scanners []chain.Scanner) {
	for _, s := range scanners {
		if c, ok := s.(chain.Closer); ok {
			_ = c.Close()
		}
	}
}

func historyTurn(req *model.AuditRequest, findings []model.Finding, decision model.PolicyDecision, now time.Time) model.HistoryTurn {
	turn := model.HistoryTurn{
		RequestID:   req.RequestID,
		CreatedAtMs: now.UnixMilli(),
		Action:      decision.Action,
		Risk:        decision.Risk,
	}

	for _, tr := range req.ToolResults {
		if tr.OK {
			turn.SucceededTools = appendUnique(turn.SucceededTools, tr.ToolName)
		} else {
			turn.FailedTools = appendUnique(turn.FailedTools, tr.ToolName)
		}
	}

	if req.ResponseText != "" {
		turn.ResponseSnippet = snippet(req.ResponseText, 200)
	}

	ruleIDs := map[string]bool{}
	categories := map[string]bool{}
	scanners := map[string]bool{}
	tags := map[string]bool{}
	for _, f := range findings {
		if f.Kind != model.KindDetect {
			continue
		}
		scanners[f.Scanner] = true
		for _, tag := range f.Tags {
			tags[tag] = true
		}
		if ruleID, ok := f.Evidence["ruleId"]; ok {
			if s, ok := ruleID.(string); ok {
				ruleIDs[s] = true
			}
		}
		if cat, ok := f.Evidence["category"]; ok {
			if s, ok := cat.(string); ok {
				categories[s] = true
			}
		}
	}
	turn.RuleIDs = sortedKeys(ruleIDs)
	turn.Categories = sortedKeys(categories)
	turn.DetectScanners = sortedKeys(scanners)
	turn.DetectTags = sortedKeys(tags)

	return turn
}

func appendUnique(list []string, name string) []string {
	if name == "" {
		return list
	}
	for _, existing := range list {
		if existing == name {
			return list
		}
	}
	return append(list, name)
}

func snippet(s string, maxLen int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= maxLen {
		return string(runes)
	}
	return string(runes[:maxLen])
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
