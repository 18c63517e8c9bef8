// Package detect implements the L3 detect scanners: rule pack matching,
// keyword injection, tool-arg SSRF/path-traversal, tool-result
// contradiction/fact-mismatch, UTS#39 confusables, and history-aware
// contradiction/flip-flop detectors. Each reads the multi-view payload
// rather than raw text and picks a preferred target view per
// viewset.PreferenceOrder.
package detect

import (
	"context"
	"strconv"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/rulepack"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/viewset"
)

// RulePackScanner matches a hot-reloadable CompiledPack against the
// prompt, chunks, and (when in scope) response views.
type RulePackScanner struct {
	loader *rulepack.Loader
}

func NewRulePackScanner(loader *rulepack.Loader) *RulePackScanner {
	return &RulePackScanner{loader: loader}
}

func (s *RulePackScanner) Name() string            { return "rule_pack" }
func (s *RulePackScanner) Kind() model.FindingKind { return model.KindDetect }

// Close releases the loader's file watcher.
func (s *RulePackScanner) Close() error {
	if s.loader == nil {
		return nil
	}
	return s.loader.Close()
}

func (s *RulePackScanner) Run(_ context.Context, in model.NormalizedInput) (model.NormalizedInput, []model.Finding, error) {
	out := in.Clone()
	if out.Views == nil || s.loader == nil {
		return out, nil, nil
	}

	// CheckMTime is the mtime-poll complement to the loader's fsnotify
	// watch: calling it once per scan guarantees a reload is never missed
	// between filesystem events, even if the watcher never started (e.g.
	// no inotify support) or an event was coalesced away.
	s.loader.CheckMTime()

	pack, err := s.loader.Load()
	if err != nil {
		// rulepack_load_error is fatal at first load; a scanner that cannot
		// obtain any compiled pack degrades to a no-op rather than aborting
		// the whole chain on a reload hiccup (the loader itself already
		// retains the previous good pack across reload failures).
		return out, nil, nil
	}

	var findings []model.Finding

	for _, rule := range pack.Rules {
		if rule.InScope(rulepack.ScopePrompt) {
			if f := matchAcrossViews(rule, pack.Version, s.Name(), in.RequestID,
				model.FieldPrompt, "", nil, "prompt", &out.Views.Prompt); f != nil {
				findings = append(findings, *f)
			}
		}
	}

	for i := range out.Views.Chunks {
		src := model.SourceUnknown
		if i < len(in.Canonical.PromptChunksCanonical) {
			src = in.Canonical.PromptChunksCanonical[i].Source
		}
		if !anyChunkRuleInScope(pack.Rules, src) {
			continue
		}
		idx := i
		for _, rule := range pack.Rules {
			if !rule.InScope(rulepack.ScopeChunks) || !rule.AppliesToSource(src) {
				continue
			}
			if f := matchAcrossViews(rule, pack.Version, s.Name(), in.RequestID,
				model.FieldPromptChunk, src, &idx, chunkKey(i), &out.Views.Chunks[i].Views); f != nil {
				findings = append(findings, *f)
			}
		}
	}

	if out.Views.Response != nil {
		for _, rule := range pack.Rules {
			if rule.InScope(rulepack.ScopeResponse) {
				if f := matchAcrossViews(rule, pack.Version, s.Name(), in.RequestID,
					model.FieldResponse, "", nil, "response", out.Views.Response); f != nil {
					findings = append(findings, *f)
				}
			}
		}
	}

	return out, findings, nil
}

// anyChunkRuleInScope short-circuits the (rules × chunks) double loop when no
// rule in the pack is even scoped to chunks.
func anyChunkRuleInScope(rules []*rulepack.CompiledRule, src model.Source) bool {
	for _, r := range rules {
		if r.InScope(rulepack.ScopeChunks) && r.AppliesToSource(src) {
			return true
		}
	}
	return false
}

// matchAcrossViews tests rule against raw, sanitized, revealed, skeleton in
// that order, recording every view that matched, and emits a finding
// against the preferred view if any matched.
func matchAcrossViews(rule *rulepack.CompiledRule, packVersion, scannerName, requestID string,
	field model.FindingField, source model.Source, chunkIdx *int, key string, vs *viewset.ViewSet) *model.Finding {

	var matched []viewset.View
	for _, v := range viewset.All {
		if rule.Matches(vs.Get(v)) {
			matched = append(matched, v)
		}
	}
	if len(matched) == 0 {
		return nil
	}

	preferred := viewset.Preferred(matched)
	target := model.FindingTarget{Field: field, View: preferred, Source: source, ChunkIndex: chunkIdx}

	preferredText := vs.Get(preferred)
	start, end, _ := rule.MatchIndex(preferredText)

	f := model.NewFinding(
		model.KindDetect, scannerName, requestID, key+":"+rule.ID(),
		rule.Spec.Score, rule.Spec.Risk,
		summaryOrDefault(rule.Spec.Summary, rule.Spec.Category),
		target,
		map[string]interface{}{
			"ruleId":          rule.ID(),
			"category":        rule.Spec.Category,
			"patternType":     string(rule.Spec.PatternType),
			"rulePackVersion": packVersion,
			"matchedViews":    matchedViewStrings(matched),
			"snippet":         centeredSnippet(preferredText, start, end),
		},
	)
	f.Tags = rule.Spec.Tags
	return &f
}

func summaryOrDefault(summary, category string) string {
	if summary != "" {
		return summary
	}
	return "rule pack match: " + category
}

func matchedViewStrings(views []viewset.View) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = string(v)
	}
	return out
}

func chunkKey(i int) string {
	return "chunk:" + strconv.Itoa(i)
}
