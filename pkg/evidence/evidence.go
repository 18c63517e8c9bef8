// Package evidence builds the tamper-evident EvidencePackage for a
// completed audit: a fixed-order sequence of hashed sections folded into a
// single rootHash, so any single-byte change to any section is detectable
// by recomputing the fold.
package evidence

import (
	"sort"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/canonicalize"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
)

// sectionOrder is the exact, contractual order sections are hashed and
// folded in. Integrity.Items preserves this order.
var sectionOrder = []string{
	"request", "rawDigest", "normalized.canonical", "scanned.canonical",
	"scanned.views", "findings", "decision", "scanners",
}

// Options configures Package. GeneratedAtMs is carried in the output but
// excluded from every hash input.
type Options struct {
	IncludeViews  bool
	GeneratedAtMs int64
}

// Package assembles an EvidencePackage from a completed audit's working
// document, findings, decision, and the scanners that ran.
func Package(in model.NormalizedInput, findings []model.Finding, decision model.PolicyDecision, scanners []model.ScannerInfo, opts Options) model.EvidencePackage {
	pkg := model.EvidencePackage{
		Schema:        model.EvidenceSchema,
		RequestID:     in.RequestID,
		Request:       requestDigest(in.Raw),
		RawDigest:     rawDigest(in.Raw),
		Findings:      findings,
		Decision:      decision,
		Scanners:      scanners,
		GeneratedAtMs: opts.GeneratedAtMs,
	}
	pkg.Normalized.Canonical = in.Canonical
	pkg.Scanned = model.ScannedSection{Canonical: in.Canonical}
	if opts.IncludeViews {
		pkg.Scanned.Views = in.Views
	}
	pkg.Meta.RulePackVersions = rulePackVersions(findings)
	pkg.Integrity = integrityFor(pkg)
	return pkg
}

func requestDigest(raw *model.AuditRequest) model.RequestDigest {
	if raw == nil {
		return model.RequestDigest{}
	}
	return model.RequestDigest{Timestamp: raw.Timestamp, Actor: raw.Actor, Model: raw.Model}
}

func rawDigest(raw *model.AuditRequest) model.RawDigest {
	if raw == nil {
		return model.RawDigest{}
	}

	digest := model.RawDigest{
		Prompt:      fieldDigest(raw.Prompt),
		ToolCalls:   fieldDigest(canonicalize.Canonicalize(canonicalize.ToAnySlice(raw.ToolCalls))),
		ToolResults: fieldDigest(canonicalize.Canonicalize(canonicalize.ToAnySlice(raw.ToolResults))),
	}
	if len(raw.PromptChunks) > 0 {
		digest.Chunks = make([]model.FieldDigest, len(raw.PromptChunks))
		for i, c := range raw.PromptChunks {
			digest.Chunks[i] = fieldDigest(c.Text)
		}
	}
	if raw.ResponseText != "" {
		fd := fieldDigest(raw.ResponseText)
		digest.ResponseText = &fd
	}
	return digest
}

// previewLen bounds the plaintext preview stored alongside each field's
// hash so evidence packages remain useful for triage without reproducing
// the full original text.
const previewLen = 200

func fieldDigest(text string) model.FieldDigest {
	preview := text
	runes := []rune(preview)
	if len(runes) > previewLen {
		preview = string(runes[:previewLen])
	}
	return model.FieldDigest{
		Hash:    canonicalize.Hash(text),
		Preview: preview,
		Length:  len([]rune(text)),
	}
}

func rulePackVersions(findings []model.Finding) []string {
	set := make(map[string]bool)
	for _, f := range findings {
		if v, ok := f.Evidence["rulePackVersion"]; ok {
			if s, ok := v.(string); ok && s != "" {
				set[s] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// integrityFor computes the per-section hashes and the rootHash fold over
// sectionOrder, from the data already assembled into pkg (everything except
// Integrity itself and GeneratedAtMs, which is never hashed).
func integrityFor(pkg model.EvidencePackage) model.Integrity {
	sectionValue := map[string]interface{}{
		"request":              pkg.Request,
		"rawDigest":            pkg.RawDigest,
		"normalized.canonical": pkg.Normalized.Canonical,
		"scanned.canonical":    pkg.Scanned.Canonical,
		"findings":             pkg.Findings,
		"decision":             pkg.Decision,
		"scanners":             pkg.Scanners,
	}
	if pkg.Scanned.Views != nil {
		sectionValue["scanned.views"] = pkg.Scanned.Views
	} else {
		sectionValue["scanned.views"] = nil
	}

	items := make([]model.IntegrityItem, 0, len(sectionOrder))
	acc := "root"
	for _, name := range sectionOrder {
		hash := canonicalize.Hash(sectionValue[name])
		items = append(items, model.IntegrityItem{Name: name, Hash: hash})
		acc = canonicalize.HashBytes([]byte(acc + ":" + name + ":" + hash))
	}

	return model.Integrity{Algo: "sha256", Items: items, RootHash: acc}
}
