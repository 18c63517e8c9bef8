package evidence

import (
	"testing"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
)

func baseInput() model.NormalizedInput {
	return model.NormalizedInput{
		RequestID: "req-1",
		Canonical: model.Canonical{Prompt: "hello"},
		Raw: &model.AuditRequest{
			RequestID: "req-1",
			Prompt:    "hello",
			Timestamp: 1000,
		},
	}
}

func TestPackage_IsDeterministic(t *testing.T) {
	in := baseInput()
	decision := model.PolicyDecision{PolicyID: "default", Action: model.ActionAllow, Risk: model.RiskNone}
	scanners := []model.ScannerInfo{{Name: "unicode_sanitizer", Kind: model.KindSanitize}}

	p1 := Package(in, nil, decision, scanners, Options{GeneratedAtMs: 111})
	p2 := Package(in, nil, decision, scanners, Options{GeneratedAtMs: 222})

	if p1.Integrity.RootHash != p2.Integrity.RootHash {
		t.Errorf("expected rootHash to be stable across differing generatedAtMs, got %q vs %q",
			p1.Integrity.RootHash, p2.Integrity.RootHash)
	}
}

func TestPackage_RootHashChangesWithFindings(t *testing.T) {
	in := baseInput()
	decision := model.PolicyDecision{PolicyID: "default", Action: model.ActionAllow, Risk: model.RiskNone}

	p1 := Package(in, nil, decision, nil, Options{})
	findings := []model.Finding{model.NewFinding(model.KindDetect, "x", "req-1", "k", 0.5, model.RiskMedium, "s",
		model.FindingTarget{Field: model.FieldPrompt}, nil)}
	p2 := Package(in, findings, decision, nil, Options{})

	if p1.Integrity.RootHash == p2.Integrity.RootHash {
		t.Error("expected rootHash to change when findings differ")
	}
}

func TestPackage_SectionOrderIsContractual(t *testing.T) {
	in := baseInput()
	decision := model.PolicyDecision{PolicyID: "default", Action: model.ActionAllow, Risk: model.RiskNone}
	p := Package(in, nil, decision, nil, Options{})

	want := []string{"request", "rawDigest", "normalized.canonical", "scanned.canonical",
		"scanned.views", "findings", "decision", "scanners"}
	if len(p.Integrity.Items) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(p.Integrity.Items))
	}
	for i, name := range want {
		if p.Integrity.Items[i].Name != name {
			t.Errorf("item %d: expected %q, got %q", i, name, p.Integrity.Items[i].Name)
		}
	}
}

func TestPackage_ViewsOmittedByDefault(t *testing.T) {
	in := baseInput()
	decision := model.PolicyDecision{PolicyID: "default", Action: model.ActionAllow, Risk: model.RiskNone}
	p := Package(in, nil, decision, nil, Options{IncludeViews: false})
	if p.Scanned.Views != nil {
		t.Error("expected scanned.views to be nil when IncludeViews is false")
	}
}

func TestPackage_RulePackVersionsDedupedAndSorted(t *testing.T) {
	in := baseInput()
	decision := model.PolicyDecision{PolicyID: "default", Action: model.ActionAllow, Risk: model.RiskNone}
	findings := []model.Finding{
		model.NewFinding(model.KindDetect, "rule_pack", "req-1", "a", 0.5, model.RiskMedium, "s",
			model.FindingTarget{Field: model.FieldPrompt}, map[string]interface{}{"rulePackVersion": "2.0.0"}),
		model.NewFinding(model.KindDetect, "rule_pack", "req-1", "b", 0.5, model.RiskMedium, "s",
			model.FindingTarget{Field: model.FieldPrompt}, map[string]interface{}{"rulePackVersion": "1.0.0"}),
		model.NewFinding(model.KindDetect, "rule_pack", "req-1", "c", 0.5, model.RiskMedium, "s",
			model.FindingTarget{Field: model.FieldPrompt}, map[string]interface{}{"rulePackVersion": "1.0.0"}),
	}
	p := Package(in, findings, decision, nil, Options{})
	if len(p.Meta.RulePackVersions) != 2 {
		t.Fatalf("expected 2 distinct versions, got %+v", p.Meta.RulePackVersions)
	}
	if p.Meta.RulePackVersions[0] != "1.0.0" || p.Meta.RulePackVersions[1] != "2.0.0" {
		t.Errorf("expected sorted [1.0.0, 2.0.0], got %+v", p.Meta.RulePackVersions)
	}
}
