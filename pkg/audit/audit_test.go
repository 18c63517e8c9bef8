package audit

import (
	"context"
	"testing"
	"time"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/chain"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/history"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/policy"
)

type stubScanner struct {
	name string
	kind model.FindingKind
	run  func(ctx context.Context, in model.NormalizedInput) (model.NormalizedInput, []model.Finding, error)
}

func (s *stubScanner) Name() string            { return s.name }
func (s *stubScanner) Kind() model.FindingKind { return s.kind }
func (s *stubScanner) Run(ctx context.Context, in model.NormalizedInput) (model.NormalizedInput, []model.Finding, error) {
	return s.run(ctx, in)
}

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func TestRunAudit_CleanRequestAllows(t *testing.T) {
	req := &model.AuditRequest{RequestID: "req-1", Prompt: "hello there"}
	pkg, err := RunAudit(context.Background(), req, Options{
		PolicyConfig: policy.DefaultConfig(),
		Now:          fixedClock(1000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pkg.Decision.Action != model.ActionAllow {
		t.Errorf("expected allow, got %s", pkg.Decision.Action)
	}
	if pkg.GeneratedAtMs != 1000 {
		t.Errorf("expected generatedAtMs 1000, got %d", pkg.GeneratedAtMs)
	}
}

func TestRunAudit_ScannerFindingDrivesPolicyBlock(t *testing.T) {
	scanner := &stubScanner{
		name: "fake_detector", kind: model.KindDetect,
		run: func(_ context.Context, in model.NormalizedInput) (model.NormalizedInput, []model.Finding, error) {
			f := model.NewFinding(model.KindDetect, "fake_detector", in.RequestID, "k", 0.9, model.RiskCritical,
				"dangerous", model.FindingTarget{Field: model.FieldPrompt}, nil)
			return in, []model.Finding{f}, nil
		},
	}
	req := &model.AuditRequest{RequestID: "req-1", Prompt: "hello there"}
	pkg, err := RunAudit(context.Background(), req, Options{
		Scanners:     []chain.Scanner{scanner},
		PolicyConfig: policy.DefaultConfig(),
		Now:          fixedClock(1000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pkg.Decision.Action != model.ActionBlock {
		t.Errorf("expected block, got %s", pkg.Decision.Action)
	}
	if len(pkg.Scanners) != 1 || pkg.Scanners[0].Name != "fake_detector" {
		t.Errorf("expected scanner info recorded, got %+v", pkg.Scanners)
	}
}

func TestRunAudit_InvalidRequestFailsWithoutHistoryAppend(t *testing.T) {
	store := history.NewMemory(10)
	req := &model.AuditRequest{RequestID: "", Prompt: "x", Actor: &model.Actor{SessionID: "s1"}}
	_, err := RunAudit(context.Background(), req, Options{
		PolicyConfig: policy.DefaultConfig(),
		History:      store,
		Now:          fixedClock(1000),
	})
	if err == nil {
		t.Fatal("expected an error for an empty requestId")
	}
	turns, _ := store.GetRecent(context.Background(), "s1", 10)
	if len(turns) != 0 {
		t.Errorf("expected no history turn appended on failure, got %d", len(turns))
	}
}

func TestRunAudit_AppendsHistoryTurnOnSuccess(t *testing.T) {
	store := history.NewMemory(10)
	req := &model.AuditRequest{
		RequestID: "req-1", Prompt: "hello",
		Actor:       &model.Actor{SessionID: "s1"},
		ToolResults: []model.ToolResult{{ToolName: "wallet.getBalance", OK: false}},
	}
	_, err := RunAudit(context.Background(), req, Options{
		PolicyConfig: policy.DefaultConfig(),
		History:      store,
		Now:          fixedClock(5000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	turns, _ := store.GetRecent(context.Background(), "s1", 10)
	if len(turns) != 1 {
		t.Fatalf("expected 1 history turn, got %d", len(turns))
	}
	if turns[0].CreatedAtMs != 5000 {
		t.Errorf("expected createdAtMs 5000, got %d", turns[0].CreatedAtMs)
	}
	if len(turns[0].FailedTools) != 1 || turns[0].FailedTools[0] != "wallet.getBalance" {
		t.Errorf("expected FailedTools to record wallet.getBalance, got %+v", turns[0].FailedTools)
	}
}

func TestRunAudit_AutoCloseScannersInvokesClose(t *testing.T) {
	closed := false
	scanner := &closingStub{stubScanner: stubScanner{
		name: "closer", kind: model.KindDetect,
		run: func(_ context.Context, in model.NormalizedInput) (model.NormalizedInput, []model.Finding, error) {
			return in, nil, nil
		},
	}, onClose: func() { closed = true }}

	req := &model.AuditRequest{RequestID: "req-1", Prompt: "hello"}
	_, err := RunAudit(context.Background(), req, Options{
		Scanners:          []chain.Scanner{scanner},
		PolicyConfig:      policy.DefaultConfig(),
		AutoCloseScanners: true,
		Now:               fixedClock(1000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !closed {
		t.Error("expected Close to be invoked on an auto-closed scanner")
	}
}

type closingStub struct {
	stubScanner
	onClose func()
}

func (c *closingStub) Close() error {
	c.onClose()
	return nil
}
