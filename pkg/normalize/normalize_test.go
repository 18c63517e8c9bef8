package normalize

import (
	"testing"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
)

func baseRequest() *model.AuditRequest {
	return &model.AuditRequest{
		RequestID: "req-1",
		Timestamp: 100,
		Prompt:    "  hello world  ",
		ToolCalls: []model.ToolCall{
			{ToolName: "search", Args: map[string]interface{}{"q": "x"}},
			{ToolName: "search", Args: map[string]interface{}{"q": "y"}},
			{ToolName: "fetch", Args: nil},
		},
	}
}

func TestNormalize_TrimsPromptAndDedupsTools(t *testing.T) {
	n, err := Normalize(baseRequest(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Canonical.Prompt != "hello world" {
		t.Errorf("expected trimmed prompt, got %q", n.Canonical.Prompt)
	}
	if got := n.Features.ToolNames; len(got) != 2 || got[0] != "fetch" || got[1] != "search" {
		t.Errorf("expected deduped sorted tool names [fetch search], got %v", got)
	}
}

func TestNormalize_RejectsEmptyRequestID(t *testing.T) {
	req := baseRequest()
	req.RequestID = ""
	if _, err := Normalize(req, Options{}); err == nil {
		t.Fatal("expected error for empty requestId")
	}
}

func TestNormalize_RejectsOversizedRequestID(t *testing.T) {
	req := baseRequest()
	long := make([]byte, model.MaxRequestIDLen+1)
	for i := range long {
		long[i] = 'a'
	}
	req.RequestID = string(long)
	if _, err := Normalize(req, Options{}); err == nil {
		t.Fatal("expected error for oversized requestId")
	}
}

func TestNormalize_MaxPromptLengthBoundary(t *testing.T) {
	req := baseRequest()
	req.Prompt = repeat("a", 10)

	if _, err := Normalize(req, Options{MaxPromptLength: 10}); err != nil {
		t.Fatalf("expected prompt of exactly maxPromptLength to be accepted: %v", err)
	}

	req.Prompt = repeat("a", 11)
	if _, err := Normalize(req, Options{MaxPromptLength: 10}); err == nil {
		t.Fatal("expected prompt exceeding maxPromptLength by 1 to be rejected")
	}
}

func repeat(s string, n int) string {
	out := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}

func TestNormalize_DropsEmptyChunksAfterTrim(t *testing.T) {
	req := baseRequest()
	req.PromptChunks = []model.PromptChunk{
		{Source: model.SourceRetrieval, Text: "  keep me  "},
		{Source: model.SourceUser, Text: "   "},
	}
	n, err := Normalize(req, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(n.Canonical.PromptChunksCanonical) != 1 {
		t.Fatalf("expected 1 surviving chunk, got %d", len(n.Canonical.PromptChunksCanonical))
	}
	if n.Canonical.PromptChunksCanonical[0].Text != "keep me" {
		t.Errorf("expected trimmed chunk text, got %q", n.Canonical.PromptChunksCanonical[0].Text)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	req := baseRequest()
	n1, err := Normalize(req, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	n2, err := Normalize(n1.Raw, Options{})
	if err != nil {
		t.Fatalf("unexpected error on second normalize: %v", err)
	}

	if n1.Canonical.Prompt != n2.Canonical.Prompt {
		t.Errorf("normalize is not idempotent on canonical prompt")
	}
	if n1.Canonical.ToolCallsJSON != n2.Canonical.ToolCallsJSON {
		t.Errorf("normalize is not idempotent on canonical tool calls")
	}
}

func TestEnsureViews_IdempotentAndMatchesCanonical(t *testing.T) {
	req := baseRequest()
	req.PromptChunks = []model.PromptChunk{{Source: model.SourceRetrieval, Text: "chunk text"}}
	n, err := Normalize(req, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	withViews := EnsureViews(*n)
	if withViews.Views == nil {
		t.Fatal("expected views to be populated")
	}
	if withViews.Views.Prompt.Raw != n.Canonical.Prompt {
		t.Errorf("prompt view raw should equal canonical prompt")
	}
	if len(withViews.Views.Chunks) != 1 || withViews.Views.Chunks[0].Views.Raw != "chunk text" {
		t.Errorf("chunk views should mirror canonical chunks")
	}

	again := EnsureViews(withViews)
	if again.Views != withViews.Views {
		t.Errorf("EnsureViews should be a no-op when views already present")
	}
}
