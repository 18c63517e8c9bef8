package rulepack

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writePackFile(t *testing.T, path string, pf PackFile) {
	t.Helper()
	data, err := json.Marshal(pf)
	if err != nil {
		t.Fatalf("marshal pack: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write pack: %v", err)
	}
}

func TestLoader_LoadsAndCaches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")
	writePackFile(t, path, PackFile{Version: "1.0.0", Rules: []RuleSpec{sampleSpec("r1")}})

	loader := NewLoader(path, 20*time.Millisecond)
	t.Cleanup(func() { _ = loader.Close() })

	pack, err := loader.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pack.Rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(pack.Rules))
	}

	again, err := loader.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != pack {
		t.Error("expected cached pointer on second Load")
	}
}

func TestLoader_MissingFileIsAssetMissing(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "missing.json"), 0)
	t.Cleanup(func() { _ = loader.Close() })
	if _, err := loader.Load(); err == nil {
		t.Fatal("expected asset_missing error for nonexistent rule pack")
	}
}

func TestLoader_MtimeTriggeredReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")
	writePackFile(t, path, PackFile{Version: "1.0.0", Rules: []RuleSpec{sampleSpec("r1")}})

	loader := NewLoader(path, 20*time.Millisecond)
	t.Cleanup(func() { _ = loader.Close() })

	if _, err := loader.Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Ensure the mtime actually advances on fast filesystems.
	future := time.Now().Add(2 * time.Second)
	r2 := sampleSpec("r2")
	r2.Pattern = "disregard all prior instructions"
	writePackFile(t, path, PackFile{Version: "1.0.1", Rules: []RuleSpec{sampleSpec("r1"), r2}})
	_ = os.Chtimes(path, future, future)

	loader.CheckMTime()

	updated := loader.Current()
	if updated == nil || len(updated.Rules) != 2 {
		t.Fatalf("expected reload to pick up 2 rules, got %+v", updated)
	}
}

func TestLoader_ReloadFailureKeepsPreviousPack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")
	writePackFile(t, path, PackFile{Version: "1.0.0", Rules: []RuleSpec{sampleSpec("r1")}})

	loader := NewLoader(path, 20*time.Millisecond)
	t.Cleanup(func() { _ = loader.Close() })

	original, err := loader.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	future := time.Now().Add(2 * time.Second)
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = os.Chtimes(path, future, future)

	loader.CheckMTime()

	if loader.Current() != original {
		t.Error("expected previous pack to be retained after a reload failure")
	}
}
