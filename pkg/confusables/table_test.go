package confusables

import (
	"strings"
	"testing"
)

func TestParse_VersionHeader(t *testing.T) {
	src := "# Version: 16.0.0\n0410 ; 0041 ; MA\n"
	tbl, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tbl.Version() != "16.0.0" {
		t.Errorf("expected version 16.0.0, got %q", tbl.Version())
	}
}

func TestSkeletonize_CyrillicLookalike(t *testing.T) {
	src := "0410 ; 0041 ; MA\n" // Cyrillic А -> Latin A
	tbl, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := tbl.Skeletonize("АBC")
	if got != "ABC" {
		t.Errorf("expected ABC, got %q", got)
	}
}

func TestSkeletonize_LongestMatchWins(t *testing.T) {
	src := "0061 0062 ; 0078 ; MA\n0061 ; 0079 ; MA\n"
	tbl, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := tbl.Skeletonize("ab")
	if got != "x" {
		t.Errorf("expected x from the two-code-point match, got %q", got)
	}
}

func TestSkeletonize_Idempotent(t *testing.T) {
	src := "0410 ; 0041 ; MA\n"
	tbl, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	once := tbl.Skeletonize("Аpple")
	twice := tbl.Skeletonize(once)
	if once != twice {
		t.Errorf("skeleton of skeleton must equal skeleton: %q vs %q", once, twice)
	}
}

func TestSkeletonize_PassesThroughUnknown(t *testing.T) {
	tbl, err := Parse(strings.NewReader("0410 ; 0041 ; MA\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := tbl.Skeletonize("hello 世界")
	if got != "hello 世界" {
		t.Errorf("expected unknown code points to pass through, got %q", got)
	}
}

func TestParse_IgnoresComments(t *testing.T) {
	src := "# just a comment\n\n0410 ; 0041 ; MA # trailing comment\n"
	tbl, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := tbl.Skeletonize("А"); got != "A" {
		t.Errorf("expected A, got %q", got)
	}
}
