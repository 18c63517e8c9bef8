package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/viewset"
)

// RiskLevel is an ordinal risk grade. Comparisons must use Rank, never
// string comparison; the ordering is none < low < medium < high < critical.
type RiskLevel string

const (
	RiskNone     RiskLevel = "none"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var riskRank = map[RiskLevel]int{
	RiskNone: 0, RiskLow: 1, RiskMedium: 2, RiskHigh: 3, RiskCritical: 4,
}

// Rank returns the ordinal position of r in the risk ordering. Unknown
// levels rank below RiskNone so malformed data never accidentally escalates.
func (r RiskLevel) Rank() int {
	if rank, ok := riskRank[r]; ok {
		return rank
	}
	return -1
}

// AtLeast reports whether r is at or above threshold in the ordering.
func (r RiskLevel) AtLeast(threshold RiskLevel) bool {
	return r.Rank() >= threshold.Rank()
}

// MaxRisk returns the higher-ranked of a and b.
func MaxRisk(a, b RiskLevel) RiskLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// FindingKind classifies which stage of the chain produced a finding.
type FindingKind string

const (
	KindSanitize FindingKind = "sanitize"
	KindDetect   FindingKind = "detect"
	KindEnrich   FindingKind = "enrich"
)

// FindingField names which part of the request a finding's target refers to.
type FindingField string

const (
	FieldPrompt      FindingField = "prompt"
	FieldPromptChunk FindingField = "promptChunk"
	FieldResponse    FindingField = "response"
)

// FindingTarget pinpoints exactly where in the request, and in which view,
// a finding was observed.
type FindingTarget struct {
	Field      FindingField `json:"field"`
	View       viewset.View `json:"view"`
	Source     Source       `json:"source,omitempty"`
	ChunkIndex *int         `json:"chunkIndex,omitempty"`
}

// Finding is a single risk-scored observation emitted by a scanner.
type Finding struct {
	ID       string                 `json:"id"`
	Kind     FindingKind            `json:"kind"`
	Scanner  string                 `json:"scanner"`
	Score    float64                `json:"score"`
	Risk     RiskLevel              `json:"risk"`
	Tags     []string               `json:"tags,omitempty"`
	Summary  string                 `json:"summary"`
	Target   FindingTarget          `json:"target"`
	Evidence map[string]interface{} `json:"evidence,omitempty"`
}

// FindingID computes the deterministic id for a (scanner, requestId, key)
// triple: "f_" followed by the first 20 hex digits of
// sha256(scanner + ":" + requestId + ":" + key).
func FindingID(scanner, requestID, key string) string {
	sum := sha256.Sum256([]byte(scanner + ":" + requestID + ":" + key))
	return "f_" + hex.EncodeToString(sum[:])[:20]
}

// NewFinding builds a Finding with a deterministically computed ID.
func NewFinding(kind FindingKind, scanner, requestID, key string, score float64, risk RiskLevel, summary string, target FindingTarget, evidence map[string]interface{}) Finding {
	return Finding{
		ID:       FindingID(scanner, requestID, key),
		Kind:     kind,
		Scanner:  scanner,
		Score:    score,
		Risk:     risk,
		Summary:  summary,
		Target:   target,
		Evidence: evidence,
	}
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s|%s] %s: %s", f.Risk, f.Scanner, f.Target.Field, f.Summary)
}
