package model

import "github.com/Taep/schnabel-open-audit-sdk/pkg/viewset"

// EvidenceSchema is the fixed schema identifier for the v0 evidence package.
const EvidenceSchema = "schnabel-evidence-v0"

// RequestDigest summarizes the immutable request fields (no full text).
type RequestDigest struct {
	Timestamp float64 `json:"timestamp"`
	Actor     *Actor  `json:"actor,omitempty"`
	Model     string  `json:"model,omitempty"`
}

// FieldDigest records the hash, optional preview, and length of one text
// field captured by the raw digest.
type FieldDigest struct {
	Hash    string `json:"hash"`
	Preview string `json:"preview,omitempty"`
	Length  int    `json:"length"`
}

// RawDigest hashes+previews+lengths of prompt/chunks/toolCalls/toolResults/responseText.
type RawDigest struct {
	Prompt       FieldDigest   `json:"prompt"`
	Chunks       []FieldDigest `json:"chunks,omitempty"`
	ToolCalls    FieldDigest   `json:"toolCalls"`
	ToolResults  FieldDigest   `json:"toolResults"`
	ResponseText *FieldDigest  `json:"responseText,omitempty"`
}

// ScannerInfo names one scanner that ran, in execution order.
type ScannerInfo struct {
	Name string      `json:"name"`
	Kind FindingKind `json:"kind"`
}

// IntegrityItem is one entry in the hash-chain fold.
type IntegrityItem struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
}

// Integrity is the deterministic hash chain over ordered evidence sections.
type Integrity struct {
	Algo     string          `json:"algo"`
	Items    []IntegrityItem `json:"items"`
	RootHash string          `json:"rootHash"`
}

// ScannedSection captures the post-chain canonical form and (optionally)
// the full multi-view payload.
type ScannedSection struct {
	Canonical Canonical           `json:"canonical"`
	Views     *viewset.InputViews `json:"views"`
}

// EvidenceMeta carries package-level metadata excluded from semantic hashing
// where noted (GeneratedAtMs is never hashed).
type EvidenceMeta struct {
	RulePackVersions []string `json:"rulePackVersions,omitempty"`
}

// EvidencePackage is the tamper-evident output of a completed audit.
type EvidencePackage struct {
	Schema     string        `json:"schema"`
	RequestID  string        `json:"requestId"`
	Request    RequestDigest `json:"request"`
	RawDigest  RawDigest     `json:"rawDigest"`
	Normalized struct {
		Canonical Canonical `json:"canonical"`
	} `json:"normalized"`
	Scanned       ScannedSection `json:"scanned"`
	Scanners      []ScannerInfo  `json:"scanners"`
	Findings      []Finding      `json:"findings"`
	Decision      PolicyDecision `json:"decision"`
	Integrity     Integrity      `json:"integrity"`
	Meta          EvidenceMeta   `json:"meta"`
	GeneratedAtMs int64          `json:"generatedAtMs"`
}
