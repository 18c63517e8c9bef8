// Package rulepack compiles and hot-reloads the JSON-defined regex/keyword
// rule sets that the RulePack detect scanner matches against.
package rulepack

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
)

// PatternType is the rule matching strategy.
type PatternType string

const (
	PatternRegex   PatternType = "regex"
	PatternKeyword PatternType = "keyword"
)

// Scope names a location a rule may apply to.
type Scope string

const (
	ScopePrompt   Scope = "prompt"
	ScopeChunks   Scope = "chunks"
	ScopeResponse Scope = "response"
)

// DefaultScopes is applied when a RuleSpec omits Scopes.
var DefaultScopes = []Scope{ScopePrompt, ScopeChunks}

// RuleSpec is the on-disk JSON shape of a single rule.
type RuleSpec struct {
	ID              string          `json:"id"`
	Category        string          `json:"category"`
	PatternType     PatternType     `json:"patternType"`
	Pattern         string          `json:"pattern"`
	Flags           string          `json:"flags,omitempty"`
	NegativePattern string          `json:"negativePattern,omitempty"`
	NegativeFlags   string          `json:"negativeFlags,omitempty"`
	Risk            model.RiskLevel `json:"risk"`
	Score           float64         `json:"score"`
	Tags            []string        `json:"tags,omitempty"`
	Summary         string          `json:"summary,omitempty"`
	Scopes          []Scope         `json:"scopes,omitempty"`
	Sources         []model.Source  `json:"sources,omitempty"`
}

// PackFile is the on-disk JSON shape of a rule pack file.
type PackFile struct {
	Version string     `json:"version"`
	Rules   []RuleSpec `json:"rules"`
}

// CompiledRule is a validated, compiled rule ready for matching.
type CompiledRule struct {
	Spec RuleSpec

	regex         *regexp.Regexp
	negativeRegex *regexp.Regexp
	keywordLower  string
	negKeyword    string

	scopes  map[Scope]bool
	sources map[model.Source]bool

	signature string
}

// ID returns the rule's stable identifier.
func (r *CompiledRule) ID() string { return r.Spec.ID }

// InScope reports whether the rule applies to scope.
func (r *CompiledRule) InScope(scope Scope) bool { return r.scopes[scope] }

// AppliesToSource reports whether a chunk of the given source is in scope.
// A rule with no declared Sources applies to every source.
func (r *CompiledRule) AppliesToSource(source model.Source) bool {
	if len(r.sources) == 0 {
		return true
	}
	return r.sources[source]
}

// Matches reports whether text satisfies the rule: the positive pattern
// matches AND the negative pattern (if any) does not.
func (r *CompiledRule) Matches(text string) bool {
	var positive bool
	switch r.Spec.PatternType {
	case PatternKeyword:
		positive = strings.Contains(strings.ToLower(text), r.keywordLower)
	default:
		positive = r.regex != nil && r.regex.MatchString(text)
	}
	if !positive {
		return false
	}
	if r.Spec.NegativePattern == "" {
		return true
	}
	if r.Spec.PatternType == PatternKeyword && r.negKeyword != "" {
		return !strings.Contains(strings.ToLower(text), r.negKeyword)
	}
	if r.negativeRegex != nil {
		return !r.negativeRegex.MatchString(text)
	}
	return true
}

// MatchIndex returns the rune offsets of the positive pattern's first match
// in text, for callers building a centered evidence snippet. ok is false if
// the rule does not match text at all.
func (r *CompiledRule) MatchIndex(text string) (start, end int, ok bool) {
	switch r.Spec.PatternType {
	case PatternKeyword:
		lower := strings.ToLower(text)
		idx := strings.Index(lower, r.keywordLower)
		if idx < 0 {
			return 0, 0, false
		}
		start = len([]rune(text[:idx]))
		end = start + len([]rune(r.keywordLower))
		return start, end, true
	default:
		if r.regex == nil {
			return 0, 0, false
		}
		loc := r.regex.FindStringIndex(text)
		if loc == nil {
			return 0, 0, false
		}
		start = len([]rune(text[:loc[0]]))
		end = start + len([]rune(text[loc[0]:loc[1]]))
		return start, end, true
	}
}

// signatureOf returns a stable dedup signature over the rule's semantic fields
// (excluding id), used to reject duplicate rules at compile time.
func (r *CompiledRule) signatureOf() string {
	h := sha256.New()
	parts := []string{
		string(r.Spec.PatternType), r.Spec.Pattern, r.Spec.Flags,
		r.Spec.NegativePattern, r.Spec.NegativeFlags,
		string(r.Spec.Risk), formatFloat(r.Spec.Score), r.Spec.Category,
		scopesKey(r.Spec.Scopes), sourcesKey(r.Spec.Sources),
	}
	h.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h.Sum(nil))
}

func scopesKey(scopes []Scope) string {
	cp := append([]Scope(nil), scopes...)
	sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })
	strs := make([]string, len(cp))
	for i, s := range cp {
		strs[i] = string(s)
	}
	return strings.Join(strs, ",")
}

func sourcesKey(sources []model.Source) string {
	cp := append([]model.Source(nil), sources...)
	sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })
	strs := make([]string, len(cp))
	for i, s := range cp {
		strs[i] = string(s)
	}
	return strings.Join(strs, ",")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
