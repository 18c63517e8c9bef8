package rulepack

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
)

// MaxPatternLength bounds rule pattern (and negative pattern) length.
const MaxPatternLength = 400

var backreferencePattern = regexp.MustCompile(`\\[1-9]`)
var nestedQuantifierPattern = regexp.MustCompile(`\([^)]*[*+][^)]*\)\s*[*+]`)
var greedyWhitespaceDotPattern = regexp.MustCompile(`\\s[+*]\.(\*|\+)`)

var validRisk = map[model.RiskLevel]bool{
	model.RiskNone: true, model.RiskLow: true, model.RiskMedium: true,
	model.RiskHigh: true, model.RiskCritical: true,
}

var validScope = map[Scope]bool{ScopePrompt: true, ScopeChunks: true, ScopeResponse: true}

// CompileError is a fatal rule-pack validation/compile failure (kind
// rulepack_load_error).
type CompileError struct {
	RuleID  string
	Message string
}

func (e *CompileError) Error() string {
	if e.RuleID != "" {
		return fmt.Sprintf("rulepack_load_error: rule %q: %s", e.RuleID, e.Message)
	}
	return fmt.Sprintf("rulepack_load_error: %s", e.Message)
}

// CompiledPack is an immutable, validated, ready-to-match rule set.
type CompiledPack struct {
	Version string
	Rules   []*CompiledRule
}

// Compile validates and compiles a PackFile into a CompiledPack. Rule ids
// must be unique; duplicate semantic signatures are rejected as dedup
// violations. Rules are stably sorted by id.
func Compile(pf PackFile) (*CompiledPack, error) {
	if _, err := semver.NewVersion(pf.Version); err != nil {
		return nil, &CompileError{Message: fmt.Sprintf("version %q is not a valid semantic version: %v", pf.Version, err)}
	}

	seenIDs := make(map[string]bool, len(pf.Rules))
	seenSigs := make(map[string]string, len(pf.Rules))
	compiled := make([]*CompiledRule, 0, len(pf.Rules))

	for _, spec := range pf.Rules {
		if spec.ID == "" {
			return nil, &CompileError{Message: "rule id must not be empty"}
		}
		if seenIDs[spec.ID] {
			return nil, &CompileError{RuleID: spec.ID, Message: "duplicate rule id"}
		}
		seenIDs[spec.ID] = true

		rule, err := compileOne(spec)
		if err != nil {
			return nil, err
		}

		sig := rule.signatureOf()
		if existing, ok := seenSigs[sig]; ok {
			return nil, &CompileError{RuleID: spec.ID, Message: fmt.Sprintf("duplicate of rule %q (same pattern/flags/risk/scopes)", existing)}
		}
		seenSigs[sig] = spec.ID
		rule.signature = sig

		compiled = append(compiled, rule)
	}

	sort.Slice(compiled, func(i, j int) bool { return compiled[i].Spec.ID < compiled[j].Spec.ID })

	return &CompiledPack{Version: pf.Version, Rules: compiled}, nil
}

func compileOne(spec RuleSpec) (*CompiledRule, error) {
	if !validRisk[spec.Risk] {
		return nil, &CompileError{RuleID: spec.ID, Message: fmt.Sprintf("unrecognized risk %q", spec.Risk)}
	}
	if spec.Score < 0 || spec.Score > 1 {
		return nil, &CompileError{RuleID: spec.ID, Message: fmt.Sprintf("score %v out of range [0,1]", spec.Score)}
	}

	scopes := spec.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	scopeSet := make(map[Scope]bool, len(scopes))
	for _, s := range scopes {
		if !validScope[s] {
			return nil, &CompileError{RuleID: spec.ID, Message: fmt.Sprintf("unrecognized scope %q", s)}
		}
		scopeSet[s] = true
	}

	sourceSet := make(map[model.Source]bool, len(spec.Sources))
	for _, s := range spec.Sources {
		if !model.ValidSources[s] {
			return nil, &CompileError{RuleID: spec.ID, Message: fmt.Sprintf("unrecognized source %q", s)}
		}
		sourceSet[s] = true
	}

	rule := &CompiledRule{Spec: spec, scopes: scopeSet, sources: sourceSet}

	switch spec.PatternType {
	case PatternKeyword:
		if spec.Pattern == "" {
			return nil, &CompileError{RuleID: spec.ID, Message: "keyword pattern must not be empty"}
		}
		rule.keywordLower = strings.ToLower(spec.Pattern)
		rule.negKeyword = strings.ToLower(spec.NegativePattern)
	case PatternRegex:
		re, err := compileGuardedRegex(spec.ID, spec.Pattern, spec.Flags)
		if err != nil {
			return nil, err
		}
		rule.regex = re
		if spec.NegativePattern != "" {
			negRe, err := compileGuardedRegex(spec.ID, spec.NegativePattern, spec.NegativeFlags)
			if err != nil {
				return nil, err
			}
			rule.negativeRegex = negRe
		}
	default:
		return nil, &CompileError{RuleID: spec.ID, Message: fmt.Sprintf("unrecognized patternType %q", spec.PatternType)}
	}

	return rule, nil
}

// compileGuardedRegex enforces ReDoS guards and flag sanitization before
// compiling pattern. Flags outside {i,m,s,u} (notably 'g' and 'y', which
// have no Go regexp/RE2 meaning) are silently dropped.
func compileGuardedRegex(ruleID, pattern, flags string) (*regexp.Regexp, error) {
	if len(pattern) > MaxPatternLength {
		return nil, &CompileError{RuleID: ruleID, Message: fmt.Sprintf("pattern length %d exceeds max %d", len(pattern), MaxPatternLength)}
	}
	if backreferencePattern.MatchString(pattern) {
		return nil, &CompileError{RuleID: ruleID, Message: "backreferences are forbidden"}
	}
	if nestedQuantifierPattern.MatchString(pattern) {
		return nil, &CompileError{RuleID: ruleID, Message: "nested quantifier pattern rejected (ReDoS guard)"}
	}
	if greedyWhitespaceDotPattern.MatchString(pattern) {
		return nil, &CompileError{RuleID: ruleID, Message: "unbounded greedy whitespace+dot pattern rejected (ReDoS guard)"}
	}

	goFlags := sanitizeFlags(flags)
	finalPattern := pattern
	if goFlags != "" {
		finalPattern = "(?" + goFlags + ")" + pattern
	}

	re, err := regexp.Compile(finalPattern)
	if err != nil {
		return nil, &CompileError{RuleID: ruleID, Message: fmt.Sprintf("invalid regex: %v", err)}
	}
	return re, nil
}

// sanitizeFlags reduces flags to the Go/RE2 inline-flag subset {i,m,s}.
// 'u' (JS-style unicode mode) is accepted but contributes no inline flag,
// since it is RE2's default behavior already. Anything else, notably 'g'
// and 'y', which have no RE2 meaning, is silently dropped.
func sanitizeFlags(flags string) string {
	allowed := map[rune]bool{'i': true, 'm': true, 's': true}
	var sb strings.Builder
	seen := make(map[rune]bool)
	for _, r := range flags {
		if allowed[r] && !seen[r] {
			sb.WriteRune(r)
			seen[r] = true
		}
	}
	return sb.String()
}
