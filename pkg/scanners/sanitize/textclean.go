// Package sanitize implements the L1 sanitize scanners: NFKC/invisible/bidi
// cleanup, hidden ASCII-tag decoding, separator collapsing, and tool-arg
// text cleanup. Each scanner updates views.*.sanitized/.revealed in place,
// never views.*.raw, and propagates the most informative view back into
// canonical so downstream detectors that skip views still benefit.
package sanitize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var invisibleRunes = map[rune]bool{
	'​': true, // ZERO WIDTH SPACE
	'‌': true, // ZERO WIDTH NON-JOINER
	'‍': true, // ZERO WIDTH JOINER
	'⁠': true, // WORD JOINER
	'\uFEFF': true, // ZERO WIDTH NO-BREAK SPACE / BOM
	'­': true, // SOFT HYPHEN
}

// isBidiControl reports whether r is one of the explicit bidirectional
// embedding/override/isolate controls U+202A..U+202E or U+2066..U+2069.
func isBidiControl(r rune) bool {
	return (r >= '‪' && r <= '‮') || (r >= '⁦' && r <= '⁩')
}

// cleanResult reports what cleanText actually removed so callers can derive
// risk and evidence without re-scanning the string.
type cleanResult struct {
	Text             string
	RemovedInvisible int
	RemovedBidi      int
	NFKCChanged      bool
}

// cleanText applies the Unicode sanitizer's text transform: NFKC, then
// stripping of invisible and bidi-control code points. Trimming is the
// caller's responsibility; ToolArgsCanonicalizer deliberately skips it.
func cleanText(s string) cleanResult {
	nfkc := norm.NFKC.String(s)
	res := cleanResult{NFKCChanged: nfkc != s}

	var b strings.Builder
	b.Grow(len(nfkc))
	for _, r := range nfkc {
		switch {
		case invisibleRunes[r]:
			res.RemovedInvisible++
		case isBidiControl(r):
			res.RemovedBidi++
		default:
			b.WriteRune(r)
		}
	}
	res.Text = b.String()
	return res
}

func isLetterOrNumber(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}
