package detect

import "strings"

// snippetWidth is the total width (in runes) of the evidence snippet
// attached to rule/keyword matches: 80 characters, centered on the match,
// with a trailing ellipsis when clipped.
const snippetWidth = 80

// centeredSnippet builds an 80-rune window of text centered on [start,end)
// (rune offsets), with a trailing ellipsis if the window was clipped.
func centeredSnippet(text string, start, end int) string {
	runes := []rune(text)
	if len(runes) <= snippetWidth {
		return text
	}
	matchLen := end - start
	if matchLen < 0 {
		matchLen = 0
	}
	pad := (snippetWidth - matchLen) / 2
	if pad < 0 {
		pad = 0
	}
	from := start - pad
	if from < 0 {
		from = 0
	}
	to := from + snippetWidth
	if to > len(runes) {
		to = len(runes)
		from = to - snippetWidth
		if from < 0 {
			from = 0
		}
	}
	out := string(runes[from:to])
	if to < len(runes) {
		out = strings.TrimRight(out, " ") + "…"
	}
	return out
}
