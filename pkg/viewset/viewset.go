// Package viewset defines the four-way parallel text representation that
// every scanner in the chain reads from and writes to: raw, sanitized,
// revealed, and skeleton.
package viewset

// View names the four parallel representations tracked for every piece of
// text flowing through the scanner chain.
type View string

const (
	Raw       View = "raw"
	Sanitized View = "sanitized"
	Revealed  View = "revealed"
	Skeleton  View = "skeleton"
)

// PreferenceOrder is the preferred view order detect scanners must use when
// choosing the single view to attach to a Finding's target.
var PreferenceOrder = []View{Revealed, Sanitized, Raw, Skeleton}

// All enumerates every view in a fixed, stable order, used when a scanner
// must iterate over all four views deterministically (e.g. the rule pack
// scanner testing prompt views in raw, sanitized, revealed, skeleton order).
var All = []View{Raw, Sanitized, Revealed, Skeleton}

// ViewSet holds the four parallel strings for a single piece of text.
type ViewSet struct {
	Raw       string `json:"raw"`
	Sanitized string `json:"sanitized"`
	Revealed  string `json:"revealed"`
	Skeleton  string `json:"skeleton"`
}

// New builds a ViewSet with all four fields initialized to the same text,
// matching the ensureViews contract: before any sanitizer has run, every
// view is equal to the canonical source text.
func New(text string) ViewSet {
	return ViewSet{Raw: text, Sanitized: text, Revealed: text, Skeleton: text}
}

// Get returns the string for a named view. Unknown names return the Raw view.
func (v ViewSet) Get(name View) string {
	switch name {
	case Sanitized:
		return v.Sanitized
	case Revealed:
		return v.Revealed
	case Skeleton:
		return v.Skeleton
	default:
		return v.Raw
	}
}

// ChunkViews pairs a prompt chunk's provenance with its own ViewSet.
type ChunkViews struct {
	Source string  `json:"source"`
	Views  ViewSet `json:"views"`
}

// InputViews is the full multi-view payload attached to a NormalizedInput:
// one ViewSet for the prompt, one per prompt chunk (order-preserving), and
// an optional one for the response text.
type InputViews struct {
	Prompt   ViewSet      `json:"prompt"`
	Chunks   []ChunkViews `json:"chunks,omitempty"`
	Response *ViewSet     `json:"response,omitempty"`
}

// Preferred picks the target view for a detect scanner finding out of the
// set of views a match occurred in, honoring PreferenceOrder. If matched is
// empty, Raw is returned as a safe default.
func Preferred(matched []View) View {
	matchSet := make(map[View]bool, len(matched))
	for _, m := range matched {
		matchSet[m] = true
	}
	for _, v := range PreferenceOrder {
		if matchSet[v] {
			return v
		}
	}
	return Raw
}
