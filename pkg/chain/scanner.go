// Package chain implements the sequential scanner-chain runtime: each
// scanner receives the working NormalizedInput produced by the previous
// one, may mutate its views/canonical text, and appends findings. Views are
// carried over automatically between scanners; execution is instrumented
// with per-scanner timeouts, metrics, and fail-fast thresholds.
package chain

import (
	"context"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
)

// Scanner is the contract every sanitize/enrich/detect stage implements.
type Scanner interface {
	// Name is the stable scanner identifier used in Finding.Scanner and
	// Metric.Scanner.
	Name() string
	// Kind classifies the scanner for evidence-package scanner listings.
	Kind() model.FindingKind
	// Run processes in and returns the (possibly mutated) working document
	// plus any findings it emits. It must not error on malformed input:
	// sanitize/enrich scanners degrade to a no-op and detect scanners fall
	// back to conservative defaults.
	Run(ctx context.Context, in model.NormalizedInput) (model.NormalizedInput, []model.Finding, error)
}

// Closer is implemented by scanners that hold a releasable resource (e.g.
// the RulePack scanner's file watcher).
type Closer interface {
	Close() error
}
