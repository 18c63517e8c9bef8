package main

import (
	"fmt"

	"github.com/Taep/schnabel-open-audit-sdk/internal/assets"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/chain"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/confusables"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/history"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/rulepack"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/scanners/detect"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/scanners/enrich"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/scanners/sanitize"
)

// chainConfig parameterizes the default scanner chain. An empty
// rulePackPath selects the packaged default rule pack; a non-positive
// historyWindow selects detect.DefaultHistoryWindow.
type chainConfig struct {
	rulePackPath  string
	historyWindow int
}

// buildDefaultChain assembles the full sanitize -> enrich -> detect
// scanner chain: every scanner is run in a fixed order so sanitize output
// feeds enrich, and enrich output feeds every detect scanner.
func buildDefaultChain(cfg chainConfig, store history.Store) ([]chain.Scanner, func() error, error) {
	rulePackPath := cfg.rulePackPath
	if rulePackPath == "" {
		path, err := assets.DefaultRulePackPath()
		if err != nil {
			return nil, nil, fmt.Errorf("resolving default rule pack: %w", err)
		}
		rulePackPath = path
	}

	confusablesPath, err := assets.ConfusablesPath()
	if err != nil {
		return nil, nil, fmt.Errorf("resolving confusables table: %w", err)
	}
	table, err := confusables.Load(confusablesPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading confusables table: %w", err)
	}

	loader := rulepack.NewLoader(rulePackPath, 0)
	if _, err := loader.Load(); err != nil {
		return nil, nil, fmt.Errorf("loading rule pack %s: %w", rulePackPath, err)
	}

	window := cfg.historyWindow
	if window <= 0 {
		window = 5
	}

	scanners := []chain.Scanner{
		sanitize.NewUnicodeScanner(),
		sanitize.NewHiddenAsciiTagsScanner(),
		sanitize.NewSeparatorCollapseScanner(),
		sanitize.NewToolArgsCanonicalizerScanner(),

		enrich.NewUts39SkeletonScanner(table),

		detect.NewKeywordInjectionScanner(),
		detect.NewRulePackScanner(loader),
		detect.NewUts39ConfusablesScanner(),
		detect.NewToolArgsSSRFScanner(),
		detect.NewToolArgsPathTraversalScanner(),
		detect.NewToolResultContradictionScanner(),
		detect.NewToolResultFactMismatchScanner(),
		detect.NewHistoryContradictionScanner(store, window),
		detect.NewHistoryFlipFlopScanner(store),
	}

	closeFn := func() error { return loader.Close() }
	return scanners, closeFn, nil
}
