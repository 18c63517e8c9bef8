package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/audit"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/history"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
	"github.com/Taep/schnabel-open-audit-sdk/pkg/policy"
)

// runAuditCmd implements `schnabel-audit audit`: read one AuditRequest as
// JSON (from --input or stdin), run it through the default scanner chain
// and policy, and print the resulting EvidencePackage.
//
// Exit codes:
//
//	0 = audit ran to completion (regardless of the resulting decision)
//	1 = the request failed validation or the pipeline aborted
//	2 = a flag/usage error, an unreadable or non-JSON request, or a scanner
//	    chain that could not be built
func runAuditCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("audit", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		inputPath       string
		rulePackPath    string
		maxPromptLength int
		blockAt         string
		challengeAt     string
		includeViews    bool
		pretty          bool
		assignRequestID bool
	)

	cmd.StringVar(&inputPath, "input", "", "Path to a JSON AuditRequest (default: read from stdin)")
	cmd.StringVar(&rulePackPath, "rule-pack", "", "Path to a rule pack JSON file (default: the packaged default)")
	cmd.IntVar(&maxPromptLength, "max-prompt-length", 0, "Maximum prompt length in runes (0 = only the 1 MiB absolute cap)")
	cmd.StringVar(&blockAt, "block-at", "", "Risk level that forces a block decision (default: critical)")
	cmd.BoolVar(&assignRequestID, "assign-request-id", false, "Generate a random requestId when the input omits one")
	cmd.StringVar(&challengeAt, "challenge-at", "", "Risk level that forces a challenge decision (default: high)")
	cmd.BoolVar(&includeViews, "include-views", false, "Include the per-view scanned text in the evidence package")
	cmd.BoolVar(&pretty, "pretty", true, "Pretty-print the JSON result")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	var reqData []byte
	var err error
	if inputPath != "" {
		reqData, err = os.ReadFile(inputPath)
	} else {
		reqData, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: cannot read request: %v\n", err)
		return 2
	}

	var req model.AuditRequest
	if err := json.Unmarshal(reqData, &req); err != nil {
		fmt.Fprintf(stderr, "Error: invalid AuditRequest JSON: %v\n", err)
		return 2
	}
	if req.RequestID == "" && assignRequestID {
		req.RequestID = uuid.NewString()
	}

	cfg := policy.DefaultConfig()
	if blockAt != "" {
		cfg.BlockAt = model.RiskLevel(blockAt)
	}
	if challengeAt != "" {
		cfg.ChallengeAt = model.RiskLevel(challengeAt)
	}

	store := history.NewMemory(history.DefaultMaxTurns)
	scanners, closeFn, err := buildDefaultChain(chainConfig{
		rulePackPath:  rulePackPath,
		historyWindow: cfg.HistoryWindow,
	}, store)
	if err != nil {
		fmt.Fprintf(stderr, "Error: cannot build scanner chain: %v\n", err)
		return 2
	}

	pkg, err := audit.RunAudit(context.Background(), &req, audit.Options{
		Scanners:          scanners,
		PolicyConfig:      cfg,
		History:           store,
		MaxPromptLength:   maxPromptLength,
		IncludeViews:      includeViews,
		AutoCloseScanners: false,
	})
	if closeErr := closeFn(); closeErr != nil {
		fmt.Fprintf(stderr, "Warning: failed to release rule pack watcher: %v\n", closeErr)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: audit failed: %v\n", err)
		return 1
	}

	var data []byte
	if pretty {
		data, err = json.MarshalIndent(pkg, "", "  ")
	} else {
		data, err = json.Marshal(pkg)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: cannot marshal evidence package: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(data))
	return 0
}
