package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
)

// DefaultScannerTimeout is applied to every scanner invocation unless
// Options.ScannerTimeout overrides it.
const DefaultScannerTimeout = 30 * time.Second

// FailFastThreshold configures the risk level at which the chain stops
// running further scanners as soon as a finding meets or exceeds it.
type FailFastThreshold string

const (
	FailFastNone     FailFastThreshold = ""
	FailFastHigh     FailFastThreshold = "high"
	FailFastCritical FailFastThreshold = "critical"
)

// Options configures a single Run invocation.
type Options struct {
	// ScannerTimeout bounds each individual scanner's execution.
	ScannerTimeout time.Duration
	// FailFast, when non-empty, stops the chain as soon as any finding's
	// risk meets or exceeds the named threshold.
	FailFast FailFastThreshold
	// OnMetric is invoked synchronously after each scanner completes, in
	// submission (chain) order.
	OnMetric MetricCallback
}

// Result is the outcome of running a scanner chain to completion (or to an
// early fail-fast stop).
type Result struct {
	Input    model.NormalizedInput
	Findings []model.Finding
	Metrics  []Metric
}

// Run executes scanners sequentially over in. The output of scanner i is
// the input to scanner i+1; if a scanner returns an input without Views,
// the previous Views are re-attached so later scanners never see a views
// regression. A per-scanner timeout, fail-fast risk threshold, and a
// synchronous per-scanner metric callback are applied uniformly.
func Run(ctx context.Context, in model.NormalizedInput, scanners []Scanner, opts Options) (*Result, error) {
	timeout := opts.ScannerTimeout
	if timeout <= 0 {
		timeout = DefaultScannerTimeout
	}

	result := &Result{Input: in}

	for i, s := range scanners {
		if s == nil || s.Name() == "" {
			return nil, &Error{Kind: KindScannerInvalid, ScannerIndex: i, Message: "scanner is nil or missing a name"}
		}

		prevViews := result.Input.Views
		start := time.Now()

		out, findings, err := runOne(ctx, s, result.Input, timeout)
		if err != nil {
			if ce, ok := err.(*Error); ok {
				ce.ScannerIndex = i
			}
			return nil, err
		}

		if out.Views == nil {
			out.Views = prevViews
		}

		metric := newMetric(s, start, len(findings))
		result.Input = out
		result.Findings = append(result.Findings, findings...)
		result.Metrics = append(result.Metrics, metric)

		if opts.OnMetric != nil {
			opts.OnMetric(metric)
		}

		if opts.FailFast != FailFastNone && exceedsFailFast(findings, opts.FailFast) {
			break
		}
	}

	return result, nil
}

func exceedsFailFast(findings []model.Finding, threshold FailFastThreshold) bool {
	var min model.RiskLevel
	switch threshold {
	case FailFastCritical:
		min = model.RiskCritical
	default:
		min = model.RiskHigh
	}
	for _, f := range findings {
		if f.Risk.AtLeast(min) {
			return true
		}
	}
	return false
}

// runOne invokes a single scanner under a timeout, translating both
// deadline-exceeded and scanner panics into a chain-fatal *Error.
func runOne(ctx context.Context, s Scanner, in model.NormalizedInput, timeout time.Duration) (out model.NormalizedInput, findings []model.Finding, err error) {
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		out      model.NormalizedInput
		findings []model.Finding
		err      error
	}
	resultCh := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- result{err: fmt.Errorf("scanner panicked: %v", r)}
			}
		}()
		o, f, e := s.Run(scanCtx, in)
		resultCh <- result{out: o, findings: f, err: e}
	}()

	select {
	case <-scanCtx.Done():
		return model.NormalizedInput{}, nil, &Error{
			Kind: KindScannerTimeout, ScannerName: s.Name(),
			Message: fmt.Sprintf("exceeded %s timeout", timeout), Cause: scanCtx.Err(),
		}
	case r := <-resultCh:
		if r.err != nil {
			return model.NormalizedInput{}, nil, &Error{
				Kind: KindChainError, ScannerName: s.Name(),
				Message: "scanner returned an error", Cause: r.err,
			}
		}
		return r.out, r.findings, nil
	}
}
