package chain

import (
	"time"

	"github.com/Taep/schnabel-open-audit-sdk/pkg/model"
)

// Metric records one scanner's execution in a single scan call.
type Metric struct {
	Scanner      string            `json:"scanner"`
	Kind         model.FindingKind `json:"kind"`
	DurationMs   float64           `json:"durationMs"`
	FindingCount int               `json:"findingCount"`
}

// MetricCallback is invoked synchronously, in submission order, after each
// scanner completes.
type MetricCallback func(Metric)

func newMetric(s Scanner, start time.Time, findingCount int) Metric {
	return Metric{
		Scanner:      s.Name(),
		Kind:         s.Kind(),
		DurationMs:   float64(time.Since(start).Microseconds()) / 1000.0,
		FindingCount: findingCount,
	}
}
