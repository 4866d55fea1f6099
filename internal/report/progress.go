package report

import "sync/atomic"

// Progress is the shared counter set workers update as assets reach terminal
// status. It is the only state written from multiple workers, all fields
// atomic; records themselves are never shared.
type Progress struct {
	Total     atomic.Int64
	Done      atomic.Int64
	Optimized atomic.Int64
	Skipped   atomic.Int64
	Failed    atomic.Int64
}

// Snapshot is a consistent-enough copy of the counters for display.
type Snapshot struct {
	Total     int64 `json:"total"`
	Done      int64 `json:"done"`
	Optimized int64 `json:"optimized"`
	Skipped   int64 `json:"skipped"`
	Failed    int64 `json:"failed"`
}

// Snapshot reads the current counter values.
func (p *Progress) Snapshot() Snapshot {
	return Snapshot{
		Total:     p.Total.Load(),
		Done:      p.Done.Load(),
		Optimized: p.Optimized.Load(),
		Skipped:   p.Skipped.Load(),
		Failed:    p.Failed.Load(),
	}
}
