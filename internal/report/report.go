// Package report turns the final record collection into the run summary:
// one row per asset in discovery order, totals recomputed once at the end.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"asset-optimizer-go/internal/asset"
	"asset-optimizer-go/internal/rewriter"
)

// Row is one asset's accounting line.
type Row struct {
	Path         string  `json:"path"`
	Kind         string  `json:"kind"`
	Status       string  `json:"status"`
	OriginalSize int64   `json:"original_size"`
	NewSize      int64   `json:"new_size"`
	Reduction    float64 `json:"reduction_percent"`
	ZeroSize     bool    `json:"zero_size,omitempty"`
	SkipReason   string  `json:"skip_reason,omitempty"`
}

// Failure is one failed asset with its cause.
type Failure struct {
	Path      string `json:"path"`
	Kind      string `json:"kind"`
	Operation string `json:"operation"`
	Error     string `json:"error"`
}

// Report is the final run summary.
type Report struct {
	Rows     []Row     `json:"rows"`
	Failures []Failure `json:"failures"`

	TotalOriginal int64 `json:"total_original_bytes"`
	TotalNew      int64 `json:"total_new_bytes"`
	TotalSaved    int64 `json:"total_saved_bytes"`

	Discovered int `json:"discovered"`
	Optimized  int `json:"optimized"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`

	RewrittenRefs int `json:"rewritten_refs"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}

// Build produces the report from the final record collection. Rows follow
// discovery order, so output is deterministic despite parallel processing.
// Skipped rows retain their original size (zero net change); text rows use
// the brotli sibling as the served size.
func Build(records []*asset.Record, edits []rewriter.Edit, startedAt time.Time) *Report {
	r := &Report{
		StartedAt:     startedAt,
		Duration:      time.Since(startedAt),
		RewrittenRefs: len(edits),
	}

	for _, rec := range records {
		r.Discovered++
		switch rec.Status {
		case asset.StatusFailed:
			r.Failed++
			msg := ""
			if rec.Err != nil {
				msg = rec.Err.Error()
			}
			r.Failures = append(r.Failures, Failure{
				Path:      rec.RelPath,
				Kind:      rec.Kind.String(),
				Operation: rec.FailedOp,
				Error:     msg,
			})
			continue

		case asset.StatusOptimized:
			r.Optimized++
		default:
			// Skipped, plus the pending records a cancelled run leaves
			// behind. Both carry no size change so totals still reconcile.
			r.Skipped++
		}

		row := Row{
			Path:         rec.RelPath,
			Kind:         rec.Kind.String(),
			Status:       rec.Status.String(),
			OriginalSize: rec.Size,
			NewSize:      newSize(rec),
			SkipReason:   rec.SkipReason,
		}
		if rec.Status == asset.StatusPending {
			// Rendered as a cancelled skip; the record itself stays untouched.
			row.Status = asset.StatusSkipped.String()
			row.SkipReason = "cancelled"
		}
		row.Reduction, row.ZeroSize = reduction(row.OriginalSize, row.NewSize)
		r.Rows = append(r.Rows, row)
	}

	// Totals come from the rows in one pass at the end, never drifted
	// incrementally during the run.
	for _, row := range r.Rows {
		r.TotalOriginal += row.OriginalSize
		r.TotalNew += row.NewSize
	}
	r.TotalSaved = r.TotalOriginal - r.TotalNew

	return r
}

// newSize picks the row's after-size: the single artifact for optimized
// media, the brotli sibling for optimized text, the original size for
// everything skipped.
func newSize(rec *asset.Record) int64 {
	if rec.Status != asset.StatusOptimized {
		return rec.Size
	}
	if rec.IsMedia() {
		return rec.NewSize
	}
	for _, a := range rec.Artifacts {
		if strings.HasSuffix(a.Format, "brotli") {
			return a.Size
		}
	}
	return rec.Size
}

// reduction computes (1 - after/original) clamped to [0,100]. Zero-byte
// originals yield 0% and a flag instead of a division fault.
func reduction(original, after int64) (float64, bool) {
	if original == 0 {
		return 0, true
	}
	pct := (1 - float64(after)/float64(original)) * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct, false
}

// Reconciles reports whether the status counts add up to the discovered
// total, the invariant every run must satisfy.
func (r *Report) Reconciles() bool {
	return r.Optimized+r.Skipped+r.Failed == r.Discovered
}

// JSON renders the report as indented JSON.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Summary returns a formatted text table of the run.
func (r *Report) Summary() string {
	var b strings.Builder

	b.WriteString("Asset Optimization Report\n")
	b.WriteString(strings.Repeat("=", 72) + "\n")

	if len(r.Rows) == 0 && len(r.Failures) == 0 {
		b.WriteString("No assets found.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%-40s %10s %10s %8s\n", "Asset", "Old", "New", "Saved")
	b.WriteString(strings.Repeat("-", 72) + "\n")
	for _, row := range r.Rows {
		note := ""
		if row.Status == "skipped" {
			note = " (skipped)"
		} else if row.ZeroSize {
			note = " (empty)"
		}
		fmt.Fprintf(&b, "%-40s %10s %10s %7.1f%%%s\n",
			truncatePath(row.Path, 40),
			formatBytes(row.OriginalSize),
			formatBytes(row.NewSize),
			row.Reduction,
			note)
	}

	if len(r.Failures) > 0 {
		b.WriteString("\nFailures:\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "  %s [%s] %s: %s\n", f.Path, f.Kind, f.Operation, f.Error)
		}
	}

	b.WriteString(strings.Repeat("-", 72) + "\n")
	fmt.Fprintf(&b, "Discovered: %d   Optimized: %d   Skipped: %d   Failed: %d\n",
		r.Discovered, r.Optimized, r.Skipped, r.Failed)
	fmt.Fprintf(&b, "Total: %s -> %s   Saved: %s\n",
		formatBytes(r.TotalOriginal), formatBytes(r.TotalNew), formatBytes(r.TotalSaved))
	if r.RewrittenRefs > 0 {
		fmt.Fprintf(&b, "References rewritten: %d\n", r.RewrittenRefs)
	}
	fmt.Fprintf(&b, "Duration: %v\n", r.Duration.Round(time.Millisecond))

	return b.String()
}

func truncatePath(p string, max int) string {
	if len(p) <= max {
		return p
	}
	return "..." + p[len(p)-max+3:]
}

// formatBytes returns a human-readable string for a byte count.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
