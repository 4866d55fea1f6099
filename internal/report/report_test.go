package report

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"asset-optimizer-go/internal/asset"
	"asset-optimizer-go/internal/rewriter"
)

func optimizedImage(rel string, size, newSize int64) *asset.Record {
	return &asset.Record{
		RelPath: rel,
		Kind:    asset.KindImage,
		Size:    size,
		Status:  asset.StatusOptimized,
		NewSize: newSize,
		Artifacts: []asset.Artifact{{
			RelPath: strings.TrimSuffix(rel, ".png") + ".webp",
			Format:  "image-webp",
			Size:    newSize,
		}},
	}
}

func optimizedText(rel string, size, brSize, gzSize int64) *asset.Record {
	return &asset.Record{
		RelPath: rel,
		Kind:    asset.KindText,
		Size:    size,
		Status:  asset.StatusOptimized,
		Artifacts: []asset.Artifact{
			{RelPath: rel + ".br", Format: "text-brotli", Size: brSize},
			{RelPath: rel + ".gz", Format: "text-gzip", Size: gzSize},
		},
	}
}

func TestBuildTotalsAndReconciliation(t *testing.T) {
	records := []*asset.Record{
		optimizedImage("a.png", 1000, 400),
		optimizedText("index.html", 500, 120, 150),
		{RelPath: "b.webp", Kind: asset.KindImage, Size: 300, Status: asset.StatusSkipped, SkipReason: "already in target format"},
	}
	failed := &asset.Record{RelPath: "c.png", Kind: asset.KindImage, Size: 200}
	failed.Fail("encode", errors.New("boom"))
	records = append(records, failed)

	r := Build(records, nil, time.Now())

	if !r.Reconciles() {
		t.Fatalf("counts do not reconcile: %d+%d+%d != %d", r.Optimized, r.Skipped, r.Failed, r.Discovered)
	}
	if r.Discovered != 4 || r.Optimized != 2 || r.Skipped != 1 || r.Failed != 1 {
		t.Fatalf("counts = discovered %d optimized %d skipped %d failed %d", r.Discovered, r.Optimized, r.Skipped, r.Failed)
	}

	// Failed assets contribute a failure entry, not a row.
	if len(r.Rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(r.Rows))
	}
	if len(r.Failures) != 1 || r.Failures[0].Operation != "encode" {
		t.Fatalf("failures = %+v", r.Failures)
	}

	// 1000+500+300 original; 400 (webp) + 120 (brotli) + 300 (skipped keeps size).
	if r.TotalOriginal != 1800 {
		t.Errorf("total original = %d", r.TotalOriginal)
	}
	if r.TotalNew != 820 {
		t.Errorf("total new = %d", r.TotalNew)
	}
	if r.TotalSaved != 980 {
		t.Errorf("total saved = %d", r.TotalSaved)
	}
}

func TestBuildPreservesDiscoveryOrder(t *testing.T) {
	records := []*asset.Record{
		optimizedImage("z.png", 10, 5),
		optimizedImage("a.png", 10, 5),
		optimizedImage("m.png", 10, 5),
	}
	r := Build(records, nil, time.Now())
	want := []string{"z.png", "a.png", "m.png"}
	for i, row := range r.Rows {
		if row.Path != want[i] {
			t.Errorf("row %d = %s, want %s", i, row.Path, want[i])
		}
	}
}

func TestTextRowUsesBrotliSize(t *testing.T) {
	r := Build([]*asset.Record{optimizedText("app.js", 1000, 200, 300)}, nil, time.Now())
	if r.Rows[0].NewSize != 200 {
		t.Errorf("text new size = %d, want the brotli sibling 200", r.Rows[0].NewSize)
	}
}

func TestReductionClampsGrownArtifact(t *testing.T) {
	// A tiny image can grow under recompression; the row floors at 0%.
	r := Build([]*asset.Record{optimizedImage("tiny.png", 50, 80)}, nil, time.Now())
	row := r.Rows[0]
	if row.Reduction != 0 {
		t.Errorf("reduction = %f, want clamped 0", row.Reduction)
	}
	if r.TotalSaved != -30 {
		t.Errorf("total saved = %d, want -30 (growth is visible in totals)", r.TotalSaved)
	}
}

func TestZeroSizeOriginalIsFlagged(t *testing.T) {
	r := Build([]*asset.Record{optimizedText("empty.css", 0, 1, 1)}, nil, time.Now())
	row := r.Rows[0]
	if !row.ZeroSize {
		t.Error("zero-byte original should be flagged")
	}
	if row.Reduction != 0 {
		t.Errorf("reduction = %f, want 0", row.Reduction)
	}
}

func TestPendingRecordsCountAsCancelled(t *testing.T) {
	pending := &asset.Record{RelPath: "pending.png", Kind: asset.KindImage, Size: 100, Status: asset.StatusPending}
	records := []*asset.Record{
		optimizedImage("done.png", 100, 40),
		pending,
	}
	r := Build(records, nil, time.Now())
	if !r.Reconciles() {
		t.Fatal("cancelled run must still reconcile")
	}
	if r.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", r.Skipped)
	}
	var row Row
	for _, candidate := range r.Rows {
		if candidate.Path == "pending.png" {
			row = candidate
		}
	}
	if row.Status != "skipped" {
		t.Errorf("row status = %q, want skipped", row.Status)
	}
	if row.SkipReason != "cancelled" {
		t.Errorf("skip reason = %q, want cancelled", row.SkipReason)
	}
	if row.NewSize != 100 {
		t.Errorf("cancelled row new size = %d, want original size", row.NewSize)
	}
	// The aggregator is read-only over records.
	if pending.Status != asset.StatusPending || pending.SkipReason != "" {
		t.Errorf("record mutated by Build: status=%v reason=%q", pending.Status, pending.SkipReason)
	}
}

func TestReportJSONRoundtrip(t *testing.T) {
	edits := []rewriter.Edit{{File: "index.html", Old: "a.png", New: "a.webp"}}
	r := Build([]*asset.Record{optimizedImage("a.png", 100, 40)}, edits, time.Now())

	data, err := r.JSON()
	if err != nil {
		t.Fatal(err)
	}
	var decoded Report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.RewrittenRefs != 1 || decoded.TotalSaved != 60 {
		t.Errorf("decoded report lost fields: %+v", decoded)
	}
}

func TestSummaryMentionsKeyNumbers(t *testing.T) {
	r := Build([]*asset.Record{
		optimizedImage("a.png", 2048, 1024),
		{RelPath: "b.webp", Kind: asset.KindImage, Size: 10, Status: asset.StatusSkipped, SkipReason: "already in target format"},
	}, nil, time.Now())

	s := r.Summary()
	for _, want := range []string{"a.png", "(skipped)", "Discovered: 2", "Optimized: 1"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}
}

func TestSummaryEmptyRun(t *testing.T) {
	r := Build(nil, nil, time.Now())
	if !strings.Contains(r.Summary(), "No assets found") {
		t.Error("empty run summary should say no assets were found")
	}
}

func TestProgressSnapshot(t *testing.T) {
	var p Progress
	p.Total.Store(10)
	p.Done.Add(3)
	p.Optimized.Add(2)
	p.Skipped.Add(1)

	snap := p.Snapshot()
	if snap.Total != 10 || snap.Done != 3 || snap.Optimized != 2 || snap.Skipped != 1 || snap.Failed != 0 {
		t.Errorf("snapshot = %+v", snap)
	}
}
