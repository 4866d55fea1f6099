// Package pipeline coordinates one optimization pass: discover and classify,
// compress in parallel behind the idempotency guard, join at a barrier, then
// rewrite references and build the report.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"asset-optimizer-go/internal/asset"
	"asset-optimizer-go/internal/config"
	"asset-optimizer-go/internal/engine"
	"asset-optimizer-go/internal/report"
	"asset-optimizer-go/internal/rewriter"
	"asset-optimizer-go/internal/scanner"

	"github.com/sirupsen/logrus"
)

// Pipeline runs the discover -> compress -> rewrite -> report pass.
type Pipeline struct {
	cfg      *config.Config
	log      *logrus.Logger
	scanner  *scanner.Scanner
	engine   *engine.Engine
	rewriter *rewriter.Rewriter

	// Progress is safe to read concurrently while Run executes.
	Progress *report.Progress
}

// New builds a pipeline with the default codecs.
func New(cfg *config.Config, log *logrus.Logger) (*Pipeline, error) {
	return NewWithEngine(cfg, log, engine.New(cfg, log))
}

// NewWithEngine builds a pipeline around an explicit engine, letting tests
// inject fake codecs.
func NewWithEngine(cfg *config.Config, log *logrus.Logger, eng *engine.Engine) (*Pipeline, error) {
	rw, err := rewriter.New(cfg, log)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:      cfg,
		log:      log,
		scanner:  scanner.New(cfg, log),
		engine:   eng,
		rewriter: rw,
		Progress: &report.Progress{},
	}, nil
}

// Run executes one full pass over the configured source directory. A run
// always produces a report once work has started; the error is non-nil only
// for the fatal conditions (unreadable root, unwritable destination,
// cancellation).
func (p *Pipeline) Run(ctx context.Context) (*report.Report, error) {
	started := time.Now()

	records, err := p.scanner.Scan(p.cfg.SourceDirectory)
	if err != nil {
		return nil, err
	}

	if err := p.probeWritable(); err != nil {
		return nil, err
	}

	p.markCollisions(records)

	p.Progress.Total.Store(int64(len(records)))

	var pending []*asset.Record
	for _, rec := range records {
		if rec.Terminal() {
			// Failed during the scan or in the collision check.
			p.Progress.Done.Add(1)
			p.Progress.Failed.Add(1)
			continue
		}
		pending = append(pending, rec)
	}

	p.runWorkers(ctx, pending)
	// All workers have returned: the barrier. Every record is terminal (or
	// still pending only because the run was cancelled).

	if ctx.Err() != nil {
		p.log.Warn("Run cancelled; skipping reference rewrite")
		return report.Build(records, nil, started), ctx.Err()
	}

	var edits []rewriter.Edit
	if p.cfg.Rewrite.Enabled {
		edits = p.rewriter.Rewrite(records)
		p.refreshRewritten(records, edits)
	}

	rep := report.Build(records, edits, started)
	p.log.Infof("Run complete: %d optimized, %d skipped, %d failed, saved %d bytes",
		rep.Optimized, rep.Skipped, rep.Failed, rep.TotalSaved)
	return rep, nil
}

// runWorkers fans the pending records out to a bounded worker pool and
// joins. Each worker takes one record end to end: guard check, then
// compression, then progress accounting. No ordering is guaranteed between
// records.
func (p *Pipeline) runWorkers(ctx context.Context, pending []*asset.Record) {
	queue := make(chan *asset.Record, p.cfg.Performance.QueueSize)

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Performance.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, queue)
		}()
	}

	go func() {
		defer close(queue)
		for _, rec := range pending {
			select {
			case <-ctx.Done():
				return
			case queue <- rec:
			}
		}
	}()

	wg.Wait()
}

func (p *Pipeline) worker(ctx context.Context, queue <-chan *asset.Record) {
	for rec := range queue {
		if ctx.Err() != nil {
			// Leave the record pending; the report counts it as cancelled.
			continue
		}
		p.engine.Process(ctx, rec)
		p.account(rec)
	}
}

func (p *Pipeline) account(rec *asset.Record) {
	p.Progress.Done.Add(1)
	switch rec.Status {
	case asset.StatusOptimized:
		p.Progress.Optimized.Add(1)
	case asset.StatusSkipped:
		p.Progress.Skipped.Add(1)
	case asset.StatusFailed:
		p.Progress.Failed.Add(1)
	}
}

// refreshRewritten re-derives the compressed siblings of every text file the
// rewriter changed; without this the siblings would be stale and the next
// run would needlessly recompress, breaking run-twice idempotence.
func (p *Pipeline) refreshRewritten(records []*asset.Record, edits []rewriter.Edit) {
	if len(edits) == 0 {
		return
	}
	rewritten := make(map[string]struct{})
	for _, e := range edits {
		rewritten[e.File] = struct{}{}
	}
	for _, rec := range records {
		if rec.Kind != asset.KindText {
			continue
		}
		if _, ok := rewritten[rec.RelPath]; ok {
			p.engine.RefreshText(rec)
		}
	}
}

// markCollisions fails every media record whose artifact destination is
// already claimed by an earlier record. Two same-stem sources (photo.png and
// photo.jpg) would otherwise race to publish the same photo.webp from two
// workers at once; instead the first in discovery order wins and the rest are
// failed before any worker starts.
func (p *Pipeline) markCollisions(records []*asset.Record) {
	claimed := make(map[string]string)
	for _, rec := range records {
		if rec.Terminal() {
			continue
		}
		dst, ok := p.engine.Destination(rec)
		if !ok {
			continue
		}
		if owner, exists := claimed[dst]; exists {
			rec.Fail("derive", fmt.Errorf("artifact %s already claimed by %s", filepath.Base(dst), owner))
			p.log.Warnf("Artifact collision: %s and %s both derive %s", owner, rec.RelPath, filepath.Base(dst))
			continue
		}
		claimed[dst] = rec.RelPath
	}
}

// probeWritable verifies artifacts can be written at all before any worker
// starts; a read-only destination is fatal up front rather than a per-asset
// failure storm.
func (p *Pipeline) probeWritable() error {
	f, err := os.CreateTemp(p.cfg.SourceDirectory, ".asset-optimizer-probe-*")
	if err != nil {
		return fmt.Errorf("destination is not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
