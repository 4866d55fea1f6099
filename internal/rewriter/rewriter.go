// Package rewriter updates references to optimized media inside the
// project's text sources. It runs strictly after all compression work has
// finished, because it needs the complete original-to-artifact mapping.
package rewriter

import (
	"fmt"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"asset-optimizer-go/internal/asset"
	"asset-optimizer-go/internal/config"

	"github.com/sirupsen/logrus"
)

// Edit records one reference replacement, for reporting only. Offset is the
// byte position of the reference in the file's content as it was read, before
// any replacement.
type Edit struct {
	File   string `json:"file"`
	Old    string `json:"old"`
	New    string `json:"new"`
	Offset int    `json:"offset"`
}

// Rewriter scans text assets and rewrites media references.
type Rewriter struct {
	cfg      *config.Config
	log      *logrus.Logger
	patterns []*regexp.Regexp
}

// New compiles the configured reference patterns. Every pattern must carry
// exactly one capture group holding the referenced path.
func New(cfg *config.Config, log *logrus.Logger) (*Rewriter, error) {
	patterns := make([]*regexp.Regexp, 0, len(cfg.Rewrite.Patterns))
	for _, p := range cfg.Rewrite.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid rewrite pattern %q: %w", p, err)
		}
		if re.NumSubexp() != 1 {
			return nil, fmt.Errorf("rewrite pattern %q must have exactly one capture group", p)
		}
		patterns = append(patterns, re)
	}
	return &Rewriter{cfg: cfg, log: log, patterns: patterns}, nil
}

// Rewrite scans every Text-kind record for references to the media assets in
// records whose artifact paths are known, replaces each matched path with
// the artifact path, and writes a file back only when at least one
// replacement occurred. Derived .br/.gz artifacts are never scanned — they
// are not text records. Per-file failures are logged and do not stop the
// pass.
func (rw *Rewriter) Rewrite(records []*asset.Record) []Edit {
	mapping := buildMapping(records)
	if len(mapping) == 0 {
		return nil
	}

	// Longest keys first, so suffix fallback prefers the most specific path.
	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	var edits []Edit
	for _, rec := range records {
		if rec.Kind != asset.KindText || rec.Status == asset.StatusFailed {
			continue
		}
		fileEdits, err := rw.rewriteFile(rec, mapping, keys)
		if err != nil {
			rw.log.Warnf("Reference rewrite failed for %s: %v", rec.RelPath, err)
			continue
		}
		edits = append(edits, fileEdits...)
	}
	return edits
}

// buildMapping collects original RelPath -> artifact RelPath for every media
// record with a known artifact: freshly optimized ones and guard-skipped
// ones whose existing artifacts were attached. Text compression siblings are
// excluded — browsers negotiate those via Content-Encoding, not by URL.
func buildMapping(records []*asset.Record) map[string]string {
	mapping := make(map[string]string)
	for _, rec := range records {
		art, ok := rec.PrimaryArtifact()
		if !ok {
			continue
		}
		if art.RelPath == rec.RelPath {
			continue
		}
		mapping[rec.RelPath] = art.RelPath
	}
	return mapping
}

func (rw *Rewriter) rewriteFile(rec *asset.Record, mapping map[string]string, keys []string) ([]Edit, error) {
	data, err := os.ReadFile(rec.AbsPath)
	if err != nil {
		return nil, err
	}
	content := string(data)
	fileDir := path.Dir(rec.RelPath)

	// Every pattern matches against the original content, so edit offsets are
	// real file positions and the same reference matched by two patterns
	// collapses to one replacement.
	type span struct{ start, end int }
	var spans []span
	for _, re := range rw.patterns {
		for _, m := range re.FindAllStringSubmatchIndex(content, -1) {
			if m[2] < 0 {
				continue
			}
			spans = append(spans, span{m[2], m[3]})
		}
	}
	if len(spans) == 0 {
		return nil, nil
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var edits []Edit
	var b strings.Builder
	last := 0
	for _, sp := range spans {
		if sp.start < last {
			continue
		}
		ref := content[sp.start:sp.end]
		newRef, ok := rw.resolve(ref, fileDir, mapping, keys)
		if !ok {
			continue
		}
		edits = append(edits, Edit{
			File:   rec.RelPath,
			Old:    ref,
			New:    newRef,
			Offset: sp.start,
		})
		b.WriteString(content[last:sp.start])
		b.WriteString(newRef)
		last = sp.end
	}

	if len(edits) == 0 {
		return nil, nil
	}
	b.WriteString(content[last:])

	info, err := os.Stat(rec.AbsPath)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(rec.AbsPath, []byte(b.String()), info.Mode()); err != nil {
		return nil, err
	}
	rw.log.Infof("Rewrote %d reference(s) in %s", len(edits), rec.RelPath)
	return edits, nil
}

// resolve maps one captured reference to its rewritten form, or reports that
// it does not point at an optimized asset. The query/fragment suffix is kept
// verbatim; only the path part changes.
func (rw *Rewriter) resolve(ref, fileDir string, mapping map[string]string, keys []string) (string, bool) {
	pathPart, suffix := splitRef(ref)
	if pathPart == "" || strings.Contains(pathPart, "://") {
		return "", false
	}

	target, ok := lookupMapping(pathPart, fileDir, mapping, keys)
	if !ok {
		return "", false
	}

	// Replace only the final segment so the reference keeps its original
	// prefix style (relative, ./-prefixed, or root-absolute).
	slash := strings.LastIndex(pathPart, "/")
	newPath := path.Base(target)
	if slash >= 0 {
		newPath = pathPart[:slash+1] + path.Base(target)
	}
	return newPath + suffix, true
}

// lookupMapping resolves a reference path-qualified: relative to the
// containing file (or the root for /-absolute refs) first, then by the
// longest whole-segment suffix match (most specific wins). The fallback
// never applies to bare basenames — a lone "photo.png" must resolve against
// its own directory only, so a same-named asset elsewhere is never touched.
func lookupMapping(pathPart, fileDir string, mapping map[string]string, keys []string) (string, bool) {
	var resolved string
	if strings.HasPrefix(pathPart, "/") {
		resolved = path.Clean(strings.TrimPrefix(pathPart, "/"))
	} else {
		resolved = path.Clean(path.Join(fileDir, pathPart))
	}
	if target, ok := mapping[resolved]; ok {
		return target, true
	}

	if !strings.Contains(pathPart, "/") {
		return "", false
	}
	for _, key := range keys {
		if pathPart == key || strings.HasSuffix(pathPart, "/"+key) {
			return mapping[key], true
		}
	}
	return "", false
}

// splitRef separates a reference into its path and its query/fragment
// suffix, which must survive the rewrite untouched.
func splitRef(ref string) (string, string) {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i], ref[i:]
	}
	return ref, ""
}
