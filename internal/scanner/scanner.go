// Package scanner walks the project tree and classifies every file into an
// asset record before any compression work starts.
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"asset-optimizer-go/internal/asset"
	"asset-optimizer-go/internal/config"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sirupsen/logrus"
)

// ScanError indicates the root itself could not be scanned. It is the only
// fatal error the scanner produces; per-file problems become Failed records.
type ScanError struct {
	Root string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("cannot scan root %s: %v", e.Root, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// Scanner discovers and classifies assets under a root directory.
type Scanner struct {
	cfg *config.Config
	log *logrus.Logger
}

// New returns a Scanner for the given configuration.
func New(cfg *config.Config, log *logrus.Logger) *Scanner {
	return &Scanner{cfg: cfg, log: log}
}

// Scan walks root depth-first and returns one record per image, video, or
// text asset in discovery order. Ignored directories are pruned at the
// directory level so their subtrees are never descended into. Files with
// unrecognized extensions are never produced. Unreadable files are recorded
// as Failed; an unreadable root is a *ScanError.
func (s *Scanner) Scan(root string) ([]*asset.Record, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, &ScanError{Root: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &ScanError{Root: root, Err: fmt.Errorf("not a directory")}
	}
	if _, err := os.ReadDir(root); err != nil {
		return nil, &ScanError{Root: root, Err: err}
	}

	var records []*asset.Record

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// Record unreadable entries instead of aborting the scan.
			s.log.Warnf("Error accessing path %s: %v", path, err)
			if rec := s.newRecord(root, path, nil); rec != nil {
				rec.Fail("scan", err)
				records = append(records, rec)
			}
			return nil
		}

		if d.IsDir() {
			if path != root && s.ignored(d.Name()) {
				s.log.Debugf("Skipping ignored directory: %s", path)
				return fs.SkipDir
			}
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			if rec := s.newRecord(root, path, nil); rec != nil {
				rec.Fail("stat", err)
				records = append(records, rec)
			}
			return nil
		}

		if rec := s.newRecord(root, path, fi); rec != nil {
			records = append(records, rec)
		}
		return nil
	})

	if walkErr != nil {
		return nil, &ScanError{Root: root, Err: walkErr}
	}

	s.log.Infof("Discovered %d assets under %s", len(records), root)
	return records, nil
}

// newRecord classifies a path and builds its record, or returns nil for
// files that are not assets (unknown extensions and derived artifacts).
func (s *Scanner) newRecord(root, path string, fi fs.FileInfo) *asset.Record {
	kind := s.Classify(path)
	if kind == asset.KindIgnored {
		return nil
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}

	rec := &asset.Record{
		AbsPath: path,
		RelPath: filepath.ToSlash(rel),
		Kind:    kind,
		Status:  asset.StatusPending,
	}
	if fi != nil {
		rec.Size = fi.Size()
		rec.ModTime = fi.ModTime()
	}
	return rec
}

// Classify assigns a kind based on the file extension, case-insensitively.
// Derived compressed-text siblings (.br/.gz) fall through to KindIgnored
// because their extension is the compression suffix, not a text extension.
func (s *Scanner) Classify(path string) asset.Kind {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case s.cfg.IsImageExtension(ext):
		return asset.KindImage
	case s.cfg.IsVideoExtension(ext):
		return asset.KindVideo
	case s.cfg.IsTextExtension(ext):
		return asset.KindText
	default:
		return asset.KindIgnored
	}
}

// ignored reports whether a directory name matches the configured ignore
// set. Entries are doublestar glob patterns, so both literal names
// ("node_modules") and patterns (".*cache") work.
func (s *Scanner) ignored(name string) bool {
	for _, pattern := range s.cfg.IgnoreDirs {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}
