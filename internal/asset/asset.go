package asset

import (
	"path/filepath"
	"time"
)

// Kind classifies a discovered file.
type Kind int

const (
	KindIgnored Kind = iota
	KindImage
	KindVideo
	KindText
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindText:
		return "text"
	default:
		return "ignored"
	}
}

// Status tracks a record through the pipeline.
type Status int

const (
	StatusPending Status = iota
	StatusSkipped
	StatusOptimized
	StatusFailed
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusSkipped:
		return "skipped"
	case StatusOptimized:
		return "optimized"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Artifact is a derived, compressed output file produced from a source asset.
type Artifact struct {
	SourcePath string `json:"source_path"`
	Path       string `json:"path"`
	RelPath    string `json:"rel_path"`
	Format     string `json:"format"` // image-webp, video-h264, text-brotli, text-gzip
	Size       int64  `json:"size"`
}

// Record describes one asset discovered under the root. A record is created by
// the scanner, handed to exactly one worker, and never written concurrently.
// Once the status is terminal the record is treated as immutable.
type Record struct {
	AbsPath string
	RelPath string
	Kind    Kind
	Size    int64
	ModTime time.Time

	Status    Status
	Artifacts []Artifact
	NewSize   int64

	// Set only when Status is StatusFailed.
	FailedOp string
	Err      error

	// Set when Status is StatusSkipped.
	SkipReason string
}

// IsMedia reports whether the record is an image or a video.
func (r *Record) IsMedia() bool {
	return r.Kind == KindImage || r.Kind == KindVideo
}

// Terminal reports whether the record has reached a final status.
func (r *Record) Terminal() bool {
	return r.Status != StatusPending
}

// Fail marks the record failed with the operation that caused it.
func (r *Record) Fail(op string, err error) {
	r.Status = StatusFailed
	r.FailedOp = op
	r.Err = err
}

// Skip marks the record skipped with a reason.
func (r *Record) Skip(reason string) {
	r.Status = StatusSkipped
	r.SkipReason = reason
}

// AddArtifact records a produced artifact and keeps NewSize in sync for media
// records; text records carry two siblings and NewSize is resolved by the
// report aggregator.
func (r *Record) AddArtifact(a Artifact) {
	r.Artifacts = append(r.Artifacts, a)
	if r.IsMedia() {
		r.NewSize = a.Size
	}
}

// PrimaryArtifact returns the artifact the rewriter should point references
// at: the single derived file for media records, nothing for text records.
func (r *Record) PrimaryArtifact() (Artifact, bool) {
	if !r.IsMedia() || len(r.Artifacts) == 0 {
		return Artifact{}, false
	}
	return r.Artifacts[0], true
}

// Stem returns the record's path without its extension.
func (r *Record) Stem() string {
	ext := filepath.Ext(r.AbsPath)
	return r.AbsPath[:len(r.AbsPath)-len(ext)]
}
