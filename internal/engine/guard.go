package engine

import (
	"os"
	"path/filepath"
	"strings"

	"asset-optimizer-go/internal/asset"
	"asset-optimizer-go/internal/codec"
)

// alreadyOptimized is the idempotency guard. It holds no state between runs;
// the decision is made from the filesystem every time. An asset is skipped
// when it is already in the target format, or when every expected derived
// artifact exists with a modification time not older than the source — the
// strict comparison direction that can waste work on a false negative but
// never skips something that needs processing.
//
// When the guard skips because fresh artifacts exist, it attaches them to
// the record so the rewriter still learns the original-to-artifact mapping
// on re-runs.
func (e *Engine) alreadyOptimized(rec *asset.Record) (string, bool) {
	switch rec.Kind {
	case asset.KindImage:
		dst, ok := e.Destination(rec)
		if !ok {
			return "already in target format", true
		}
		art, fresh := e.freshArtifact(rec, dst, FormatImageWebP)
		if !fresh {
			return "", false
		}
		rec.AddArtifact(art)
		return "artifact up to date", true

	case asset.KindVideo:
		dst, ok := e.Destination(rec)
		if !ok {
			return "derived video artifact", true
		}
		art, fresh := e.freshArtifact(rec, dst, FormatVideoH264)
		if !fresh {
			return "", false
		}
		rec.AddArtifact(art)
		return "artifact up to date", true

	case asset.KindText:
		br, okBr := e.freshArtifact(rec, rec.AbsPath+codec.BrotliSuffix, FormatTextBrotli)
		gz, okGz := e.freshArtifact(rec, rec.AbsPath+codec.GzipSuffix, FormatTextGzip)
		// Both siblings must be fresh; a missing or stale one means reprocess.
		if !okBr || !okGz {
			return "", false
		}
		rec.AddArtifact(br)
		rec.AddArtifact(gz)
		return "artifacts up to date", true
	}
	return "", false
}

// freshArtifact stats an expected artifact path and reports whether it is
// usable as-is (present, not older than the source).
func (e *Engine) freshArtifact(rec *asset.Record, path, format string) (asset.Artifact, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return asset.Artifact{}, false
	}
	if info.ModTime().Before(rec.ModTime) {
		return asset.Artifact{}, false
	}

	relExt := filepath.Ext(rec.RelPath)
	relStem := rec.RelPath[:len(rec.RelPath)-len(relExt)]
	rel := relStem + strings.TrimPrefix(path, rec.Stem())

	return asset.Artifact{
		SourcePath: rec.AbsPath,
		Path:       path,
		RelPath:    rel,
		Format:     format,
		Size:       info.Size(),
	}, true
}
