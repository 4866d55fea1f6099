// Package engine performs the per-asset compression work: the idempotency
// check and the kind-specific transcode, one asset at a time, with every
// failure contained to the asset that caused it.
package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"asset-optimizer-go/internal/asset"
	"asset-optimizer-go/internal/codec"
	"asset-optimizer-go/internal/config"
	"asset-optimizer-go/internal/metadata"

	"github.com/sirupsen/logrus"
)

// VideoArtifactMarker is inserted before the container extension of video
// artifacts. A plain extension swap would map video.mp4 onto itself, so the
// artifact for video.mp4 is video.optimized.mp4.
const VideoArtifactMarker = ".optimized"

// VideoArtifactExt is the full artifact suffix appended to a video stem.
const VideoArtifactExt = VideoArtifactMarker + ".mp4"

// Artifact format identifiers.
const (
	FormatImageWebP  = "image-webp"
	FormatVideoH264  = "video-h264"
	FormatTextBrotli = "text-brotli"
	FormatTextGzip   = "text-gzip"
)

// Engine compresses pending asset records.
type Engine struct {
	cfg    *config.Config
	log    *logrus.Logger
	images codec.ImageCodec
	videos codec.VideoTranscoder
}

// New returns an Engine backed by the default cwebp and ffmpeg codecs.
func New(cfg *config.Config, log *logrus.Logger) *Engine {
	return NewWithCodecs(cfg, log, codec.NewWebPEncoder(), codec.NewFFmpegTranscoder())
}

// NewWithCodecs returns an Engine with explicit codec implementations.
func NewWithCodecs(cfg *config.Config, log *logrus.Logger, images codec.ImageCodec, videos codec.VideoTranscoder) *Engine {
	return &Engine{cfg: cfg, log: log, images: images, videos: videos}
}

// Destination returns the artifact path a media record will publish. False
// means the record never claims one: images already in the target format and
// derived video artifacts are skipped by the guard, and text siblings carry
// the full source name so they cannot collide.
func (e *Engine) Destination(rec *asset.Record) (string, bool) {
	switch rec.Kind {
	case asset.KindImage:
		if strings.EqualFold(filepath.Ext(rec.AbsPath), e.cfg.TargetImageExt()) {
			return "", false
		}
		return rec.Stem() + e.cfg.TargetImageExt(), true
	case asset.KindVideo:
		if strings.HasSuffix(strings.ToLower(rec.AbsPath), VideoArtifactExt) {
			return "", false
		}
		return rec.Stem() + VideoArtifactExt, true
	}
	return "", false
}

// Process takes a record from Pending to a terminal status: Skipped when the
// guard finds it already optimized, Optimized with recorded artifacts on
// success, Failed with the causing operation otherwise. The record is owned
// by the calling worker; nothing here is shared.
func (e *Engine) Process(ctx context.Context, rec *asset.Record) {
	if rec.Terminal() {
		return
	}

	if reason, ok := e.alreadyOptimized(rec); ok {
		rec.Skip(reason)
		e.log.Debugf("Skipping %s: %s", rec.RelPath, reason)
		return
	}

	switch rec.Kind {
	case asset.KindImage:
		e.processImage(ctx, rec)
	case asset.KindVideo:
		e.processVideo(ctx, rec)
	case asset.KindText:
		e.processText(rec)
	default:
		rec.Skip("not an optimizable kind")
	}
}

func (e *Engine) processImage(ctx context.Context, rec *asset.Record) {
	dst := rec.Stem() + e.cfg.TargetImageExt()

	opts := codec.ImageOptions{
		Quality:      e.cfg.Image.Quality,
		Effort:       e.cfg.Image.Effort,
		MaxDimension: e.cfg.MaxDimension,
	}
	if err := e.images.Encode(ctx, rec.AbsPath, dst, opts); err != nil {
		rec.Fail("encode", err)
		e.log.Warnf("Image encode failed for %s: %v", rec.RelPath, err)
		return
	}

	if e.cfg.Image.PreserveMetadata {
		if err := metadata.CopyTags(rec.AbsPath, dst); err != nil {
			e.log.Warnf("Metadata not copied for %s: %v", rec.RelPath, err)
		}
	}

	art, err := e.describeArtifact(rec, dst, FormatImageWebP)
	if err != nil {
		rec.Fail("stat-artifact", err)
		return
	}
	rec.AddArtifact(art)
	rec.Status = asset.StatusOptimized
	e.log.Infof("Optimized image %s -> %s", rec.RelPath, art.RelPath)
}

func (e *Engine) processVideo(ctx context.Context, rec *asset.Record) {
	dst := rec.Stem() + VideoArtifactExt

	opts := codec.VideoOptions{
		CRF:          e.cfg.Video.CRF,
		Preset:       e.cfg.Video.Preset,
		MaxDimension: e.cfg.MaxDimension,
	}
	if err := e.videos.Transcode(ctx, rec.AbsPath, dst, opts); err != nil {
		rec.Fail("transcode", err)
		e.log.Warnf("Video transcode failed for %s: %v", rec.RelPath, err)
		return
	}

	art, err := e.describeArtifact(rec, dst, FormatVideoH264)
	if err != nil {
		rec.Fail("stat-artifact", err)
		return
	}
	rec.AddArtifact(art)
	rec.Status = asset.StatusOptimized
	e.log.Infof("Optimized video %s -> %s", rec.RelPath, art.RelPath)
}

func (e *Engine) processText(rec *asset.Record) {
	size, err := codec.CompressBrotli(rec.AbsPath, rec.AbsPath+codec.BrotliSuffix)
	if err != nil {
		rec.Fail("brotli", err)
		e.log.Warnf("Brotli compression failed for %s: %v", rec.RelPath, err)
		return
	}
	rec.AddArtifact(asset.Artifact{
		SourcePath: rec.AbsPath,
		Path:       rec.AbsPath + codec.BrotliSuffix,
		RelPath:    rec.RelPath + codec.BrotliSuffix,
		Format:     FormatTextBrotli,
		Size:       size,
	})

	size, err = codec.CompressGzip(rec.AbsPath, rec.AbsPath+codec.GzipSuffix)
	if err != nil {
		rec.Fail("gzip", err)
		e.log.Warnf("Gzip compression failed for %s: %v", rec.RelPath, err)
		return
	}
	rec.AddArtifact(asset.Artifact{
		SourcePath: rec.AbsPath,
		Path:       rec.AbsPath + codec.GzipSuffix,
		RelPath:    rec.RelPath + codec.GzipSuffix,
		Format:     FormatTextGzip,
		Size:       size,
	})

	rec.Status = asset.StatusOptimized
	e.log.Infof("Compressed text %s (.br, .gz)", rec.RelPath)
}

// RefreshText re-derives the compressed siblings of a text record whose
// content was changed by the reference rewriter, so the artifacts never lag
// the file they mirror and the next run's guard sees them as fresh.
func (e *Engine) RefreshText(rec *asset.Record) {
	if rec.Kind != asset.KindText || rec.Status == asset.StatusFailed {
		return
	}
	rec.Artifacts = nil
	rec.Status = asset.StatusPending
	rec.SkipReason = ""
	e.processText(rec)
}

// describeArtifact stats a freshly written artifact and builds its record
// entry, deriving the relative path with the same transformation applied to
// the absolute one.
func (e *Engine) describeArtifact(rec *asset.Record, dst, format string) (asset.Artifact, error) {
	info, err := os.Stat(dst)
	if err != nil {
		return asset.Artifact{}, err
	}

	relExt := filepath.Ext(rec.RelPath)
	relStem := rec.RelPath[:len(rec.RelPath)-len(relExt)]
	rel := relStem + strings.TrimPrefix(dst, rec.Stem())

	return asset.Artifact{
		SourcePath: rec.AbsPath,
		Path:       dst,
		RelPath:    rel,
		Format:     format,
		Size:       info.Size(),
	}, nil
}
