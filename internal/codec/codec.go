// Package codec wraps the external transcoding capabilities the engine
// invokes: WebP image encoding, H.264 video transcoding, and the two
// stream-compression algorithms for text assets. All writers go through a
// temp file and rename so a failed encode never leaves a partial artifact
// behind.
package codec

import (
	"context"
	"fmt"
)

// ImageOptions are the fixed encode parameters for one image.
type ImageOptions struct {
	Quality      int // 0-100
	Effort       int // encoder effort, cwebp -m
	MaxDimension int // largest allowed width or height, 0 = no limit
}

// ImageCodec re-encodes a source image into the next-gen format at dst.
type ImageCodec interface {
	Encode(ctx context.Context, src, dst string, opts ImageOptions) error
}

// VideoOptions are the fixed transcode parameters for one video.
type VideoOptions struct {
	CRF          int
	Preset       string
	MaxDimension int
}

// VideoTranscoder re-encodes a source video into the output container at dst.
type VideoTranscoder interface {
	Transcode(ctx context.Context, src, dst string, opts VideoOptions) error
}

// CodecError indicates a transcoder rejected its input or failed mid-encode.
type CodecError struct {
	Tool   string
	Path   string
	Detail string
	Err    error
}

func (e *CodecError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s failed for %s: %v: %s", e.Tool, e.Path, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s failed for %s: %v", e.Tool, e.Path, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }
