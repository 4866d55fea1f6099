package codec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// FFmpegTranscoder re-encodes videos with the ffmpeg binary: libx264 at a
// fixed CRF/preset, audio re-encoded to AAC, faststart flag for streaming.
type FFmpegTranscoder struct {
	// Binary overrides the ffmpeg executable name, mainly for tests.
	Binary string
}

// NewFFmpegTranscoder returns a transcoder using the ffmpeg binary on PATH.
func NewFFmpegTranscoder() *FFmpegTranscoder {
	return &FFmpegTranscoder{Binary: "ffmpeg"}
}

// Transcode writes the re-encoded video to dst via temp file + rename. When
// opts.MaxDimension is set, the video is downscaled so its width does not
// exceed it (height follows, kept even for the encoder); smaller videos are
// never upscaled.
func (t *FFmpegTranscoder) Transcode(ctx context.Context, src, dst string, opts VideoOptions) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmp := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmp)

	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", src}
	if opts.MaxDimension > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale='min(%d,iw)':-2", opts.MaxDimension))
	}
	args = append(args,
		"-c:v", "libx264",
		"-crf", strconv.Itoa(opts.CRF),
		"-preset", opts.Preset,
		"-c:a", "aac",
		"-movflags", "+faststart",
		"-f", "mp4",
		tmp,
	)

	bin := t.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &CodecError{Tool: bin, Path: src, Detail: tail(stderr.String()), Err: err}
	}

	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}
