package codec

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"asset-optimizer-go/internal/metadata"

	"github.com/disintegration/imaging"
)

// WebPEncoder encodes images to WebP. Decoding, orientation normalization
// and downscaling happen in-process; the actual WebP encode is delegated to
// the cwebp binary, fed the decoded pixels as PNG on stdin.
type WebPEncoder struct {
	// Binary overrides the cwebp executable name, mainly for tests.
	Binary string
}

// NewWebPEncoder returns an encoder using the cwebp binary on PATH.
func NewWebPEncoder() *WebPEncoder {
	return &WebPEncoder{Binary: "cwebp"}
}

// Encode decodes src, normalizes its EXIF orientation, downscales so neither
// dimension exceeds opts.MaxDimension (aspect ratio preserved, never
// upscaled), and writes the WebP artifact at dst via temp file + rename.
func (e *WebPEncoder) Encode(ctx context.Context, src, dst string, opts ImageOptions) error {
	img, err := imaging.Open(src)
	if err != nil {
		return &CodecError{Tool: "decode", Path: src, Err: err}
	}

	if o := metadata.Orientation(src); o != 1 {
		img = normalizeOrientation(img, o)
	}

	bounds := img.Bounds()
	if opts.MaxDimension > 0 && (bounds.Dx() > opts.MaxDimension || bounds.Dy() > opts.MaxDimension) {
		img = imaging.Fit(img, opts.MaxDimension, opts.MaxDimension, imaging.Lanczos)
	}

	var pixels bytes.Buffer
	if err := imaging.Encode(&pixels, img, imaging.PNG); err != nil {
		return &CodecError{Tool: "encode", Path: src, Err: err}
	}

	// Unique temp name per writer; concurrent encodes to the same destination
	// must never share an inode.
	tmpFile, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmp := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmp)

	bin := e.Binary
	if bin == "" {
		bin = "cwebp"
	}
	args := []string{
		"-quiet",
		"-q", strconv.Itoa(opts.Quality),
		"-m", strconv.Itoa(opts.Effort),
		"-o", tmp,
		"--", "-",
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = &pixels
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

// normalizeOrientation bakes an EXIF orientation value (2-8) into the pixel
// data so the encoded artifact displays upright without metadata.
func normalizeOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// tail returns the last few lines of tool output for error messages.
func tail(s string) string {
	s = strings.TrimSpace(s)
	lines := strings.Split(s, "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	return strings.Join(lines, " | ")
}
