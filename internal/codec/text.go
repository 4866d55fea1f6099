package codec

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// Suffixes for the derived compressed-text siblings.
const (
	BrotliSuffix = ".br"
	GzipSuffix   = ".gz"
)

// CompressBrotli writes a brotli-compressed sibling of src at dst and
// returns its size. The original is never touched.
func CompressBrotli(src, dst string) (int64, error) {
	return compressFile(src, dst, func(w io.Writer) io.WriteCloser {
		return brotli.NewWriterLevel(w, brotli.BestCompression)
	})
}

// CompressGzip writes a gzip-compressed sibling of src at dst and returns
// its size.
func CompressGzip(src, dst string) (int64, error) {
	return compressFile(src, dst, func(w io.Writer) io.WriteCloser {
		zw, _ := gzip.NewWriterLevel(w, gzip.BestCompression)
		return zw
	})
}

func compressFile(src, dst string, newWriter func(io.Writer) io.WriteCloser) (int64, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return 0, err
	}

	out, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp*")
	if err != nil {
		return 0, err
	}
	tmp := out.Name()
	defer os.Remove(tmp)

	w := newWriter(out)
	if _, err := w.Write(data); err != nil {
		out.Close()
		return 0, err
	}
	if err := w.Close(); err != nil {
		out.Close()
		return 0, err
	}
	if err := out.Close(); err != nil {
		return 0, err
	}

	if err := os.Rename(tmp, dst); err != nil {
		return 0, err
	}

	info, err := os.Stat(dst)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Decompress is the inverse operation for a single derived artifact: it
// restores a .br or .gz sibling next to the artifact and returns the output
// path. Refuses to overwrite an existing file.
func Decompress(src string) (string, error) {
	var out string
	var newReader func(io.Reader) (io.Reader, error)

	switch {
	case strings.HasSuffix(src, BrotliSuffix):
		out = strings.TrimSuffix(src, BrotliSuffix)
		newReader = func(r io.Reader) (io.Reader, error) {
			return brotli.NewReader(r), nil
		}
	case strings.HasSuffix(src, GzipSuffix):
		out = strings.TrimSuffix(src, GzipSuffix)
		newReader = func(r io.Reader) (io.Reader, error) {
			return gzip.NewReader(r)
		}
	default:
		return "", fmt.Errorf("not a compressed artifact (expected %s or %s suffix): %s",
			BrotliSuffix, GzipSuffix, filepath.Base(src))
	}

	if _, err := os.Stat(out); err == nil {
		return "", fmt.Errorf("refusing to overwrite existing file: %s", out)
	}

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	r, err := newReader(in)
	if err != nil {
		return "", err
	}

	dst, err := os.CreateTemp(filepath.Dir(out), filepath.Base(out)+".tmp*")
	if err != nil {
		return "", err
	}
	tmp := dst.Name()
	defer os.Remove(tmp)

	if _, err := io.Copy(dst, r); err != nil {
		dst.Close()
		return "", err
	}
	if err := dst.Close(); err != nil {
		return "", err
	}

	if err := os.Rename(tmp, out); err != nil {
		return "", err
	}
	return out, nil
}
