// Package metadata reads and transfers image metadata around the encode
// step: EXIF orientation for decode normalization, and exiftool-based tag
// copying so artifacts keep the metadata of their source when requested.
package metadata

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/barasher/go-exiftool"
	"github.com/rwcarlsen/goexif/exif"
)

// Orientation returns the EXIF orientation value (1-8) for path, or 1 when
// the file carries no usable EXIF data. 1 is the identity orientation.
func Orientation(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 1
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// CopyTags copies all metadata from src onto dst and stamps the Software tag
// so the artifact is identifiable. Requires the exiftool binary; callers gate
// this behind configuration.
func CopyTags(src, dst string) error {
	cmdCopy := exec.Command("exiftool", "-TagsFromFile", src, "-overwrite_original", dst)
	if err := cmdCopy.Run(); err != nil {
		return fmt.Errorf("exiftool copy failed: %v", err)
	}
	cmdSet := exec.Command("exiftool", "-overwrite_original", "-Software=asset-optimizer", dst)
	if err := cmdSet.Run(); err != nil {
		return fmt.Errorf("exiftool set Software failed: %v", err)
	}
	return nil
}

// Describe extracts all metadata fields for a file. Used by the inspect
// command for debugging encode results.
func Describe(path string) (map[string]interface{}, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("exiftool init: %w", err)
	}
	defer et.Close()

	files := et.ExtractMetadata(path)
	if len(files) == 0 {
		return nil, fmt.Errorf("no metadata extracted for %s", path)
	}
	if files[0].Err != nil {
		return nil, files[0].Err
	}
	return files[0].Fields, nil
}
