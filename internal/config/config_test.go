package config

import (
	"strings"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Performance.Workers <= 0 {
		t.Error("workers should default to a positive value")
	}
	if cfg.MaxDimension != 1920 {
		t.Errorf("unexpected default max dimension %d", cfg.MaxDimension)
	}
	if cfg.Image.Quality != 75 || cfg.Image.Effort != 6 {
		t.Errorf("unexpected image defaults: q=%d m=%d", cfg.Image.Quality, cfg.Image.Effort)
	}
	if cfg.Video.CRF != 26 || cfg.Video.Preset != "medium" {
		t.Errorf("unexpected video defaults: crf=%d preset=%s", cfg.Video.CRF, cfg.Video.Preset)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"quality too high", func(c *Config) { c.Image.Quality = 101 }, "quality"},
		{"negative quality", func(c *Config) { c.Image.Quality = -1 }, "quality"},
		{"effort too high", func(c *Config) { c.Image.Effort = 7 }, "effort"},
		{"crf out of range", func(c *Config) { c.Video.CRF = 52 }, "crf"},
		{"unknown preset", func(c *Config) { c.Video.Preset = "turbo" }, "preset"},
		{"negative dimension", func(c *Config) { c.MaxDimension = -1 }, "max_dimension"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateNormalizesExtensions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Image.Extensions = []string{"PNG", ".Jpg"}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if !cfg.IsImageExtension(".png") || !cfg.IsImageExtension(".JPG") {
		t.Error("extensions should be matched case-insensitively with a leading dot")
	}
}

func TestValidateDefaultsWorkersAndPatterns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Performance.Workers = 0
	cfg.Rewrite.Patterns = nil
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Performance.Workers <= 0 {
		t.Error("zero workers should fall back to CPU count")
	}
	if len(cfg.Rewrite.Patterns) == 0 {
		t.Error("empty pattern set should fall back to defaults")
	}
}

func TestKindHelpers(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.IsImageExtension(".jpeg") {
		t.Error(".jpeg should be an image extension")
	}
	if !cfg.IsVideoExtension(".MOV") {
		t.Error(".MOV should be a video extension")
	}
	if !cfg.IsTextExtension(".css") {
		t.Error(".css should be a text extension")
	}
	if cfg.IsImageExtension(".css") || cfg.IsTextExtension(".png") {
		t.Error("kind sets should not overlap")
	}
	if cfg.TargetImageExt() != ".webp" {
		t.Errorf("unexpected target image extension %s", cfg.TargetImageExt())
	}
}
