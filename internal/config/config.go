package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the main configuration structure. It is built once at
// startup and treated as immutable for the lifetime of a run.
type Config struct {
	SourceDirectory string   `mapstructure:"source_directory" validate:"required"`
	IgnoreDirs      []string `mapstructure:"ignore_dirs"`

	// MaxDimension is the largest width or height allowed for re-encoded
	// images and videos. Zero disables downscaling. Upscaling never happens.
	MaxDimension int `mapstructure:"max_dimension"`

	Image       ImageConfig       `mapstructure:"image"`
	Video       VideoConfig       `mapstructure:"video"`
	Text        TextConfig        `mapstructure:"text"`
	Rewrite     RewriteConfig     `mapstructure:"rewrite"`
	Performance PerformanceConfig `mapstructure:"performance"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ImageConfig contains image re-encoding settings.
type ImageConfig struct {
	Quality          int      `mapstructure:"quality"` // 0-100
	Effort           int      `mapstructure:"effort"`  // cwebp -m, 0-6
	Format           string   `mapstructure:"format"`
	PreserveMetadata bool     `mapstructure:"preserve_metadata"`
	Extensions       []string `mapstructure:"extensions"`
}

// VideoConfig contains video transcoding settings.
type VideoConfig struct {
	CRF        int      `mapstructure:"crf"`
	Preset     string   `mapstructure:"preset"`
	Extensions []string `mapstructure:"extensions"`
}

// TextConfig contains text asset settings.
type TextConfig struct {
	Extensions []string `mapstructure:"extensions"`
}

// RewriteConfig controls the reference rewriting pass.
//
// Each pattern is a regular expression with exactly one capture group holding
// the referenced path. The defaults cover HTML src/href/poster/data-src
// attributes, CSS url() and generic quoted media paths; full HTML/CSS/JS
// parsing is deliberately out of scope.
type RewriteConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Patterns []string `mapstructure:"patterns"`
}

// PerformanceConfig contains performance tuning settings.
type PerformanceConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultRewritePatterns are the reference patterns applied when none are
// configured. Group 1 must capture the path.
var DefaultRewritePatterns = []string{
	`(?:src|href|poster|data-src)\s*=\s*"([^"]+)"`,
	`(?:src|href|poster|data-src)\s*=\s*'([^']+)'`,
	`url\(\s*"([^")]+)"\s*\)`,
	`url\(\s*'([^')]+)'\s*\)`,
	`url\(\s*([^'")][^)]*?)\s*\)`,
	`"([^"\s]+\.(?:png|jpe?g|gif|webp|mp4|mov|avi)(?:\?[^"\s]*)?)"`,
	`'([^'\s]+\.(?:png|jpe?g|gif|webp|mp4|mov|avi)(?:\?[^'\s]*)?)'`,
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		IgnoreDirs: []string{
			"node_modules", "venv", ".git", ".vscode", "__pycache__",
			"site-packages", "dist", "build", ".idea", ".gemini", "env",
		},
		MaxDimension: 1920,
		Image: ImageConfig{
			Quality:          75,
			Effort:           6,
			Format:           "webp",
			PreserveMetadata: false,
			Extensions:       []string{".png", ".jpg", ".jpeg", ".webp"},
		},
		Video: VideoConfig{
			CRF:        26,
			Preset:     "medium",
			Extensions: []string{".mp4", ".mov", ".avi"},
		},
		Text: TextConfig{
			Extensions: []string{
				".html", ".htm", ".css", ".js", ".mjs",
				".json", ".xml", ".svg", ".txt", ".md",
			},
		},
		Rewrite: RewriteConfig{
			Enabled:  true,
			Patterns: DefaultRewritePatterns,
		},
		Performance: PerformanceConfig{
			Workers:   runtime.NumCPU(),
			QueueSize: 100,
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "asset-optimizer.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.asset-optimizer")
		viper.AddConfigPath("/etc/asset-optimizer")
	}

	viper.SetEnvPrefix("ASSET_OPTIMIZER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults.
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate validates and normalizes the configuration.
func (c *Config) Validate() error {
	if c.MaxDimension < 0 {
		return fmt.Errorf("max_dimension must be >= 0, got %d", c.MaxDimension)
	}

	if c.Image.Quality < 0 || c.Image.Quality > 100 {
		return fmt.Errorf("image quality must be in [0,100], got %d", c.Image.Quality)
	}
	if c.Image.Effort < 0 || c.Image.Effort > 6 {
		return fmt.Errorf("image effort must be in [0,6], got %d", c.Image.Effort)
	}
	if c.Image.Format == "" {
		c.Image.Format = "webp"
	}
	c.Image.Format = strings.TrimPrefix(strings.ToLower(c.Image.Format), ".")

	if c.Video.CRF < 0 || c.Video.CRF > 51 {
		return fmt.Errorf("video crf must be in [0,51], got %d", c.Video.CRF)
	}
	validPresets := map[string]bool{
		"ultrafast": true, "superfast": true, "veryfast": true,
		"faster": true, "fast": true, "medium": true,
		"slow": true, "slower": true, "veryslow": true,
	}
	if !validPresets[c.Video.Preset] {
		return fmt.Errorf("invalid video preset: %s", c.Video.Preset)
	}

	c.Image.Extensions = normalizeExtensions(c.Image.Extensions)
	c.Video.Extensions = normalizeExtensions(c.Video.Extensions)
	c.Text.Extensions = normalizeExtensions(c.Text.Extensions)

	if c.Performance.Workers <= 0 {
		c.Performance.Workers = runtime.NumCPU()
	}
	if c.Performance.QueueSize <= 0 {
		c.Performance.QueueSize = 100
	}

	if len(c.Rewrite.Patterns) == 0 {
		c.Rewrite.Patterns = DefaultRewritePatterns
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// TargetImageExt returns the image artifact extension, dot included.
func (c *Config) TargetImageExt() string {
	return "." + c.Image.Format
}

// IsImageExtension checks if the extension is for an image file.
func (c *Config) IsImageExtension(ext string) bool {
	return containsExt(c.Image.Extensions, ext)
}

// IsVideoExtension checks if the extension is for a video file.
func (c *Config) IsVideoExtension(ext string) bool {
	return containsExt(c.Video.Extensions, ext)
}

// IsTextExtension checks if the extension is for a text asset.
func (c *Config) IsTextExtension(ext string) bool {
	return containsExt(c.Text.Extensions, ext)
}

// ResolveSource expands env vars and ~ in the source directory and verifies
// it exists.
func (c *Config) ResolveSource() error {
	path := os.ExpandEnv(c.SourceDirectory)
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot expand %s: %w", c.SourceDirectory, err)
		}
		path = filepath.Join(home, path[1:])
	}

	stat, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("source directory does not exist or is not accessible: %s", c.SourceDirectory)
	}
	if !stat.IsDir() {
		return fmt.Errorf("source is not a directory: %s", c.SourceDirectory)
	}

	c.SourceDirectory = path
	return nil
}

// Helper functions

func containsExt(list []string, ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range list {
		if ext == e {
			return true
		}
	}
	return false
}

func normalizeExtensions(extensions []string) []string {
	normalized := make([]string, len(extensions))
	for i, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[i] = ext
	}
	return normalized
}
