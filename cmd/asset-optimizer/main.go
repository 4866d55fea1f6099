package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"asset-optimizer-go/internal/codec"
	"asset-optimizer-go/internal/config"
	"asset-optimizer-go/internal/logger"
	"asset-optimizer-go/internal/metadata"
	"asset-optimizer-go/internal/pipeline"
	"asset-optimizer-go/internal/scanner"
	"asset-optimizer-go/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	sourceDir    string
	workers      int
	maxDimension int
	quality      int
	crf          int
	preset       string
	skipRewrite  bool
	jsonOutput   bool
	verbose      bool
	quiet        bool
	port         int
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "asset-optimizer [directory]",
	Short: "Compress project assets and rewrite references to them",
	Long: `asset-optimizer walks a project tree, classifies every file as an image,
video, or text asset, and compresses each into a smaller next-generation
representation: WebP for images, CRF-encoded H.264 for videos, and Brotli +
Gzip siblings for text. References to the optimized media inside the
project's markup, style, and script files are rewritten afterwards so the
optimized versions are actually served.

Features:
- Parallel per-asset compression with a bounded worker pool
- Idempotent re-runs: up-to-date artifacts are skipped, never redone
- Originals are never deleted or overwritten
- Path-qualified reference rewriting after all compression completes
- Size-accounting report with per-asset and aggregate savings`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOptimize(args)
	},
}

// scanCmd classifies assets and shows statistics without compressing.
var scanCmd = &cobra.Command{
	Use:   "scan [directory]",
	Short: "Classify assets and show statistics without compressing",
	Long: `Scan the specified directory (or current directory) and display what would
be processed: per-kind asset counts and total bytes, without writing any
artifacts or touching any file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(args)
	},
}

// decompressCmd is the inverse operation for a single compressed artifact.
var decompressCmd = &cobra.Command{
	Use:   "decompress <file>",
	Short: "Restore the original from a .br or .gz artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := codec.Decompress(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Restored: %s\n", out)
		return nil
	},
}

// inspectCmd dumps a file's metadata, useful for debugging encode results.
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show a file's metadata via exiftool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(args[0])
	},
}

// serveCmd starts the web interface server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start web interface server",
	Long: `Starts a web server exposing the optimizer over HTTP:
- POST /api/optimize starts a run
- GET  /api/status and the /ws websocket stream progress
- GET  /api/report returns the last run's report`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	rootCmd.Flags().StringVar(&sourceDir, "source", "", "root directory containing project assets")
	rootCmd.Flags().IntVar(&workers, "workers", 0, "worker pool size (default: CPU count)")
	rootCmd.Flags().IntVar(&maxDimension, "max-dimension", -1, "largest allowed image/video dimension in pixels")
	rootCmd.Flags().IntVar(&quality, "quality", -1, "WebP quality (0-100)")
	rootCmd.Flags().IntVar(&crf, "crf", -1, "video rate-control factor (0-51)")
	rootCmd.Flags().StringVar(&preset, "preset", "", "video encode preset (ultrafast..veryslow)")
	rootCmd.Flags().BoolVar(&skipRewrite, "skip-rewrite", false, "skip the reference rewriting pass")
	rootCmd.Flags().BoolVar(&jsonOutput, "json", false, "emit the report as JSON")

	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run web server on")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(decompressCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(serveCmd)
}

// initConfig loads configuration file and environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.asset-optimizer")
		viper.AddConfigPath("/etc/asset-optimizer")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// runOptimize executes the full optimization pass.
func runOptimize(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)

	p, err := pipeline.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := p.Run(ctx)
	if rep != nil && !quiet {
		if jsonOutput {
			data, jerr := rep.JSON()
			if jerr != nil {
				return jerr
			}
			fmt.Println(string(data))
		} else {
			fmt.Println("\n" + rep.Summary())
		}
	}
	if err != nil {
		return fmt.Errorf("optimization failed: %w", err)
	}
	return nil
}

// runScan classifies assets and prints statistics without compressing.
func runScan(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)

	records, err := scanner.New(cfg, log).Scan(cfg.SourceDirectory)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	counts := map[string]int{}
	bytes := map[string]int64{}
	for _, rec := range records {
		counts[rec.Kind.String()]++
		bytes[rec.Kind.String()] += rec.Size
	}

	if !quiet {
		fmt.Printf("Scanned: %s\n", cfg.SourceDirectory)
		fmt.Printf("Assets discovered: %d\n", len(records))
		for _, kind := range []string{"image", "video", "text"} {
			fmt.Printf("  %-6s %5d files  %d bytes\n", kind, counts[kind], bytes[kind])
		}
	}
	return nil
}

// runInspect dumps metadata for a given file.
func runInspect(filePath string) error {
	if !fileExists(filePath) {
		return fmt.Errorf("file does not exist: %s", filePath)
	}

	fields, err := metadata.Describe(filePath)
	if err != nil {
		return fmt.Errorf("metadata extraction failed: %w", err)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("Metadata for %s:\n", filePath)
	for _, k := range keys {
		fmt.Printf("  %-32s %v\n", k, fields[k])
	}
	return nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe() error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CONFIG LOAD ERROR: %v\n", err)
		cfg = config.DefaultConfig()
		cfg.SourceDirectory = "."
	}

	log := setupLogger(cfg)
	server := web.NewServer(cfg, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Start(port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	fmt.Printf("Asset optimizer web interface started on http://localhost:%d\n", port)
	fmt.Printf("Press Ctrl+C to stop the server\n\n")

	<-sigChan
	fmt.Println("\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped")
	return nil
}

// loadConfig loads configuration and applies CLI overrides.
func loadConfig(args []string) (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	if sourceDir != "" {
		cfg.SourceDirectory = sourceDir
	} else if len(args) > 0 {
		cfg.SourceDirectory = args[0]
	}
	if cfg.SourceDirectory == "" {
		cfg.SourceDirectory = "."
	}

	if workers > 0 {
		cfg.Performance.Workers = workers
	}
	if maxDimension >= 0 {
		cfg.MaxDimension = maxDimension
	}
	if quality >= 0 {
		cfg.Image.Quality = quality
	}
	if crf >= 0 {
		cfg.Video.CRF = crf
	}
	if preset != "" {
		cfg.Video.Preset = preset
	}
	if skipRewrite {
		cfg.Rewrite.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ResolveSource(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    !quiet,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// fileExists returns true if the given path exists and is a file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
