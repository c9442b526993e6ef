package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"image-optimizer-go/internal/config"
	"image-optimizer-go/internal/inspector"
	"image-optimizer-go/internal/logger"
	"image-optimizer-go/internal/optimizer"
	"image-optimizer-go/internal/statistics"
	"image-optimizer-go/internal/watcher"
	"image-optimizer-go/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	sourceDir string
	quality   int
	maxWidth  int
	workers   int
	dryRun    bool
	verbose   bool
	quiet     bool
	port      int
)

// rootCmd optimizes every image directly inside the source directory.
var rootCmd = &cobra.Command{
	Use:   "image-optimizer [directory]",
	Short: "Resize and re-encode the images of a folder as optimized WebP",
	Long: `image-optimizer batch-converts the images of a directory into smaller
copies written to the "optimizadas" subfolder.

For every .jpg, .jpeg, .png, .bmp and .webp file it:
- flattens transparent and paletted images to plain RGB
- downscales images wider than --max-width, keeping the aspect ratio
- re-encodes the result as lossy WebP at --quality

Output files keep their original name and extension. A file that cannot be
processed is reported and skipped; the rest of the batch always runs.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOptimize(cmd, args)
	},
}

// inspectCmd shows what optimizing a single file would do.
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show image details and the planned output for a single file",
	Long: `Reads the image header and EXIF metadata of a file and prints its format,
dimensions, color model and the size it would be written at.
Nothing is written.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(cmd, args[0])
	},
}

// watchCmd keeps optimizing files as they are added to the source directory.
var watchCmd = &cobra.Command{
	Use:   "watch [directory]",
	Short: "Optimize new or changed images as they appear",
	Long: `Watches the source directory and optimizes every supported image that is
created or modified in it, until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd, args)
	},
}

// serveCmd starts the web API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API with live progress over WebSocket",
	Long: `Starts a web server exposing the optimizer over HTTP:
- POST /api/optimize starts a run on a directory
- GET  /api/status reports progress and per-file results
- POST /api/inspect describes a single file
- GET  /ws streams per-file progress events`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")
	rootCmd.PersistentFlags().IntVar(&quality, "quality", 80, "lossy quality, 0-100")
	rootCmd.PersistentFlags().IntVar(&maxWidth, "max-width", 1920, "images wider than this are downscaled")

	rootCmd.Flags().StringVar(&sourceDir, "source", "", "source directory containing images")
	rootCmd.Flags().IntVar(&workers, "workers", 1, "number of files processed at once")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "decode and report planned sizes without writing")

	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run web server on")

	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
}

// runOptimize executes one batch over the source directory.
func runOptimize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	printer := newProgressPrinter(os.Stdout, quiet)

	// Checked before the logger exists so a bad path leaves no trace on disk.
	if !dirExists(cfg.SourceDirectory) {
		printer.Missing()
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := setupLogger(cfg)
	stats := statistics.NewStatistics()
	opt := optimizer.NewDefaultOptimizerWithProgress(log, stats, printer.Print)
	params := optimizer.ParamsFromConfig(cfg, "")

	printer.Start(params.SourceDir)
	_, err = opt.Optimize(ctx, params)
	if errors.Is(err, optimizer.ErrSourceNotFound) {
		printer.Missing()
		return nil
	}
	if err != nil {
		return fmt.Errorf("optimization failed: %w", err)
	}
	printer.Done(optimizer.OutputDir(params.SourceDir, params.OutputDirName))

	if verbose && !quiet {
		fmt.Println("\n" + stats.GetSummary())
		fmt.Println(stats.GetFileTypeBreakdown())
		fmt.Println(stats.GetErrorSummary())
	}
	return nil
}

// runInspect prints image details for a single file.
func runInspect(cmd *cobra.Command, filePath string) error {
	if !fileExists(filePath) {
		return fmt.Errorf("file does not exist: %s", filePath)
	}

	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlagOverrides(cmd, cfg)

	var insp inspector.Inspector = inspector.NewFileInspector(logrus.New(), cfg.MaxWidth, cfg.SupportedExtensions)
	if !insp.SupportsFile(filePath) {
		fmt.Printf("Note: %s does not have a supported extension and would be skipped\n", filePath)
	}

	info, err := insp.Inspect(filePath)
	if err != nil {
		return err
	}
	fmt.Print(info.String())
	return nil
}

// runWatch optimizes files as they appear until interrupted.
func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	printer := newProgressPrinter(os.Stdout, quiet)
	if !dirExists(cfg.SourceDirectory) {
		printer.Missing()
		return nil
	}

	log := setupLogger(cfg)
	opt := optimizer.NewDefaultOptimizer(log, nil)
	w, err := watcher.NewWatcher(opt, optimizer.ParamsFromConfig(cfg, ""), log)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for res := range w.Results() {
			printer.Print(res)
		}
	}()

	fmt.Printf("👀 Watching %s (Ctrl+C to stop)\n", cfg.SourceDirectory)
	err = w.Run(ctx)
	<-printed
	return err
}

// runServe starts the web server and handles graceful shutdown.
func runServe(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlagOverrides(cmd, cfg)
	if cmd.Flags().Changed("port") {
		cfg.Web.Port = port
	}

	log := setupLogger(cfg)
	server := web.NewServer(cfg, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Start(cfg.Web.Port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	fmt.Printf("🚀 Image optimizer API started!\n")
	fmt.Printf("📡 Listening on http://localhost:%d\n", cfg.Web.Port)
	fmt.Printf("🛑 Press Ctrl+C to stop the server\n\n")

	<-sigChan
	fmt.Println("\n🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("✅ Server stopped gracefully")
	return nil
}

// loadConfig loads configuration and applies CLI overrides.
// The source directory is not checked here; callers report a missing one themselves.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	applyFlagOverrides(cmd, cfg)

	if len(args) > 0 {
		cfg.SourceDirectory = args[0]
	}
	if sourceDir != "" {
		cfg.SourceDirectory = sourceDir
	}
	if cfg.SourceDirectory == "" {
		cfg.SourceDirectory = "."
	}

	return cfg, cfg.Validate()
}

// applyFlagOverrides copies explicitly set flags over file and environment values.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("quality") {
		cfg.Quality = quality
	}
	if flags.Changed("max-width") {
		cfg.MaxWidth = maxWidth
	}
	if flags.Lookup("workers") != nil && flags.Changed("workers") {
		cfg.Performance.Workers = workers
	}
	if dryRun {
		cfg.Security.DryRun = true
	}
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
		Console:    verbose,
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
		log.SetOutput(os.Stderr)
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// fileExists returns true if the given path exists and is a file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// dirExists returns true if the given path exists and is a directory.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
