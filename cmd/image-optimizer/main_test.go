package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"image-optimizer-go/internal/optimizer"
)

func init() {
	color.NoColor = true
}

func TestProgressPrinterLines(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf, false)

	p.Start("/photos")
	p.Print(optimizer.Result{InputPath: "/photos/a.png", Status: optimizer.StatusSucceeded})
	p.Print(optimizer.Result{InputPath: "/photos/c.jpg", Status: optimizer.StatusFailed, Error: errors.New("bad header")})
	p.Done("/photos/optimizadas")

	assert.Equal(t,
		"🚀 Starting optimization in: /photos\n"+
			"✅ a.png optimized.\n"+
			"❌ Could not process c.jpg: bad header\n"+
			"\n✨ Done. Check the folder: /photos/optimizadas\n",
		buf.String())
}

func TestProgressPrinterQuietKeepsFailures(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf, true)

	p.Start("/photos")
	p.Print(optimizer.Result{InputPath: "/photos/a.png", Status: optimizer.StatusSucceeded})
	p.Print(optimizer.Result{InputPath: "/photos/c.jpg", Status: optimizer.StatusFailed, Error: errors.New("boom")})
	p.Done("/photos/optimizadas")

	assert.Equal(t, "❌ Could not process c.jpg: boom\n", buf.String())
}

func TestProgressPrinterMissing(t *testing.T) {
	var buf bytes.Buffer
	newProgressPrinter(&buf, true).Missing()
	assert.Equal(t, "The specified path does not exist.\n", buf.String())
}

func newFlagCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().IntVar(&quality, "quality", 80, "")
	cmd.Flags().IntVar(&maxWidth, "max-width", 1920, "")
	cmd.Flags().IntVar(&workers, "workers", 1, "")
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestLoadConfigAppliesOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { sourceDir, cfgFile, dryRun = "", "", false })

	cmd := newFlagCommand(t, "--quality", "55", "--workers", "3")
	cfg, err := loadConfig(cmd, []string{dir})
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.SourceDirectory)
	assert.Equal(t, 55, cfg.Quality)
	assert.Equal(t, 1920, cfg.MaxWidth)
	assert.Equal(t, 3, cfg.Performance.Workers)
	assert.False(t, cfg.Security.DryRun)

	sourceDir = filepath.Join(dir, "other")
	cfg, err = loadConfig(newFlagCommand(t), []string{dir})
	require.NoError(t, err)
	assert.Equal(t, sourceDir, cfg.SourceDirectory)
	assert.Equal(t, 80, cfg.Quality)
}

func TestRunOptimizeMissingSourceWritesNothing(t *testing.T) {
	parent := t.TempDir()
	missing := filepath.Join(parent, "nope")
	t.Cleanup(func() { sourceDir, cfgFile = "", "" })

	require.NoError(t, runOptimize(newFlagCommand(t), []string{missing}))

	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
