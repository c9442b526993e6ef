package optimizer

import (
	"context"
	"errors"
	"time"

	"image-optimizer-go/internal/config"
)

// ErrSourceNotFound is returned before any work is done when the source directory is missing.
var ErrSourceNotFound = errors.New("source directory does not exist")

// Status is the terminal state of a single file.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	// StatusPlanned marks a file that was decoded and measured in dry-run mode but not written.
	StatusPlanned Status = "planned"
)

// Stage names the step of the per-file transform a failure came from.
type Stage string

const (
	StageOpen   Stage = "open"
	StageDecode Stage = "decode"
	StageResize Stage = "resize"
	StageEncode Stage = "encode"
	StageWrite  Stage = "write"
)

// Params defines parameters for one optimization run.
type Params struct {
	SourceDir     string
	OutputDirName string
	Quality       int
	MaxWidth      int
	Extensions    []string
	Exclude       []string
	Workers       int
	DryRun        bool
}

// Result describes the outcome of optimizing a single file.
type Result struct {
	InputPath      string
	OutputPath     string
	Status         Status
	Stage          Stage
	OriginalWidth  int
	OriginalHeight int
	Width          int
	Height         int
	Normalized     bool
	Resized        bool
	OriginalSize   int64
	OptimizedSize  int64
	Error          error
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Succeeded reports whether the file reached a non-failed terminal state.
func (r Result) Succeeded() bool {
	return r.Status == StatusSucceeded || r.Status == StatusPlanned
}

// ProgressFunc is called once per file as soon as it reaches a terminal state.
type ProgressFunc func(Result)

// Optimizer defines the interface for batch image optimization.
type Optimizer interface {
	// Optimize processes every candidate directly inside params.SourceDir.
	// Per-file failures are reported in the results; only pre-flight,
	// output directory and listing problems are returned as an error.
	Optimize(ctx context.Context, params Params) ([]Result, error)

	// OptimizeFile processes a single file into the output directory of params.SourceDir.
	OptimizeFile(ctx context.Context, path string, params Params) Result
}

// DefaultParams returns the parameters of a plain run over dir.
func DefaultParams(dir string) Params {
	return ParamsFromConfig(config.DefaultConfig(), dir)
}

// ParamsFromConfig builds run parameters from a validated configuration.
// A non-empty dir overrides cfg.SourceDirectory.
func ParamsFromConfig(cfg *config.Config, dir string) Params {
	if dir == "" {
		dir = cfg.SourceDirectory
	}
	return Params{
		SourceDir:     dir,
		OutputDirName: cfg.OutputDirName,
		Quality:       cfg.Quality,
		MaxWidth:      cfg.MaxWidth,
		Extensions:    append([]string(nil), cfg.SupportedExtensions...),
		Exclude:       append([]string(nil), cfg.ExcludePatterns...),
		Workers:       cfg.Performance.Workers,
		DryRun:        cfg.Security.DryRun,
	}
}
