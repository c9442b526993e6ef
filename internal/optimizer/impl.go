package optimizer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"image-optimizer-go/internal/logger"
	"image-optimizer-go/internal/statistics"
)

// DefaultOptimizer is the default implementation of the Optimizer interface.
type DefaultOptimizer struct {
	log      logrus.FieldLogger
	stats    *statistics.Statistics
	progress ProgressFunc

	// progressMu serializes progress callbacks when several workers finish at once.
	progressMu sync.Mutex
}

// NewDefaultOptimizer creates a new DefaultOptimizer. stats may be nil.
func NewDefaultOptimizer(log logrus.FieldLogger, stats *statistics.Statistics) *DefaultOptimizer {
	return NewDefaultOptimizerWithProgress(log, stats, nil)
}

// NewDefaultOptimizerWithProgress reports every finished file to progress.
func NewDefaultOptimizerWithProgress(log logrus.FieldLogger, stats *statistics.Statistics, progress ProgressFunc) *DefaultOptimizer {
	if log == nil {
		log = logger.Discard()
	}
	return &DefaultOptimizer{
		log:      log,
		stats:    stats,
		progress: progress,
	}
}

// Optimize runs the per-file transform over every candidate in params.SourceDir.
func (o *DefaultOptimizer) Optimize(ctx context.Context, params Params) ([]Result, error) {
	if !dirExists(params.SourceDir) {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, params.SourceDir)
	}

	outDir := OutputDir(params.SourceDir, params.OutputDirName)
	if !params.DryRun {
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	files, err := discoverCandidates(params.SourceDir, params.Extensions, params.Exclude)
	if err != nil {
		return nil, err
	}

	log := logger.WithOperation(o.log, "optimize")
	log.WithFields(logrus.Fields{
		"source":     params.SourceDir,
		"output":     outDir,
		"candidates": len(files),
		"quality":    params.Quality,
		"max_width":  params.MaxWidth,
		"dry_run":    params.DryRun,
	}).Info("Starting optimization")

	if o.stats != nil {
		o.stats.AddFilesFound(len(files))
	}

	results := make([]Result, len(files))

	workers := params.Workers
	if workers <= 1 {
		for i, path := range files {
			results[i] = o.process(ctx, path, outDir, params)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(workers)
		for i, path := range files {
			i, path := i, path
			g.Go(func() error {
				results[i] = o.process(ctx, path, outDir, params)
				return nil
			})
		}
		_ = g.Wait()
	}

	if o.stats != nil {
		o.stats.Finalize()
	}
	log.WithField("output", outDir).Info("Optimization completed")
	return results, nil
}

// OptimizeFile processes one file into the output directory of params.SourceDir.
func (o *DefaultOptimizer) OptimizeFile(ctx context.Context, path string, params Params) Result {
	outDir := OutputDir(params.SourceDir, params.OutputDirName)
	if !params.DryRun {
		if err := os.MkdirAll(outDir, 0755); err != nil {
			res := Result{InputPath: path, StartedAt: time.Now()}
			return o.finish(fail(res, StageWrite, fmt.Errorf("create output dir: %w", err)))
		}
	}
	return o.process(ctx, path, outDir, params)
}

// process runs decode, normalize, resize and encode for a single file.
// It never returns an error; failures are carried in the Result.
func (o *DefaultOptimizer) process(ctx context.Context, inputPath, outDir string, params Params) Result {
	res := Result{
		InputPath: inputPath,
		Status:    StatusPending,
		StartedAt: time.Now(),
	}
	if err := ctx.Err(); err != nil {
		return o.finish(fail(res, StageOpen, err))
	}

	log := logger.WithFile(o.log, inputPath)
	log.Debug("Processing file")

	img, size, err := decodeFile(inputPath)
	if err != nil {
		stage := StageDecode
		if os.IsNotExist(err) || os.IsPermission(err) {
			stage = StageOpen
		}
		return o.finish(fail(res, stage, err))
	}
	res.OriginalSize = size

	b := img.Bounds()
	res.OriginalWidth, res.OriginalHeight = b.Dx(), b.Dy()
	// A zero width or height decodes cleanly from some headers but has no pixels to encode.
	if b.Empty() {
		return o.finish(fail(res, StageDecode, fmt.Errorf("decode: %w: %dx%d", errEmptyImage, b.Dx(), b.Dy())))
	}

	if NeedsNormalization(img) {
		img = NormalizeColorMode(img)
		res.Normalized = true
	}

	img, res.Resized, err = resize(img, params.MaxWidth)
	if err != nil {
		return o.finish(fail(res, StageResize, err))
	}
	b = img.Bounds()
	res.Width, res.Height = b.Dx(), b.Dy()

	outPath := filepath.Join(outDir, filepath.Base(inputPath))
	res.OutputPath = outPath

	if params.DryRun {
		res.Status = StatusPlanned
		return o.finish(res)
	}

	var buf bytes.Buffer
	if err := encodeWebP(&buf, img, params.Quality); err != nil {
		return o.finish(fail(res, StageEncode, err))
	}

	// The output keeps the source name and extension even though it is WebP.
	if err := os.WriteFile(outPath, buf.Bytes(), 0644); err != nil {
		return o.finish(fail(res, StageWrite, fmt.Errorf("write output: %w", err)))
	}

	res.OptimizedSize = int64(buf.Len())
	res.Status = StatusSucceeded
	return o.finish(res)
}

// decodeFile opens and decodes path, releasing the handle on every exit path.
func decodeFile(path string) (image.Image, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}

	img, err := imaging.Decode(f)
	if err != nil {
		return nil, info.Size(), fmt.Errorf("decode: %w", err)
	}
	return img, info.Size(), nil
}

func fail(res Result, stage Stage, err error) Result {
	res.Status = StatusFailed
	res.Stage = stage
	res.Error = err
	res.OutputPath = ""
	return res
}

// finish stamps the result, updates statistics and logs, and reports progress.
func (o *DefaultOptimizer) finish(res Result) Result {
	res.FinishedAt = time.Now()

	entry := logger.WithFile(o.log, res.InputPath).WithField("duration", res.FinishedAt.Sub(res.StartedAt))
	switch res.Status {
	case StatusFailed:
		entry.WithField("stage", string(res.Stage)).Errorf("Could not process file: %v", res.Error)
		if o.stats != nil {
			o.stats.RecordFailure(res.InputPath, string(res.Stage), res.Error.Error())
		}
	case StatusPlanned:
		entry.WithFields(logrus.Fields{
			"width":  res.Width,
			"height": res.Height,
		}).Infof("DRY-RUN: Would write %s", res.OutputPath)
		if o.stats != nil {
			o.stats.RecordPlanned(res.Resized, res.Normalized)
		}
	default:
		entry.WithFields(logrus.Fields{
			"output":         res.OutputPath,
			"width":          res.Width,
			"height":         res.Height,
			"resized":        res.Resized,
			"normalized":     res.Normalized,
			"original_size":  res.OriginalSize,
			"optimized_size": res.OptimizedSize,
		}).Info("File optimized")
		if o.stats != nil {
			o.stats.RecordOptimized(res.OriginalSize, res.OptimizedSize, res.Resized, res.Normalized)
		}
	}
	if o.stats != nil {
		o.stats.IncrementFileType(filepath.Ext(res.InputPath))
	}

	if o.progress != nil {
		o.progressMu.Lock()
		o.progress(res)
		o.progressMu.Unlock()
	}
	return res
}
