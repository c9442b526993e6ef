package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"image-optimizer-go/internal/optimizer"
)

// DefaultDebounce is how long a file must stay quiet before it is optimized.
const DefaultDebounce = 500 * time.Millisecond

// Watcher optimizes candidate files as they appear in, or change inside, the source directory.
type Watcher struct {
	optimizer optimizer.Optimizer
	params    optimizer.Params
	log       logrus.FieldLogger
	fsw       *fsnotify.Watcher
	debounce  time.Duration
	results   chan optimizer.Result

	mu     sync.Mutex
	timers map[string]pendingTimer
	seq    uint64
	wg     sync.WaitGroup
}

// pendingTimer is a debounce timer tagged with the schedule call that created it.
type pendingTimer struct {
	timer *time.Timer
	seq   uint64
}

// NewWatcher starts watching params.SourceDir. Events are buffered until Run is called.
func NewWatcher(opt optimizer.Optimizer, params optimizer.Params, log logrus.FieldLogger) (*Watcher, error) {
	info, err := os.Stat(params.SourceDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", optimizer.ErrSourceNotFound, params.SourceDir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(params.SourceDir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch folder %s: %w", params.SourceDir, err)
	}

	return &Watcher{
		optimizer: opt,
		params:    params,
		log:       log,
		fsw:       fsw,
		debounce:  DefaultDebounce,
		results:   make(chan optimizer.Result, 100),
		timers:    make(map[string]pendingTimer),
	}, nil
}

// SetDebounce overrides DefaultDebounce. Call before Run.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Results delivers one result per optimized file. It is closed when Run returns.
func (w *Watcher) Results() <-chan optimizer.Result {
	return w.results
}

// Run processes filesystem events until ctx is cancelled, then waits for in-flight files.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.shutdown()

	w.log.Infof("Watching folder: %s", w.params.SourceDir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.schedule(ctx, event.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Errorf("Watcher error: %v", err)
		}
	}
}

// relevant filters for creates and writes of candidate files directly inside the source directory.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	if filepath.Clean(filepath.Dir(event.Name)) != filepath.Clean(w.params.SourceDir) {
		return false
	}
	return optimizer.IsCandidate(filepath.Base(event.Name), w.params.Extensions, w.params.Exclude)
}

// schedule debounces bursts of events for the same file into a single optimization.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if pending, exists := w.timers[path]; exists && pending.timer.Stop() {
		w.wg.Done()
	}

	w.seq++
	seq := w.seq
	w.wg.Add(1)
	timer := time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.forget(path, seq)
		w.handle(ctx, path)
	})
	w.timers[path] = pendingTimer{timer: timer, seq: seq}
}

// forget removes path from the pending timers only while seq is still the registered one.
// A callback that fired just as a newer event rescheduled path must not drop the newer timer.
func (w *Watcher) forget(path string, seq uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if pending, ok := w.timers[path]; ok && pending.seq == seq {
		delete(w.timers, path)
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	w.log.Debugf("File changed: %s", path)
	res := w.optimizer.OptimizeFile(ctx, path, w.params)

	select {
	case w.results <- res:
	case <-ctx.Done():
	}
}

func (w *Watcher) shutdown() {
	w.mu.Lock()
	for path, pending := range w.timers {
		if pending.timer.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
	w.mu.Unlock()

	w.wg.Wait()
	if err := w.fsw.Close(); err != nil {
		w.log.Warnf("Failed to close watcher: %v", err)
	}
	close(w.results)
}
