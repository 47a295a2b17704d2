// Package spool watches a directory for NDJSON files and hands each
// finished file to a handler exactly once.
package spool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/bulkship/pkg/log"
)

// Suffixes appended to a file once it has been handled.
const (
	DoneSuffix   = ".done"
	FailedSuffix = ".failed"
)

// Handler ships one file. A nil error marks the file done.
type Handler func(ctx context.Context, path string) error

// Watcher hands spool files to a Handler. Files are considered complete
// once no write event has been seen for the settle delay.
type Watcher struct {
	dir     string
	pattern string
	settle  time.Duration
	logger  log.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithPattern sets the glob matched against file names. Default "*.ndjson".
func WithPattern(pattern string) Option {
	return func(w *Watcher) { w.pattern = pattern }
}

// WithSettleDelay sets how long a file must be quiet before it is
// handled. Default 200ms.
func WithSettleDelay(d time.Duration) Option {
	return func(w *Watcher) { w.settle = d }
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates a watcher for dir.
func New(dir string, opts ...Option) *Watcher {
	w := &Watcher{
		dir:     dir,
		pattern: "*.ndjson",
		settle:  200 * time.Millisecond,
		logger:  log.NewNoopLogger(),
		timers:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run handles files already in the directory, then every new file, until
// ctx is done. Files are handled one at a time in the calling goroutine.
func (w *Watcher) Run(ctx context.Context, handle Handler) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	defer w.stopTimers()

	ready := make(chan string, 16)

	existing, err := w.scan()
	if err != nil {
		return err
	}
	for _, path := range existing {
		if ctx.Err() != nil {
			return nil
		}
		w.process(ctx, handle, path)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !w.matches(event.Name) {
				continue
			}
			w.debounce(ctx, event.Name, ready)

		case path := <-ready:
			w.process(ctx, handle, path)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("spool watcher error", log.String("dir", w.dir), log.Err(err))
		}
	}
}

func (w *Watcher) matches(path string) bool {
	ok, err := filepath.Match(w.pattern, filepath.Base(path))
	return err == nil && ok
}

// scan lists matching files in name order.
func (w *Watcher) scan() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", w.dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if w.matches(path) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (w *Watcher) debounce(ctx context.Context, path string, ready chan<- string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		select {
		case ready <- path:
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

// process runs handle and renames the file so it is not handled again.
func (w *Watcher) process(ctx context.Context, handle Handler, path string) {
	if _, err := os.Stat(path); err != nil {
		// Already renamed by an earlier event for the same file.
		return
	}

	suffix := DoneSuffix
	if err := handle(ctx, path); err != nil {
		if ctx.Err() != nil {
			// Leave the file in place so it is picked up on the next run.
			return
		}
		suffix = FailedSuffix
		w.logger.Error("spool file failed", log.String("file", path), log.Err(err))
	}

	target := path + suffix
	if err := os.Rename(path, target); err != nil {
		w.logger.Error("rename spool file", log.String("file", path), log.Err(err))
		return
	}
	if suffix == DoneSuffix {
		w.logger.Debug("spool file shipped", log.String("file", path))
	}
}
