// Package watcher re-triggers ingestion when the manifest or a listed document changes.
package watcher

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher watches a set of files and invokes onChange once per burst of changes.
// Parent directories are watched rather than the files themselves, so files replaced
// by rename (as editors do) keep being tracked.
type Watcher struct {
	onChange func(changed []string)
	debounce time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	files    map[string]bool // tracked files, cleaned absolute paths
	dirs     map[string]int  // watched dir -> number of tracked files in it
	pending  map[string]bool
	timer    *time.Timer
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for watch events.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long the watcher waits for changes to settle.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// NewWatcher creates a watcher that calls onChange with the sorted set of changed
// tracked files after each burst of events.
func NewWatcher(onChange func(changed []string), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		onChange: onChange,
		debounce: defaultDebounce,
		files:    make(map[string]bool),
		dirs:     make(map[string]int),
		pending:  make(map[string]bool),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	return w
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fw
	for dir := range w.dirs {
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			w.watcher = nil
			return err
		}
	}
	w.started = true
	go w.run(ctx, fw)
	return nil
}

// SetFiles replaces the tracked file set. Directories no longer needed are unwatched.
func (w *Watcher) SetFiles(paths ...string) error {
	want := make(map[string]bool, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		want[filepath.Clean(abs)] = true
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	dirs := make(map[string]int)
	for f := range want {
		dirs[filepath.Dir(f)]++
	}
	if w.watcher != nil {
		for dir := range dirs {
			if w.dirs[dir] == 0 {
				if err := w.watcher.Add(dir); err != nil {
					return err
				}
			}
		}
		for dir := range w.dirs {
			if dirs[dir] == 0 {
				_ = w.watcher.Remove(dir)
			}
		}
	}
	w.files = want
	w.dirs = dirs
	w.logger.Debug("watcher tracking files", zap.Int("files", len(want)), zap.Int("dirs", len(dirs)))
	return nil
}

// Files returns the tracked files in sorted order.
func (w *Watcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.files))
	for f := range w.files {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return
	}
	path := filepath.Clean(ev.Name)
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.files[path] {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	w.pending[path] = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	changed := make([]string, 0, len(w.pending))
	for p := range w.pending {
		changed = append(changed, p)
	}
	w.pending = make(map[string]bool)
	w.timer = nil
	w.mu.Unlock()
	if len(changed) == 0 || w.onChange == nil {
		return
	}
	sort.Strings(changed)
	w.logger.Info("tracked files changed", zap.Strings("paths", changed))
	w.onChange(changed)
}

// Stop stops the watcher and releases resources. Pending changes are dropped.
// A stopped Watcher cannot be started again.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
