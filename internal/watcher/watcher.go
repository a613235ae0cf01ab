// Package watcher turns a drop folder into a drag-and-drop target: files placed in the
// folder arm the target, and once a file stops changing it is dropped.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyperjump/docchat/internal/models"
	"go.uber.org/zap"
)

const defaultSettle = 400 * time.Millisecond

// DropTarget receives drag-and-drop events.
type DropTarget interface {
	DragEnter()
	DragOver()
	DragLeave()
	Drop(ctx context.Context, files []models.File) error
}

// InspectFunc describes the file at path for upload.
type InspectFunc func(path string) (models.File, error)

// Watcher watches one directory and feeds settled files to a DropTarget.
type Watcher struct {
	dir      string
	target   DropTarget
	inspect  InspectFunc
	settle   time.Duration
	onResult func(path string, err error)
	logger   *zap.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	pending  map[string]*time.Timer
	ctx      context.Context
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithSettle sets how long a file must stay unchanged before it is dropped.
func WithSettle(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithResultHook registers fn to receive the outcome of every drop.
func WithResultHook(fn func(path string, err error)) WatcherOption {
	return func(w *Watcher) { w.onResult = fn }
}

// NewWatcher creates a watcher for dir. The directory is created on Start if missing.
func NewWatcher(dir string, target DropTarget, inspect InspectFunc, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dir:     filepath.Clean(dir),
		target:  target,
		inspect: inspect,
		settle:  defaultSettle,
		pending: make(map[string]*time.Timer),
		done:    make(chan struct{}),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	return w
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Start starts watching. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		_ = fw.Close()
		return err
	}
	w.watcher = fw
	w.ctx = ctx
	w.started = true
	w.logger.Debug("drop folder watching", zap.String("dir", w.dir), zap.Duration("settle", w.settle))
	go w.run(ctx, fw)
	return nil
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
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if filepath.Dir(path) != w.dir || ignored(path) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if w.cancel(path) {
			w.target.DragLeave()
		}
	case ev.Has(fsnotify.Create):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return
		}
		w.target.DragEnter()
		w.schedule(path)
	case ev.Has(fsnotify.Write):
		w.target.DragOver()
		w.schedule(path)
	}
}

// ignored reports hidden files and in-progress downloads.
func ignored(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".part", ".crdownload", ".tmp", ".swp":
		return true
	}
	return false
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.settle, func() { w.drop(path) })
}

func (w *Watcher) cancel(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.pending[path]
	if !ok {
		return false
	}
	t.Stop()
	delete(w.pending, path)
	return true
}

func (w *Watcher) drop(path string) {
	w.mu.Lock()
	if _, ok := w.pending[path]; !ok {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	ctx := w.ctx
	w.mu.Unlock()

	file, err := w.inspect(path)
	if err != nil {
		w.logger.Debug("drop skipped", zap.String("path", path), zap.Error(err))
		w.target.DragLeave()
		w.report(path, err)
		return
	}
	w.logger.Debug("dropping file", zap.String("path", path), zap.Int64("size", file.Size))
	w.report(path, w.target.Drop(ctx, []models.File{file}))
}

func (w *Watcher) report(path string, err error) {
	if w.onResult != nil {
		w.onResult(path, err)
	}
}

// Pending returns the number of files waiting to settle.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Stop stops the watcher and releases resources. Files still settling are not dropped.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
