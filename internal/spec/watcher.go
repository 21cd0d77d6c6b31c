package spec

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/crew/internal/logging"
)

const defaultDebounce = 100 * time.Millisecond

// Watcher reloads a spec file whenever it changes and hands the parsed
// result to a callback. Parse errors are logged and the previous spec is
// kept.
type Watcher struct {
	path     string
	onChange func(*Spec)
	debounce time.Duration
	logger   *logging.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long to wait for writes to settle before reloading.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(l *logging.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWatcher creates a Watcher for path.
func NewWatcher(path string, onChange func(*Spec), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		debounce: defaultDebounce,
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start loads the spec once, delivers it, and then watches for changes
// until ctx is cancelled or Stop is called. The parent directory is watched
// so editors that replace the file by rename are handled.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return err
	}
	w.watcher = fw

	w.reload()

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(loopCtx, fw, w.done)
	return nil
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)
		case <-timer.C:
			w.reload()
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("spec watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) reload() {
	s, err := Load(w.path)
	if err != nil {
		w.logger.Warn("spec reload failed", "path", w.path, "error", err)
		return
	}
	w.logger.Info("spec loaded", "path", w.path, "requirements", len(s.Requirements))
	if w.onChange != nil {
		w.onChange(s)
	}
}

// Stop stops watching. Safe to call more than once or before Start.
func (w *Watcher) Stop() {
	w.mu.Lock()
	fw, cancel, done := w.watcher, w.cancel, w.done
	w.watcher, w.cancel, w.done = nil, nil, nil
	w.mu.Unlock()

	if fw == nil {
		return
	}
	cancel()
	<-done
	_ = fw.Close()
}
