package source

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aledsdavies/batchdeob/core/invariant"
	"github.com/aledsdavies/batchdeob/internal/logging"
	"github.com/aledsdavies/batchdeob/pkgs/errors"
)

// DefaultDebounce is how long a file must stay quiet before it is handed on
const DefaultDebounce = 300 * time.Millisecond

// Watcher reports selected files that are created or written in watched
// directories. Bursts of events for one file are coalesced.
type Watcher struct {
	fs       *fsnotify.Watcher
	filter   *Filter
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	ready   chan string
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// WatchOption configures a Watcher
type WatchOption func(*Watcher)

// WithDebounce sets the quiet period
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithWatchLogger sets the logger
func WithWatchLogger(logger *slog.Logger) WatchOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher creates a watcher for files selected by filter
func NewWatcher(filter *Filter, opts ...WatchOption) (*Watcher, error) {
	invariant.NotNil(filter, "filter")

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewInputError("cannot start file watcher", err)
	}
	w := &Watcher{
		fs:       fsw,
		filter:   filter,
		debounce: DefaultDebounce,
		pending:  make(map[string]*time.Timer),
		ready:    make(chan string, 16),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logging.Default()
	}
	return w, nil
}

// Add watches dir
func (w *Watcher) Add(dir string) error {
	if err := w.fs.Add(dir); err != nil {
		return errors.NewInputError("cannot watch directory", err).WithContext("dir", dir)
	}
	w.logger.Debug("watching", "dir", dir)
	return nil
}

// Run calls handle for every settled file until ctx is done. handle runs on
// the caller's goroutine, one file at a time. The watcher is closed when Run
// returns.
func (w *Watcher) Run(ctx context.Context, handle func(path string)) error {
	defer w.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		case path := <-w.ready:
			handle(path)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !w.filter.Match(event.Name) {
		return
	}
	w.logger.Debug("script changed", "path", event.Name, "op", event.Op.String())

	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[event.Name]; ok {
		t.Stop()
	}
	name := event.Name
	var timer *time.Timer
	timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		if w.pending[name] == timer {
			delete(w.pending, name)
		}
		w.mu.Unlock()
		select {
		case w.ready <- name:
		case <-w.done:
		}
	})
	w.pending[name] = timer
}

// Close stops pending timers and releases the underlying watcher. It is
// safe to call more than once, and needed only when Run is never called.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		for _, t := range w.pending {
			t.Stop()
		}
		w.mu.Unlock()
		w.closeErr = w.fs.Close()
	})
	return w.closeErr
}
