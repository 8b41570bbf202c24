package templates

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval is the quiet period between a file event and the
// reload it triggers.
const DefaultDebounceInterval = 500 * time.Millisecond

// Watcher reloads the template directory when files under it change.
// Events are debounced so a burst of writes triggers a single reload.
//
// Basic usage:
//
//	watcher := templates.NewWatcher(loader, 0)
//	if err := watcher.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer watcher.Stop()
type Watcher struct {
	loader   *Loader
	debounce time.Duration
	logger   *slog.Logger

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}

	mu      sync.RWMutex
	running bool

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// NewWatcher creates a watcher that reloads through the given loader.
// A non-positive debounce interval selects the default.
func NewWatcher(loader *Loader, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounceInterval
	}
	return &Watcher{
		loader:   loader,
		debounce: debounce,
		logger:   slog.Default().With("component", "templates.watcher"),
	}
}

// Start begins watching the template directory in a background goroutine.
// Returns an error if the watcher is already running or the directory
// cannot be watched.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(w.loader.dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.loader.dir, err)
	}

	w.watcher = fsw
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true

	w.logger.InfoContext(ctx, "template watcher started",
		"dir", w.loader.dir,
		"debounce", w.debounce)

	go w.run(ctx)

	return nil
}

// Stop stops the watcher, cancels any pending reload and waits for the
// event loop to exit. Returns an error if the watcher is not running.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher not running")
	}
	w.running = false
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)
	<-doneCh

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	return nil
}

// IsRunning reports whether the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// run processes file events until the context is cancelled or Stop is
// called.
func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "template watcher stopped", "reason", "context cancelled")
			return

		case <-w.stopCh:
			w.logger.Info("template watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !relevantEvent(event) {
				continue
			}
			w.logger.DebugContext(ctx, "template file event",
				"path", event.Name,
				"op", event.Op.String())
			w.scheduleReload(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.ErrorContext(ctx, "template watcher error", "error", err)
		}
	}
}

// scheduleReload arms the debounce timer. Each new event pushes the reload
// back until the directory has been quiet for the full interval.
func (w *Watcher) scheduleReload(ctx context.Context) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	stopCh := w.stopCh
	w.debounceTimer = time.AfterFunc(w.debounce, func() {
		select {
		case <-stopCh:
			return
		default:
		}
		if ctx.Err() != nil {
			return
		}
		if _, err := w.loader.Load(ctx); err != nil {
			w.logger.ErrorContext(ctx, "template reload failed", "error", err)
		}
	})
}

// relevantEvent reports whether a file event should trigger a reload.
// Chmod-only events, hidden files and unrecognized extensions are ignored.
func relevantEvent(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	_, ok := extensionLanguages[strings.ToLower(filepath.Ext(base))]
	return ok
}
