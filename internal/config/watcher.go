package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ReOpsIL/KAIX/internal/async"
	"github.com/ReOpsIL/KAIX/internal/logging"
)

// Cache holds the most recently resolved Config/Metadata pair and
// refreshes it by re-running Load. It has no teacher counterpart to
// copy directly (cklxx-elephant.ai's RuntimeConfigWatcher references a
// RuntimeConfigCache type that isn't part of the retrieved pack), so
// this is designed from the watcher's usage pattern alone: Resolve and
// Reload are the two calls runtime_watcher.go makes against it.
type Cache struct {
	mu      sync.RWMutex
	workdir string
	opts    []Option
	cfg     Config
	meta    Metadata
	loaded  bool
}

// NewCache builds a Cache that resolves workdir's layered Config on
// first use.
func NewCache(workdir string, opts ...Option) *Cache {
	return &Cache{workdir: workdir, opts: opts}
}

// Resolve returns the cached Config, loading it first if this is the
// first call.
func (c *Cache) Resolve(ctx context.Context) (Config, Metadata, error) {
	c.mu.RLock()
	if c.loaded {
		cfg, meta := c.cfg, c.meta
		c.mu.RUnlock()
		return cfg, meta, nil
	}
	c.mu.RUnlock()
	return c.Reload(ctx)
}

// Reload re-runs Load unconditionally and replaces the cached value.
func (c *Cache) Reload(_ context.Context) (Config, Metadata, error) {
	cfg, meta, err := Load(c.workdir, c.opts...)
	if err != nil {
		return Config{}, Metadata{}, err
	}
	c.mu.Lock()
	c.cfg, c.meta, c.loaded = cfg, meta, true
	c.mu.Unlock()
	return cfg, meta, nil
}

// Watcher watches the override config file for out-of-band edits and
// debounces a Cache.Reload call after each change, publishing a signal
// on Updates() for every successful reload. Grounded closely on
// cklxx-elephant.ai/internal/config/runtime_watcher.go's
// RuntimeConfigWatcher: same fsnotify-on-directory, filter-by-
// cleaned-path, debounce-via-time.AfterFunc shape, retargeted at
// KAIX's Cache instead of the teacher's RuntimeConfigCache.
type Watcher struct {
	path     string
	cache    *Cache
	debounce time.Duration
	logger   logging.Logger

	beforeReload func()

	stopOnce sync.Once
	stopCh   chan struct{}
	updates  chan struct{}
	timerMu  sync.Mutex
	timer    *time.Timer
}

// WatcherOption customizes a Watcher.
type WatcherOption func(*Watcher)

// WithWatchDebounce overrides the default 300ms coalescing window.
func WithWatchDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithWatchLogger attaches a logger for watch-loop diagnostics.
func WithWatchLogger(logger logging.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

// WithBeforeReload registers a hook invoked immediately before each
// debounced reload, e.g. to log the pending change.
func WithBeforeReload(fn func()) WatcherOption {
	return func(w *Watcher) { w.beforeReload = fn }
}

// NewWatcher builds a Watcher over path, backed by cache.
func NewWatcher(path string, cache *Cache, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:     filepath.Clean(path),
		cache:    cache,
		debounce: 300 * time.Millisecond,
		logger:   logging.Nop(),
		stopCh:   make(chan struct{}),
		updates:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Updates receives a value after every successful debounced reload.
func (w *Watcher) Updates() <-chan struct{} {
	return w.updates
}

// Resolve proxies to the underlying Cache.
func (w *Watcher) Resolve(ctx context.Context) (Config, Metadata, error) {
	return w.cache.Resolve(ctx)
}

// Start begins watching the directory containing path for changes.
// Watching the directory rather than the file directly survives
// editors that replace the file via rename-over (vim, many YAML
// editors) instead of writing in place.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return err
	}

	async.Go(w.logger, "config.watch", func() { w.watchLoop(watcher) })
	async.Go(w.logger, "config.watch.stop", func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.stopCh:
		}
		watcher.Close()
	})
	return nil
}

// Stop halts the watch loop. Safe to call multiple times and from
// multiple goroutines.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *Watcher) watchLoop(watcher *fsnotify.Watcher) {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if filepath.Clean(event.Name) != w.path {
		return
	}
	w.scheduleReload()
}

func (w *Watcher) scheduleReload() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if w.beforeReload != nil {
			w.beforeReload()
		}
		if _, _, err := w.cache.Reload(context.Background()); err != nil {
			w.logger.Warn("config reload failed: %v", err)
			return
		}
		select {
		case w.updates <- struct{}{}:
		default:
		}
	})
}
