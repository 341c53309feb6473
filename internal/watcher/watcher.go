// Package watcher keeps the version allocator current while the GUI
// process writes the database directly.
//
// The GUI layer shares the SQLite file but not this process's
// allocator. Watching the database file and re-reading the true
// maximum version after each write keeps /state and the push conflict
// gate honest.
package watcher

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aatrooox/zotepad/internal/store"
	zsync "github.com/aatrooox/zotepad/internal/sync"
)

// Config holds watcher configuration.
type Config struct {
	// DatabasePath is the SQLite file to watch.
	DatabasePath string

	// DebounceInterval is how long to wait before reacting to file
	// changes. SQLite touches the file many times per transaction;
	// this batches them.
	DebounceInterval time.Duration

	// Logger for watcher activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 200 * time.Millisecond,
		Logger:           log.Default(),
	}
}

// Watcher observes the database file and advances the version
// allocator when another process writes to it.
type Watcher struct {
	cfg     *Config
	alloc   *zsync.Allocator
	watcher *fsnotify.Watcher

	// onAdvance, when set, fires after the allocator moves forward.
	onAdvance func(newVersion int64)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *log.Logger

	mu      sync.Mutex
	running bool
	dirty   bool
	lastHit time.Time
}

// New creates a database watcher. Start must be called before events
// are processed.
func New(cfg *Config, alloc *zsync.Allocator) (*Watcher, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = 200 * time.Millisecond
	}
	if cfg.DatabasePath == "" {
		return nil, fmt.Errorf("watcher requires a database path")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		cfg:     cfg,
		alloc:   alloc,
		watcher: fw,
		ctx:     ctx,
		cancel:  cancel,
		logger:  cfg.Logger,
	}, nil
}

// OnAdvance registers a callback fired after the allocator advances.
// Must be set before Start.
func (w *Watcher) OnAdvance(fn func(newVersion int64)) {
	w.onAdvance = fn
}

// Start begins watching the database file's directory.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	// Watch the directory, not the file: SQLite WAL checkpoints
	// replace the file and a direct watch would go stale.
	dir := filepath.Dir(w.cfg.DatabasePath)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.running = true
	w.wg.Add(1)
	go w.loop()

	return nil
}

// Stop stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	w.cancel()
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()
	return nil
}

// IsRunning reports whether the watcher loop is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.isDatabaseEvent(event) {
				continue
			}
			w.mu.Lock()
			w.dirty = true
			w.lastHit = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("Watcher error: %v", err)

		case <-ticker.C:
			w.mu.Lock()
			due := w.dirty && time.Since(w.lastHit) >= w.cfg.DebounceInterval
			if due {
				w.dirty = false
			}
			w.mu.Unlock()

			if due {
				w.refresh()
			}
		}
	}
}

// isDatabaseEvent filters directory events down to writes against the
// database file or its WAL sidecar.
func (w *Watcher) isDatabaseEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	base := filepath.Base(w.cfg.DatabasePath)
	name := filepath.Base(event.Name)
	return name == base || strings.HasPrefix(name, base+"-")
}

// refresh re-reads the store's true maximum version and advances the
// allocator to it.
func (w *Watcher) refresh() {
	st, err := store.Open(w.cfg.DatabasePath)
	if err != nil {
		w.logger.Printf("Watcher: failed to open store: %v", err)
		return
	}
	defer func() { _ = st.Close() }()

	maxVersion, err := st.GlobalMaxVersion(w.ctx)
	if err != nil {
		w.logger.Printf("Watcher: failed to read max version: %v", err)
		return
	}

	before := w.alloc.Current()
	w.alloc.AdvanceTo(maxVersion)
	after := w.alloc.Current()

	if after > before {
		w.logger.Printf("Watcher: external write advanced version %d -> %d", before, after)
		if w.onAdvance != nil {
			w.onAdvance(after)
		}
	}
}
