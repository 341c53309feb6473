package watcher

import (
	"io"
	"log"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aatrooox/zotepad/internal/store"
	zsync "github.com/aatrooox/zotepad/internal/sync"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// TestWatcher_AdvancesOnExternalWrite tests that a write by another
// connection moves the allocator forward.
func TestWatcher_AdvancesOnExternalWrite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "app.db")

	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := st.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	alloc := zsync.NewAllocator(nil, 0)

	var advanced atomic.Int64
	w, err := New(&Config{
		DatabasePath:     dbPath,
		DebounceInterval: 50 * time.Millisecond,
		Logger:           testLogger(),
	}, alloc)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	w.OnAdvance(func(v int64) { advanced.Store(v) })

	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(func() { _ = w.Stop() })

	_, err = st.RawDB().Exec(`INSERT INTO notes (uuid, title, version, updated_at) VALUES ('n1', 'external', 7, '2024-01-01T00:00:00Z')`)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for alloc.Current() < 7 {
		if time.Now().After(deadline) {
			t.Fatalf("allocator stuck at %d, want 7", alloc.Current())
		}
		time.Sleep(20 * time.Millisecond)
	}

	if got := advanced.Load(); got != 7 {
		t.Errorf("OnAdvance got %d, want 7", got)
	}
}

// TestWatcher_StartStop tests lifecycle handling.
func TestWatcher_StartStop(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "app.db")

	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := st.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	w, err := New(&Config{DatabasePath: dbPath, Logger: testLogger()}, zsync.NewAllocator(nil, 0))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !w.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}
	if err := w.Start(); err == nil {
		t.Error("second Start() succeeded, want error")
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if w.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop() failed: %v", err)
	}
}

// TestWatcher_RequiresPath tests config validation.
func TestWatcher_RequiresPath(t *testing.T) {
	if _, err := New(&Config{Logger: testLogger()}, zsync.NewAllocator(nil, 0)); err == nil {
		t.Error("New() accepted empty database path")
	}
}
