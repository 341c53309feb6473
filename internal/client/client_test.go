package client

import (
	"context"
	"io"
	"log"
	"net"
	"path/filepath"
	"testing"

	"github.com/aatrooox/zotepad/internal/server"
	"github.com/aatrooox/zotepad/internal/store"
	zsync "github.com/aatrooox/zotepad/internal/sync"
)

const testToken = "test-token"

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// startPeer runs a real sync server over its own temp database and
// returns its base URL plus the database path for direct inspection.
func startPeer(t *testing.T, seed func(*store.Store)) (string, string) {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "peer.db")

	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open peer store: %v", err)
	}
	if err := st.InitSchema(); err != nil {
		t.Fatalf("failed to init peer schema: %v", err)
	}
	if seed != nil {
		seed(st)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("failed to close peer store: %v", err)
	}

	srv := server.New(&server.Config{
		Port:         0,
		Token:        testToken,
		DatabasePath: dbPath,
		DataDir:      dir,
		BuildVersion: "test",
		Logger:       testLogger(),
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("failed to start peer: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })

	_, port, err := net.SplitHostPort(srv.Addr())
	if err != nil {
		t.Fatalf("failed to parse peer address %q: %v", srv.Addr(), err)
	}

	return "http://127.0.0.1:" + port, dbPath
}

func localStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatalf("failed to open local store: %v", err)
	}
	if err := st.InitSchema(); err != nil {
		t.Fatalf("failed to init local schema: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// TestSync_PullsRemoteChanges tests that the peer's rows land in the
// local store.
func TestSync_PullsRemoteChanges(t *testing.T) {
	baseURL, _ := startPeer(t, func(st *store.Store) {
		_, err := st.RawDB().Exec(`
			INSERT INTO notes (uuid, title, content, tags, version, updated_at) VALUES
			('n1', 'remote one', 'x', '[]', 1, '2024-01-01T00:00:00Z'),
			('n2', 'remote two', 'y', '[]', 2, '2024-01-02T00:00:00Z')`)
		if err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	})

	st := localStore(t)
	c := New(baseURL, testToken, testLogger())

	result, err := c.Sync(context.Background(), st, zsync.NewAllocator(nil, 0), NewCursor())
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	if result.Pulled != 2 {
		t.Errorf("pulled = %d, want 2", result.Pulled)
	}

	var title string
	if err := st.RawDB().QueryRow(`SELECT title FROM notes WHERE uuid = 'n1'`).Scan(&title); err != nil {
		t.Fatalf("pulled row missing locally: %v", err)
	}
	if title != "remote one" {
		t.Errorf("title = %q, want remote one", title)
	}
}

// TestSync_PushesLocalChanges tests that local unsynced rows reach the
// peer.
func TestSync_PushesLocalChanges(t *testing.T) {
	baseURL, peerDB := startPeer(t, nil)

	st := localStore(t)
	if _, err := st.RawDB().Exec(`INSERT INTO notes (uuid, title, content, tags, version) VALUES ('local1', 'mine', 'z', '[]', 0)`); err != nil {
		t.Fatalf("local insert failed: %v", err)
	}

	c := New(baseURL, testToken, testLogger())
	result, err := c.Sync(context.Background(), st, zsync.NewAllocator(nil, 0), NewCursor())
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	if result.Pushed != 1 {
		t.Errorf("pushed = %d, want 1", result.Pushed)
	}

	peer, err := store.Open(peerDB)
	if err != nil {
		t.Fatalf("failed to open peer store: %v", err)
	}
	defer func() { _ = peer.Close() }()

	var title string
	if err := peer.RawDB().QueryRow(`SELECT title FROM notes WHERE uuid = 'local1'`).Scan(&title); err != nil {
		t.Fatalf("pushed row missing on peer: %v", err)
	}
	if title != "mine" {
		t.Errorf("peer title = %q, want mine", title)
	}
}

// TestSync_RoundTripIdempotent tests that a second sync with nothing
// new moves nothing.
func TestSync_RoundTripIdempotent(t *testing.T) {
	baseURL, _ := startPeer(t, func(st *store.Store) {
		_, err := st.RawDB().Exec(`
			INSERT INTO notes (uuid, title, content, tags, version, updated_at)
			VALUES ('n1', 'remote', 'x', '[]', 1, '2024-01-01T00:00:00Z')`)
		if err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	})

	st := localStore(t)
	alloc := zsync.NewAllocator(nil, 0)
	cur := NewCursor()
	c := New(baseURL, testToken, testLogger())

	if _, err := c.Sync(context.Background(), st, alloc, cur); err != nil {
		t.Fatalf("first Sync() failed: %v", err)
	}

	result, err := c.Sync(context.Background(), st, alloc, cur)
	if err != nil {
		t.Fatalf("second Sync() failed: %v", err)
	}
	if result.Pulled != 0 {
		t.Errorf("second sync pulled %d, want 0", result.Pulled)
	}
	if result.Pushed != 0 {
		t.Errorf("second sync pushed %d, want 0", result.Pushed)
	}
}

// TestSync_BadToken tests that an unauthorized client stops at the
// state probe.
func TestSync_BadToken(t *testing.T) {
	baseURL, _ := startPeer(t, nil)

	st := localStore(t)
	c := New(baseURL, "wrong-token", testLogger())

	if _, err := c.Sync(context.Background(), st, zsync.NewAllocator(nil, 0), NewCursor()); err == nil {
		t.Error("Sync() succeeded with a bad token")
	}
}

// TestHealth_NoToken tests the unauthenticated discovery probe.
func TestHealth_NoToken(t *testing.T) {
	baseURL, _ := startPeer(t, nil)

	c := New(baseURL, "", testLogger())
	health, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() failed: %v", err)
	}
	if health.ServerIP == "" {
		t.Error("health payload missing server_ip")
	}
}

// TestSync_TombstonePropagates tests that a remote delete tombstones
// the local row.
func TestSync_TombstonePropagates(t *testing.T) {
	baseURL, _ := startPeer(t, func(st *store.Store) {
		_, err := st.RawDB().Exec(`
			INSERT INTO notes (uuid, title, content, tags, version, updated_at, deleted_at)
			VALUES ('n1', '', '', '[]', 1, '2024-02-01T00:00:00Z', '2024-02-01T00:00:00Z')`)
		if err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	})

	st := localStore(t)
	if _, err := st.RawDB().Exec(`
		INSERT INTO notes (uuid, title, content, tags, version, updated_at)
		VALUES ('n1', 'stale local', 'x', '[]', 1, '2024-01-01T00:00:00Z')`); err != nil {
		t.Fatalf("local insert failed: %v", err)
	}

	c := New(baseURL, testToken, testLogger())
	if _, err := c.Sync(context.Background(), st, zsync.NewAllocator(nil, 1), NewCursor()); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	var deletedAt *string
	var title string
	if err := st.RawDB().QueryRow(`SELECT deleted_at, title FROM notes WHERE uuid = 'n1'`).Scan(&deletedAt, &title); err != nil {
		t.Fatalf("row missing: %v", err)
	}
	if deletedAt == nil {
		t.Error("local row not tombstoned")
	}
	if title != "" {
		t.Errorf("title = %q, want cleared", title)
	}
}

// TestCursor_RoundTrip tests cursor persistence.
func TestCursor_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	cur := NewCursor()
	cur.SetPullSince("notes", 42)
	cur.SetPushSince("moments", 7)

	if err := cur.Save(dir); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded, err := LoadCursor(dir)
	if err != nil {
		t.Fatalf("LoadCursor() failed: %v", err)
	}
	if loaded.PullSince("notes") != 42 {
		t.Errorf("pull cursor = %d, want 42", loaded.PullSince("notes"))
	}
	if loaded.PushSince("moments") != 7 {
		t.Errorf("push cursor = %d, want 7", loaded.PushSince("moments"))
	}
	if loaded.PullSince("assets") != 0 {
		t.Errorf("untouched cursor = %d, want 0", loaded.PullSince("assets"))
	}
}

// TestCursor_NeverRewinds tests the monotonic setter.
func TestCursor_NeverRewinds(t *testing.T) {
	cur := NewCursor()
	cur.SetPullSince("notes", 10)
	cur.SetPullSince("notes", 5)
	if cur.PullSince("notes") != 10 {
		t.Errorf("cursor rewound to %d", cur.PullSince("notes"))
	}
}

// TestCursor_LoadAbsent tests the first-run state.
func TestCursor_LoadAbsent(t *testing.T) {
	cur, err := LoadCursor(t.TempDir())
	if err != nil {
		t.Fatalf("LoadCursor() failed: %v", err)
	}
	if cur.PullSince("notes") != 0 {
		t.Errorf("fresh cursor = %d, want 0", cur.PullSince("notes"))
	}
}
