package sync

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/aatrooox/zotepad/internal/schema"
	"github.com/aatrooox/zotepad/internal/store"
)

// testStore opens an initialized store in a temp directory.
func testStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if err := st.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return st
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// TestBackfillVersions_AssignsFromGlobalMax tests that unversioned rows
// get consecutive versions above the store's global maximum.
func TestBackfillVersions_AssignsFromGlobalMax(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	// Global max lives in a different table than the one backfilled
	if _, err := st.RawDB().ExecContext(ctx, `INSERT INTO moments (uuid, content, version) VALUES ('m1', 'x', 10)`); err != nil {
		t.Fatalf("insert moment failed: %v", err)
	}
	_, err := st.RawDB().ExecContext(ctx, `
		INSERT INTO notes (uuid, title, version, created_at) VALUES
		('n1', 'first', 0, '2024-01-01T00:00:00Z'),
		('n2', 'second', -99, '2024-01-02T00:00:00Z')`)
	if err != nil {
		t.Fatalf("insert notes failed: %v", err)
	}

	count, err := BackfillVersions(ctx, st, schema.Lookup("notes"), testLogger())
	if err != nil {
		t.Fatalf("BackfillVersions() failed: %v", err)
	}
	if count != 2 {
		t.Errorf("backfilled %d rows, want 2", count)
	}

	var v1, v2 int64
	if err := st.RawDB().QueryRow(`SELECT version FROM notes WHERE uuid = 'n1'`).Scan(&v1); err != nil {
		t.Fatalf("query n1: %v", err)
	}
	if err := st.RawDB().QueryRow(`SELECT version FROM notes WHERE uuid = 'n2'`).Scan(&v2); err != nil {
		t.Fatalf("query n2: %v", err)
	}

	if v1 != 11 || v2 != 12 {
		t.Errorf("versions = %d, %d; want 11, 12 (creation order above global max)", v1, v2)
	}
}

// TestBackfillVersions_Idempotent tests that a second pass is a no-op.
func TestBackfillVersions_Idempotent(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	if _, err := st.RawDB().ExecContext(ctx, `INSERT INTO notes (uuid, title, version) VALUES ('n1', 'a', 0)`); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	cfg := schema.Lookup("notes")
	if _, err := BackfillVersions(ctx, st, cfg, testLogger()); err != nil {
		t.Fatalf("first backfill failed: %v", err)
	}

	count, err := BackfillVersions(ctx, st, cfg, testLogger())
	if err != nil {
		t.Fatalf("second backfill failed: %v", err)
	}
	if count != 0 {
		t.Errorf("second backfill touched %d rows, want 0", count)
	}
}

// TestBackfillVersions_SkipsTombstones tests that deleted unversioned
// rows stay invisible.
func TestBackfillVersions_SkipsTombstones(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	_, err := st.RawDB().ExecContext(ctx,
		`INSERT INTO notes (uuid, title, version, deleted_at) VALUES ('n1', 'a', 0, '2024-01-01T00:00:00Z')`)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	count, err := BackfillVersions(ctx, st, schema.Lookup("notes"), testLogger())
	if err != nil {
		t.Fatalf("BackfillVersions() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("backfilled %d rows, want 0", count)
	}
}

// TestBackfillVersions_SkipsSystemWorkflows tests that system flows
// never become replicable.
func TestBackfillVersions_SkipsSystemWorkflows(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	_, err := st.RawDB().ExecContext(ctx, `
		INSERT INTO workflows (uuid, name, type, version) VALUES
		('w1', 'mine', 'user', 0),
		('w2', 'builtin', 'system:healthcheck', 0),
		('w3', 'untyped', NULL, 0)`)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	count, err := BackfillVersions(ctx, st, schema.Lookup("workflows"), testLogger())
	if err != nil {
		t.Fatalf("BackfillVersions() failed: %v", err)
	}
	if count != 2 {
		t.Errorf("backfilled %d rows, want 2 (user + untyped)", count)
	}

	var v int64
	if err := st.RawDB().QueryRow(`SELECT version FROM workflows WHERE uuid = 'w2'`).Scan(&v); err != nil {
		t.Fatalf("query w2: %v", err)
	}
	if v != 0 {
		t.Errorf("system workflow version = %d, want 0", v)
	}
}
