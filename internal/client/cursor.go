package client

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// CursorFile is the name of the sync cursor record in the data dir.
const CursorFile = "sync_cursor.toml"

// Cursor tracks per-table sync progress across runs. Pull positions
// hold the next peer version to request (inclusive); push positions
// hold the last local version already sent.
type Cursor struct {
	Pull map[string]int64 `toml:"pull"`
	Push map[string]int64 `toml:"push"`
}

// NewCursor returns an empty cursor that syncs from the beginning.
func NewCursor() *Cursor {
	return &Cursor{
		Pull: make(map[string]int64),
		Push: make(map[string]int64),
	}
}

// PullSince returns the version to resume pulling the table from.
func (c *Cursor) PullSince(table string) int64 {
	return c.Pull[table]
}

// SetPullSince records pull progress for a table.
func (c *Cursor) SetPullSince(table string, version int64) {
	if version > c.Pull[table] {
		c.Pull[table] = version
	}
}

// PushSince returns the local version to resume pushing from.
func (c *Cursor) PushSince(table string) int64 {
	return c.Push[table]
}

// SetPushSince records push progress for a table.
func (c *Cursor) SetPushSince(table string, version int64) {
	if version > c.Push[table] {
		c.Push[table] = version
	}
}

// LoadCursor reads the cursor from the data dir. A missing file yields
// an empty cursor, not an error.
func LoadCursor(dataDir string) (*Cursor, error) {
	path := filepath.Join(dataDir, CursorFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewCursor(), nil
		}
		return nil, fmt.Errorf("failed to read sync cursor: %w", err)
	}

	cur := NewCursor()
	if err := toml.Unmarshal(data, cur); err != nil {
		return nil, fmt.Errorf("failed to parse sync cursor: %w", err)
	}
	if cur.Pull == nil {
		cur.Pull = make(map[string]int64)
	}
	if cur.Push == nil {
		cur.Push = make(map[string]int64)
	}
	return cur, nil
}

// Save writes the cursor to the data dir.
func (c *Cursor) Save(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	path := filepath.Join(dataDir, CursorFile)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create sync cursor: %w", err)
	}

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write sync cursor: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close sync cursor: %w", err)
	}
	return nil
}
