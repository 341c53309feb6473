// Package sync implements the multi-table versioned sync engine.
//
// Changes are the unit of replication: an upsert or tombstone for one
// row, tagged with a version (a process-wide monotonic ordering token)
// and an updated_at timestamp (the conflict arbiter). One generic
// loader/applier path handles every table declared in the registry.
package sync

import (
	"encoding/json"
	"fmt"
	"time"
)

// Op is the kind of replicated mutation.
type Op string

const (
	// OpUpsert inserts or updates a row.
	OpUpsert Op = "upsert"

	// OpDelete writes a tombstone. Rows are never physically removed
	// once they carry a version, so deletions replicate.
	OpDelete Op = "delete"
)

// Change is one replicated mutation.
//
// Data maps column name to value for every wire column of the table
// (created_at is store-managed and never present). JSON-typed columns
// pass through as raw text; the receiver decodes them. Version numbers
// <= 0 mean "not yet assigned by the engine", i.e. purely local edits.
type Change struct {
	Table     string         `json:"table"`
	Op        Op             `json:"op"`
	Data      map[string]any `json:"data"`
	Version   int64          `json:"version"`
	UpdatedAt string         `json:"updated_at"`
	DeletedAt *string        `json:"deleted_at"`
}

// PrimaryKey extracts the primary-key value from the change payload.
// Returns "" if the value is absent, empty, or not a string.
func (c *Change) PrimaryKey(pkColumn string) string {
	v, ok := c.Data[pkColumn]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// NowISO returns the current UTC time as an RFC 3339 string.
//
// All sync timestamps use this format so that lexicographic comparison
// equals chronological comparison.
func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// normalizeValue converts a decoded JSON payload value into something
// the SQL driver can bind: strings and nils pass through, numbers
// become int64 when whole, and nested structures are re-encoded as
// raw JSON text.
func normalizeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return val, nil
	case bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case float64:
		if val == float64(int64(val)) {
			return int64(val), nil
		}
		return val, nil
	case int64:
		return val, nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, nil
		}
		return val.String(), nil
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload value: %w", err)
		}
		return string(raw), nil
	}
}
