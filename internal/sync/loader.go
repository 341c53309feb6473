package sync

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/aatrooox/zotepad/internal/schema"
	"github.com/aatrooox/zotepad/internal/store"
)

const (
	// DefaultPageSize is used when the caller requests no limit.
	DefaultPageSize = 500

	// MaxPageSize is the hard upper bound on one page of changes,
	// regardless of the caller-requested limit.
	MaxPageSize = 1000
)

// ClampLimit normalizes a caller-requested page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// LoadChanges produces the ordered page of changes for one table with
// version > sinceVersion.
//
// The backfill pass runs first so that every live pre-sync row has a
// positive version before the page is selected. Rows come back in
// ascending version order, capped at the clamped limit. A full page
// means the caller must treat the result as partial and resume with
// sinceVersion = lastReturned.Version.
//
// Rows whose primary key is null or empty indicate corrupt or pre-sync
// data; they are dropped with a warning and never replicated.
//
// An unregistered table yields an empty page.
func LoadChanges(ctx context.Context, st *store.Store, table string, sinceVersion int64, limit int, logger *log.Logger) ([]*Change, error) {
	cfg := schema.Lookup(table)
	if cfg == nil {
		logger.Printf("WARNING: Skipping load for unsupported table %q", table)
		return nil, nil
	}

	if _, err := BackfillVersions(ctx, st, cfg, logger); err != nil {
		return nil, fmt.Errorf("backfill failed for %s: %w", table, err)
	}

	limit = ClampLimit(limit)

	query := fmt.Sprintf("SELECT %s FROM %s WHERE version > ? ORDER BY version ASC LIMIT ?",
		strings.Join(cfg.Columns, ", "), cfg.Name)

	rows, err := st.RawDB().QueryContext(ctx, query, sinceVersion, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes for %s: %w", table, err)
	}
	defer rows.Close()

	var changes []*Change
	for rows.Next() {
		values := make([]any, len(cfg.Columns))
		ptrs := make([]any, len(cfg.Columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}

		change, ok := buildChange(cfg, values, logger)
		if ok {
			changes = append(changes, change)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s changes: %w", table, err)
	}

	return changes, nil
}

// buildChange converts one scanned row into a Change. Returns ok=false
// for rows that must not replicate (missing primary key).
func buildChange(cfg *schema.TableConfig, values []any, logger *log.Logger) (*Change, bool) {
	var (
		version   int64
		updatedAt string
		deletedAt *string
	)

	data := make(map[string]any, len(cfg.Columns))
	for i, col := range cfg.Columns {
		v := columnValue(values[i])

		switch col {
		case "version":
			if n, isInt := v.(int64); isInt {
				version = n
			}
		case "updated_at":
			if s, isStr := v.(string); isStr {
				updatedAt = s
			}
		case "deleted_at":
			if s, isStr := v.(string); isStr && s != "" {
				deletedAt = &s
			}
		}

		// created_at is store-managed, never on the wire
		if col == "created_at" {
			continue
		}
		data[col] = v
	}

	pk, _ := data[cfg.PrimaryKey].(string)
	if strings.TrimSpace(pk) == "" {
		logger.Printf("WARNING: Skipping %s row with empty %s", cfg.Name, cfg.PrimaryKey)
		return nil, false
	}

	if updatedAt == "" {
		updatedAt = NowISO()
		data["updated_at"] = updatedAt
	}

	op := OpUpsert
	if deletedAt != nil {
		op = OpDelete
	}

	return &Change{
		Table:     cfg.Name,
		Op:        op,
		Data:      data,
		Version:   version,
		UpdatedAt: updatedAt,
		DeletedAt: deletedAt,
	}, true
}

// columnValue maps driver scan results onto the wire value set:
// string, int64, float64, or nil. TEXT columns may scan as []byte
// depending on the driver; those become strings.
func columnValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	default:
		return val
	}
}
