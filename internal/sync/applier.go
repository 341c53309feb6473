package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/aatrooox/zotepad/internal/schema"
	"github.com/aatrooox/zotepad/internal/store"
)

// ApplyChange applies one incoming change to the local store.
//
// Conflict handling is last-writer-wins keyed on wall-clock edit time:
// if the local row's updated_at is lexicographically >= the incoming
// change's, the change is a no-op - local state wins ties and newer
// local edits. Version numbers are only transport ordering tokens and
// play no part in the decision.
//
// A change that survives the conflict check is stamped with a freshly
// allocated version and written as an upsert. Deletes write a tombstone
// (deleted_at set, domain columns cleared); upserts explicitly clear
// deleted_at, so an upsert always resurrects a tombstone. The primary
// key is immutable and created_at stays store-managed.
//
// Returns applied=false without error for changes that are skipped:
// unsupported table, missing primary key, or lost conflict check.
// Store write failures are returned as errors; the caller decides
// whether sibling changes continue.
func ApplyChange(ctx context.Context, st *store.Store, alloc *Allocator, change *Change, logger *log.Logger) (bool, error) {
	cfg := schema.Lookup(change.Table)
	if cfg == nil {
		logger.Printf("WARNING: Skipping change for unsupported table %q", change.Table)
		return false, nil
	}

	pk := change.PrimaryKey(cfg.PrimaryKey)
	if strings.TrimSpace(pk) == "" {
		logger.Printf("WARNING: Skipping %s change with empty %s", cfg.Name, cfg.PrimaryKey)
		return false, nil
	}

	incomingUpdatedAt := change.UpdatedAt
	if incomingUpdatedAt == "" {
		incomingUpdatedAt = NowISO()
	}

	checkQuery := fmt.Sprintf("SELECT updated_at FROM %s WHERE %s = ?", cfg.Name, cfg.PrimaryKey)

	var localUpdatedAt sql.NullString
	err := st.RawDB().QueryRowContext(ctx, checkQuery, pk).Scan(&localUpdatedAt)
	switch {
	case err == nil:
		// Both timestamps are RFC 3339, so string order is time order.
		if localUpdatedAt.Valid && localUpdatedAt.String >= incomingUpdatedAt {
			return false, nil
		}
	case errors.Is(err, sql.ErrNoRows):
		// New row
	default:
		return false, fmt.Errorf("failed to read local row %s/%s: %w", cfg.Name, pk, err)
	}

	version := alloc.Allocate()

	cols := cfg.WireColumns()
	args := make([]any, 0, len(cols))

	switch change.Op {
	case OpDelete:
		deletedAt := NowISO()
		if change.DeletedAt != nil && *change.DeletedAt != "" {
			deletedAt = *change.DeletedAt
		}

		for _, col := range cols {
			switch col {
			case cfg.PrimaryKey:
				args = append(args, pk)
			case "version":
				args = append(args, version)
			case "updated_at":
				args = append(args, incomingUpdatedAt)
			case "deleted_at":
				args = append(args, deletedAt)
			default:
				args = append(args, clearedValue(cfg, col))
			}
		}

	default: // OpUpsert
		for _, col := range cols {
			switch col {
			case cfg.PrimaryKey:
				args = append(args, pk)
			case "version":
				args = append(args, version)
			case "updated_at":
				args = append(args, incomingUpdatedAt)
			case "deleted_at":
				args = append(args, nil)
			default:
				raw, ok := change.Data[col]
				if !ok {
					args = append(args, clearedValue(cfg, col))
					continue
				}
				v, err := normalizeValue(raw)
				if err != nil {
					return false, fmt.Errorf("bad payload value for %s.%s: %w", cfg.Name, col, err)
				}
				args = append(args, v)
			}
		}
	}

	query := upsertQuery(cfg, cols)
	if _, err := st.RawDB().ExecContext(ctx, query, args...); err != nil {
		return false, fmt.Errorf("failed to write %s/%s: %w", cfg.Name, pk, err)
	}

	return true, nil
}

// upsertQuery builds the INSERT .. ON CONFLICT statement for the wire
// columns. Every column updates from the excluded row except the
// primary key, which is immutable.
func upsertQuery(cfg *schema.TableConfig, cols []string) string {
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = "?"
	}

	var sets []string
	for _, col := range cols {
		if col == cfg.PrimaryKey {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", col, col))
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
		cfg.Name,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		cfg.PrimaryKey,
		strings.Join(sets, ", "))
}

// clearedValue is the default written to a domain column on a
// tombstone or when an upsert payload omits the column.
func clearedValue(cfg *schema.TableConfig, col string) any {
	if cfg.IsJSON(col) {
		return "[]"
	}
	return ""
}
