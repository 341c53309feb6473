package sync

import (
	"context"
	"fmt"
	"log"

	"github.com/aatrooox/zotepad/internal/schema"
	"github.com/aatrooox/zotepad/internal/store"
)

// BackfillVersions assigns version numbers to rows that predate the
// sync engine.
//
// Rows with version <= 0 and no tombstone are given consecutive
// versions starting at the store's global maximum + 1, in creation
// order, and their updated_at is stamped to now. This makes
// pre-existing, never-synced rows discoverable by the next pull.
//
// System workflows (type LIKE 'system:%') are device-local templates
// and never replicate, so they are left untouched.
//
// Runs before every read. Idempotent: a second pass finds no rows.
// Returns the number of rows backfilled.
func BackfillVersions(ctx context.Context, st *store.Store, cfg *schema.TableConfig, logger *log.Logger) (int, error) {
	maxVersion, err := st.GlobalMaxVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read global max version: %w", err)
	}

	where := "version <= 0 AND deleted_at IS NULL"
	if cfg.Name == "workflows" {
		where += " AND (type IS NULL OR type = 'user' OR type NOT LIKE 'system:%')"
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY created_at ASC",
		cfg.PrimaryKey, cfg.Name, where)

	rows, err := st.RawDB().QueryContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to query unversioned rows in %s: %w", cfg.Name, err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("failed to scan row id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, fmt.Errorf("error iterating unversioned rows: %w", err)
	}
	_ = rows.Close()

	if len(ids) == 0 {
		return 0, nil
	}

	logger.Printf("Backfilling %d unversioned rows in %s", len(ids), cfg.Name)

	update := fmt.Sprintf("UPDATE %s SET version = ?, updated_at = ? WHERE %s = ?",
		cfg.Name, cfg.PrimaryKey)

	current := maxVersion
	for _, id := range ids {
		current++
		if _, err := st.RawDB().ExecContext(ctx, update, current, NowISO(), id); err != nil {
			return 0, fmt.Errorf("failed to backfill %s row %s: %w", cfg.Name, id, err)
		}
	}

	return len(ids), nil
}
