package db

import (
	"context"
	"fmt"
	"time"

	"github.com/sanorte/vistorias/internal/offline/schema"
)

// PurgeSyncedOlderThanDays deletes SYNCED inspections, with everything they
// own, whose age measured from synced_at (falling back to updated_at, then
// created_at) exceeds days. Inspections that still need syncing are never
// eligible. Returns the number of inspections removed.
func (db *DB) PurgeSyncedOlderThanDays(days int) (int, error) {
	return db.PurgeSyncedOlderThanDaysContext(context.Background(), days)
}

// PurgeSyncedOlderThanDaysContext runs the retention purge with context support.
func (db *DB) PurgeSyncedOlderThanDaysContext(ctx context.Context, days int) (int, error) {
	if days < 0 {
		return 0, fmt.Errorf("retention days must not be negative, got %d", days)
	}
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
	SELECT external_id FROM inspections
	WHERE sync_state = ?
	  AND COALESCE(synced_at, updated_at, created_at) < ?`,
		string(schema.SyncStateSynced), formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to query purge candidates: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan purge candidate: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("error iterating purge candidates: %w", err)
	}
	rows.Close()

	for _, id := range ids {
		if err := deleteInspectionTx(ctx, tx, id); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(ids), nil
}
