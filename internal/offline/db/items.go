package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sanorte/vistorias/internal/offline/schema"
)

// ReplaceInspectionItems replaces the whole item set of an inspection in a
// single transaction. Either the old set or the new set is visible, never a
// mix.
func (db *DB) ReplaceInspectionItems(externalID string, items []*schema.InspectionItem) error {
	return db.ReplaceInspectionItemsContext(context.Background(), externalID, items)
}

// ReplaceInspectionItemsContext replaces the item set with context support.
func (db *DB) ReplaceInspectionItemsContext(ctx context.Context, externalID string, items []*schema.InspectionItem) error {
	for _, it := range items {
		if it.InspectionExternalID == "" {
			it.InspectionExternalID = externalID
		}
		if it.InspectionExternalID != externalID {
			return fmt.Errorf("item %s belongs to inspection %s, not %s", it.ID, it.InspectionExternalID, externalID)
		}
		if err := it.Validate(); err != nil {
			return fmt.Errorf("invalid inspection item: %w", err)
		}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM inspection_items WHERE inspection_external_id = ?`, externalID); err != nil {
		return fmt.Errorf("failed to clear items of %s: %w", externalID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO inspection_items (
		id, inspection_external_id, checklist_item_id, answer, notes, updated_at,
		resolved_at, resolved_by_user_id, resolution_notes, resolution_evidence_path
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare item insert: %w", err)
	}
	defer stmt.Close()

	for _, it := range items {
		_, err := stmt.ExecContext(ctx,
			it.ID,
			externalID,
			it.ChecklistItemID,
			string(it.Answer),
			it.Notes,
			formatTime(it.UpdatedAt),
			timeToNullString(it.ResolvedAt),
			it.ResolvedByUserID,
			it.ResolutionNotes,
			it.ResolutionEvidencePath,
		)
		if err != nil {
			return fmt.Errorf("failed to insert item %s: %w", it.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetInspectionItems returns the items of an inspection.
func (db *DB) GetInspectionItems(externalID string) ([]*schema.InspectionItem, error) {
	return db.GetInspectionItemsContext(context.Background(), externalID)
}

// GetInspectionItemsContext returns the items of an inspection with context support.
func (db *DB) GetInspectionItemsContext(ctx context.Context, externalID string) ([]*schema.InspectionItem, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, inspection_external_id, checklist_item_id, answer, notes, updated_at,
	       resolved_at, resolved_by_user_id, resolution_notes, resolution_evidence_path
	FROM inspection_items
	WHERE inspection_external_id = ?
	ORDER BY rowid ASC`, externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query items of %s: %w", externalID, err)
	}
	defer rows.Close()

	var items []*schema.InspectionItem
	for rows.Next() {
		var it schema.InspectionItem
		var answer, updatedAt string
		var resolvedAt sql.NullString

		err := rows.Scan(
			&it.ID,
			&it.InspectionExternalID,
			&it.ChecklistItemID,
			&answer,
			&it.Notes,
			&updatedAt,
			&resolvedAt,
			&it.ResolvedByUserID,
			&it.ResolutionNotes,
			&it.ResolutionEvidencePath,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		it.Answer = schema.Answer(answer)
		it.UpdatedAt = parseTime(updatedAt)
		it.ResolvedAt = nullStringToTime(resolvedAt)
		items = append(items, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}
	return items, nil
}
