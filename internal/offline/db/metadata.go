package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sanorte/vistorias/internal/offline/schema"
)

// MarkSyncMetadata sets a metadata key.
func (db *DB) MarkSyncMetadata(key, value string) error {
	return db.MarkSyncMetadataContext(context.Background(), key, value)
}

// MarkSyncMetadataContext sets a metadata key with context support.
func (db *DB) MarkSyncMetadataContext(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO sync_metadata (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to set metadata %s: %w", key, err)
	}
	return nil
}

// GetSyncMetadata returns a metadata entry, or nil when the key was never set.
func (db *DB) GetSyncMetadata(key string) (*schema.SyncMetadata, error) {
	return db.GetSyncMetadataContext(context.Background(), key)
}

// GetSyncMetadataContext returns a metadata entry with context support.
func (db *DB) GetSyncMetadataContext(ctx context.Context, key string) (*schema.SyncMetadata, error) {
	var m schema.SyncMetadata
	var updatedAt string
	err := db.conn.QueryRowContext(ctx,
		`SELECT key, value, updated_at FROM sync_metadata WHERE key = ?`, key,
	).Scan(&m.Key, &m.Value, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata %s: %w", key, err)
	}
	m.UpdatedAt = parseTime(updatedAt)
	return &m, nil
}

// LastSyncAt returns the time of the last successful sync round-trip, or
// the zero time if there was none.
func (db *DB) LastSyncAt(ctx context.Context) (time.Time, error) {
	m, err := db.GetSyncMetadataContext(ctx, schema.MetaLastSyncAt)
	if err != nil || m == nil {
		return time.Time{}, err
	}
	return parseTime(m.Value), nil
}

// MarkLastSyncAt records t as the last successful sync.
func (db *DB) MarkLastSyncAt(ctx context.Context, t time.Time) error {
	return db.MarkSyncMetadataContext(ctx, schema.MetaLastSyncAt, formatTime(t))
}

// CacheChecklists replaces the cached checklist definitions as a whole.
func (db *DB) CacheChecklists(list []*schema.Checklist) error {
	return db.CacheChecklistsContext(context.Background(), list)
}

// CacheChecklistsContext replaces the cached checklists with context support.
func (db *DB) CacheChecklistsContext(ctx context.Context, list []*schema.Checklist) error {
	for _, c := range list {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid checklist: %w", err)
		}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM checklists`); err != nil {
		return fmt.Errorf("failed to clear checklists: %w", err)
	}

	now := formatTime(time.Now())
	for _, c := range list {
		def, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal checklist %s: %w", c.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
		INSERT INTO checklists (id, module, name, active, definition, cached_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.Module, c.Name, boolToInt(c.Active), string(def), now)
		if err != nil {
			return fmt.Errorf("failed to insert checklist %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetChecklist returns a cached checklist. Returns ErrNotFound if missing.
func (db *DB) GetChecklist(id string) (*schema.Checklist, error) {
	return db.GetChecklistContext(context.Background(), id)
}

// GetChecklistContext returns a cached checklist with context support.
func (db *DB) GetChecklistContext(ctx context.Context, id string) (*schema.Checklist, error) {
	var def string
	err := db.conn.QueryRowContext(ctx, `SELECT definition FROM checklists WHERE id = ?`, id).Scan(&def)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checklist %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checklist %s: %w", id, err)
	}

	var c schema.Checklist
	if err := json.Unmarshal([]byte(def), &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checklist %s: %w", id, err)
	}
	return &c, nil
}

// ListChecklists returns every cached checklist ordered by name.
func (db *DB) ListChecklists() ([]*schema.Checklist, error) {
	return db.ListChecklistsContext(context.Background())
}

// ListChecklistsContext returns the cached checklists with context support.
func (db *DB) ListChecklistsContext(ctx context.Context) ([]*schema.Checklist, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT definition FROM checklists ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list checklists: %w", err)
	}
	defer rows.Close()

	var out []*schema.Checklist
	for rows.Next() {
		var def string
		if err := rows.Scan(&def); err != nil {
			return nil, fmt.Errorf("failed to scan checklist: %w", err)
		}
		var c schema.Checklist
		if err := json.Unmarshal([]byte(def), &c); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checklist: %w", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checklists: %w", err)
	}
	return out, nil
}
