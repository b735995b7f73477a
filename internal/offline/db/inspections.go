package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sanorte/vistorias/internal/offline/schema"
)

const inspectionColumns = `
	external_id, server_id, module, checklist_id, team_id, collaborator_ids,
	service_description, location_description, created_by_user_id, created_offline,
	status, score_percent, pending_resolution_notes, sync_state, sync_error_message,
	created_at, updated_at, finalized_at, synced_at`

// CreateInspection inserts an inspection or overwrites the row with the same
// ExternalID. A server_id that is already set is never replaced.
func (db *DB) CreateInspection(rec *schema.Inspection) error {
	return db.CreateInspectionContext(context.Background(), rec)
}

// CreateInspectionContext inserts or overwrites an inspection with context support.
func (db *DB) CreateInspectionContext(ctx context.Context, rec *schema.Inspection) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid inspection: %w", err)
	}
	return writeInspection(ctx, db.conn, rec)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeInspection(ctx context.Context, ex execer, rec *schema.Inspection) error {
	collaborators, err := json.Marshal(rec.CollaboratorIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal collaborator ids: %w", err)
	}

	var score sql.NullInt64
	if rec.ScorePercent != nil {
		score = sql.NullInt64{Int64: int64(*rec.ScorePercent), Valid: true}
	}
	var serverID sql.NullString
	if rec.ServerID != "" {
		serverID = sql.NullString{String: rec.ServerID, Valid: true}
	}

	query := `
	INSERT INTO inspections (` + inspectionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(external_id) DO UPDATE SET
		server_id = COALESCE(inspections.server_id, excluded.server_id),
		module = excluded.module,
		checklist_id = excluded.checklist_id,
		team_id = excluded.team_id,
		collaborator_ids = excluded.collaborator_ids,
		service_description = excluded.service_description,
		location_description = excluded.location_description,
		created_by_user_id = excluded.created_by_user_id,
		created_offline = excluded.created_offline,
		status = excluded.status,
		score_percent = excluded.score_percent,
		pending_resolution_notes = excluded.pending_resolution_notes,
		sync_state = excluded.sync_state,
		sync_error_message = excluded.sync_error_message,
		updated_at = excluded.updated_at,
		finalized_at = excluded.finalized_at,
		synced_at = excluded.synced_at
	`

	_, err = ex.ExecContext(ctx, query,
		rec.ExternalID,
		serverID,
		rec.Module,
		rec.ChecklistID,
		rec.TeamID,
		string(collaborators),
		rec.ServiceDescription,
		rec.LocationDescription,
		rec.CreatedByUserID,
		boolToInt(rec.CreatedOffline),
		string(rec.Status),
		score,
		rec.PendingResolutionNotes,
		string(rec.SyncState),
		rec.SyncErrorMessage,
		formatTime(rec.CreatedAt),
		formatTime(rec.UpdatedAt),
		timeToNullString(rec.FinalizedAt),
		timeToNullString(rec.SyncedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to write inspection %s: %w", rec.ExternalID, err)
	}
	return nil
}

// InspectionPatch is a shallow update: every non-nil field overwrites the
// stored value. UpdatedAt is always set to the current time.
type InspectionPatch struct {
	ServerID               *string
	Module                 *string
	ChecklistID            *string
	TeamID                 *string
	CollaboratorIDs        *[]string
	ServiceDescription     *string
	LocationDescription    *string
	Status                 *schema.Status
	ScorePercent           *int
	PendingResolutionNotes *string
	SyncState              *schema.SyncState
	SyncErrorMessage       *string
	FinalizedAt            *time.Time
	SyncedAt               *time.Time

	// ClearSyncError empties SyncErrorMessage; it wins over SyncErrorMessage.
	ClearSyncError bool

	// IfSyncState makes the patch conditional on the stored sync state.
	// When the state differs only ServerID is applied and UpdatedAt is left
	// alone, so a concurrent edit is never overwritten.
	IfSyncState *schema.SyncState
}

// Apply merges the patch into rec and stamps UpdatedAt.
func (p InspectionPatch) Apply(rec *schema.Inspection, now time.Time) {
	if p.ServerID != nil && rec.ServerID == "" {
		rec.ServerID = *p.ServerID
	}
	if p.Module != nil {
		rec.Module = *p.Module
	}
	if p.ChecklistID != nil {
		rec.ChecklistID = *p.ChecklistID
	}
	if p.TeamID != nil {
		rec.TeamID = *p.TeamID
	}
	if p.CollaboratorIDs != nil {
		rec.CollaboratorIDs = append([]string(nil), (*p.CollaboratorIDs)...)
	}
	if p.ServiceDescription != nil {
		rec.ServiceDescription = *p.ServiceDescription
	}
	if p.LocationDescription != nil {
		rec.LocationDescription = *p.LocationDescription
	}
	if p.Status != nil {
		rec.Status = *p.Status
	}
	if p.ScorePercent != nil {
		score := *p.ScorePercent
		rec.ScorePercent = &score
	}
	if p.PendingResolutionNotes != nil {
		rec.PendingResolutionNotes = *p.PendingResolutionNotes
	}
	if p.SyncState != nil {
		rec.SyncState = *p.SyncState
	}
	if p.SyncErrorMessage != nil {
		rec.SyncErrorMessage = *p.SyncErrorMessage
	}
	if p.ClearSyncError {
		rec.SyncErrorMessage = ""
	}
	if p.FinalizedAt != nil {
		t := p.FinalizedAt.UTC()
		rec.FinalizedAt = &t
	}
	if p.SyncedAt != nil {
		t := p.SyncedAt.UTC()
		rec.SyncedAt = &t
	}
	rec.UpdatedAt = now.UTC()
}

// UpdateInspection applies a patch to an existing inspection and returns the
// merged record. Returns ErrNotFound when no inspection has the ExternalID.
// Callers using IfSyncState compare the returned SyncState to learn whether
// the patch was applied.
func (db *DB) UpdateInspection(externalID string, patch InspectionPatch) (*schema.Inspection, error) {
	return db.UpdateInspectionContext(context.Background(), externalID, patch)
}

// UpdateInspectionContext applies a patch with context support.
func (db *DB) UpdateInspectionContext(ctx context.Context, externalID string, patch InspectionPatch) (*schema.Inspection, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+inspectionColumns+` FROM inspections WHERE external_id = ?`, externalID)
	rec, err := scanInspection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("inspection %s: %w", externalID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load inspection %s: %w", externalID, err)
	}

	if patch.IfSyncState != nil && rec.SyncState != *patch.IfSyncState {
		if patch.ServerID == nil || rec.ServerID != "" {
			return rec, nil
		}
		rec.ServerID = *patch.ServerID
	} else {
		patch.Apply(rec, time.Now())
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid inspection patch: %w", err)
	}

	if err := writeInspection(ctx, tx, rec); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return rec, nil
}

// GetInspection retrieves one inspection by ExternalID.
// Returns ErrNotFound if it does not exist.
func (db *DB) GetInspection(externalID string) (*schema.Inspection, error) {
	return db.GetInspectionContext(context.Background(), externalID)
}

// GetInspectionContext retrieves one inspection with context support.
func (db *DB) GetInspectionContext(ctx context.Context, externalID string) (*schema.Inspection, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+inspectionColumns+` FROM inspections WHERE external_id = ?`, externalID)
	rec, err := scanInspection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("inspection %s: %w", externalID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inspection %s: %w", externalID, err)
	}
	return rec, nil
}

// ListInspectionsFilter configures the ListInspections query.
type ListInspectionsFilter struct {
	// Status filters by business status (empty = all)
	Status schema.Status
	// SyncState filters by sync state (empty = all)
	SyncState schema.SyncState
	// CreatedByUserID filters by owning user (empty = all)
	CreatedByUserID string
	// TeamID filters by team (empty = all)
	TeamID string
	// UpdatedSince keeps rows updated at or after this time (zero = all)
	UpdatedSince time.Time
	// Limit restricts the number of results (0 = no limit)
	Limit int
	// Offset skips the first N results (for pagination)
	Offset int
}

// ListInspections retrieves inspections matching the filter, newest first.
func (db *DB) ListInspections(filter ListInspectionsFilter) ([]*schema.Inspection, error) {
	return db.ListInspectionsContext(context.Background(), filter)
}

// ListInspectionsContext retrieves inspections with context support.
func (db *DB) ListInspectionsContext(ctx context.Context, filter ListInspectionsFilter) ([]*schema.Inspection, error) {
	var conditions []string
	var args []any

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.SyncState != "" {
		conditions = append(conditions, "sync_state = ?")
		args = append(args, string(filter.SyncState))
	}
	if filter.CreatedByUserID != "" {
		conditions = append(conditions, "created_by_user_id = ?")
		args = append(args, filter.CreatedByUserID)
	}
	if filter.TeamID != "" {
		conditions = append(conditions, "team_id = ?")
		args = append(args, filter.TeamID)
	}
	if !filter.UpdatedSince.IsZero() {
		conditions = append(conditions, "updated_at >= ?")
		args = append(args, formatTime(filter.UpdatedSince))
	}

	query := `SELECT ` + inspectionColumns + ` FROM inspections`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, external_id ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += " LIMIT -1"
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list inspections: %w", err)
	}
	defer rows.Close()

	return scanInspections(rows)
}

// GetInspectionsToSync returns the candidate set: every inspection in
// PENDING_SYNC or SYNC_ERROR, oldest change first.
func (db *DB) GetInspectionsToSync() ([]*schema.Inspection, error) {
	return db.GetInspectionsToSyncContext(context.Background())
}

// GetInspectionsToSyncContext returns the candidate set with context support.
func (db *DB) GetInspectionsToSyncContext(ctx context.Context) ([]*schema.Inspection, error) {
	query := `SELECT ` + inspectionColumns + ` FROM inspections
	WHERE sync_state IN (?, ?)
	ORDER BY updated_at ASC, external_id ASC`

	rows, err := db.conn.QueryContext(ctx, query,
		string(schema.SyncStatePending), string(schema.SyncStateError))
	if err != nil {
		return nil, fmt.Errorf("failed to query inspections to sync: %w", err)
	}
	defer rows.Close()

	return scanInspections(rows)
}

// CountPendingSync returns the size of the candidate set.
func (db *DB) CountPendingSync() (int, error) {
	return db.CountPendingSyncContext(context.Background())
}

// CountPendingSyncContext returns the size of the candidate set with context support.
func (db *DB) CountPendingSyncContext(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inspections WHERE sync_state IN (?, ?)`,
		string(schema.SyncStatePending), string(schema.SyncStateError),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending inspections: %w", err)
	}
	return count, nil
}

// GetCounts returns the number of inspections in each sync state. States
// with no rows are present with a zero count.
func (db *DB) GetCounts() (map[schema.SyncState]int, error) {
	return db.GetCountsContext(context.Background())
}

// GetCountsContext returns per-sync-state counts with context support.
func (db *DB) GetCountsContext(ctx context.Context) (map[schema.SyncState]int, error) {
	counts := map[schema.SyncState]int{
		schema.SyncStatePending: 0,
		schema.SyncStateSyncing: 0,
		schema.SyncStateSynced:  0,
		schema.SyncStateError:   0,
	}

	rows, err := db.conn.QueryContext(ctx, `SELECT sync_state, COUNT(*) FROM inspections GROUP BY sync_state`)
	if err != nil {
		return nil, fmt.Errorf("failed to count inspections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[schema.SyncState(state)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}
	return counts, nil
}

// ResetStaleSyncing moves SYNCING rows whose last update is older than
// olderThan back to PENDING_SYNC. A pass that crashed mid-flight leaves such
// rows behind. Returns the number of rows reset.
func (db *DB) ResetStaleSyncing(olderThan time.Duration) (int, error) {
	return db.ResetStaleSyncingContext(context.Background(), olderThan)
}

// ResetStaleSyncingContext resets stale SYNCING rows with context support.
func (db *DB) ResetStaleSyncingContext(ctx context.Context, olderThan time.Duration) (int, error) {
	now := time.Now()
	cutoff := now.Add(-olderThan)

	res, err := db.conn.ExecContext(ctx, `
	UPDATE inspections
	SET sync_state = ?, updated_at = ?
	WHERE sync_state = ? AND updated_at < ?`,
		string(schema.SyncStatePending),
		formatTime(now),
		string(schema.SyncStateSyncing),
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale syncing inspections: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}

// DeleteInspectionData removes an inspection with its signature, evidences
// and items in one transaction. Deleting a missing inspection is a no-op.
func (db *DB) DeleteInspectionData(externalID string) error {
	return db.DeleteInspectionDataContext(context.Background(), externalID)
}

// DeleteInspectionDataContext removes an inspection with context support.
func (db *DB) DeleteInspectionDataContext(ctx context.Context, externalID string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteInspectionTx(ctx, tx, externalID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func deleteInspectionTx(ctx context.Context, tx *sql.Tx, externalID string) error {
	statements := []struct {
		what  string
		query string
	}{
		{"signature", `DELETE FROM signatures WHERE inspection_external_id = ?`},
		{"evidences", `DELETE FROM evidences WHERE inspection_external_id = ?`},
		{"items", `DELETE FROM inspection_items WHERE inspection_external_id = ?`},
		{"inspection", `DELETE FROM inspections WHERE external_id = ?`},
	}
	for _, st := range statements {
		if _, err := tx.ExecContext(ctx, st.query, externalID); err != nil {
			return fmt.Errorf("failed to delete %s of %s: %w", st.what, externalID, err)
		}
	}
	return nil
}

func scanInspection(row scanner) (*schema.Inspection, error) {
	var rec schema.Inspection
	var serverID, collaborators, finalizedAt, syncedAt sql.NullString
	var score sql.NullInt64
	var createdOffline int
	var status, syncState, createdAt, updatedAt string

	err := row.Scan(
		&rec.ExternalID,
		&serverID,
		&rec.Module,
		&rec.ChecklistID,
		&rec.TeamID,
		&collaborators,
		&rec.ServiceDescription,
		&rec.LocationDescription,
		&rec.CreatedByUserID,
		&createdOffline,
		&status,
		&score,
		&rec.PendingResolutionNotes,
		&syncState,
		&rec.SyncErrorMessage,
		&createdAt,
		&updatedAt,
		&finalizedAt,
		&syncedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.ServerID = serverID.String
	rec.CreatedOffline = createdOffline != 0
	rec.Status = schema.Status(status)
	rec.SyncState = schema.SyncState(syncState)
	if score.Valid {
		s := int(score.Int64)
		rec.ScorePercent = &s
	}
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	rec.FinalizedAt = nullStringToTime(finalizedAt)
	rec.SyncedAt = nullStringToTime(syncedAt)

	if collaborators.Valid && collaborators.String != "" && collaborators.String != "null" {
		if err := json.Unmarshal([]byte(collaborators.String), &rec.CollaboratorIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal collaborator ids: %w", err)
		}
	}

	return &rec, nil
}

func scanInspections(rows *sql.Rows) ([]*schema.Inspection, error) {
	var out []*schema.Inspection
	for rows.Next() {
		rec, err := scanInspection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inspection: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inspections: %w", err)
	}
	return out, nil
}
