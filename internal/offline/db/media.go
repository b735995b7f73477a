package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sanorte/vistorias/internal/offline/schema"
)

// SaveEvidence inserts or updates an evidence record.
func (db *DB) SaveEvidence(ev *schema.Evidence) error {
	return db.SaveEvidenceContext(context.Background(), ev)
}

// SaveEvidenceContext inserts or updates an evidence record with context support.
func (db *DB) SaveEvidenceContext(ctx context.Context, ev *schema.Evidence) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid evidence: %w", err)
	}

	query := `
	INSERT INTO evidences (
		id, inspection_external_id, inspection_item_id, file_name, mime_type,
		local_path, public_id, url, bytes, format, width, height, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		inspection_item_id = excluded.inspection_item_id,
		file_name = excluded.file_name,
		mime_type = excluded.mime_type,
		local_path = excluded.local_path,
		public_id = excluded.public_id,
		url = excluded.url,
		bytes = excluded.bytes,
		format = excluded.format,
		width = excluded.width,
		height = excluded.height
	`

	_, err := db.conn.ExecContext(ctx, query,
		ev.ID,
		ev.InspectionExternalID,
		ev.InspectionItemID,
		ev.FileName,
		ev.MimeType,
		ev.LocalPath,
		ev.PublicID,
		ev.URL,
		ev.Bytes,
		ev.Format,
		ev.Width,
		ev.Height,
		formatTime(ev.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save evidence %s: %w", ev.ID, err)
	}
	return nil
}

// GetEvidence retrieves one evidence by ID. Returns ErrNotFound if missing.
func (db *DB) GetEvidence(id string) (*schema.Evidence, error) {
	return db.GetEvidenceContext(context.Background(), id)
}

// GetEvidenceContext retrieves one evidence with context support.
func (db *DB) GetEvidenceContext(ctx context.Context, id string) (*schema.Evidence, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+evidenceColumns+` FROM evidences WHERE id = ?`, id)
	ev, err := scanEvidence(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("evidence %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get evidence %s: %w", id, err)
	}
	return ev, nil
}

// DeleteEvidence removes an evidence record. Deleting a missing record is a no-op.
func (db *DB) DeleteEvidence(id string) error {
	return db.DeleteEvidenceContext(context.Background(), id)
}

// DeleteEvidenceContext removes an evidence record with context support.
func (db *DB) DeleteEvidenceContext(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM evidences WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete evidence %s: %w", id, err)
	}
	return nil
}

// GetEvidences returns the evidences of an inspection in capture order.
func (db *DB) GetEvidences(externalID string) ([]*schema.Evidence, error) {
	return db.GetEvidencesContext(context.Background(), externalID)
}

// GetEvidencesContext returns the evidences of an inspection with context support.
func (db *DB) GetEvidencesContext(ctx context.Context, externalID string) ([]*schema.Evidence, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT `+evidenceColumns+` FROM evidences
	WHERE inspection_external_id = ?
	ORDER BY created_at ASC, id ASC`, externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidences of %s: %w", externalID, err)
	}
	defer rows.Close()

	var out []*schema.Evidence
	for rows.Next() {
		ev, err := scanEvidence(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evidence: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating evidences: %w", err)
	}
	return out, nil
}

const evidenceColumns = `
	id, inspection_external_id, inspection_item_id, file_name, mime_type,
	local_path, public_id, url, bytes, format, width, height, created_at`

func scanEvidence(row scanner) (*schema.Evidence, error) {
	var ev schema.Evidence
	var createdAt string
	err := row.Scan(
		&ev.ID,
		&ev.InspectionExternalID,
		&ev.InspectionItemID,
		&ev.FileName,
		&ev.MimeType,
		&ev.LocalPath,
		&ev.PublicID,
		&ev.URL,
		&ev.Bytes,
		&ev.Format,
		&ev.Width,
		&ev.Height,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	ev.CreatedAt = parseTime(createdAt)
	return &ev, nil
}

// SaveSignature stores the signature of an inspection. Any other signature
// already recorded for the same inspection is replaced.
func (db *DB) SaveSignature(sig *schema.Signature) error {
	return db.SaveSignatureContext(context.Background(), sig)
}

// SaveSignatureContext stores the signature with context support.
func (db *DB) SaveSignatureContext(ctx context.Context, sig *schema.Signature) error {
	if err := sig.Validate(); err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM signatures WHERE inspection_external_id = ? AND id != ?`,
		sig.InspectionExternalID, sig.ID,
	); err != nil {
		return fmt.Errorf("failed to clear previous signature of %s: %w", sig.InspectionExternalID, err)
	}

	query := `
	INSERT INTO signatures (
		id, inspection_external_id, signer_name, signer_role_label,
		local_path, public_id, url, signed_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		signer_name = excluded.signer_name,
		signer_role_label = excluded.signer_role_label,
		local_path = excluded.local_path,
		public_id = excluded.public_id,
		url = excluded.url,
		signed_at = excluded.signed_at
	`
	_, err = tx.ExecContext(ctx, query,
		sig.ID,
		sig.InspectionExternalID,
		sig.SignerName,
		sig.SignerRoleLabel,
		sig.LocalPath,
		sig.PublicID,
		sig.URL,
		formatTime(sig.SignedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save signature %s: %w", sig.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetSignature returns the signature of an inspection, or nil when none.
func (db *DB) GetSignature(externalID string) (*schema.Signature, error) {
	return db.GetSignatureContext(context.Background(), externalID)
}

// GetSignatureContext returns the signature with context support.
func (db *DB) GetSignatureContext(ctx context.Context, externalID string) (*schema.Signature, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT id, inspection_external_id, signer_name, signer_role_label,
	       local_path, public_id, url, signed_at
	FROM signatures WHERE inspection_external_id = ?`, externalID)

	var sig schema.Signature
	var signedAt string
	err := row.Scan(
		&sig.ID,
		&sig.InspectionExternalID,
		&sig.SignerName,
		&sig.SignerRoleLabel,
		&sig.LocalPath,
		&sig.PublicID,
		&sig.URL,
		&signedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get signature of %s: %w", externalID, err)
	}
	sig.SignedAt = parseTime(signedAt)
	return &sig, nil
}
