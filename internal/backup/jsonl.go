// Package backup moves inspections between offline stores as JSONL, one
// inspection with everything it owns per line. It is used to carry
// unsynced work to another device and to hand a store's content to
// support without copying the SQLite file.
package backup

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sanorte/vistorias/internal/offline/db"
	"github.com/sanorte/vistorias/internal/offline/schema"
)

// Record is one exported inspection.
type Record struct {
	Inspection *schema.Inspection       `json:"inspection"`
	Items      []*schema.InspectionItem `json:"items,omitempty"`
	Evidences  []*schema.Evidence       `json:"evidences,omitempty"`
	Signature  *schema.Signature        `json:"signature,omitempty"`
}

// Store is the part of the offline store used by export and import. *db.DB
// implements it.
type Store interface {
	ListInspectionsContext(ctx context.Context, filter db.ListInspectionsFilter) ([]*schema.Inspection, error)
	GetInspectionContext(ctx context.Context, externalID string) (*schema.Inspection, error)
	CreateInspectionContext(ctx context.Context, rec *schema.Inspection) error
	GetInspectionItemsContext(ctx context.Context, externalID string) ([]*schema.InspectionItem, error)
	ReplaceInspectionItemsContext(ctx context.Context, externalID string, items []*schema.InspectionItem) error
	GetEvidencesContext(ctx context.Context, externalID string) ([]*schema.Evidence, error)
	SaveEvidenceContext(ctx context.Context, ev *schema.Evidence) error
	GetSignatureContext(ctx context.Context, externalID string) (*schema.Signature, error)
	SaveSignatureContext(ctx context.Context, sig *schema.Signature) error
}

// Export writes every inspection matching filter to w and returns how many
// were written.
func Export(ctx context.Context, store Store, w io.Writer, filter db.ListInspectionsFilter) (int, error) {
	list, err := store.ListInspectionsContext(ctx, filter)
	if err != nil {
		return 0, err
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i, rec := range list {
		r, err := load(ctx, store, rec)
		if err != nil {
			return i, err
		}
		if err := enc.Encode(r); err != nil {
			return i, fmt.Errorf("failed to encode %s: %w", rec.ExternalID, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return len(list), fmt.Errorf("failed to flush export: %w", err)
	}
	return len(list), nil
}

// ExportFile writes the export to path through a temp file.
func ExportFile(ctx context.Context, store Store, path string, filter db.ListInspectionsFilter) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create export directory: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	n, err := Export(ctx, store, f, filter)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return n, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return n, fmt.Errorf("failed to rename temp file: %w", err)
	}
	return n, nil
}

func load(ctx context.Context, store Store, rec *schema.Inspection) (*Record, error) {
	items, err := store.GetInspectionItemsContext(ctx, rec.ExternalID)
	if err != nil {
		return nil, err
	}
	evidences, err := store.GetEvidencesContext(ctx, rec.ExternalID)
	if err != nil {
		return nil, err
	}
	sig, err := store.GetSignatureContext(ctx, rec.ExternalID)
	if err != nil {
		return nil, err
	}
	return &Record{Inspection: rec, Items: items, Evidences: evidences, Signature: sig}, nil
}

// ImportOptions configures Import.
type ImportOptions struct {
	// Overwrite replaces inspections that already exist locally
	Overwrite bool
	// DryRun parses and counts without writing
	DryRun bool
}

// ImportResult summarizes an import.
type ImportResult struct {
	Imported int
	Skipped  int
	Errors   []string
}

// ReadRecords parses a JSONL export.
func ReadRecords(r io.Reader) ([]*Record, error) {
	var out []*Record
	dec := json.NewDecoder(r)
	for line := 1; ; line++ {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at record %d: %w", line, err)
		}
		if rec.Inspection == nil {
			return nil, fmt.Errorf("record %d has no inspection", line)
		}
		out = append(out, &rec)
	}
	return out, nil
}

// Import writes the records of a JSONL export into store.
//
// A record left SYNCING by the exporting device is imported as
// PENDING_SYNC since no pass owns it here. Invalid records are reported in
// ImportResult.Errors and do not stop the import.
func Import(ctx context.Context, store Store, r io.Reader, opts ImportOptions) (*ImportResult, error) {
	records, err := ReadRecords(r)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for _, rec := range records {
		id := rec.Inspection.ExternalID

		_, err := store.GetInspectionContext(ctx, id)
		switch {
		case err == nil && !opts.Overwrite:
			result.Skipped++
			continue
		case err != nil && !errors.Is(err, db.ErrNotFound):
			return result, err
		}

		if rec.Inspection.SyncState == schema.SyncStateSyncing {
			rec.Inspection.SyncState = schema.SyncStatePending
		}

		if opts.DryRun {
			if err := rec.Inspection.Validate(); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", id, err))
				continue
			}
			result.Imported++
			continue
		}

		if err := write(ctx, store, rec); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", id, err))
			continue
		}
		result.Imported++
	}
	return result, nil
}

func write(ctx context.Context, store Store, rec *Record) error {
	id := rec.Inspection.ExternalID
	if err := store.CreateInspectionContext(ctx, rec.Inspection); err != nil {
		return err
	}
	for _, it := range rec.Items {
		it.InspectionExternalID = id
	}
	if err := store.ReplaceInspectionItemsContext(ctx, id, rec.Items); err != nil {
		return err
	}
	for _, ev := range rec.Evidences {
		ev.InspectionExternalID = id
		if err := store.SaveEvidenceContext(ctx, ev); err != nil {
			return err
		}
	}
	if rec.Signature != nil {
		rec.Signature.InspectionExternalID = id
		if err := store.SaveSignatureContext(ctx, rec.Signature); err != nil {
			return err
		}
	}
	return nil
}
