package sync

import (
	"context"
	"io"
	"time"

	"github.com/sanorte/vistorias/internal/offline/db"
	"github.com/sanorte/vistorias/internal/offline/schema"
	"github.com/sanorte/vistorias/internal/remote"
)

// Syncer reconciles local inspections with the server.
type Syncer interface {
	// SyncAll runs one pass over the candidate set.
	//
	// Returns ErrOffline when there is no connectivity, ErrSyncInProgress
	// when another pass is running, remote.ErrUnauthorized when the server
	// rejects the credentials, and an error wrapping ErrTransport when the
	// batch request fails. Per-inspection failures are recorded in the
	// store and reported in the Result only.
	//
	// Example:
	//   res, err := syncer.SyncAll(ctx)
	SyncAll(ctx context.Context) (*Result, error)

	// Pending returns the size of the candidate set.
	Pending(ctx context.Context) (int, error)

	// InFlight reports whether a pass is running.
	InFlight() bool
}

// Store is the part of the offline store the syncer needs. *db.DB
// implements it.
type Store interface {
	GetInspectionsToSyncContext(ctx context.Context) ([]*schema.Inspection, error)
	CountPendingSyncContext(ctx context.Context) (int, error)
	ResetStaleSyncingContext(ctx context.Context, olderThan time.Duration) (int, error)
	UpdateInspectionContext(ctx context.Context, externalID string, patch db.InspectionPatch) (*schema.Inspection, error)
	GetInspectionItemsContext(ctx context.Context, externalID string) ([]*schema.InspectionItem, error)
	GetEvidencesContext(ctx context.Context, externalID string) ([]*schema.Evidence, error)
	SaveEvidenceContext(ctx context.Context, ev *schema.Evidence) error
	GetSignatureContext(ctx context.Context, externalID string) (*schema.Signature, error)
	SaveSignatureContext(ctx context.Context, sig *schema.Signature) error
	MarkLastSyncAt(ctx context.Context, t time.Time) error
	MarkSyncMetadataContext(ctx context.Context, key, value string) error
	PurgeSyncedOlderThanDaysContext(ctx context.Context, days int) (int, error)
}

// Remote is the server API used by a pass. *remote.Client implements it.
type Remote interface {
	SyncInspections(ctx context.Context, payloads []*remote.InspectionPayload) ([]remote.SyncResult, error)
	UploadMedia(ctx context.Context, folder schema.MediaFolder, fileName, mimeType string, r io.Reader) (schema.MediaRef, error)
}

// Observer receives pass events. Implementations must not block.
type Observer interface {
	SyncStarted(candidates int)
	SyncFinished(res *Result, err error)
}

// Outcome is the final state of one candidate after a pass.
type Outcome struct {
	ExternalID string
	State      schema.SyncState
	ServerID   string
	Message    string
}

// Result summarizes one pass.
type Result struct {
	// Candidates is the size of the candidate set when the pass started.
	Candidates int
	// Synced counts inspections acknowledged by the server.
	Synced int
	// Failed counts inspections left in SYNC_ERROR.
	Failed int
	// Skipped counts failed inspections that were never submitted because
	// their media could not be uploaded.
	Skipped int
	// Uploaded counts media uploaded during the pass.
	Uploaded int
	// Purged counts inspections removed by the retention purge.
	Purged int

	Outcomes  []Outcome
	StartedAt time.Time
	Duration  time.Duration
}

func (r *Result) record(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.State {
	case schema.SyncStateSynced:
		r.Synced++
	case schema.SyncStateError:
		r.Failed++
	}
}
