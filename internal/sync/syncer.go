package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sanorte/vistorias/internal/connectivity"
	"github.com/sanorte/vistorias/internal/offline/db"
	"github.com/sanorte/vistorias/internal/offline/schema"
	"github.com/sanorte/vistorias/internal/remote"
)

// DefaultRetentionDays is how long SYNCED inspections are kept locally.
const DefaultRetentionDays = 7

// DefaultStaleGrace is how old a SYNCING inspection must be before a pass
// treats it as abandoned by a crashed process.
const DefaultStaleGrace = 2 * time.Minute

const (
	msgNoResult       = "no result returned by server"
	msgRejected       = "rejected by server"
	msgEditedInFlight = "edited during sync; queued for the next pass"
	signatureFileName = "signature.png"
	signatureMimeType = "image/png"
)

// Options configures a Syncer.
type Options struct {
	// Connectivity is sampled once per pass (default: always online)
	Connectivity connectivity.Checker
	// RetentionDays for the post-sync purge (default: 7, negative disables)
	RetentionDays int
	// StaleGrace for requeueing abandoned SYNCING inspections at the start
	// of a pass (default: 2m, negative disables)
	StaleGrace time.Duration
	// Logger for pass progress (default: stderr with "[sync] " prefix)
	Logger *log.Logger
	// Observers receive pass events
	Observers []Observer
}

// syncer implements the Syncer interface.
type syncer struct {
	store     Store
	api       Remote
	online    connectivity.Checker
	retention int
	grace     time.Duration
	logger    *log.Logger
	observers []Observer
	running   atomic.Bool
}

// New creates a new Syncer.
//
// The store must have its schema initialized.
//
// Example:
//
//	syncer := sync.New(store, client, sync.Options{
//	    Connectivity: connectivity.NewHTTPProbe(healthURL, 0),
//	})
func New(store Store, api Remote, opts Options) Syncer {
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if opts.Connectivity == nil {
		opts.Connectivity = connectivity.NewStatic(true)
	}
	if opts.RetentionDays == 0 {
		opts.RetentionDays = DefaultRetentionDays
	}
	if opts.StaleGrace == 0 {
		opts.StaleGrace = DefaultStaleGrace
	}
	return &syncer{
		store:     store,
		api:       api,
		online:    opts.Connectivity,
		retention: opts.RetentionDays,
		grace:     opts.StaleGrace,
		logger:    opts.Logger,
		observers: opts.Observers,
	}
}

// InFlight implements Syncer.InFlight.
func (s *syncer) InFlight() bool {
	return s.running.Load()
}

// Pending implements Syncer.Pending.
func (s *syncer) Pending(ctx context.Context) (int, error) {
	return s.store.CountPendingSyncContext(ctx)
}

// SyncAll implements Syncer.SyncAll.
func (s *syncer) SyncAll(ctx context.Context) (*Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer s.running.Store(false)

	res := &Result{StartedAt: time.Now()}

	if !s.online.Online(ctx) {
		return nil, ErrOffline
	}

	if s.grace >= 0 {
		n, err := s.store.ResetStaleSyncingContext(ctx, s.grace)
		if err != nil {
			return nil, fmt.Errorf("failed to requeue stale inspections: %w", err)
		}
		if n > 0 {
			s.logger.Printf("Requeued %d inspections left syncing by an earlier run", n)
		}
	}

	candidates, err := s.store.GetInspectionsToSyncContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync candidates: %w", err)
	}
	res.Candidates = len(candidates)
	if len(candidates) == 0 {
		res.Duration = time.Since(res.StartedAt)
		return res, nil
	}

	s.notifyStarted(len(candidates))
	err = s.runPass(ctx, candidates, res)
	res.Duration = time.Since(res.StartedAt)
	s.notifyFinished(res, err)

	if err != nil {
		return res, err
	}
	s.logger.Printf("Sync complete: %d candidates, %d synced, %d failed, %d purged (%s)",
		res.Candidates, res.Synced, res.Failed, res.Purged, res.Duration.Round(time.Millisecond))
	return res, nil
}

func (s *syncer) runPass(ctx context.Context, candidates []*schema.Inspection, res *Result) error {
	// Bookkeeping writes must land even if ctx is cancelled mid-pass.
	bg := context.WithoutCancel(ctx)

	syncing := schema.SyncStateSyncing
	marked := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, err := s.store.UpdateInspectionContext(ctx, c.ExternalID, db.InspectionPatch{
			SyncState:      &syncing,
			ClearSyncError: true,
		}); err != nil {
			s.revert(bg, marked)
			return fmt.Errorf("failed to mark %s as syncing: %w", c.ExternalID, err)
		}
		marked = append(marked, c.ExternalID)
	}

	var payloads []*remote.InspectionPayload
	var inFlight []string
	for i, c := range candidates {
		p, uploaded, err := s.buildPayload(ctx, c)
		res.Uploaded += uploaded
		if err == nil {
			payloads = append(payloads, p)
			inFlight = append(inFlight, c.ExternalID)
			continue
		}
		if errors.Is(err, ErrUpload) {
			s.logger.Printf("Skipping %s: %v", c.ExternalID, err)
			s.markError(bg, c.ExternalID, err.Error(), res)
			res.Skipped++
			continue
		}
		// Authorization or store failure: nothing is sent in this pass.
		rest := make([]string, 0, len(candidates)-i+len(inFlight))
		rest = append(rest, inFlight...)
		for _, r := range candidates[i:] {
			rest = append(rest, r.ExternalID)
		}
		s.revert(bg, rest)
		return err
	}

	if len(payloads) == 0 {
		return nil
	}

	results, err := s.api.SyncInspections(ctx, payloads)
	if err != nil {
		if errors.Is(err, remote.ErrUnauthorized) {
			s.revert(bg, inFlight)
			return err
		}
		s.logger.Printf("Batch request failed: %v", err)
		for _, id := range inFlight {
			s.markError(bg, id, err.Error(), res)
		}
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	byID := make(map[string]remote.SyncResult, len(results))
	for _, r := range results {
		byID[r.ExternalID] = r
	}

	var storeErr error
	now := time.Now()
	for _, id := range inFlight {
		r, ok := byID[id]
		switch {
		case !ok:
			s.markError(bg, id, msgNoResult, res)
		case r.Status == remote.ResultError:
			msg := r.Message
			if msg == "" {
				msg = msgRejected
			}
			s.markError(bg, id, msg, res)
		case r.Status == remote.ResultCreated || r.Status == remote.ResultUpdated:
			if err := s.markSynced(bg, id, r.ServerID, now, res); err != nil && storeErr == nil {
				storeErr = err
			}
		default:
			s.markError(bg, id, fmt.Sprintf("unexpected result status %q", r.Status), res)
		}
	}
	if storeErr != nil {
		return storeErr
	}

	if err := s.store.MarkLastSyncAt(bg, now); err != nil {
		s.logger.Printf("Warning: failed to record last sync time: %v", err)
	}
	s.purge(bg, res)
	return nil
}

// buildPayload loads everything owned by rec, uploads media that only has a
// local preview and assembles the wire payload. Returns the number of media
// uploaded.
func (s *syncer) buildPayload(ctx context.Context, rec *schema.Inspection) (*remote.InspectionPayload, int, error) {
	items, err := s.store.GetInspectionItemsContext(ctx, rec.ExternalID)
	if err != nil {
		return nil, 0, err
	}
	evidences, err := s.store.GetEvidencesContext(ctx, rec.ExternalID)
	if err != nil {
		return nil, 0, err
	}
	sig, err := s.store.GetSignatureContext(ctx, rec.ExternalID)
	if err != nil {
		return nil, 0, err
	}

	uploaded := 0
	for _, ev := range evidences {
		if ev.Media().IsDurable() {
			continue
		}
		ref, err := s.upload(ctx, schema.FolderEvidences, ev.FileName, ev.MimeType, ev.LocalPath)
		if err != nil {
			return nil, uploaded, wrapUpload("evidence "+ev.ID, err)
		}
		preview := ev.LocalPath
		ev.ApplyMedia(ref)
		if err := s.store.SaveEvidenceContext(ctx, ev); err != nil {
			return nil, uploaded, fmt.Errorf("failed to persist media reference of evidence %s: %w", ev.ID, err)
		}
		removePreview(preview)
		uploaded++
	}

	if sig != nil && !sig.Media().IsDurable() {
		ref, err := s.upload(ctx, schema.FolderSignatures, signatureFileName, signatureMimeType, sig.LocalPath)
		if err != nil {
			return nil, uploaded, wrapUpload("signature "+sig.ID, err)
		}
		preview := sig.LocalPath
		sig.ApplyMedia(ref)
		if err := s.store.SaveSignatureContext(ctx, sig); err != nil {
			return nil, uploaded, fmt.Errorf("failed to persist media reference of signature %s: %w", sig.ID, err)
		}
		removePreview(preview)
		uploaded++
	}

	p, err := remote.BuildPayload(rec, items, evidences, sig)
	if err != nil {
		return nil, uploaded, fmt.Errorf("%w: %v", ErrUpload, err)
	}
	return p, uploaded, nil
}

func (s *syncer) upload(ctx context.Context, folder schema.MediaFolder, fileName, mimeType, localPath string) (schema.MediaRef, error) {
	if localPath == "" {
		return schema.MediaRef{}, fmt.Errorf("no local preview and no remote reference")
	}
	f, err := os.Open(localPath)
	if err != nil {
		return schema.MediaRef{}, fmt.Errorf("failed to open preview: %w", err)
	}
	defer f.Close()
	return s.api.UploadMedia(ctx, folder, fileName, mimeType, f)
}

// wrapUpload classifies an upload error. Authorization failures keep their
// identity so the pass stops; everything else becomes ErrUpload.
func wrapUpload(what string, err error) error {
	if errors.Is(err, remote.ErrUnauthorized) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrUpload, what, err)
}

func removePreview(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

// markError records msg on an inspection this pass still owns. An
// inspection edited since it was marked SYNCING keeps its PENDING_SYNC state.
func (s *syncer) markError(ctx context.Context, externalID, msg string, res *Result) {
	state := schema.SyncStateError
	rec, err := s.store.UpdateInspectionContext(ctx, externalID, db.InspectionPatch{
		IfSyncState:      syncingState(),
		SyncState:        &state,
		SyncErrorMessage: &msg,
	})
	if err != nil {
		s.logger.Printf("Warning: failed to record sync error for %s: %v", externalID, err)
		res.record(Outcome{ExternalID: externalID, State: state, Message: msg})
		return
	}
	if rec.SyncState != state {
		res.record(Outcome{ExternalID: externalID, State: rec.SyncState, Message: msgEditedInFlight})
		return
	}
	res.record(Outcome{ExternalID: externalID, State: state, Message: msg})
}

func (s *syncer) markSynced(ctx context.Context, externalID, serverID string, now time.Time, res *Result) error {
	state := schema.SyncStateSynced
	patch := db.InspectionPatch{
		IfSyncState:    syncingState(),
		SyncState:      &state,
		SyncedAt:       &now,
		ClearSyncError: true,
	}
	if serverID != "" {
		patch.ServerID = &serverID
	}
	rec, err := s.store.UpdateInspectionContext(ctx, externalID, patch)
	if err != nil {
		return fmt.Errorf("failed to mark %s as synced: %w", externalID, err)
	}
	if rec.SyncState != state {
		// Edited while the batch was in flight: the server has the older
		// version, so the record stays queued with its adopted serverId.
		res.record(Outcome{ExternalID: externalID, State: rec.SyncState, ServerID: rec.ServerID, Message: msgEditedInFlight})
		return nil
	}
	res.record(Outcome{ExternalID: externalID, State: state, ServerID: rec.ServerID})
	return nil
}

func syncingState() *schema.SyncState {
	st := schema.SyncStateSyncing
	return &st
}

// revert puts inspections that were marked SYNCING back to PENDING_SYNC.
func (s *syncer) revert(ctx context.Context, ids []string) {
	pending := schema.SyncStatePending
	for _, id := range ids {
		if _, err := s.store.UpdateInspectionContext(ctx, id, db.InspectionPatch{
			IfSyncState: syncingState(),
			SyncState:   &pending,
		}); err != nil {
			s.logger.Printf("Warning: failed to reset %s to pending: %v", id, err)
		}
	}
}

func (s *syncer) purge(ctx context.Context, res *Result) {
	if s.retention < 0 {
		return
	}
	n, err := s.store.PurgeSyncedOlderThanDaysContext(ctx, s.retention)
	if err != nil {
		s.logger.Printf("Warning: retention purge failed: %v", err)
		return
	}
	res.Purged = n
	if err := s.store.MarkSyncMetadataContext(ctx, schema.MetaLastPurgeCount, strconv.Itoa(n)); err != nil {
		s.logger.Printf("Warning: failed to record purge count: %v", err)
	}
	if n > 0 {
		s.logger.Printf("Purged %d synced inspections older than %d days", n, s.retention)
	}
}

func (s *syncer) notifyStarted(candidates int) {
	for _, o := range s.observers {
		o.SyncStarted(candidates)
	}
}

func (s *syncer) notifyFinished(res *Result, err error) {
	for _, o := range s.observers {
		o.SyncFinished(res, err)
	}
}
