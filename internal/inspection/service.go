// Package inspection implements the operations a field user performs on an
// inspection while offline: drafting, answering, attaching photos, signing,
// finalizing and resolving non-conformities.
//
// Every mutation stamps the inspection PENDING_SYNC so the next sync pass
// picks it up.
package inspection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/sanorte/vistorias/internal/connectivity"
	"github.com/sanorte/vistorias/internal/offline/db"
	"github.com/sanorte/vistorias/internal/offline/schema"
	"github.com/sanorte/vistorias/internal/rules"
)

// Store is the part of the offline store used by the service. *db.DB
// implements it.
type Store interface {
	CreateInspectionContext(ctx context.Context, rec *schema.Inspection) error
	GetInspectionContext(ctx context.Context, externalID string) (*schema.Inspection, error)
	UpdateInspectionContext(ctx context.Context, externalID string, patch db.InspectionPatch) (*schema.Inspection, error)
	DeleteInspectionDataContext(ctx context.Context, externalID string) error
	CountPendingSyncContext(ctx context.Context) (int, error)
	ReplaceInspectionItemsContext(ctx context.Context, externalID string, items []*schema.InspectionItem) error
	GetInspectionItemsContext(ctx context.Context, externalID string) ([]*schema.InspectionItem, error)
	SaveEvidenceContext(ctx context.Context, ev *schema.Evidence) error
	GetEvidenceContext(ctx context.Context, id string) (*schema.Evidence, error)
	DeleteEvidenceContext(ctx context.Context, id string) error
	GetEvidencesContext(ctx context.Context, externalID string) ([]*schema.Evidence, error)
	SaveSignatureContext(ctx context.Context, sig *schema.Signature) error
	GetSignatureContext(ctx context.Context, externalID string) (*schema.Signature, error)
	GetChecklistContext(ctx context.Context, id string) (*schema.Checklist, error)
}

// MediaClient uploads and deletes hosted media. *remote.Client implements it.
type MediaClient interface {
	UploadMedia(ctx context.Context, folder schema.MediaFolder, fileName, mimeType string, r io.Reader) (schema.MediaRef, error)
	DeleteMedia(ctx context.Context, publicID string) error
}

// Options configures a Service.
type Options struct {
	// MediaDir is where previews are spooled (default: ".vistoria/media")
	MediaDir string
	// Media uploads captured photos when online; nil keeps previews only
	Media MediaClient
	// Connectivity decides whether capture-time uploads are attempted
	Connectivity connectivity.Checker
	// UserID is recorded as creator and resolver
	UserID string
	// Logger (default: stderr with "[inspection] " prefix)
	Logger *log.Logger
}

// Service performs inspection operations against the offline store.
type Service struct {
	store    Store
	media    MediaClient
	online   connectivity.Checker
	mediaDir string
	userID   string
	logger   *log.Logger
}

// New creates a Service.
func New(store Store, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[inspection] ", log.LstdFlags)
	}
	if opts.MediaDir == "" {
		opts.MediaDir = filepath.Join(".vistoria", "media")
	}
	if opts.Connectivity == nil {
		opts.Connectivity = connectivity.NewStatic(false)
	}
	return &Service{
		store:    store,
		media:    opts.Media,
		online:   opts.Connectivity,
		mediaDir: opts.MediaDir,
		userID:   opts.UserID,
		logger:   opts.Logger,
	}
}

// Header holds the descriptive fields of an inspection.
type Header struct {
	Module              string
	CollaboratorIDs     []string
	ServiceDescription  string
	LocationDescription string
}

// HeaderUpdate changes the non-nil header fields.
type HeaderUpdate struct {
	Module              *string
	TeamID              *string
	CollaboratorIDs     *[]string
	ServiceDescription  *string
	LocationDescription *string
}

// Answer is one response given by the user.
type Answer struct {
	ChecklistItemID string
	Answer          schema.Answer
	Notes           string
}

// Detail is an inspection with everything it owns.
type Detail struct {
	Inspection *schema.Inspection
	Items      []*schema.InspectionItem
	Evidences  []*schema.Evidence
	Signature  *schema.Signature
}

// CreateDraft starts a new DRAFT inspection against a cached checklist.
func (s *Service) CreateDraft(ctx context.Context, checklistID, teamID string, h Header) (*schema.Inspection, error) {
	if _, err := s.store.GetChecklistContext(ctx, checklistID); err != nil {
		return nil, fmt.Errorf("failed to load checklist %s: %w", checklistID, err)
	}

	rec := schema.NewInspection(checklistID, teamID)
	rec.Module = h.Module
	rec.CollaboratorIDs = h.CollaboratorIDs
	rec.ServiceDescription = h.ServiceDescription
	rec.LocationDescription = h.LocationDescription
	rec.CreatedByUserID = s.userID

	if err := s.store.CreateInspectionContext(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Printf("Created draft %s (checklist %s)", rec.ExternalID, checklistID)
	return rec, nil
}

// Get returns an inspection with its items, evidences and signature.
func (s *Service) Get(ctx context.Context, externalID string) (*Detail, error) {
	rec, err := s.store.GetInspectionContext(ctx, externalID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.GetInspectionItemsContext(ctx, externalID)
	if err != nil {
		return nil, err
	}
	evidences, err := s.store.GetEvidencesContext(ctx, externalID)
	if err != nil {
		return nil, err
	}
	sig, err := s.store.GetSignatureContext(ctx, externalID)
	if err != nil {
		return nil, err
	}
	return &Detail{Inspection: rec, Items: items, Evidences: evidences, Signature: sig}, nil
}

// UpdateHeader changes header fields of a draft.
func (s *Service) UpdateHeader(ctx context.Context, externalID string, u HeaderUpdate) (*schema.Inspection, error) {
	if _, err := s.loadDraft(ctx, externalID); err != nil {
		return nil, err
	}
	return s.touch(ctx, externalID, db.InspectionPatch{
		Module:              u.Module,
		TeamID:              u.TeamID,
		CollaboratorIDs:     u.CollaboratorIDs,
		ServiceDescription:  u.ServiceDescription,
		LocationDescription: u.LocationDescription,
	})
}

// SetAnswers replaces the answers of a draft. Items keep their ID across
// calls so evidences linked to them stay linked.
func (s *Service) SetAnswers(ctx context.Context, externalID string, answers []Answer) ([]*schema.InspectionItem, error) {
	rec, err := s.loadDraft(ctx, externalID)
	if err != nil {
		return nil, err
	}
	checklist, err := s.store.GetChecklistContext(ctx, rec.ChecklistID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checklist %s: %w", rec.ChecklistID, err)
	}
	existing, err := s.store.GetInspectionItemsContext(ctx, externalID)
	if err != nil {
		return nil, err
	}
	byChecklistItem := make(map[string]*schema.InspectionItem, len(existing))
	for _, it := range existing {
		byChecklistItem[it.ChecklistItemID] = it
	}

	now := time.Now().UTC()
	items := make([]*schema.InspectionItem, 0, len(answers))
	for _, a := range answers {
		if _, ok := checklist.ItemByID(a.ChecklistItemID); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownItem, a.ChecklistItemID)
		}
		it := schema.NewInspectionItem(externalID, a.ChecklistItemID, a.Answer)
		if prev, ok := byChecklistItem[a.ChecklistItemID]; ok {
			it.ID = prev.ID
		}
		it.Notes = a.Notes
		it.UpdatedAt = now
		items = append(items, it)
	}

	if err := s.store.ReplaceInspectionItemsContext(ctx, externalID, items); err != nil {
		return nil, err
	}
	if _, err := s.touch(ctx, externalID, db.InspectionPatch{}); err != nil {
		return nil, err
	}
	return items, nil
}

// Finalize validates a draft against its checklist and, when it passes,
// records score, status and finalization time. A failed validation returns
// a *FinalizeRejectedError and changes nothing.
func (s *Service) Finalize(ctx context.Context, externalID string) (*schema.Inspection, error) {
	d, err := s.Get(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if d.Inspection.IsFinal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotDraft, externalID, d.Inspection.Status)
	}
	checklist, err := s.store.GetChecklistContext(ctx, d.Inspection.ChecklistID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checklist %s: %w", d.Inspection.ChecklistID, err)
	}

	v := rules.ValidateFinalize(checklist, d.Items, d.Evidences, d.Signature)
	if !v.Valid {
		return nil, &FinalizeRejectedError{Validation: v}
	}

	score := rules.CalculateScore(d.Items)
	status := rules.DetermineStatus(d.Items)
	now := time.Now().UTC()
	rec, err := s.touch(ctx, externalID, db.InspectionPatch{
		Status:       &status,
		ScorePercent: &score,
		FinalizedAt:  &now,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Printf("Finalized %s: %s, score %d%%", externalID, status, score)
	return rec, nil
}

// Resolution describes how a non-conformity was remediated.
type Resolution struct {
	Notes        string
	EvidencePath string
}

// ResolveItem records the resolution of one NAO_CONFORME item. When every
// non-conformity is resolved the inspection becomes RESOLVED.
func (s *Service) ResolveItem(ctx context.Context, externalID, checklistItemID string, r Resolution) (*schema.Inspection, error) {
	rec, err := s.store.GetInspectionContext(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if rec.Status != schema.StatusNeedsAdjustment {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotAdjustable, externalID, rec.Status)
	}

	items, err := s.store.GetInspectionItemsContext(ctx, externalID)
	if err != nil {
		return nil, err
	}
	var target *schema.InspectionItem
	for _, it := range items {
		if it.ChecklistItemID == checklistItemID {
			target = it
			break
		}
	}
	if target == nil || target.Answer != schema.AnswerNaoConforme {
		return nil, fmt.Errorf("%w: %s is not a non-conformity of %s", ErrUnknownItem, checklistItemID, externalID)
	}
	if err := target.Resolve(s.userID, r.Notes, r.EvidencePath, time.Now()); err != nil {
		return nil, err
	}
	if err := s.store.ReplaceInspectionItemsContext(ctx, externalID, items); err != nil {
		return nil, err
	}

	patch := db.InspectionPatch{}
	if rules.AllResolved(items) {
		resolved := schema.StatusResolved
		patch.Status = &resolved
	}
	return s.touch(ctx, externalID, patch)
}

// Delete removes an inspection, everything it owns and its spooled previews.
func (s *Service) Delete(ctx context.Context, externalID string) error {
	if err := s.store.DeleteInspectionDataContext(ctx, externalID); err != nil {
		return err
	}
	if err := os.RemoveAll(s.spoolDir(externalID)); err != nil {
		s.logger.Printf("Warning: failed to remove previews of %s: %v", externalID, err)
	}
	return nil
}

// PendingCount returns the number of inspections waiting for a sync pass.
func (s *Service) PendingCount(ctx context.Context) (int, error) {
	return s.store.CountPendingSyncContext(ctx)
}

func (s *Service) loadDraft(ctx context.Context, externalID string) (*schema.Inspection, error) {
	rec, err := s.store.GetInspectionContext(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if rec.IsFinal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotDraft, externalID, rec.Status)
	}
	return rec, nil
}

// touch applies patch and re-stamps the inspection PENDING_SYNC.
func (s *Service) touch(ctx context.Context, externalID string, patch db.InspectionPatch) (*schema.Inspection, error) {
	pending := schema.SyncStatePending
	patch.SyncState = &pending
	patch.ClearSyncError = true
	rec, err := s.store.UpdateInspectionContext(ctx, externalID, patch)
	if errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update inspection %s: %w", externalID, err)
	}
	return rec, nil
}
