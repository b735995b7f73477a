package schema

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// Inspection is the unit of work recorded against a checklist.
type Inspection struct {
	// ===== Identity =====
	ExternalID string `json:"externalId" validate:"required"`
	ServerID   string `json:"serverId,omitempty"`

	// ===== Header =====
	Module              string   `json:"module,omitempty"`
	ChecklistID         string   `json:"checklistId" validate:"required"`
	TeamID              string   `json:"teamId" validate:"required"`
	CollaboratorIDs     []string `json:"collaboratorIds,omitempty"`
	ServiceDescription  string   `json:"serviceDescription,omitempty"`
	LocationDescription string   `json:"locationDescription,omitempty"`
	CreatedByUserID     string   `json:"createdByUserId,omitempty"`
	CreatedOffline      bool     `json:"createdOffline"`

	// ===== Outcome =====
	Status                 Status `json:"status" validate:"required,oneof=DRAFT FINALIZED NEEDS_ADJUSTMENT RESOLVED"`
	ScorePercent           *int   `json:"scorePercent,omitempty" validate:"omitempty,min=0,max=100"`
	PendingResolutionNotes string `json:"pendingResolutionNotes,omitempty"`

	// ===== Sync =====
	SyncState        SyncState `json:"syncState" validate:"required,oneof=PENDING_SYNC SYNCING SYNCED SYNC_ERROR"`
	SyncErrorMessage string    `json:"syncErrorMessage,omitempty"`

	// ===== Timestamps =====
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	FinalizedAt *time.Time `json:"finalizedAt,omitempty"`
	SyncedAt    *time.Time `json:"syncedAt,omitempty"`
}

// NewInspection returns a DRAFT inspection with a fresh ExternalID that
// still has to be sent to the server.
func NewInspection(checklistID, teamID string) *Inspection {
	now := time.Now().UTC()
	return &Inspection{
		ExternalID:     uuid.NewString(),
		ChecklistID:    checklistID,
		TeamID:         teamID,
		Status:         StatusDraft,
		SyncState:      SyncStatePending,
		CreatedOffline: true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Validate checks if the Inspection has valid field values.
func (i *Inspection) Validate() error {
	if err := validate.Struct(i); err != nil {
		return fmt.Errorf("inspection %s: %w", i.ExternalID, err)
	}
	if i.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if i.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// IsFinal reports whether the inspection left the DRAFT status.
func (i *Inspection) IsFinal() bool {
	return i.Status != StatusDraft
}

// EffectiveSyncTime is the timestamp the retention purge measures age from:
// SyncedAt, falling back to UpdatedAt, falling back to CreatedAt.
func (i *Inspection) EffectiveSyncTime() time.Time {
	if i.SyncedAt != nil && !i.SyncedAt.IsZero() {
		return *i.SyncedAt
	}
	if !i.UpdatedAt.IsZero() {
		return i.UpdatedAt
	}
	return i.CreatedAt
}

// InspectionItem is one answer to one checklist item within an inspection.
type InspectionItem struct {
	ID                   string    `json:"id" validate:"required"`
	InspectionExternalID string    `json:"inspectionExternalId" validate:"required"`
	ChecklistItemID      string    `json:"checklistItemId" validate:"required"`
	Answer               Answer    `json:"answer,omitempty" validate:"omitempty,oneof=CONFORME NAO_CONFORME NAO_APLICAVEL"`
	Notes                string    `json:"notes,omitempty"`
	UpdatedAt            time.Time `json:"updatedAt"`

	// Resolution fields are populated together once a non-conforming item
	// has been remediated.
	ResolvedAt             *time.Time `json:"resolvedAt,omitempty"`
	ResolvedByUserID       string     `json:"resolvedByUserId,omitempty"`
	ResolutionNotes        string     `json:"resolutionNotes,omitempty"`
	ResolutionEvidencePath string     `json:"resolutionEvidencePath,omitempty"`
}

// NewInspectionItem returns an item with a fresh ID.
func NewInspectionItem(externalID, checklistItemID string, answer Answer) *InspectionItem {
	return &InspectionItem{
		ID:                   uuid.NewString(),
		InspectionExternalID: externalID,
		ChecklistItemID:      checklistItemID,
		Answer:               answer,
		UpdatedAt:            time.Now().UTC(),
	}
}

// Validate checks field values and the all-or-nothing resolution invariant.
func (it *InspectionItem) Validate() error {
	if err := validate.Struct(it); err != nil {
		return fmt.Errorf("inspection item %s: %w", it.ID, err)
	}
	if it.hasAnyResolution() && !it.IsResolved() {
		return fmt.Errorf("inspection item %s: resolution fields must be set together", it.ID)
	}
	return nil
}

// IsResolved reports whether every resolution field is populated.
func (it *InspectionItem) IsResolved() bool {
	return it.ResolvedAt != nil &&
		it.ResolvedByUserID != "" &&
		it.ResolutionNotes != "" &&
		it.ResolutionEvidencePath != ""
}

func (it *InspectionItem) hasAnyResolution() bool {
	return it.ResolvedAt != nil ||
		it.ResolvedByUserID != "" ||
		it.ResolutionNotes != "" ||
		it.ResolutionEvidencePath != ""
}

// Resolve sets all resolution fields at once.
func (it *InspectionItem) Resolve(userID, notes, evidencePath string, at time.Time) error {
	if userID == "" || notes == "" || evidencePath == "" {
		return fmt.Errorf("resolution requires user, notes and evidence")
	}
	at = at.UTC()
	it.ResolvedAt = &at
	it.ResolvedByUserID = userID
	it.ResolutionNotes = notes
	it.ResolutionEvidencePath = evidencePath
	it.UpdatedAt = at
	return nil
}
